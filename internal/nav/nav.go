// Package nav implements waypoint and loiter navigation for a multirotor.
//
// The engine runs inside a fixed-rate cooperative scheduler. Each tick it
// advances an intermediate target ("carrot") along the active segment while
// keeping it inside the position controller's leash envelope, then hands the
// target to the position controller. There is no internal concurrency.
package nav

import (
	"github.com/golang/geo/r3"

	"copternav/internal/param"
	"copternav/internal/platform"
)

// Engine defaults and limits, in cm / cm/s / cm/s/s.
const (
	defaultWPSpeedCMS     = 500.0
	defaultWPRadiusCM     = 200.0
	defaultWPSpeedUpCMS   = 250.0
	defaultWPSpeedDownCMS = 150.0
	defaultLoiterSpeedCMS = 500.0
	defaultWPAccelCMSS    = 100.0

	wpSpeedMinCMS       = 100.0
	loiterSpeedMinCMS   = 100.0
	loiterAccelMinCMSS  = 25.0
	altHoldAccelMaxCMSS = 250.0
	leashLengthMinCM    = 100.0

	// Update periods in seconds. The waypoint and spline controllers run a
	// full cycle at 10 Hz, loiter at 100 Hz; calls in between only step the
	// inner position controller.
	wpUpdatePeriodS     = 0.1
	loiterUpdatePeriodS = 0.01

	// A dt this large means the scheduler starved us; integrating it would
	// blow up the carrot, so the tick is treated as a reset.
	staleDTSeconds = 1.0

	// A segment set while the previous one updated within this window reads
	// the previous segment's end state for continuity.
	segmentHandoverMS = 1000
)

// SegmentEndType tells the spline generator what follows the segment, which
// dictates the destination tangent and the arrival rule.
type SegmentEndType int

const (
	SegmentEndStop SegmentEndType = iota
	SegmentEndStraight
	SegmentEndSpline
)

type segmentType int

const (
	segmentStraight segmentType = iota
	segmentSpline
)

type segmentFlags struct {
	reachedDestination bool
	fastWaypoint       bool
	segType            segmentType
}

// WPNav is the navigation engine facade. It owns loiter, straight-segment
// and spline-segment state; the active mode is selected by whichever
// Update* method the flight mode layer calls.
type WPNav struct {
	inav InertialNav
	ahrs AHRS
	pc   PositionController
	plat platform.Platform

	wpSpeed     *param.Float // horizontal cruise speed, cm/s
	wpRadius    *param.Float // arrival radius for slow waypoints, cm
	wpSpeedUp   *param.Float // climb speed, cm/s
	wpSpeedDown *param.Float // descent speed magnitude, cm/s
	loiterSpeed *param.Float // loiter max horizontal speed, cm/s
	wpAccel     *param.Float // along-track acceleration, cm/s/s

	// Loiter.
	loiterLastUpdate  int64
	pilotAccelFwdCMSS float64
	pilotAccelRgtCMSS float64
	loiterAccelCMSS   float64

	// Straight segment.
	wpLastUpdate      int64
	origin            r3.Vector
	destination       r3.Vector
	posDeltaUnit      r3.Vector
	trackLength       float64
	trackDesired      float64
	limitedSpeedXYCMS float64
	trackAccel        float64
	trackSpeed        float64
	trackLeashLength  float64
	flags             segmentFlags

	// Spline segment.
	splineOriginVel      r3.Vector
	splineDestinationVel r3.Vector
	hermite              [4]r3.Vector
	splineTime           float64
	splineVelScaler      float64
	splineSlowDownDist   float64

	yawCD float64
}

// New builds the engine against its collaborators and registers its tuning
// parameters at their original storage indices.
func New(inav InertialNav, ahrs AHRS, pc PositionController, plat platform.Platform, params *param.Store) *WPNav {
	g := params.Group("WPNAV")
	w := &WPNav{
		inav: inav,
		ahrs: ahrs,
		pc:   pc,
		plat: plat,

		wpSpeed:     g.Float("SPEED", 0, defaultWPSpeedCMS),
		wpRadius:    g.Float("RADIUS", 1, defaultWPRadiusCM),
		wpSpeedUp:   g.Float("SPEED_UP", 2, defaultWPSpeedUpCMS),
		wpSpeedDown: g.Float("SPEED_DN", 3, defaultWPSpeedDownCMS),
		loiterSpeed: g.Float("LOIT_SPEED", 4, defaultLoiterSpeedCMS),
		wpAccel:     g.Float("ACCEL", 5, defaultWPAccelCMSS),

		loiterAccelCMSS: defaultLoiterSpeedCMS / 2.0,
	}
	return w
}

// Yaw returns the commanded heading in centi-degrees: along the track for
// straight segments, along the spline tangent for spline segments.
func (w *WPNav) Yaw() float64 {
	return w.yawCD
}

// ReachedDestination reports whether the active segment has completed.
func (w *WPNav) ReachedDestination() bool {
	return w.flags.reachedDestination
}

// Destination returns the active segment's destination in cm from home.
func (w *WPNav) Destination() r3.Vector {
	return w.destination
}
