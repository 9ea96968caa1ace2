package nav

import (
	"math"

	"github.com/golang/geo/r3"

	"copternav/internal/geomath"
)

const (
	// A segment that starts while the previous spline overshot its end by
	// less than this carries the overshoot into the new segment's time.
	// Behavioural constant from flight testing; do not re-tune casually.
	splineTimeCarryMax = 1.1

	// Tangent at an end where the vehicle is at rest (start from rest, or a
	// STOP end): the segment vector scaled by this.
	splineStoppedTangentScale = 0.1

	// Per-tick spline acceleration assumes the 10 Hz update period.
	splineAccelTickS = 0.1
)

// SetSplineDestination starts a spline segment to destination. stoppedAtStart
// is true when the vehicle is stationary at the origin; segEndType describes
// the following segment and nextDestination is that segment's destination
// when segEndType is SegmentEndStraight or SegmentEndSpline.
func (w *WPNav) SetSplineDestination(destination r3.Vector, stoppedAtStart bool, segEndType SegmentEndType, nextDestination r3.Vector) {
	var origin r3.Vector
	// Reuse the previous destination when the controller is active and the
	// vehicle arrived there; otherwise start from the stopping point.
	if w.flags.reachedDestination && w.plat.Millis()-w.wpLastUpdate < segmentHandoverMS {
		origin = w.destination
	} else {
		w.pc.StoppingPointXY(&origin)
		w.pc.StoppingPointZ(&origin)
	}
	w.SetSplineOriginAndDestination(origin, destination, stoppedAtStart, segEndType, nextDestination)
}

// SetSplineOriginAndDestination configures a Hermite-cubic segment between
// two positions. Tangents at both ends are chosen from the neighbouring
// segment types so consecutive segments keep continuous velocity.
func (w *WPNav) SetSplineOriginAndDestination(origin, destination r3.Vector, stoppedAtStart bool, segEndType SegmentEndType, nextDestination r3.Vector) {
	prevSegmentExists := w.flags.reachedDestination && w.plat.Millis()-w.wpLastUpdate < segmentHandoverMS

	if w.wpAccel.Get() <= 0 {
		w.wpAccel.SetAndSave(defaultWPAccelCMSS)
	}

	// Origin tangent.
	if stoppedAtStart || !prevSegmentExists {
		// Starting from rest: point the tangent at the destination.
		w.splineOriginVel = destination.Sub(origin).Mul(splineStoppedTangentScale)
		w.splineTime = 0
		w.splineVelScaler = 0
	} else {
		if w.flags.segType == segmentStraight {
			// Fly straight through the origin: tangent along the previous
			// segment's direction.
			w.splineOriginVel = w.destination.Sub(w.origin)
			w.splineTime = 0
			w.splineVelScaler = 0
		} else {
			// Previous segment was a spline; its destination tangent is our
			// origin tangent, and a small time overshoot carries over.
			w.splineOriginVel = w.splineDestinationVel
			if w.splineTime > 1.0 && w.splineTime < splineTimeCarryMax {
				w.splineTime -= 1.0
			} else {
				w.splineTime = 0
			}
			w.splineVelScaler = 0
		}
	}

	// Destination tangent from the next segment's type.
	switch segEndType {
	case SegmentEndStop:
		w.splineDestinationVel = destination.Sub(origin).Mul(splineStoppedTangentScale)
		w.flags.fastWaypoint = false
	case SegmentEndStraight:
		w.splineDestinationVel = nextDestination.Sub(destination)
		w.flags.fastWaypoint = true
	case SegmentEndSpline:
		w.splineDestinationVel = nextDestination.Sub(origin)
		w.flags.fastWaypoint = true
	}

	// Long tangents bow the curve past the destination on short segments;
	// rescale both so their sum stays within four track lengths.
	velLen := w.splineOriginVel.Add(w.splineDestinationVel).Norm()
	posLen := destination.Sub(origin).Norm() * 4.0
	if velLen > posLen {
		velScaling := posLen / velLen
		w.updateSplineSolution(origin, destination, w.splineOriginVel.Mul(velScaling), w.splineDestinationVel.Mul(velScaling))
	} else {
		w.updateSplineSolution(origin, destination, w.splineOriginVel, w.splineDestinationVel)
	}

	// Heading holds until the first tick computes the tangent bearing.
	w.yawCD = w.ahrs.YawSensor()

	w.origin = origin
	w.destination = destination

	w.pc.SetSpeedXY(w.wpSpeed.Get())
	w.pc.SetAccelXY(w.wpAccel.Get())
	w.pc.SetSpeedZ(-w.wpSpeedDown.Get(), w.wpSpeedUp.Get())
	w.pc.CalcLeashLengthXY()
	w.pc.CalcLeashLengthZ()

	w.calculateWPLeashLength()

	// Frozen at segment creation; not re-evaluated if speed or acceleration
	// change mid-segment.
	w.splineSlowDownDist = w.wpSpeed.Get() * w.wpSpeed.Get() / (2.0 * w.wpAccel.Get())

	w.pc.SetPosTarget(origin)
	w.flags.reachedDestination = false
	w.flags.segType = segmentSpline
}

// UpdateSpline runs the spline controller. Call at ~10 Hz.
func (w *WPNav) UpdateSpline() {
	if w.flags.segType != segmentSpline {
		return
	}

	now := w.plat.Millis()
	dt := float64(now-w.wpLastUpdate) / 1000.0

	if dt >= wpUpdatePeriodS {
		if dt >= staleDTSeconds {
			dt = 0
		}
		w.wpLastUpdate = now
		w.advanceSplineTargetAlongTrack(dt)
		w.pc.TriggerXY()
	} else {
		w.pc.UpdateXYController(false)
	}
}

// updateSplineSolution computes the Hermite coefficients from the endpoint
// positions and tangents.
func (w *WPNav) updateSplineSolution(origin, dest, originVel, destVel r3.Vector) {
	w.hermite[0] = origin
	w.hermite[1] = originVel
	w.hermite[2] = origin.Mul(-3).Sub(originVel.Mul(2)).Add(dest.Mul(3)).Sub(destVel)
	w.hermite[3] = origin.Mul(2).Add(originVel).Sub(dest.Mul(2)).Add(destVel)
}

// advanceSplineTargetAlongTrack samples the curve, picks the along-curve
// speed (accelerating toward cruise, or braking on approach for slow
// waypoints), and re-parameterises time so the carrot moves at that speed.
func (w *WPNav) advanceSplineTargetAlongTrack(dt float64) {
	if w.flags.reachedDestination {
		return
	}

	targetPos, targetVel := w.calcSplinePosVel(w.splineTime)

	splineDistToWP := w.destination.Sub(targetPos).Norm()

	if !w.flags.fastWaypoint && splineDistToWP < w.splineSlowDownDist {
		w.splineVelScaler = geomath.SafeSqrt(splineDistToWP * 2.0 * w.wpAccel.Get())
	} else if w.splineVelScaler < w.wpSpeed.Get() {
		w.splineVelScaler += w.wpAccel.Get() * splineAccelTickS
	}

	if w.splineVelScaler > w.wpSpeed.Get() {
		w.splineVelScaler = w.wpSpeed.Get()
	}

	splineTimeScale := w.splineVelScaler / targetVel.Norm()

	w.pc.SetPosTarget(targetPos)

	w.yawCD = geomath.Wrap360CD(geomath.RadToCentiDeg * math.Atan2(targetVel.Y, targetVel.X))

	w.splineTime += splineTimeScale * dt

	// Arrival fires on time reaching 1; flagged upstream as possibly one
	// step early for fast waypoints.
	if w.splineTime >= 1.0 {
		w.flags.reachedDestination = true
	}
}

// calcSplinePosVel evaluates the Hermite cubic and its derivative at
// normalised time s.
func (w *WPNav) calcSplinePosVel(s float64) (position, velocity r3.Vector) {
	s2 := s * s
	s3 := s2 * s

	position = w.hermite[0].
		Add(w.hermite[1].Mul(s)).
		Add(w.hermite[2].Mul(s2)).
		Add(w.hermite[3].Mul(s3))
	velocity = w.hermite[1].
		Add(w.hermite[2].Mul(2 * s)).
		Add(w.hermite[3].Mul(3 * s2))
	return position, velocity
}
