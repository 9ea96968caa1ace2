package nav

import (
	"math"

	"github.com/golang/geo/r3"

	"copternav/internal/geomath"
)

// SetHorizontalVelocity updates the waypoint cruise speed in cm/s.
func (w *WPNav) SetHorizontalVelocity(velocityCMS float64) {
	if w.wpSpeed.Get() >= wpSpeedMinCMS {
		w.wpSpeed.Set(velocityCMS)
		w.pc.SetSpeedXY(velocityCMS)
	}
}

// SetWPDestination starts a straight segment to destination (cm from home).
// If the waypoint controller updated within the last second the current
// position target is the origin; otherwise the origin is the kinematic
// stopping point.
func (w *WPNav) SetWPDestination(destination r3.Vector) {
	var origin r3.Vector
	if w.plat.Millis()-w.wpLastUpdate < segmentHandoverMS {
		origin = w.pc.PosTarget()
	} else {
		w.pc.StoppingPointXY(&origin)
		w.pc.StoppingPointZ(&origin)
	}
	w.SetWPOriginAndDestination(origin, destination)
}

// SetWPOriginAndDestination configures a straight segment between two
// positions in cm from home.
func (w *WPNav) SetWPOriginAndDestination(origin, destination r3.Vector) {
	w.origin = origin
	w.destination = destination
	posDelta := destination.Sub(origin)

	w.trackLength = posDelta.Norm()
	if w.trackLength == 0 {
		// Zero-length segment: the unit vector degenerates to zero and the
		// leash floor below keeps the divisions safe.
		w.posDeltaUnit = r3.Vector{}
	} else {
		w.posDeltaUnit = posDelta.Mul(1.0 / w.trackLength)
	}

	if w.wpAccel.Get() <= 0 {
		w.wpAccel.SetAndSave(defaultWPAccelCMSS)
	}

	w.pc.SetSpeedXY(w.wpSpeed.Get())
	w.pc.SetAccelXY(w.wpAccel.Get())
	w.pc.SetSpeedZ(-w.wpSpeedDown.Get(), w.wpSpeedUp.Get())
	w.pc.CalcLeashLengthXY()
	w.pc.CalcLeashLengthZ()

	w.calculateWPLeashLength()

	w.yawCD = geomath.BearingCD(origin, destination)

	// Carrot starts at the origin.
	w.pc.SetPosTarget(origin)
	w.trackDesired = 0
	w.flags.reachedDestination = false
	w.flags.fastWaypoint = false
	w.flags.segType = segmentStraight

	// Seed the carrot speed from the current velocity projected onto the
	// track (vertical speed folded into the along-track equivalent).
	currVel := w.inav.Velocity()
	speedAlongTrack := currVel.Dot(w.posDeltaUnit)
	w.limitedSpeedXYCMS = geomath.Constrain(speedAlongTrack, 0, w.wpSpeed.Get())
}

// GetWPStoppingPointXY returns the horizontal kinematic stopping point.
func (w *WPNav) GetWPStoppingPointXY() r3.Vector {
	var sp r3.Vector
	w.pc.StoppingPointXY(&sp)
	return sp
}

// advanceWPTargetAlongTrack moves the carrot along the segment. The carrot
// may only advance while it stays inside both the horizontal and vertical
// leash budgets, and its speed ramps within the track acceleration limit.
func (w *WPNav) advanceWPTargetAlongTrack(dt float64) {
	currPos := w.inav.Position()
	currDelta := currPos.Sub(w.origin)

	// Distance covered along the track and the off-track error split into
	// horizontal and vertical components.
	trackCovered := currDelta.Dot(w.posDeltaUnit)
	trackError := currDelta.Sub(w.posDeltaUnit.Mul(trackCovered))
	trackErrorXY := geomath.Pythag2(trackError.X, trackError.Y)
	trackErrorZ := math.Abs(trackError.Z)

	leashXY := w.pc.LeashXY()
	var leashZ float64
	if trackError.Z >= 0 {
		leashZ = w.pc.LeashUpZ()
	} else {
		leashZ = w.pc.LeashDownZ()
	}

	// How far ahead of the vehicle the carrot may sit before either leash
	// budget runs out.
	trackExtraMax := math.Min(
		w.trackLeashLength*(leashZ-trackErrorZ)/leashZ,
		w.trackLeashLength*(leashXY-trackErrorXY)/leashXY,
	)
	var trackDesiredMax float64
	if trackExtraMax < 0 {
		trackDesiredMax = trackCovered
	} else {
		trackDesiredMax = trackCovered + trackExtraMax
	}

	currVel := w.inav.Velocity()
	speedAlongTrack := currVel.Dot(w.posDeltaUnit)

	// Speed below which the position controller responds linearly rather
	// than with the sqrt controller.
	linearVelocity := w.wpSpeed.Get()
	kP := w.pc.PosXYkP()
	if kP >= 0 {
		linearVelocity = w.trackAccel / kP
	}

	if speedAlongTrack < -linearVelocity {
		// Flying fast away from the waypoint; hold the carrot.
		w.limitedSpeedXYCMS = 0
	} else {
		if dt > 0 {
			if trackDesiredMax > w.trackDesired {
				w.limitedSpeedXYCMS += 2.0 * w.trackAccel * dt
			} else {
				// Leash budget exhausted; pin the carrot to the limit.
				w.trackDesired = trackDesiredMax
			}
		}
		if w.limitedSpeedXYCMS > w.trackSpeed {
			w.limitedSpeedXYCMS = w.trackSpeed
		}
		// Near the vehicle's own speed the carrot may lead or trail by at
		// most the linear-response band, so the inner loop never saturates.
		if math.Abs(speedAlongTrack) < linearVelocity {
			w.limitedSpeedXYCMS = geomath.Constrain(w.limitedSpeedXYCMS,
				speedAlongTrack-linearVelocity, speedAlongTrack+linearVelocity)
		}
	}

	// Advance, never backwards.
	trackDesiredTemp := w.trackDesired + w.limitedSpeedXYCMS*dt
	trackDesiredTemp = geomath.Constrain(trackDesiredTemp, 0, w.trackLength)
	w.trackDesired = math.Max(w.trackDesired, trackDesiredTemp)

	w.pc.SetPosTarget(w.origin.Add(w.posDeltaUnit.Mul(w.trackDesired)))

	if !w.flags.reachedDestination {
		if w.trackDesired >= w.trackLength {
			if w.flags.fastWaypoint {
				// Fast waypoints complete once the carrot reaches the end.
				w.flags.reachedDestination = true
			} else {
				// Slow waypoints also need the vehicle inside the radius.
				distToDest := currPos.Sub(w.destination)
				if distToDest.Norm() <= w.wpRadius.Get() {
					w.flags.reachedDestination = true
				}
			}
		}
	}
}

// GetWPDistanceToDestination returns the horizontal distance to the
// destination in cm.
func (w *WPNav) GetWPDistanceToDestination() float64 {
	curr := w.inav.Position()
	return geomath.Pythag2(w.destination.X-curr.X, w.destination.Y-curr.Y)
}

// GetWPBearingToDestination returns the bearing to the destination in
// centi-degrees.
func (w *WPNav) GetWPBearingToDestination() float64 {
	return geomath.BearingCD(w.inav.Position(), w.destination)
}

// UpdateWPNav runs the waypoint controller. Call at ~10 Hz.
func (w *WPNav) UpdateWPNav() {
	now := w.plat.Millis()
	dt := float64(now-w.wpLastUpdate) / 1000.0

	if dt >= wpUpdatePeriodS {
		if dt >= staleDTSeconds {
			dt = 0
		}
		w.wpLastUpdate = now
		w.advanceWPTargetAlongTrack(dt)
		w.pc.TriggerXY()
	} else {
		w.pc.UpdateXYController(false)
	}
}

// calculateWPLeashLength maps the position controller's horizontal and
// vertical leashes into the along-track dimension, so a maximum deflection
// in any axis corresponds to the same carrot advance. Degenerate directions
// fall back to sentinel branches rather than dividing by zero.
func (w *WPNav) calculateWPLeashLength() {
	posDeltaUnitXY := geomath.Pythag2(w.posDeltaUnit.X, w.posDeltaUnit.Y)
	posDeltaUnitZ := math.Abs(w.posDeltaUnit.Z)

	var speedZ, leashZ float64
	if w.posDeltaUnit.Z >= 0 {
		speedZ = w.wpSpeedUp.Get()
		leashZ = w.pc.LeashUpZ()
	} else {
		speedZ = w.wpSpeedDown.Get()
		leashZ = w.pc.LeashDownZ()
	}

	switch {
	case posDeltaUnitZ == 0 && posDeltaUnitXY == 0:
		w.trackAccel = 0
		w.trackSpeed = 0
		w.trackLeashLength = leashLengthMinCM
	case w.posDeltaUnit.Z == 0:
		w.trackAccel = w.wpAccel.Get() / posDeltaUnitXY
		w.trackSpeed = w.wpSpeed.Get() / posDeltaUnitXY
		w.trackLeashLength = w.pc.LeashXY() / posDeltaUnitXY
	case posDeltaUnitXY == 0:
		w.trackAccel = altHoldAccelMaxCMSS / posDeltaUnitZ
		w.trackSpeed = speedZ / posDeltaUnitZ
		w.trackLeashLength = leashZ / posDeltaUnitZ
	default:
		w.trackAccel = math.Min(altHoldAccelMaxCMSS/posDeltaUnitZ, w.wpAccel.Get()/posDeltaUnitXY)
		w.trackSpeed = math.Min(speedZ/posDeltaUnitZ, w.wpSpeed.Get()/posDeltaUnitXY)
		w.trackLeashLength = math.Min(leashZ/posDeltaUnitZ, w.pc.LeashXY()/posDeltaUnitXY)
	}
}
