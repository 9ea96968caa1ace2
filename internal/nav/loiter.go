package nav

import (
	"github.com/golang/geo/r3"

	"copternav/internal/geomath"
)

// SetLoiterTarget places the loiter target at the given position with zero
// feed-forward velocity.
func (w *WPNav) SetLoiterTarget(position r3.Vector) {
	w.pc.SetPosTarget(position)
	w.pc.SetDesiredVelocity(0, 0)
	w.initLoiterLimits()
}

// InitLoiterTarget starts loitering at the current position, seeding the
// feed-forward velocity from the current inertial velocity so the vehicle
// decelerates smoothly instead of snapping.
func (w *WPNav) InitLoiterTarget() {
	currVel := w.inav.Velocity()
	w.pc.SetPosTarget(w.inav.Position())
	w.pc.SetDesiredVelocity(currVel.X, currVel.Y)
	w.initLoiterLimits()
}

func (w *WPNav) initLoiterLimits() {
	w.pc.SetSpeedXY(w.loiterSpeed.Get())
	w.loiterAccelCMSS = w.loiterSpeed.Get() / 2.0
	w.pc.SetAccelXY(w.loiterAccelCMSS)
	w.pilotAccelFwdCMSS = 0
	w.pilotAccelRgtCMSS = 0
}

// SetLoiterVelocity updates the maximum loiter speed in cm/s. Values below
// the loiter minimum are ignored.
func (w *WPNav) SetLoiterVelocity(velocityCMS float64) {
	if velocityCMS >= loiterSpeedMinCMS {
		w.loiterSpeed.Set(velocityCMS)
		w.pc.SetSpeedXY(velocityCMS)
		w.loiterAccelCMSS = velocityCMS / 2.0
		w.pc.SetAccelXY(w.loiterAccelCMSS)
	}
}

// SetPilotDesiredAcceleration converts roll/pitch stick positions
// (centi-degrees, +-4500) into body-frame accelerations. Forward stick is
// nose-down, hence the inverted pitch sign.
func (w *WPNav) SetPilotDesiredAcceleration(controlRollCD, controlPitchCD float64) {
	w.pilotAccelFwdCMSS = -controlPitchCD * w.loiterAccelCMSS / 4500.0
	w.pilotAccelRgtCMSS = controlRollCD * w.loiterAccelCMSS / 4500.0
}

// GetLoiterStoppingPointXY returns the horizontal kinematic stopping point.
func (w *WPNav) GetLoiterStoppingPointXY() r3.Vector {
	var sp r3.Vector
	w.pc.StoppingPointXY(&sp)
	return sp
}

// GetLoiterBearingToTarget returns the bearing from the vehicle to the
// loiter target in centi-degrees.
func (w *WPNav) GetLoiterBearingToTarget() float64 {
	return geomath.BearingCD(w.inav.Position(), w.pc.PosTarget())
}

// calcLoiterDesiredVelocity folds pilot-commanded acceleration into the
// feed-forward velocity and applies synthetic drag: a viscous term
// proportional to speed plus a constant friction term clamped so braking
// never reverses the velocity sign. The blend stops the vehicle in finite
// time once sticks are centred.
func (w *WPNav) calcLoiterDesiredVelocity(navDT float64) {
	if navDT < 0 {
		return
	}

	if w.loiterSpeed.Get() < loiterSpeedMinCMS {
		w.loiterSpeed.Set(loiterSpeedMinCMS)
		w.loiterAccelCMSS = w.loiterSpeed.Get() / 2.0
	}

	// Rotate pilot input into the north/east frame.
	accelX := w.pilotAccelFwdCMSS*w.ahrs.CosYaw() - w.pilotAccelRgtCMSS*w.ahrs.SinYaw()
	accelY := w.pilotAccelFwdCMSS*w.ahrs.SinYaw() + w.pilotAccelRgtCMSS*w.ahrs.CosYaw()

	velX, velY := w.pc.DesiredVelocity()
	velX += accelX * navDT
	velY += accelY * navDT

	loiterSpeed := w.loiterSpeed.Get()
	drag := (w.loiterAccelCMSS - loiterAccelMinCMSS) * navDT / loiterSpeed
	friction := loiterAccelMinCMSS * navDT

	if velX > 0 {
		velX -= drag * velX
		velX = max(velX-friction, 0)
	} else if velX < 0 {
		velX -= drag * velX
		velX = min(velX+friction, 0)
	}
	if velY > 0 {
		velY -= drag * velY
		velY = max(velY-friction, 0)
	} else if velY < 0 {
		velY -= drag * velY
		velY = min(velY+friction, 0)
	}

	// Cap total horizontal speed.
	velTotal := geomath.Pythag2(velX, velY)
	if velTotal > loiterSpeed && velTotal > 0 {
		velX = loiterSpeed * velX / velTotal
		velY = loiterSpeed * velY / velTotal
	}

	w.pc.SetDesiredVelocity(velX, velY)
}

// UpdateLoiter runs the loiter controller. Call at ~100 Hz.
func (w *WPNav) UpdateLoiter() {
	now := w.plat.Millis()
	dt := float64(now-w.loiterLastUpdate) / 1000.0

	if dt >= loiterUpdatePeriodS {
		if dt >= staleDTSeconds {
			dt = 0
		}
		w.loiterLastUpdate = now
		w.calcLoiterDesiredVelocity(dt)
		w.pc.TriggerXY()
	} else {
		w.pc.UpdateXYController(true)
	}
}
