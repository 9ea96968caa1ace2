package nav

import "github.com/golang/geo/r3"

// InertialNav supplies the fused vehicle state in centimetres from home.
type InertialNav interface {
	Position() r3.Vector // cm, x=north y=east z=up
	Velocity() r3.Vector // cm/s
}

// AHRS supplies the vehicle attitude needed to rotate pilot stick input into
// the north/east frame.
type AHRS interface {
	CosYaw() float64
	SinYaw() float64
	YawSensor() float64 // heading in centi-degrees
}

// PositionController is the inner loop this engine feeds. It owns the
// position-error PID, the leash computation and the conversion to attitude
// setpoints; the engine only moves its target and feed-forward velocity.
type PositionController interface {
	SetPosTarget(pos r3.Vector)
	PosTarget() r3.Vector

	SetDesiredVelocity(vx, vy float64)
	DesiredVelocity() (vx, vy float64)

	SetSpeedXY(speedCMS float64)
	SetAccelXY(accelCMSS float64)
	SetSpeedZ(speedDownCMS, speedUpCMS float64)

	CalcLeashLengthXY()
	CalcLeashLengthZ()
	LeashXY() float64
	LeashUpZ() float64
	LeashDownZ() float64

	// StoppingPointXY fills the horizontal components of point with the
	// kinematic stopping point; StoppingPointZ fills the vertical one.
	StoppingPointXY(point *r3.Vector)
	StoppingPointZ(point *r3.Vector)

	PosXYkP() float64

	// TriggerXY requests a full horizontal controller step on the next
	// update; UpdateXYController runs the controller now.
	TriggerXY()
	UpdateXYController(runFull bool)
}
