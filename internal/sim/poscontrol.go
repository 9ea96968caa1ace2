package sim

import (
	"math"

	"github.com/golang/geo/r3"

	"copternav/internal/geomath"
	"copternav/internal/platform"
)

const (
	leashMinCM = 100.0

	// Longest step the controller will integrate; longer gaps are clock
	// faults and are dropped.
	maxStepS = 0.1
)

// PosControl is a reference inner-loop position controller: proportional on
// position error with velocity feed-forward, leash lengths from the
// kinematic catch-up formula. It implements the engine's
// PositionController interface and drives a Vehicle directly instead of
// attitude setpoints.
type PosControl struct {
	veh  *Vehicle
	plat platform.Platform

	posTarget r3.Vector
	desVelX   float64
	desVelY   float64

	speedXYCMS   float64
	accelXYCMSS  float64
	speedDownCMS float64 // negative
	speedUpCMS   float64
	accelZCMSS   float64

	kPxy float64
	kPz  float64

	leashXY    float64
	leashUpZ   float64
	leashDownZ float64

	lastStepMS int64
	pending    bool
}

func NewPosControl(veh *Vehicle, plat platform.Platform) *PosControl {
	c := &PosControl{
		veh:  veh,
		plat: plat,

		speedXYCMS:   500,
		accelXYCMSS:  100,
		speedDownCMS: -150,
		speedUpCMS:   250,
		accelZCMSS:   250,

		kPxy: 1,
		kPz:  1,
	}
	c.CalcLeashLengthXY()
	c.CalcLeashLengthZ()
	c.posTarget = veh.Position()
	return c
}

func (c *PosControl) SetPosTarget(pos r3.Vector) { c.posTarget = pos }

func (c *PosControl) PosTarget() r3.Vector { return c.posTarget }

func (c *PosControl) SetDesiredVelocity(vx, vy float64) {
	c.desVelX, c.desVelY = vx, vy
}

func (c *PosControl) DesiredVelocity() (vx, vy float64) {
	return c.desVelX, c.desVelY
}

func (c *PosControl) SetSpeedXY(speedCMS float64) { c.speedXYCMS = speedCMS }

func (c *PosControl) SetAccelXY(accelCMSS float64) { c.accelXYCMSS = accelCMSS }

func (c *PosControl) SetSpeedZ(speedDownCMS, speedUpCMS float64) {
	c.speedDownCMS = speedDownCMS
	c.speedUpCMS = speedUpCMS
}

// calcLeashLength maps a speed/accel/gain triple to the position error at
// which the controller can still catch up without overshoot.
func calcLeashLength(speedCMS, accelCMSS, kP float64) float64 {
	if kP <= 0 || accelCMSS <= 0 {
		return leashMinCM
	}
	var leash float64
	if speedCMS <= accelCMSS/kP {
		// Linear response region.
		leash = speedCMS / kP
	} else {
		leash = accelCMSS/(2.0*kP*kP) + speedCMS*speedCMS/(2.0*accelCMSS)
	}
	if leash < leashMinCM {
		leash = leashMinCM
	}
	return leash
}

func (c *PosControl) CalcLeashLengthXY() {
	c.leashXY = calcLeashLength(c.speedXYCMS, c.accelXYCMSS, c.kPxy)
}

func (c *PosControl) CalcLeashLengthZ() {
	c.leashUpZ = calcLeashLength(c.speedUpCMS, c.accelZCMSS, c.kPz)
	c.leashDownZ = calcLeashLength(-c.speedDownCMS, c.accelZCMSS, c.kPz)
}

func (c *PosControl) LeashXY() float64 { return c.leashXY }

func (c *PosControl) LeashUpZ() float64 { return c.leashUpZ }

func (c *PosControl) LeashDownZ() float64 { return c.leashDownZ }

// SetLeashXY pins the horizontal leash, for tests that need an exact
// envelope.
func (c *PosControl) SetLeashXY(cm float64) { c.leashXY = cm }

// SetLeashZ pins the vertical leashes.
func (c *PosControl) SetLeashZ(upCM, downCM float64) {
	c.leashUpZ = upCM
	c.leashDownZ = downCM
}

func (c *PosControl) StoppingPointXY(point *r3.Vector) {
	pos := c.veh.Position()
	vel := c.veh.Velocity()
	velTotal := geomath.Pythag2(vel.X, vel.Y)
	if velTotal == 0 || c.kPxy <= 0 {
		point.X, point.Y = pos.X, pos.Y
		return
	}

	linearVelocity := c.accelXYCMSS / c.kPxy
	var stopDist float64
	if velTotal < linearVelocity {
		stopDist = velTotal / c.kPxy
	} else {
		stopDist = c.accelXYCMSS/(2.0*c.kPxy*c.kPxy) + velTotal*velTotal/(2.0*c.accelXYCMSS)
	}
	point.X = pos.X + stopDist*vel.X/velTotal
	point.Y = pos.Y + stopDist*vel.Y/velTotal
}

func (c *PosControl) StoppingPointZ(point *r3.Vector) {
	pos := c.veh.Position()
	velZ := c.veh.Velocity().Z
	if velZ == 0 || c.kPz <= 0 {
		point.Z = pos.Z
		return
	}

	linearVelocity := c.accelZCMSS / c.kPz
	mag := math.Abs(velZ)
	var stopDist float64
	if mag < linearVelocity {
		stopDist = mag / c.kPz
	} else {
		stopDist = c.accelZCMSS/(2.0*c.kPz*c.kPz) + mag*mag/(2.0*c.accelZCMSS)
	}
	if velZ < 0 {
		stopDist = -stopDist
	}
	point.Z = pos.Z + stopDist
}

func (c *PosControl) PosXYkP() float64 { return c.kPxy }

func (c *PosControl) TriggerXY() { c.pending = true }

func (c *PosControl) UpdateXYController(runFull bool) {
	_ = runFull
	c.step()
}

// Run performs the step requested by TriggerXY, if any. The runner calls it
// once per tick after the navigation update.
func (c *PosControl) Run() {
	if c.pending {
		c.pending = false
		c.step()
	}
}

// step converts position error plus feed-forward velocity into a commanded
// vehicle velocity.
func (c *PosControl) step() {
	now := c.plat.Millis()
	dt := float64(now-c.lastStepMS) / 1000.0
	c.lastStepMS = now
	if dt <= 0 || dt > maxStepS {
		return
	}

	pos := c.veh.Position()
	errX := c.posTarget.X - pos.X
	errY := c.posTarget.Y - pos.Y
	errZ := c.posTarget.Z - pos.Z

	cmdX := c.kPxy*errX + c.desVelX
	cmdY := c.kPxy*errY + c.desVelY
	cmdTotal := geomath.Pythag2(cmdX, cmdY)
	if cmdTotal > c.speedXYCMS && cmdTotal > 0 {
		cmdX = c.speedXYCMS * cmdX / cmdTotal
		cmdY = c.speedXYCMS * cmdY / cmdTotal
	}

	cmdZ := geomath.Constrain(c.kPz*errZ, c.speedDownCMS, c.speedUpCMS)

	c.veh.SetCommandedVelocity(r3.Vector{X: cmdX, Y: cmdY, Z: cmdZ})
}
