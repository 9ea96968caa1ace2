// Package sim supplies the engine's stipulated collaborators for tests and
// simulated runs: a point-mass vehicle, a reference position controller and
// a mission runner.
package sim

import (
	"math"

	"github.com/golang/geo/r3"

	"copternav/internal/geomath"
)

// Vehicle is a point-mass model in the local cm frame. It implements the
// engine's InertialNav and AHRS interfaces.
type Vehicle struct {
	pos    r3.Vector
	vel    r3.Vector
	cmdVel r3.Vector

	// Acceleration limits toward the commanded velocity.
	accelXYCMSS float64
	accelZCMSS  float64

	yawCD float64
}

func NewVehicle(start r3.Vector) *Vehicle {
	return &Vehicle{
		pos:         start,
		accelXYCMSS: 200,
		accelZCMSS:  250,
	}
}

func (v *Vehicle) Position() r3.Vector { return v.pos }

func (v *Vehicle) Velocity() r3.Vector { return v.vel }

func (v *Vehicle) CosYaw() float64 { return math.Cos(v.yawCD / geomath.RadToCentiDeg) }

func (v *Vehicle) SinYaw() float64 { return math.Sin(v.yawCD / geomath.RadToCentiDeg) }

func (v *Vehicle) YawSensor() float64 { return v.yawCD }

func (v *Vehicle) SetYawCD(cd float64) { v.yawCD = geomath.Wrap360CD(cd) }

// SetCommandedVelocity sets the velocity the vehicle accelerates toward.
func (v *Vehicle) SetCommandedVelocity(cmd r3.Vector) { v.cmdVel = cmd }

// Teleport places the vehicle, zeroing its velocity.
func (v *Vehicle) Teleport(pos r3.Vector) {
	v.pos = pos
	v.vel = r3.Vector{}
	v.cmdVel = r3.Vector{}
}

// Step integrates the model over dt seconds: velocity slews toward the
// command within the acceleration limits, then position integrates.
func (v *Vehicle) Step(dtS float64) {
	if dtS <= 0 {
		return
	}

	// Horizontal: accelerate toward the commanded velocity.
	dx := v.cmdVel.X - v.vel.X
	dy := v.cmdVel.Y - v.vel.Y
	dXY := geomath.Pythag2(dx, dy)
	maxDXY := v.accelXYCMSS * dtS
	if dXY > maxDXY && dXY > 0 {
		dx = dx * maxDXY / dXY
		dy = dy * maxDXY / dXY
	}
	v.vel.X += dx
	v.vel.Y += dy

	// Vertical.
	dz := v.cmdVel.Z - v.vel.Z
	maxDZ := v.accelZCMSS * dtS
	dz = geomath.Constrain(dz, -maxDZ, maxDZ)
	v.vel.Z += dz

	v.pos = v.pos.Add(v.vel.Mul(dtS))
}
