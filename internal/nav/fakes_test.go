package nav

import (
	"math"

	"github.com/golang/geo/r3"

	"copternav/internal/geomath"
	"copternav/internal/param"
	"copternav/internal/platform"
)

type fakeInav struct {
	pos r3.Vector
	vel r3.Vector
}

func (f *fakeInav) Position() r3.Vector { return f.pos }
func (f *fakeInav) Velocity() r3.Vector { return f.vel }

type fakeAHRS struct {
	yawCD float64
}

func (f *fakeAHRS) CosYaw() float64    { return math.Cos(f.yawCD / geomath.RadToCentiDeg) }
func (f *fakeAHRS) SinYaw() float64    { return math.Sin(f.yawCD / geomath.RadToCentiDeg) }
func (f *fakeAHRS) YawSensor() float64 { return f.yawCD }

// fakePosControl records everything the engine pushes at it and serves
// canned leash/stopping-point values.
type fakePosControl struct {
	posTarget r3.Vector
	desVelX   float64
	desVelY   float64

	speedXY   float64
	accelXY   float64
	speedDown float64
	speedUp   float64

	leashXY    float64
	leashUpZ   float64
	leashDownZ float64
	kP         float64

	stopXY r3.Vector
	stopZ  r3.Vector

	triggers    int
	fullUpdates int
	idleUpdates int
}

func newFakePosControl() *fakePosControl {
	return &fakePosControl{
		leashXY:    1000,
		leashUpZ:   500,
		leashDownZ: 300,
		kP:         1,
	}
}

func (f *fakePosControl) SetPosTarget(pos r3.Vector) { f.posTarget = pos }
func (f *fakePosControl) PosTarget() r3.Vector       { return f.posTarget }

func (f *fakePosControl) SetDesiredVelocity(vx, vy float64) { f.desVelX, f.desVelY = vx, vy }
func (f *fakePosControl) DesiredVelocity() (float64, float64) {
	return f.desVelX, f.desVelY
}

func (f *fakePosControl) SetSpeedXY(s float64)        { f.speedXY = s }
func (f *fakePosControl) SetAccelXY(a float64)        { f.accelXY = a }
func (f *fakePosControl) SetSpeedZ(down, up float64)  { f.speedDown, f.speedUp = down, up }
func (f *fakePosControl) CalcLeashLengthXY()          {}
func (f *fakePosControl) CalcLeashLengthZ()           {}
func (f *fakePosControl) LeashXY() float64            { return f.leashXY }
func (f *fakePosControl) LeashUpZ() float64           { return f.leashUpZ }
func (f *fakePosControl) LeashDownZ() float64         { return f.leashDownZ }
func (f *fakePosControl) StoppingPointXY(p *r3.Vector) {
	p.X, p.Y = f.stopXY.X, f.stopXY.Y
}
func (f *fakePosControl) StoppingPointZ(p *r3.Vector) { p.Z = f.stopZ.Z }
func (f *fakePosControl) PosXYkP() float64            { return f.kP }
func (f *fakePosControl) TriggerXY()                  { f.triggers++ }
func (f *fakePosControl) UpdateXYController(runFull bool) {
	if runFull {
		f.fullUpdates++
	} else {
		f.idleUpdates++
	}
}

type testEngine struct {
	nav  *WPNav
	inav *fakeInav
	ahrs *fakeAHRS
	pc   *fakePosControl
	plat *platform.Fake
}

func newTestEngine() *testEngine {
	inav := &fakeInav{}
	ahrs := &fakeAHRS{}
	pc := newFakePosControl()
	plat := &platform.Fake{NowMS: 100000}
	params := param.NewStore("")
	return &testEngine{
		nav:  New(inav, ahrs, pc, plat, params),
		inav: inav,
		ahrs: ahrs,
		pc:   pc,
		plat: plat,
	}
}
