package baro

import (
	"errors"
	"math"
	"strings"
	"testing"

	"copternav/internal/param"
	"copternav/internal/platform"
)

// fakeDriver serves scripted pressure and advances the fake clock on each
// read, like a real sensor conversion would.
type fakeDriver struct {
	plat *platform.Fake

	pressurePa   float64
	temperatureC float64

	// pressureAt, if set, overrides pressurePa from the clock.
	pressureAt func(tMS int64) float64

	failUntilMS int64 // reads before this time fail
	readCostMS  int64 // clock advance per read

	lastUpdate int64
	reads      int
}

func (f *fakeDriver) Init() error { return nil }

func (f *fakeDriver) Read() error {
	f.reads++
	if f.readCostMS > 0 {
		f.plat.Advance(f.readCostMS)
	}
	if f.plat.NowMS < f.failUntilMS {
		return errors.New("fake: not ready")
	}
	if f.pressureAt != nil {
		f.pressurePa = f.pressureAt(f.plat.NowMS)
	}
	f.lastUpdate = f.plat.NowMS
	return nil
}

func (f *fakeDriver) Pressure() float64       { return f.pressurePa }
func (f *fakeDriver) Temperature() float64    { return f.temperatureC }
func (f *fakeDriver) Accumulate()             {}
func (f *fakeDriver) LastUpdateMillis() int64 { return f.lastUpdate }

func newTestBaro(drv *fakeDriver) (*Baro, *param.Store) {
	params := param.NewStore("")
	return New(drv, drv.plat, params), params
}

func TestCalibrateCapturesGroundValues(t *testing.T) {
	plat := &platform.Fake{}
	drv := &fakeDriver{plat: plat, pressurePa: 101325, temperatureC: 20, readCostMS: 2}
	b, _ := newTestBaro(drv)

	b.Calibrate()

	if got := b.GroundPressure(); math.Abs(got-101325) > 1e-6 {
		t.Fatalf("ground pressure=%v want 101325", got)
	}
	if got := b.GroundTemperature(); math.Abs(got-20) > 1e-6 {
		t.Fatalf("ground temperature=%v want 20", got)
	}
	if b.calTime == 0 {
		t.Fatalf("cal time not recorded")
	}
	if b.altOffset.Get() != 0 {
		t.Fatalf("alt offset=%v want reset to 0", b.altOffset.Get())
	}
}

func TestCalibratePanicsOnDeadSensor(t *testing.T) {
	plat := &platform.Fake{}
	var panicMsg string
	plat.OnPanic = func(msg string) {
		panicMsg = msg
		panic(msg)
	}
	drv := &fakeDriver{plat: plat, failUntilMS: 1 << 50, readCostMS: 50}
	b, _ := newTestBaro(drv)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected calibrate to panic")
		}
		if !strings.Contains(panicMsg, "[1]") {
			t.Fatalf("panic=%q want first-phase marker", panicMsg)
		}
	}()
	b.Calibrate()
}

func TestAltitudeDifferenceProperties(t *testing.T) {
	plat := &platform.Fake{}
	drv := &fakeDriver{plat: plat, pressurePa: 101325, temperatureC: 15}
	b, _ := newTestBaro(drv)
	b.groundTemperature.Set(15)

	if got := b.GetAltitudeDifference(101325, 101325); got != 0 {
		t.Fatalf("same-pressure difference=%v want 0", got)
	}

	// Higher pressure means lower altitude.
	prev := b.GetAltitudeDifference(101325, 90000)
	for _, p := range []float64{95000.0, 100000.0, 101325.0, 103000.0} {
		alt := b.GetAltitudeDifference(101325, p)
		if alt >= prev {
			t.Fatalf("altitude not decreasing in pressure: alt(%v)=%v prev=%v", p, alt, prev)
		}
		prev = alt
	}

	// The fast form holds the ground temperature over the whole column and
	// reads about 11 m (~1%) above the exact form at ~1000 m.
	p1000 := 89875.0
	exact := b.GetAltitudeDifference(101325, p1000)
	fast := b.altitudeDifferenceFast(101325, p1000)
	if math.Abs(exact-fast) > 15 {
		t.Fatalf("exact=%v fast=%v disagree", exact, fast)
	}
	if exact < 900 || exact > 1100 {
		t.Fatalf("altitude at 898.75 hPa = %v m, want ~1000", exact)
	}
}

func TestGetAltitudeBeforeCalibrationIsZero(t *testing.T) {
	plat := &platform.Fake{}
	drv := &fakeDriver{plat: plat, pressurePa: 95000, temperatureC: 15}
	b, _ := newTestBaro(drv)

	if got := b.GetAltitude(); got != 0 {
		t.Fatalf("altitude=%v want 0 before calibration", got)
	}
}

func TestGetAltitudeCachedUntilTimestampAdvances(t *testing.T) {
	plat := &platform.Fake{}
	drv := &fakeDriver{plat: plat, pressurePa: 101325, temperatureC: 15, readCostMS: 2}
	b, _ := newTestBaro(drv)
	b.Calibrate()

	drv.pressurePa = 100000
	plat.Advance(100)
	_ = b.Read()
	first := b.GetAltitude()

	// Pressure changes but the driver timestamp does not: cached value.
	drv.pressurePa = 90000
	second := b.GetAltitude()
	if first != second {
		t.Fatalf("altitude recomputed without a new sample: %v vs %v", first, second)
	}

	plat.Advance(100)
	_ = b.Read()
	third := b.GetAltitude()
	if third <= second {
		t.Fatalf("altitude=%v want increase after pressure drop", third)
	}
}

func TestClimbRateOnPressureRamp(t *testing.T) {
	plat := &platform.Fake{}
	drv := &fakeDriver{plat: plat, pressurePa: 101325, temperatureC: 15, readCostMS: 2}
	b, _ := newTestBaro(drv)
	b.Calibrate()

	// -12 Pa/s is roughly +1 m/s near sea level.
	calEnd := plat.NowMS
	drv.pressureAt = func(tMS int64) float64 {
		return 101325 - 12.0*float64(tMS-calEnd)/1000.0
	}

	for i := 0; i < 50; i++ {
		plat.Advance(100)
		_ = b.Read()
		_ = b.GetAltitude()
	}

	climb := b.GetClimbRate()
	if climb < 0.8 || climb > 1.2 {
		t.Fatalf("climb rate=%v m/s want ~1.0", climb)
	}
}

func TestEAS2TASAtSeaLevelAndCaching(t *testing.T) {
	plat := &platform.Fake{}
	drv := &fakeDriver{plat: plat, pressurePa: 101325, temperatureC: 15, readCostMS: 2}
	b, _ := newTestBaro(drv)
	b.Calibrate()
	plat.Advance(100)
	_ = b.Read()
	_ = b.GetAltitude()

	// At the calibration point EAS==TAS to within a percent.
	first := b.GetEAS2TAS()
	if math.Abs(first-1.0) > 0.01 {
		t.Fatalf("EAS2TAS=%v want ~1 at sea level", first)
	}

	// Small altitude changes reuse the cached factor.
	drv.pressurePa = 101000
	plat.Advance(100)
	_ = b.Read()
	_ = b.GetAltitude()
	if got := b.GetEAS2TAS(); got != first {
		t.Fatalf("EAS2TAS=%v want cached %v for <100m change", got, first)
	}
}

func runDriftScenario(t *testing.T, tc float64) (*Baro, *fakeDriver, *platform.Fake) {
	t.Helper()

	plat := &platform.Fake{}
	drv := &fakeDriver{plat: plat, pressurePa: 101325, temperatureC: 15, readCostMS: 2}
	params := param.NewStore("")
	b := New(drv, plat, params)
	if err := params.Set("BARO_DRIFT_TC", tc); err != nil {
		t.Fatalf("set drift tc: %v", err)
	}
	if err := params.Set("BARO_DRIFT_INIT", 10); err != nil {
		t.Fatalf("set drift init: %v", err)
	}
	b.Calibrate()

	// Baro pressure drifts downward (apparent climb ~0.06 m/s) for 180 s,
	// then holds. The external reference stays at 0.
	calEnd := plat.NowMS
	drv.pressureAt = func(tMS int64) float64 {
		dt := float64(tMS-calEnd) / 1000.0
		if dt > 180 {
			dt = 180
		}
		return 101325 - 0.72*dt
	}

	for i := 0; i < 400; i++ { // 400 s at 1 Hz
		plat.Advance(1000)
		_ = b.Read()
		_ = b.GetAltitude()
		b.UpdateDriftEstimate(0, 1)
	}
	return b, drv, plat
}

func TestDriftEstimateTracksBaroDrift(t *testing.T) {
	b, _, _ := runDriftScenario(t, 20)

	// All apparent altitude is drift; the estimator should have soaked it
	// up and the corrected altitude should be near zero.
	if d := b.GetDriftEstimate(); math.Abs(d-b.altitude) > 0.5 {
		t.Fatalf("drift estimate=%v want ~raw altitude %v", d, b.altitude)
	}
	if alt := b.GetAltitude(); math.Abs(alt) > 0.5 {
		t.Fatalf("corrected altitude=%v want ~0", alt)
	}
}

func TestDriftEstimateDisabledByNegativeTC(t *testing.T) {
	b, _, _ := runDriftScenario(t, -1)
	if d := b.GetDriftEstimate(); d != 0 {
		t.Fatalf("drift estimate=%v want 0 with negative time constant", d)
	}
}

func TestDriftInnovationGateDropsOutliers(t *testing.T) {
	plat := &platform.Fake{}
	drv := &fakeDriver{plat: plat, pressurePa: 101325, temperatureC: 15, readCostMS: 2}
	params := param.NewStore("")
	b := New(drv, plat, params)
	_ = params.Set("BARO_DRIFT_INIT", 1)
	b.Calibrate()

	// Close the init window.
	plat.Advance(2000)
	_ = b.Read()
	_ = b.GetAltitude()
	b.UpdateDriftEstimate(0, 1)
	before := b.GetDriftEstimate()

	// An external reference glitching 10 m low yields an innovation over
	// the gate; the estimate must not move.
	plat.Advance(1000)
	_ = b.Read()
	_ = b.GetAltitude()
	b.UpdateDriftEstimate(-10, 1)
	if got := b.GetDriftEstimate(); got != before {
		t.Fatalf("drift estimate moved on gated innovation: %v -> %v", before, got)
	}
}
