// Package baro derives altitude, climb rate and drift estimates from a
// pressure sensor.
//
// Altitude is relative to the ground pressure captured by Calibrate. An
// optional drift estimator tracks slow baro drift against an external
// altitude reference (GPS, rangefinder).
package baro

import (
	"math"

	"copternav/internal/filter"
	"copternav/internal/param"
	"copternav/internal/platform"
)

// Driver is the narrow capability a pressure sensor backend provides.
// Read refreshes Pressure/Temperature; a nil error means the sample is
// healthy. LastUpdateMillis must advance with each fresh sample, since the
// altitude cache is keyed off it.
type Driver interface {
	Init() error
	Read() error
	Pressure() float64    // Pa
	Temperature() float64 // degrees C
	Accumulate()
	LastUpdateMillis() int64
}

const (
	// Innovation gate for the drift estimator. Hard-coded rather than a
	// parameter; guards against reference-sensor glitches.
	driftInnovGateM = 5.0

	// Per-phase read deadline during calibration. Exceeding it means the
	// sensor is unusable and the platform panics (refuse to arm).
	calReadDeadlineMS = 500

	defaultDriftTCSeconds   = 180.0
	defaultDriftInitSeconds = 180.0
)

// Baro wraps a Driver with calibration and the derived outputs.
type Baro struct {
	drv  Driver
	plat platform.Platform

	// Indices 0 and 1 of the legacy parameter table held integer ground
	// values and stay reserved.
	groundPressure    *param.Float // Pa
	groundTemperature *param.Float // degrees C
	altOffset         *param.Float // m, added to barometric altitude
	driftTC           *param.Float // s, negative disables drift estimation
	driftInitPeriod   *param.Float // s, reference averaging window

	healthy bool

	altitude      float64 // m, relative to calibration
	lastAltitudeT int64

	climbRateFilter filter.Derivative

	calTime int64

	eas2tas             float64
	lastAltitudeEAS2TAS float64

	driftEst       float64
	driftGndLevel  float64
	driftInitCount int
	driftFilter    filter.LowPass
}

// New builds a barometer on the given driver and registers its parameters.
func New(drv Driver, plat platform.Platform, params *param.Store) *Baro {
	g := params.Group("BARO")
	return &Baro{
		drv:  drv,
		plat: plat,

		groundPressure:    g.Float("ABS_PRESS", 2, 0),
		groundTemperature: g.Float("TEMP", 3, 0),
		altOffset:         g.Float("ALT_OFFSET", 4, 0),
		driftTC:           g.Float("DRIFT_TC", 5, defaultDriftTCSeconds),
		driftInitPeriod:   g.Float("DRIFT_INIT", 6, defaultDriftInitSeconds),
	}
}

// Init initialises the underlying driver.
func (b *Baro) Init() error {
	return b.drv.Init()
}

// Read refreshes the sensor. Healthy reflects the most recent read.
func (b *Baro) Read() error {
	err := b.drv.Read()
	b.healthy = err == nil && b.drv.Pressure() > 0
	return err
}

// Healthy reports whether the last read produced a usable sample.
func (b *Baro) Healthy() bool { return b.healthy }

// GetPressure returns the last pressure sample in Pascal.
func (b *Baro) GetPressure() float64 { return b.drv.Pressure() }

// GetTemperature returns the last temperature sample in degrees C.
func (b *Baro) GetTemperature() float64 { return b.drv.Temperature() }

// LastUpdate returns the driver timestamp of the last sample in ms.
func (b *Baro) LastUpdate() int64 { return b.drv.LastUpdateMillis() }

// GroundPressure returns the calibrated ground pressure in Pascal.
func (b *Baro) GroundPressure() float64 { return b.groundPressure.Get() }

// GroundTemperature returns the calibrated ground temperature in degrees C.
func (b *Baro) GroundTemperature() float64 { return b.groundTemperature.Get() }

// Calibrate captures the ground pressure and temperature. Must be called
// before GetAltitude or GetClimbRate are used. Three phases: wait for the
// first healthy sample, let the sensor settle, then blend five samples into
// the ground values. Each phase panics the platform if the sensor stays
// unhealthy past the read deadline.
func (b *Baro) Calibrate() {
	var groundPressure, groundTemperature float64

	// The altitude offset is meant for within one flight.
	b.altOffset.SetAndSave(0)

	tstart := b.plat.Millis()
	for groundPressure == 0 || !b.healthy {
		_ = b.Read()
		if b.plat.Millis()-tstart > calReadDeadlineMS {
			b.plat.Panic("baro: read unsuccessful for more than 500ms in calibrate [1]")
		}
		groundPressure = b.drv.Pressure()
		groundTemperature = b.drv.Temperature()
		b.plat.Delay(20)
	}

	// Let the sensor settle; some parts read far off for the first second.
	for i := 0; i < 10; i++ {
		tstart = b.plat.Millis()
		for {
			_ = b.Read()
			if b.plat.Millis()-tstart > calReadDeadlineMS {
				b.plat.Panic("baro: read unsuccessful for more than 500ms in calibrate [2]")
			}
			if b.healthy {
				break
			}
		}
		groundPressure = b.drv.Pressure()
		groundTemperature = b.drv.Temperature()
		b.plat.Delay(100)
	}

	// Average five further samples with an exponential blend.
	for i := 0; i < 5; i++ {
		tstart = b.plat.Millis()
		for {
			_ = b.Read()
			if b.plat.Millis()-tstart > calReadDeadlineMS {
				b.plat.Panic("baro: read unsuccessful for more than 500ms in calibrate [3]")
			}
			if b.healthy {
				break
			}
		}
		groundPressure = groundPressure*0.8 + b.drv.Pressure()*0.2
		groundTemperature = groundTemperature*0.8 + b.drv.Temperature()*0.2
		b.plat.Delay(100)
	}

	b.groundPressure.SetAndSave(groundPressure)
	b.groundTemperature.SetAndSave(groundTemperature)
	b.calTime = b.plat.Millis()
}

// UpdateCalibration refreshes the ground values from the current sample.
// Usable before arming to keep the baro well calibrated without the full
// procedure.
func (b *Baro) UpdateCalibration() {
	b.groundPressure.Set(b.drv.Pressure())
	b.groundTemperature.Set(b.drv.Temperature())
	b.calTime = b.plat.Millis()
}

// GetAltitudeDifference returns the altitude difference in metres between a
// pressure and a base pressure, both in Pascal. Within +-2.5 m of the
// standard atmosphere tables in the troposphere.
func (b *Baro) GetAltitudeDifference(basePressure, pressure float64) float64 {
	scaling := pressure / basePressure
	temp := b.groundTemperature.Get() + 273.15
	return 153.8462 * temp * (1.0 - math.Exp(0.190259*math.Log(scaling)))
}

// altitudeDifferenceFast is the cheaper logarithmic form used on slow CPUs.
// Kept for cross-checking. It treats the air column as isothermal at the
// ground temperature, so it reads high against the exact form: about 11 m
// (~1%) at 1000 m.
func (b *Baro) altitudeDifferenceFast(basePressure, pressure float64) float64 {
	scaling := basePressure / pressure
	temp := b.groundTemperature.Get() + 273.15
	return math.Log(scaling) * temp * 29.271267
}

// GetAltitude returns the altitude in metres relative to calibration time.
// Relies on Read being called regularly; the cached value is only
// recomputed when the driver timestamp advances.
func (b *Baro) GetAltitude() float64 {
	if b.groundPressure.Get() == 0 {
		// Called before calibration.
		return 0
	}

	lastUpdate := b.drv.LastUpdateMillis()
	if b.lastAltitudeT == lastUpdate {
		return b.altitude + b.altOffset.Get() - b.driftEst
	}

	b.altitude = b.GetAltitudeDifference(b.groundPressure.Get(), b.drv.Pressure())
	b.lastAltitudeT = lastUpdate

	b.climbRateFilter.Update(b.altitude, lastUpdate)

	return b.altitude + b.altOffset.Get() - b.driftEst
}

// GetClimbRate returns the climb rate in m/s, positive up. The 7-point
// derivative filter works in m/ms, hence the scale.
func (b *Baro) GetClimbRate() float64 {
	return b.climbRateFilter.Slope() * 1.0e3
}

// GetEAS2TAS returns the equivalent-to-true airspeed scale factor, assuming
// the standard atmosphere lapse rate. Valid to roughly 10 km AMSL; only
// recomputed once the altitude has moved 100 m.
func (b *Baro) GetEAS2TAS() float64 {
	if math.Abs(b.altitude-b.lastAltitudeEAS2TAS) < 100.0 && b.eas2tas != 0 {
		return b.eas2tas
	}

	tempK := b.groundTemperature.Get() + 273.15 - 0.0065*b.altitude
	ratio := 1.225 / (b.drv.Pressure() / (287.26 * tempK))
	if ratio <= 0 {
		return b.eas2tas
	}
	b.eas2tas = math.Sqrt(ratio)
	b.lastAltitudeEAS2TAS = b.altitude
	return b.eas2tas
}

// UpdateDriftEstimate folds an externally-supplied altitude (metres,
// relative to the baro zero point) into the drift estimate. dt is the
// roughly-constant period between calls. During the init window after
// calibration the reference is only averaged into a ground level; after
// that a low-pass filter tracks the innovation. A negative time constant
// disables the estimator.
func (b *Baro) UpdateDriftEstimate(alt, dt float64) {
	if b.plat.Millis() < b.calTime+int64(b.driftInitPeriod.Get()*1000) {
		b.driftGndLevel += alt
		b.driftInitCount++
		return
	}

	if b.driftInitCount > 0 {
		b.driftGndLevel /= float64(b.driftInitCount)
		b.driftInitCount = 0

		// Start the estimate drifting from zero with the same time constant
		// as the steady state, avoiding a step in altitude when the ground
		// estimation completes.
		b.driftFilter.SetTimeConstant(dt, b.driftTC.Get())
		b.driftEst = b.driftFilter.Apply(0)
	}

	if b.driftTC.Get() < 0 {
		b.driftEst = 0
		return
	}

	innov := b.altitude + b.altOffset.Get() - b.driftEst - (alt - b.driftGndLevel)

	// Gate large innovations; glitch rejection is ultimately the caller's
	// job, this is a backstop.
	if innov < driftInnovGateM {
		b.driftFilter.SetTimeConstant(dt, b.driftTC.Get())
		b.driftEst = b.driftFilter.Apply(innov + b.driftEst)
	}
}

// GetDriftEstimate returns the estimated baro drift in metres since
// calibration.
func (b *Baro) GetDriftEstimate() float64 {
	return b.driftEst
}
