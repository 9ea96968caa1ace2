// Package synth is a scripted pressure source standing in for real sensor
// hardware in tests and simulated runs.
package synth

import (
	"copternav/internal/platform"
)

// Standard sea-level atmosphere.
const (
	SeaLevelPa    = 101325.0
	SeaLevelTempC = 15.0
)

// Driver produces pressure from a function of the platform clock. It
// implements the barometer's driver seam.
type Driver struct {
	plat platform.Platform

	// PressureAt maps the clock (ms) to pressure in Pascal. Nil means a
	// constant sea-level pressure.
	PressureAt func(tMS int64) float64

	// TemperatureC is the reported temperature, reported as set. New sets
	// it to 15 C.
	TemperatureC float64

	// Fail makes Read report an error, which keeps the barometer unhealthy
	// and runs calibration into its read deadline.
	Fail bool

	pressurePa   float64
	lastUpdateMS int64
}

func New(plat platform.Platform) *Driver {
	return &Driver{plat: plat, TemperatureC: SeaLevelTempC}
}

func (d *Driver) Init() error { return nil }

func (d *Driver) Read() error {
	if d.Fail {
		return errUnavailable
	}
	now := d.plat.Millis()
	if d.PressureAt != nil {
		d.pressurePa = d.PressureAt(now)
	} else {
		d.pressurePa = SeaLevelPa
	}
	d.lastUpdateMS = now
	return nil
}

func (d *Driver) Pressure() float64 { return d.pressurePa }

func (d *Driver) Temperature() float64 { return d.TemperatureC }

func (d *Driver) Accumulate() {}

func (d *Driver) LastUpdateMillis() int64 { return d.lastUpdateMS }

type unavailableError struct{}

func (unavailableError) Error() string { return "synth: source unavailable" }

var errUnavailable = unavailableError{}
