package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"

	"copternav/internal/baro"
	"copternav/internal/nav"
	"copternav/internal/platform"
)

// Leg is one mission segment.
type Leg struct {
	Dest   r3.Vector // cm from home
	Spline bool
}

// Runner drives the engine, the position controller and the vehicle model
// against a stepped clock, so missions simulate deterministically and much
// faster than real time.
type Runner struct {
	Plat *platform.Fake
	Veh  *Vehicle
	PC   *PosControl
	Nav  *nav.WPNav

	// Baro, when set, is read every BaroPeriodMS and fed to the drift
	// estimator with the vehicle's true altitude as the reference.
	Baro         *baro.Baro
	BaroPeriodMS int64

	Log *logrus.Logger

	TickMS int64

	lastBaroMS int64
}

func NewRunner(plat *platform.Fake, veh *Vehicle, pc *PosControl, n *nav.WPNav, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.New()
	}
	return &Runner{
		Plat:         plat,
		Veh:          veh,
		PC:           pc,
		Nav:          n,
		Log:          log,
		TickMS:       10,
		BaroPeriodMS: 200,
	}
}

// RunMission flies the legs in order. Each leg must complete within
// legTimeout of simulated time.
func (r *Runner) RunMission(ctx context.Context, legs []Leg, legTimeout time.Duration) error {
	if len(legs) == 0 {
		return fmt.Errorf("sim: mission has no legs")
	}

	for i, leg := range legs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if leg.Spline {
			endType := nav.SegmentEndStop
			var next r3.Vector
			if i+1 < len(legs) {
				next = legs[i+1].Dest
				if legs[i+1].Spline {
					endType = nav.SegmentEndSpline
				} else {
					endType = nav.SegmentEndStraight
				}
			}
			stopped := r.Veh.Velocity().Norm() < 1
			r.Nav.SetSplineDestination(leg.Dest, stopped, endType, next)
		} else {
			r.Nav.SetWPDestination(leg.Dest)
		}

		deadline := r.Plat.Millis() + legTimeout.Milliseconds()
		for !r.Nav.ReachedDestination() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.Plat.Millis() > deadline {
				return fmt.Errorf("sim: leg %d to (%.0f,%.0f,%.0f) timed out", i, leg.Dest.X, leg.Dest.Y, leg.Dest.Z)
			}
			r.Step(leg.Spline)
		}

		pos := r.Veh.Position()
		r.Log.WithFields(logrus.Fields{
			"leg":  i,
			"t_s":  float64(r.Plat.Millis()) / 1000.0,
			"x_cm": int(pos.X),
			"y_cm": int(pos.Y),
			"z_cm": int(pos.Z),
		}).Info("leg complete")
	}
	return nil
}

// Loiter holds position for the given simulated duration with centred
// sticks.
func (r *Runner) Loiter(ctx context.Context, d time.Duration) error {
	r.Nav.InitLoiterTarget()
	end := r.Plat.Millis() + d.Milliseconds()
	for r.Plat.Millis() < end {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Plat.Advance(r.TickMS)
		r.Nav.UpdateLoiter()
		r.PC.Run()
		r.Veh.Step(float64(r.TickMS) / 1000.0)
		r.tickBaro()
	}
	return nil
}

// Step advances one tick: clock, navigation update, controller, vehicle.
func (r *Runner) Step(spline bool) {
	r.Plat.Advance(r.TickMS)
	if spline {
		r.Nav.UpdateSpline()
	} else {
		r.Nav.UpdateWPNav()
	}
	r.PC.Run()
	r.Veh.Step(float64(r.TickMS) / 1000.0)
	r.Veh.SetYawCD(r.Nav.Yaw())
	r.tickBaro()
}

func (r *Runner) tickBaro() {
	if r.Baro == nil {
		return
	}
	now := r.Plat.Millis()
	if now-r.lastBaroMS < r.BaroPeriodMS {
		return
	}
	dt := float64(now-r.lastBaroMS) / 1000.0
	r.lastBaroMS = now

	_ = r.Baro.Read()
	_ = r.Baro.GetAltitude()
	// The vehicle's true altitude (cm up -> m) is the drift-free reference.
	r.Baro.UpdateDriftEstimate(r.Veh.Position().Z/100.0, dt)
}
