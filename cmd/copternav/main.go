package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"

	"copternav/internal/baro"
	"copternav/internal/config"
	"copternav/internal/nav"
	"copternav/internal/param"
	"copternav/internal/platform"
	"copternav/internal/sensors/synth"
	"copternav/internal/sim"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./mission.yaml", "Path to YAML config")
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	params := param.NewStore(cfg.Params.Path)
	if err := params.Load(); err != nil {
		log.Fatalf("param load failed: %v", err)
	}

	// Simulated time: the mission flies deterministically and faster than
	// real time.
	plat := &platform.Fake{}

	veh := sim.NewVehicle(r3.Vector{})
	pc := sim.NewPosControl(veh, plat)
	engine := nav.New(veh, veh, pc, plat, params)

	var bar *baro.Baro
	if cfg.Baro.Enable {
		drv := synth.New(plat)
		if cfg.Baro.DriftRampPaPerS != 0 {
			rampForMS := cfg.Baro.DriftRampFor.Milliseconds()
			rate := cfg.Baro.DriftRampPaPerS
			drv.PressureAt = func(tMS int64) float64 {
				if rampForMS > 0 && tMS > rampForMS {
					tMS = rampForMS
				}
				return synth.SeaLevelPa + rate*float64(tMS)/1000.0
			}
		}
		bar = baro.New(drv, plat, params)
		if err := bar.Init(); err != nil {
			log.Fatalf("baro init failed: %v", err)
		}
		bar.Calibrate()
		log.WithFields(logrus.Fields{
			"ground_pa": int(bar.GroundPressure()),
			"ground_c":  bar.GroundTemperature(),
		}).Info("baro calibrated")
	}

	for name, v := range cfg.Params.Overrides {
		if err := params.Set(name, v); err != nil {
			log.Fatalf("param override failed: %v", err)
		}
	}

	runner := sim.NewRunner(plat, veh, pc, engine, log)
	runner.TickMS = int64(cfg.Sim.TickMS)
	runner.Baro = bar

	legs := make([]sim.Leg, 0, len(cfg.Mission.Legs))
	for _, l := range cfg.Mission.Legs {
		legs = append(legs, sim.Leg{
			Dest:   r3.Vector{X: l.NorthCM, Y: l.EastCM, Z: l.UpCM},
			Spline: l.Spline,
		})
	}

	log.WithField("legs", len(legs)).Info("copternav mission starting")

	if err := runner.RunMission(ctx, legs, cfg.Sim.LegTimeout); err != nil {
		log.Fatalf("mission failed: %v", err)
	}

	if cfg.Mission.LoiterAtEnd > 0 {
		if err := runner.Loiter(ctx, cfg.Mission.LoiterAtEnd); err != nil {
			log.Fatalf("loiter failed: %v", err)
		}
	}

	if bar != nil {
		log.WithFields(logrus.Fields{
			"alt_m":   bar.GetAltitude(),
			"climb":   bar.GetClimbRate(),
			"drift_m": bar.GetDriftEstimate(),
		}).Info("baro state at mission end")
	}
	log.Info("copternav mission complete")
}
