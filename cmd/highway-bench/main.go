package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/lixenwraith/vi-highway/config"
	"github.com/lixenwraith/vi-highway/engine"
	"github.com/lixenwraith/vi-highway/highway"
	"github.com/lixenwraith/vi-highway/parameter"
	"github.com/lixenwraith/vi-highway/telemetry"
)

var (
	configFlag   = flag.String("config", "", "TOML config file (defaults built in)")
	ticksFlag    = flag.Int("ticks", parameter.DefaultBenchTicks, "Ticks to run")
	workersFlag  = flag.Int("workers", -1, "Worker goroutines, 0 = GOMAXPROCS (overrides config)")
	serialFlag   = flag.Bool("serial", false, "Run the single-threaded reference path instead of the engine")
	verifyFlag   = flag.Bool("verify", false, "Re-run on one worker and require an identical final digest")
	dbFlag       = flag.String("db", "", "SQLite telemetry file (overrides config)")
	snapshotFlag = flag.String("snapshot", "", "Write the final ring as JSON (overrides config)")
	restoreFlag  = flag.String("restore", "", "Start from a JSON snapshot instead of fresh traffic (overrides config)")
	verboseFlag  = flag.Bool("v", false, "Log to stderr")
)

// result is the outcome of one headless run
type result struct {
	ticks   int
	elapsed time.Duration
	digest  string
	last    engine.TickStats
}

func main() {
	flag.Parse()
	if *verboseFlag {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg := config.Default()
	if *configFlag != "" {
		var err error
		if cfg, err = config.Load(*configFlag); err != nil {
			fail(err)
		}
	}
	if *workersFlag >= 0 {
		cfg.Engine.Workers = *workersFlag
	}
	if *dbFlag != "" {
		cfg.Telemetry.DB = *dbFlag
	}
	if *snapshotFlag != "" {
		cfg.Telemetry.Snapshot = *snapshotFlag
	}
	if *restoreFlag != "" {
		cfg.Telemetry.Restore = *restoreFlag
	}

	res, err := bench(cfg, *ticksFlag, *serialFlag)
	if err != nil {
		fail(err)
	}
	report("primary", res)

	if *verifyFlag {
		ref := cfg
		ref.Engine.Workers = 1
		ref.Telemetry = config.Telemetry{RecordEvery: cfg.Telemetry.RecordEvery, Restore: cfg.Telemetry.Restore}
		check, err := bench(ref, *ticksFlag, *serialFlag)
		if err != nil {
			fail(fmt.Errorf("verify: %w", err))
		}
		report("verify", check)
		if check.digest != res.digest {
			fail(errors.New("verify: digests differ between worker counts"))
		}
		fmt.Println("verify: digests match")
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "highway-bench: %v\n", err)
	os.Exit(1)
}

func report(label string, r result) {
	perTick := time.Duration(0)
	if r.ticks > 0 {
		perTick = r.elapsed / time.Duration(r.ticks)
	}
	fmt.Printf("%s: %d ticks in %s (%s/tick) cars %d passing %d merging %d v %.2f\n",
		label, r.ticks, r.elapsed.Round(time.Millisecond), perTick, r.last.Cars, r.last.Overtaking, r.last.Merging, r.last.MeanSpeed)
	fmt.Printf("%s: digest %s\n", label, r.digest)
}

// bench builds a world from cfg and runs it for ticks steps
// The merge bias alternates exactly as the clock scheduler does
func bench(cfg config.Config, ticks int, serial bool) (result, error) {
	world, err := cfg.Build()
	if err != nil {
		return result{}, err
	}
	defer world.Pool.Close()

	var rec *telemetry.Recorder
	if cfg.Telemetry.DB != "" {
		rec, err = telemetry.Open(cfg.Telemetry.DB, telemetry.RunInfo{
			Label:    "bench",
			Segments: world.Ring.Len(),
			Capacity: world.Ring.Capacity(),
			Workers:  world.Pool.Workers(),
			Serial:   serial,
		})
		if err != nil {
			return result{}, err
		}
		defer rec.Close()
	}

	step := world.Sim.Step
	if serial {
		step = serialStep(cfg, world)
	}

	dt := cfg.Dt()
	every := uint64(cfg.Telemetry.RecordEvery)
	var res result
	start := time.Now()
	for i := 0; i < ticks; i++ {
		stats, err := step(dt, i%2 == 0)
		if err != nil {
			return res, fmt.Errorf("tick %d: %w", i+1, err)
		}
		res.ticks++
		res.last = stats
		if rec != nil && stats.Tick%every == 0 {
			if err := rec.Record(stats); err != nil {
				return res, err
			}
		}
	}
	res.elapsed = time.Since(start)

	metrics := world.Sim.Status().Snapshot()
	for _, key := range slices.Sorted(maps.Keys(metrics)) {
		log.Printf("metric %s = %g", key, metrics[key])
	}

	world.Sim.View(func(r *highway.Ring) {
		res.digest = telemetry.DigestHex(r)
		if cfg.Telemetry.Snapshot != "" {
			err = telemetry.WriteFile(cfg.Telemetry.Snapshot, telemetry.Capture(r, uint64(res.ticks)))
		}
	})
	if err != nil {
		return res, fmt.Errorf("snapshot: %w", err)
	}

	if rec != nil {
		if err := rec.Finish(res.digest); err != nil {
			return res, err
		}
		sum, err := rec.Summary()
		if err != nil {
			return res, err
		}
		log.Printf("telemetry run %d: %d rows, mean cars %.1f, max migrated %d, mean step %s",
			rec.RunID(), sum.Ticks, sum.MeanCars, sum.MaxMigrated, sum.MeanStep)
	}
	return res, nil
}

// serialStep drives the ring through the single-threaded reference passes
// Interactions walk buckets in descending order, so results differ from the parity schedule
func serialStep(cfg config.Config, world *config.World) func(float64, bool) (engine.TickStats, error) {
	behavior := cfg.CarBehavior()
	mergeRate := cfg.Behavior.MergeRate
	tick := uint64(0)

	return func(dt float64, mergeLeft bool) (engine.TickStats, error) {
		start := time.Now()
		var stats engine.TickStats
		err := world.Sim.Mutate(func(r *highway.Ring) error {
			if err := r.Advance(world.Track, dt); err != nil {
				return err
			}
			r.Update(world.Track, dt, dt*mergeRate, mergeLeft, behavior)

			tick++
			stats = engine.TickStats{Tick: tick, Migrated: r.Migrated()}
			speed := 0.0
			cur := r.Cursor()
			for c, _, ok := cur.Next(); ok; c, _, ok = cur.Next() {
				stats.Cars++
				speed += c.Speed
				if c.State.IsOvertaking() {
					stats.Overtaking++
				}
				if c.State.IsMerging() {
					stats.Merging++
				}
			}
			if stats.Cars > 0 {
				stats.MeanSpeed = speed / float64(stats.Cars)
			}
			return nil
		})
		stats.Duration = time.Since(start)
		return stats, err
	}
}
