package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/vi-highway/audio"
	"github.com/lixenwraith/vi-highway/config"
	"github.com/lixenwraith/vi-highway/core"
	"github.com/lixenwraith/vi-highway/engine"
	"github.com/lixenwraith/vi-highway/highway"
	"github.com/lixenwraith/vi-highway/parameter"
	"github.com/lixenwraith/vi-highway/render"
	"github.com/lixenwraith/vi-highway/telemetry"
)

var (
	configFlag  = flag.String("config", "", "TOML config file (defaults built in)")
	debugFlag   = flag.Bool("debug", false, "Write logs to logs/vi-highway.log")
	muteFlag    = flag.Bool("mute", false, "Start muted")
	volumeFlag  = flag.Float64("volume", 1.0, "Master volume, 0 to 1")
	workersFlag = flag.Int("workers", -1, "Worker goroutines, 0 = GOMAXPROCS (overrides config)")
)

func main() {
	flag.Parse()

	if logFile := setupLogging(*debugFlag); logFile != nil {
		defer logFile.Close()
	}

	cfg, err := loadConfig(*configFlag, *workersFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	world, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build: %v\n", err)
		os.Exit(1)
	}
	defer world.Pool.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize terminal: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize terminal: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	// Engine goroutines crash through core.Go; restore the terminal before printing
	core.SetCrashHandler(func(r any) {
		screen.Fini()
		// Use \r\n for raw mode compatibility
		fmt.Fprintf(os.Stderr, "\r\n\x1b[31mVI-HIGHWAY CRASHED: %v\x1b[0m\r\n", r)
		fmt.Fprintf(os.Stderr, "Stack Trace:\r\n%s\r\n", debug.Stack())
		os.Exit(1)
	})
	defer func() {
		if r := recover(); r != nil {
			core.HandleCrash(r)
		}
	}()

	v := newViewer(cfg, world, screen)

	if err := v.sound.Initialize(); err != nil {
		log.Printf("Audio initialization failed: %v (continuing without audio)", err)
	}
	defer v.sound.Cleanup()
	v.sound.SetMuted(*muteFlag)
	v.sound.SetMasterVolume(*volumeFlag)

	if cfg.Telemetry.DB != "" {
		rec, err := telemetry.Open(cfg.Telemetry.DB, telemetry.RunInfo{
			Label:    "viewer",
			Segments: world.Ring.Len(),
			Capacity: world.Ring.Capacity(),
			Workers:  world.Pool.Workers(),
			Serial:   cfg.Engine.SerialInteractions,
		})
		if err != nil {
			log.Printf("telemetry disabled: %v", err)
		} else {
			v.recorder = rec
			defer v.closeRecorder()
		}
	}

	v.run()
	v.saveSnapshot()
}

func loadConfig(path string, workers int) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if workers >= 0 {
		cfg.Engine.Workers = workers
	}
	return cfg, nil
}

// action is a viewer command bound to a key
type action int

const (
	actionNone action = iota
	actionQuit
	actionPause
	actionStep
	actionSpawn
	actionDespawn
	actionMute
	actionSnapshot
)

func keyAction(key tcell.Key, r rune) action {
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return actionQuit
	case tcell.KeyRune:
	default:
		return actionNone
	}
	switch r {
	case 'q':
		return actionQuit
	case ' ', 'p':
		return actionPause
	case '.':
		return actionStep
	case '+', '=':
		return actionSpawn
	case '-', '_':
		return actionDespawn
	case 'm':
		return actionMute
	case 's':
		return actionSnapshot
	}
	return actionNone
}

type viewer struct {
	cfg      config.Config
	world    *config.World
	screen   tcell.Screen
	renderer *render.Renderer
	clock    *engine.PausableClock
	sched    *engine.ClockScheduler
	tickDone <-chan struct{}
	sound    *audio.SoundManager
	recMu    sync.Mutex
	recorder *telemetry.Recorder

	halted <-chan struct{}
}

func newViewer(cfg config.Config, world *config.World, screen tcell.Screen) *viewer {
	v := &viewer{
		cfg:      cfg,
		world:    world,
		screen:   screen,
		renderer: render.NewRenderer(screen, world.Track),
		clock:    engine.NewPausableClock(),
		sound:    audio.NewSoundManager(),
	}
	v.sched, v.tickDone = engine.NewClockScheduler(world.Sim, v.clock, cfg.TickInterval())
	v.sched.OnTick(v.onTick)
	v.halted = v.sched.Halted()
	return v
}

// onTick runs on the scheduler goroutine, or the main one for a single step
func (v *viewer) onTick(stats engine.TickStats) {
	v.sound.OnTick(stats)

	v.recMu.Lock()
	defer v.recMu.Unlock()
	if v.recorder != nil && stats.Tick%uint64(v.cfg.Telemetry.RecordEvery) == 0 {
		if err := v.recorder.Record(stats); err != nil {
			log.Printf("telemetry: %v", err)
		}
	}
}

func (v *viewer) run() {
	v.sched.Start()
	defer v.sched.Stop()

	eventChan := make(chan tcell.Event, 64)
	core.Go(func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				// Screen finalized
				return
			}
			eventChan <- ev
		}
	})

	frameTicker := time.NewTicker(parameter.FrameUpdateInterval)
	defer frameTicker.Stop()

	for {
		select {
		case ev := <-eventChan:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if !v.apply(keyAction(ev.Key(), ev.Rune())) {
					return
				}
			case *tcell.EventResize:
				v.screen.Sync()
			}

		case <-v.halted:
			v.halted = nil
			v.sound.PlayHalt()
			v.clock.Pause()

		case <-v.tickDone:
			// Drawn on the next frame

		case <-frameTicker.C:
			v.draw()
		}
	}
}

// apply runs one action; false means quit
func (v *viewer) apply(a action) bool {
	switch a {
	case actionQuit:
		return false
	case actionPause:
		paused := v.clock.Toggle()
		log.Printf("viewer: paused=%v", paused)
	case actionStep:
		if v.clock.IsPaused() {
			if err := v.sched.StepOnce(); err != nil {
				log.Printf("viewer: step: %v", err)
			}
		}
	case actionSpawn:
		v.spawn()
	case actionDespawn:
		v.despawn()
	case actionMute:
		v.sound.ToggleMute()
	case actionSnapshot:
		v.saveSnapshot()
	}
	v.draw()
	return true
}

func (v *viewer) spawn() {
	err := v.world.Sim.Mutate(func(r *highway.Ring) error {
		id, err := v.world.Spawner.SpawnOne(r, v.world.Track)
		if err == nil {
			log.Printf("viewer: spawned car %d", id)
		}
		return err
	})
	if err != nil {
		log.Printf("viewer: spawn: %v", err)
	}
}

func (v *viewer) despawn() {
	err := v.world.Sim.Mutate(func(r *highway.Ring) error {
		v.world.Spawner.Trim(r, r.Count()-1)
		return nil
	})
	if err != nil {
		log.Printf("viewer: despawn: %v", err)
	}
}

func (v *viewer) hud() render.HUD {
	return render.HUD{
		Stats:   v.world.Sim.Last(),
		Workers: v.world.Pool.Workers(),
		Paused:  v.clock.IsPaused(),
		Muted:   v.sound.Muted(),
		Err:     v.sched.Err(),
	}
}

func (v *viewer) draw() {
	hud := v.hud()
	v.world.Sim.View(func(r *highway.Ring) {
		v.renderer.Draw(r, hud)
	})
	v.screen.Show()
}

func (v *viewer) saveSnapshot() {
	path := v.cfg.Telemetry.Snapshot
	if path == "" {
		return
	}
	var snap *telemetry.Snapshot
	tick := v.world.Sim.Tick()
	v.world.Sim.View(func(r *highway.Ring) {
		snap = telemetry.Capture(r, tick)
	})
	if err := telemetry.WriteFile(path, snap); err != nil {
		log.Printf("snapshot: %v", err)
		return
	}
	log.Printf("snapshot: tick %d digest %s -> %s", snap.Tick, snap.Digest, path)
}

func (v *viewer) closeRecorder() {
	v.recMu.Lock()
	defer v.recMu.Unlock()

	var digest string
	v.world.Sim.View(func(r *highway.Ring) {
		digest = telemetry.DigestHex(r)
	})
	if err := v.recorder.Finish(digest); err != nil {
		log.Printf("telemetry: %v", err)
	}
	if err := v.recorder.Close(); err != nil {
		log.Printf("telemetry: %v", err)
	}
}
