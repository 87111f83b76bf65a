package engine

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/vi-highway/core"
)

// ClockScheduler drives a Simulation on a fixed tick
// Each tick uses the same dt (the tick interval) and flips the merge bias
// A step error halts the loop: ring state after a failed phase is not safe to continue from
type ClockScheduler struct {
	sim   *Simulation
	clock *PausableClock

	tickInterval     time.Duration
	dt               float64
	nextTickDeadline time.Time // Next tick deadline for drift correction

	mergeLeft atomic.Bool
	tickCount atomic.Uint64
	onTick    func(TickStats)

	// Control channels
	stopChan chan struct{}
	stopOnce sync.Once
	halted   chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool

	// Send signal that a tick completed; dropped if the receiver is behind
	updateDone chan struct{}

	errMu sync.Mutex
	err   error

	statErrors *atomic.Int64
}

// NewClockScheduler creates a scheduler ticking sim every tickInterval of clock time
// Returns the tick-complete channel for frame synchronization
func NewClockScheduler(sim *Simulation, clock *PausableClock, tickInterval time.Duration) (*ClockScheduler, <-chan struct{}) {
	updateDone := make(chan struct{}, 1)
	cs := &ClockScheduler{
		sim:          sim,
		clock:        clock,
		tickInterval: tickInterval,
		dt:           tickInterval.Seconds(),
		updateDone:   updateDone,
		stopChan:     make(chan struct{}),
		halted:       make(chan struct{}),
		statErrors:   sim.Status().Ints.Get("engine.errors"),
	}
	return cs, updateDone
}

// OnTick registers a callback run on the scheduler goroutine after each step, must be called before Start()
func (cs *ClockScheduler) OnTick(fn func(TickStats)) {
	cs.onTick = fn
}

// Start begins the scheduler loop
func (cs *ClockScheduler) Start() {
	if cs.running.CompareAndSwap(false, true) {
		cs.wg.Add(1)
		core.Go(cs.schedulerLoop)
	}
}

// Stop halts the scheduler loop and waits for it to exit
// Stopping a scheduler that never started closes Halted and makes Start a no-op
func (cs *ClockScheduler) Stop() {
	cs.stopOnce.Do(func() {
		close(cs.stopChan)
		if cs.running.CompareAndSwap(false, true) {
			close(cs.halted)
			return
		}
		cs.wg.Wait()
	})
}

// Halted is closed once the loop exits, by Stop or by a failed step
func (cs *ClockScheduler) Halted() <-chan struct{} {
	return cs.halted
}

// Ticks returns the number of completed ticks
func (cs *ClockScheduler) Ticks() uint64 {
	return cs.tickCount.Load()
}

// Err returns the step error that halted the loop, if any
func (cs *ClockScheduler) Err() error {
	cs.errMu.Lock()
	defer cs.errMu.Unlock()
	return cs.err
}

// StepOnce runs a single tick outside the loop, used for frame stepping while paused
func (cs *ClockScheduler) StepOnce() error {
	if err := cs.Err(); err != nil {
		return err
	}
	return cs.tick()
}

func (cs *ClockScheduler) schedulerLoop() {
	defer cs.wg.Done()
	defer close(cs.halted)

	cs.nextTickDeadline = cs.clock.Now().Add(cs.tickInterval)

	timer := time.NewTimer(cs.tickInterval)
	defer timer.Stop()

	for {
		select {
		case <-cs.stopChan:
			return
		case <-timer.C:
		}

		if cs.clock.IsPaused() {
			// Back off while paused to save CPU
			timer.Reset(cs.tickInterval * 2)
			continue
		}

		gameNow := cs.clock.Now()
		if gameNow.Before(cs.nextTickDeadline) {
			timer.Reset(cs.nextTickDeadline.Sub(gameNow))
			continue
		}

		if err := cs.tick(); err != nil {
			log.Printf("scheduler: halted after %d ticks: %v", cs.Ticks(), err)
			return
		}

		cs.nextTickDeadline = cs.nextTickDeadline.Add(cs.tickInterval)
		if gameNow.Sub(cs.nextTickDeadline) > cs.tickInterval*2 {
			// Too far behind, drop the backlog instead of bursting
			cs.nextTickDeadline = gameNow.Add(cs.tickInterval)
		}

		sleep := cs.nextTickDeadline.Sub(cs.clock.Now())
		if sleep < 0 {
			sleep = 0
		}
		timer.Reset(sleep)
	}
}

func (cs *ClockScheduler) tick() error {
	mergeLeft := cs.flipMergeLeft()

	stats, err := cs.sim.Step(cs.dt, mergeLeft)
	if err != nil {
		cs.statErrors.Add(1)
		cs.errMu.Lock()
		if cs.err == nil {
			cs.err = err
		}
		cs.errMu.Unlock()
		return err
	}

	cs.tickCount.Add(1)
	if cs.onTick != nil {
		cs.onTick(stats)
	}

	select {
	case cs.updateDone <- struct{}{}:
	default:
	}
	return nil
}

// flipMergeLeft toggles the bias and returns the new value; concurrent ticks each get their own flip
func (cs *ClockScheduler) flipMergeLeft() bool {
	for {
		old := cs.mergeLeft.Load()
		if cs.mergeLeft.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
