package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lixenwraith/vi-highway/car"
	"github.com/lixenwraith/vi-highway/highway"
)

// biasRecorder records the merge bias passed to each avoidance call
type biasRecorder struct {
	mu     sync.Mutex
	biases []bool
}

func (b *biasRecorder) MergingMove(*car.Car, float64) {}

func (b *biasRecorder) Avoidance(c *car.Car, idx int, segmentLength float64, own, next []car.Car, mergeLeft bool, dt float64) {
	b.mu.Lock()
	b.biases = append(b.biases, mergeLeft)
	b.mu.Unlock()
}

func newSchedulerSim(t *testing.T, behavior highway.Behavior) *Simulation {
	t.Helper()
	r, _ := highway.NewRing(2, 4)
	_ = r.Bucket(0).Append(car.Car{ID: 1, Pos: 1, Speed: 1})
	sim, err := NewSimulation(r, uniformLengths(2, 10), behavior, nil, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return sim
}

func waitTicks(t *testing.T, cs *ClockScheduler, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for cs.Ticks() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out at %d ticks, want %d", cs.Ticks(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClockSchedulerAlternatesMergeBias(t *testing.T) {
	rec := &biasRecorder{}
	sim := newSchedulerSim(t, rec)
	cs, _ := NewClockScheduler(sim, NewPausableClock(), time.Millisecond)

	cs.Start()
	waitTicks(t, cs, 6)
	cs.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.biases) < 6 {
		t.Fatalf("recorded %d ticks, want >= 6", len(rec.biases))
	}
	for i, b := range rec.biases {
		want := i%2 == 0
		if b != want {
			t.Errorf("tick %d mergeLeft = %v, want %v", i, b, want)
		}
	}
}

func TestClockSchedulerSignalsUpdateDone(t *testing.T) {
	sim := newSchedulerSim(t, noopBehavior{})
	cs, updateDone := NewClockScheduler(sim, NewPausableClock(), time.Millisecond)

	var mu sync.Mutex
	var seen []uint64
	cs.OnTick(func(s TickStats) {
		mu.Lock()
		seen = append(seen, s.Tick)
		mu.Unlock()
	})

	cs.Start()
	defer cs.Stop()

	select {
	case <-updateDone:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick signalled")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || seen[0] != 1 {
		t.Errorf("OnTick saw %v, want first tick 1", seen)
	}
}

func TestClockSchedulerPause(t *testing.T) {
	sim := newSchedulerSim(t, noopBehavior{})
	clock := NewPausableClock()
	cs, _ := NewClockScheduler(sim, clock, time.Millisecond)

	cs.Start()
	defer cs.Stop()
	waitTicks(t, cs, 2)

	clock.Pause()
	time.Sleep(10 * time.Millisecond)
	paused := cs.Ticks()
	time.Sleep(30 * time.Millisecond)
	if got := cs.Ticks(); got != paused {
		t.Errorf("ticks advanced while paused: %d -> %d", paused, got)
	}

	if err := cs.StepOnce(); err != nil {
		t.Fatalf("StepOnce: %v", err)
	}
	if got := cs.Ticks(); got != paused+1 {
		t.Errorf("StepOnce ticks = %d, want %d", got, paused+1)
	}

	clock.Resume()
	waitTicks(t, cs, paused+3)
}

func TestClockSchedulerHaltsOnStepError(t *testing.T) {
	r, _ := highway.NewRing(2, 1)
	_ = r.Bucket(0).Append(car.Car{ID: 1, Pos: 9.99, Speed: 100})
	_ = r.Bucket(1).Append(car.Car{ID: 2, Pos: 1})
	sim, err := NewSimulation(r, uniformLengths(2, 10), noopBehavior{}, nil, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}

	cs, _ := NewClockScheduler(sim, NewPausableClock(), time.Millisecond)
	cs.Start()

	select {
	case <-cs.Halted():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not halt")
	}

	if !errors.Is(cs.Err(), highway.ErrCapacityExceeded) {
		t.Errorf("Err() = %v, want ErrCapacityExceeded", cs.Err())
	}
	if got := sim.Status().Ints.Get("engine.errors").Load(); got != 1 {
		t.Errorf("engine.errors = %d, want 1", got)
	}
	if err := cs.StepOnce(); err == nil {
		t.Error("StepOnce after halt should return the halting error")
	}
	cs.Stop()
}

func TestClockSchedulerStopIdempotent(t *testing.T) {
	sim := newSchedulerSim(t, noopBehavior{})
	cs, _ := NewClockScheduler(sim, NewPausableClock(), time.Millisecond)

	cs.Stop()
	cs.Start()
	cs.Stop()
	cs.Stop()
}

// Each concurrent single step gets its own flip of the bias
func TestClockSchedulerConcurrentStepsSplitBias(t *testing.T) {
	rec := &biasRecorder{}
	sim := newSchedulerSim(t, rec)
	cs, _ := NewClockScheduler(sim, NewPausableClock(), time.Millisecond)

	const goroutines, steps = 8, 25
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < steps; i++ {
				if err := cs.StepOnce(); err != nil {
					t.Errorf("StepOnce: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	left := 0
	for _, b := range rec.biases {
		if b {
			left++
		}
	}
	if total := goroutines * steps; len(rec.biases) != total || left != total/2 {
		t.Errorf("biases = %d with %d left, want %d with %d left", len(rec.biases), left, total, total/2)
	}
}

func TestClockSchedulerStopBeforeStart(t *testing.T) {
	sim := newSchedulerSim(t, noopBehavior{})
	cs, _ := NewClockScheduler(sim, NewPausableClock(), time.Millisecond)

	cs.Stop()
	select {
	case <-cs.Halted():
	case <-time.After(time.Second):
		t.Fatal("Halted not closed after Stop on an idle scheduler")
	}

	cs.Start()
	time.Sleep(10 * time.Millisecond)
	if got := cs.Ticks(); got != 0 {
		t.Errorf("Ticks() = %d after Start on a stopped scheduler, want 0", got)
	}
	cs.Stop()
}
