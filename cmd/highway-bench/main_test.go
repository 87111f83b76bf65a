package main

import (
	"path/filepath"
	"testing"

	"github.com/lixenwraith/vi-highway/config"
	"github.com/lixenwraith/vi-highway/telemetry"
)

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.Traffic.Cars = 60
	cfg.Engine.CheckOrder = true
	return cfg
}

func TestBenchDigestIndependentOfWorkers(t *testing.T) {
	var digests []string
	for _, workers := range []int{1, 4} {
		cfg := smallConfig()
		cfg.Engine.Workers = workers
		res, err := bench(cfg, 300, false)
		if err != nil {
			t.Fatalf("workers %d: %v", workers, err)
		}
		if res.ticks != 300 || res.last.Cars != 60 {
			t.Errorf("workers %d: ticks %d cars %d, want 300 and 60", workers, res.ticks, res.last.Cars)
		}
		digests = append(digests, res.digest)
	}
	if digests[0] != digests[1] {
		t.Errorf("digest with 1 worker %s, with 4 workers %s", digests[0], digests[1])
	}
}

func TestBenchSerialReference(t *testing.T) {
	res, err := bench(smallConfig(), 300, true)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	if res.last.Cars != 60 || res.last.Tick != 300 {
		t.Errorf("serial last = %+v, want 60 cars at tick 300", res.last)
	}
	if res.last.MeanSpeed <= 0 {
		t.Errorf("serial mean speed = %v, want > 0", res.last.MeanSpeed)
	}
}

func TestBenchWritesTelemetry(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig()
	cfg.Engine.Workers = 2
	cfg.Telemetry.DB = filepath.Join(dir, "bench.db")
	cfg.Telemetry.Snapshot = filepath.Join(dir, "final.json")
	cfg.Telemetry.RecordEvery = 5

	res, err := bench(cfg, 100, false)
	if err != nil {
		t.Fatal(err)
	}

	snap, err := telemetry.ReadFile(cfg.Telemetry.Snapshot)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if snap.Digest != res.digest || snap.Tick != 100 {
		t.Errorf("snapshot tick %d digest %s, want 100 and %s", snap.Tick, snap.Digest, res.digest)
	}

	rec, err := telemetry.Open(cfg.Telemetry.DB, telemetry.RunInfo{Label: "check"})
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()
	if rec.RunID() != 2 {
		t.Errorf("check run id = %d, want 2 after one bench run", rec.RunID())
	}
}
