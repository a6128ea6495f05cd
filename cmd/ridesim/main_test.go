package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"ridesim/internal/config"
)

func TestOverlayOnlyAppliesSetFlags(t *testing.T) {
	cfg := config.Default()
	f := flags{Width: 7, Height: 9, RequestProb: 0.9, Strategy: "poi", TripsDB: "/tmp/t.sqlite"}

	overlay(&cfg, f, map[string]bool{"width": true, "strategy": true})

	if cfg.Sim.Width != 7 || cfg.Sim.Strategy != "poi" {
		t.Fatalf("set flags not applied: %+v", cfg.Sim)
	}
	if cfg.Sim.Height != 100 || cfg.Sim.RequestProb != 0.3 || cfg.SQLite.Path != "" {
		t.Fatalf("unset flags must not override config: %+v", cfg)
	}
}

func smallRun(dir string) (flags, map[string]bool) {
	f := flags{
		Steps:        60,
		Width:        8,
		Height:       8,
		Drivers:      3,
		POIs:         4,
		RequestProb:  0.6,
		Seed:         5,
		SnapshotPath: filepath.Join(dir, "run.jsonl.zst"),
		TripsDB:      filepath.Join(dir, "trips.sqlite"),
		Quiet:        true,
	}
	set := map[string]bool{"width": true, "height": true, "drivers": true, "pois": true, "prob": true, "seed": true, "trips-db": true}
	return f, set
}

func TestRun_ThenReplay(t *testing.T) {
	f, set := smallRun(t.TempDir())

	var live bytes.Buffer
	if err := run(f, set, &live); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(live.String(), "Simulation finished.") {
		t.Fatalf("unexpected run output:\n%s", live.String())
	}

	f.ReplayPath = f.SnapshotPath
	f.Quiet = false
	var replayed bytes.Buffer
	if err := run(f, set, &replayed); err != nil {
		t.Fatalf("replay: %v", err)
	}
	out := replayed.String()
	if !strings.Contains(out, "Step 1: 3 drivers") || !strings.Contains(out, "Step 60: 3 drivers") {
		t.Fatalf("replay should list every tick:\n%s", out)
	}
	// The final statistics block of a replay matches the live run.
	stats := func(s string) string { return s[strings.Index(s, "--- Simulation Statistics ---"):] }
	if stats(out) != stats(live.String()) {
		t.Fatalf("replayed stats differ:\n%s\nvs\n%s", stats(out), stats(live.String()))
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *flags, set map[string]bool)
		want   string
	}{
		{"no steps", func(f *flags, _ map[string]bool) { f.Steps = 0 }, "steps must be positive"},
		{"bad config flag", func(f *flags, set map[string]bool) { f.RequestProb = 2 }, "request_prob"},
		{"missing replay file", func(f *flags, _ map[string]bool) { f.ReplayPath = "/nonexistent/run.jsonl.zst" }, "read snapshot file"},
		{"snapshot path is a directory", func(f *flags, _ map[string]bool) { f.SnapshotPath = filepath.Dir(f.SnapshotPath) }, "create snapshot file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, set := smallRun(t.TempDir())
			tt.mutate(&f, set)
			var out bytes.Buffer
			err := run(f, set, &out)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			if out.Len() != 0 {
				t.Fatalf("failed run must not print a report, got %q", out.String())
			}
		})
	}
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	f, set := smallRun(t.TempDir())
	f.Steps = 1
	f.RequestProb = 0
	if err := run(f, set, &buf); err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("Simulation finished.\n\n--- Simulation Statistics ---\nCompleted Trips: 0\n%s\n",
		"No trips completed, so no average times to display.")
	if buf.String() != want {
		t.Fatalf("unexpected report:\n%q", buf.String())
	}
}
