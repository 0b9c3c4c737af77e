package telemetry

import (
	"testing"

	"hydrocraft.sim/internal/sim/water"
)

func TestCollectorWindowing(t *testing.T) {
	c := NewCollector(3)

	ticks := []water.TickStats{
		{Tick: 1, Processed: 4, ActiveCells: 2, Sources: 1, PendingQueue: 5, ChunksFlushed: 1, StepMs: 0.2},
		{Tick: 2, Processed: 6, ActiveCells: 4, Sources: 1, PendingQueue: 3, ChunksFlushed: 2, StepMs: 0.6},
	}
	for _, st := range ticks {
		if _, done := c.Observe(st); done {
			t.Fatal("window closed early")
		}
	}

	w, done := c.Observe(water.TickStats{Tick: 3, Processed: 2, ActiveCells: 5, Sources: 2, FallingCells: 1, PendingQueue: 0, ChunksFlushed: 1, StepMs: 0.4})
	if !done {
		t.Fatal("window did not close after 3 ticks")
	}
	if w.WindowEndTick != 3 || w.Ticks != 3 {
		t.Fatalf("window bounds = %+v", w)
	}
	// Counters sum, gauges take the last tick's value.
	if w.Processed != 12 || w.ChunksFlushed != 4 {
		t.Fatalf("counters = %+v", w)
	}
	if w.ActiveCells != 5 || w.Sources != 2 || w.FallingCells != 1 || w.PendingQueue != 0 {
		t.Fatalf("gauges = %+v", w)
	}
	if w.MeanStepMs < 0.39 || w.MeanStepMs > 0.41 {
		t.Fatalf("mean step = %v", w.MeanStepMs)
	}
	if w.MaxStepMs != 0.6 {
		t.Fatalf("max step = %v", w.MaxStepMs)
	}
}

func TestCollectorFlushPartial(t *testing.T) {
	c := NewCollector(10)
	if _, ok := c.Flush(); ok {
		t.Fatal("empty collector flushed a window")
	}

	c.Observe(water.TickStats{Tick: 7, Processed: 3, StepMs: 1.5})
	w, ok := c.Flush()
	if !ok || w.Ticks != 1 || w.WindowEndTick != 7 || w.Processed != 3 {
		t.Fatalf("partial flush = %+v (ok=%v)", w, ok)
	}
	if w.MeanStepMs != 1.5 || w.MaxStepMs != 1.5 {
		t.Fatalf("partial step stats = %+v", w)
	}

	// Flush resets: the next window starts clean.
	if _, ok := c.Flush(); ok {
		t.Fatal("flush did not reset the window")
	}
}
