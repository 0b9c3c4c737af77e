package telemetry

import "hydrocraft.sim/internal/sim/water"

// WindowStats aggregates tick stats over a fixed window of ticks.
// CSV tags are consumed by the output writer.
type WindowStats struct {
	WindowEndTick uint64  `csv:"window_end_tick"`
	Ticks         int     `csv:"ticks"`
	Processed     int     `csv:"processed"`
	ActiveCells   int     `csv:"active_cells"`
	Sources       int     `csv:"sources"`
	FallingCells  int     `csv:"falling_cells"`
	PendingQueue  int     `csv:"pending_queue"`
	ChunksFlushed int     `csv:"chunks_flushed"`
	MeanStepMs    float64 `csv:"mean_step_ms"`
	MaxStepMs     float64 `csv:"max_step_ms"`
}

// Collector folds per-tick stats into fixed-size windows. Gauges
// (cells, queue depth) report the end-of-window value; counters
// (processed, flushes) are summed.
type Collector struct {
	windowTicks int

	cur     WindowStats
	sumStep float64
}

func NewCollector(windowTicks int) *Collector {
	if windowTicks <= 0 {
		windowTicks = 100
	}
	return &Collector{windowTicks: windowTicks}
}

// Observe folds one tick in. When the window fills it returns the
// completed WindowStats and true, then starts a new window.
func (c *Collector) Observe(st water.TickStats) (WindowStats, bool) {
	c.cur.Ticks++
	c.cur.WindowEndTick = st.Tick
	c.cur.Processed += st.Processed
	c.cur.ChunksFlushed += st.ChunksFlushed
	c.cur.ActiveCells = st.ActiveCells
	c.cur.Sources = st.Sources
	c.cur.FallingCells = st.FallingCells
	c.cur.PendingQueue = st.PendingQueue
	c.sumStep += st.StepMs
	if st.StepMs > c.cur.MaxStepMs {
		c.cur.MaxStepMs = st.StepMs
	}

	if c.cur.Ticks < c.windowTicks {
		return WindowStats{}, false
	}
	done := c.cur
	done.MeanStepMs = c.sumStep / float64(done.Ticks)
	c.cur = WindowStats{}
	c.sumStep = 0
	return done, true
}

// Flush returns the partial window in progress, if any.
func (c *Collector) Flush() (WindowStats, bool) {
	if c.cur.Ticks == 0 {
		return WindowStats{}, false
	}
	done := c.cur
	done.MeanStepMs = c.sumStep / float64(done.Ticks)
	c.cur = WindowStats{}
	c.sumStep = 0
	return done, true
}
