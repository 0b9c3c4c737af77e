package water

import (
	"time"

	"hydrocraft.sim/internal/sim/world"
)

// Config carries the driver knobs. Zero values fall back to defaults.
type Config struct {
	// TickInterval is the fixed logical timestep.
	TickInterval time.Duration
	// MaxTicksPerAdvance bounds how many logical ticks a single Advance
	// call may run, so frame hitches do not burst-apply spreading.
	MaxTicksPerAdvance int
	// UpdateBudget bounds how many due positions one tick resolves.
	UpdateBudget int
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second / 20
	}
	if c.MaxTicksPerAdvance <= 0 {
		c.MaxTicksPerAdvance = 2
	}
	if c.UpdateBudget <= 0 {
		c.UpdateBudget = 64
	}
}

// TickStats summarizes one logical tick.
type TickStats struct {
	Tick          uint64  `json:"tick"`
	Processed     int     `json:"processed"`
	ActiveCells   int     `json:"active_cells"`
	Sources       int     `json:"sources"`
	FallingCells  int     `json:"falling_cells"`
	PendingQueue  int     `json:"pending_queue"`
	ChunksFlushed int     `json:"chunks_flushed"`
	StepMs        float64 `json:"step_ms"`
}

// Simulation is the water flow engine: the tracked cell store, the
// deduplicated update schedule, the flow resolver and the fixed-step
// driver. All state is owned by the goroutine calling Advance; external
// block-change notifications are the only cross-thread input and are
// funneled through the bridge's pending list.
type Simulation struct {
	cfg    Config
	bridge *worldBridge
	cells  map[world.Vec3i]Cell
	queue  *updateQueue
	dirty  *dirtyTracker

	tick uint64
	acc  time.Duration

	// OnTick, if set, observes the stats of every completed tick.
	OnTick func(TickStats)
}

// New wires a simulation to a block store. The caller must route the
// store's change notifications into OnBlockChanged (for *world.ChunkStore,
// assign store.OnBlockChanged = sim.OnBlockChanged).
func New(store BlockAccess, cfg Config) *Simulation {
	cfg.applyDefaults()
	return &Simulation{
		cfg:    cfg,
		bridge: newWorldBridge(store),
		cells:  map[world.Vec3i]Cell{},
		queue:  newUpdateQueue(),
		dirty:  newDirtyTracker(),
	}
}

// SetChunkRebuildHook registers the mesh collaborator's rebuild callback,
// invoked once per dirty chunk at tick end.
func (s *Simulation) SetChunkRebuildHook(fn func(world.ChunkKey)) { s.dirty.onRebuild = fn }

// SetChunkSaveHook registers the persistence collaborator's dirty-for-save
// callback, invoked identically to the rebuild hook.
func (s *Simulation) SetChunkSaveHook(fn func(world.ChunkKey)) { s.dirty.onSave = fn }

func (s *Simulation) CurrentTick() uint64 { return s.tick }

// CellAt exposes the tracked state at pos, e.g. for fluid mesh generation.
func (s *Simulation) CellAt(pos world.Vec3i) (Cell, bool) {
	c, ok := s.cells[pos]
	return c, ok
}

func (s *Simulation) CellCount() int { return len(s.cells) }

// EachCell visits every tracked cell. Iteration order is unspecified.
// Must run on the simulation goroutine.
func (s *Simulation) EachCell(visit func(pos world.Vec3i, c Cell)) {
	for p, c := range s.cells {
		visit(p, c)
	}
}

// QueueUpdate schedules pos for evaluation after delayTicks. Out-of-bounds
// positions are silently ignored.
func (s *Simulation) QueueUpdate(pos world.Vec3i, delayTicks int) {
	if !s.bridge.inBounds(pos) {
		return
	}
	s.queue.enqueue(pos, s.tick, delayTicks)
}

// OnBlockChanged is the world's change-notification entry point. Safe from
// any goroutine; translation into schedule entries happens at the next
// tick boundary. The bridge's own writes never re-enter here.
func (s *Simulation) OnBlockChanged(pos world.Vec3i, prev, next uint16) {
	s.bridge.handleBlockChanged(pos, prev, next)
}

// Advance converts wall-clock time into logical ticks, running at most
// MaxTicksPerAdvance of them. Leftover time carries over to the next call.
func (s *Simulation) Advance(dt time.Duration) {
	if dt > 0 {
		s.acc += dt
	}
	for ran := 0; s.acc >= s.cfg.TickInterval && ran < s.cfg.MaxTicksPerAdvance; ran++ {
		s.acc -= s.cfg.TickInterval
		s.stepTick()
	}
}

// StepOnce advances exactly one logical tick regardless of wall time.
// Intended for tests and deterministic replays.
func (s *Simulation) StepOnce() TickStats {
	return s.stepTick()
}

func (s *Simulation) stepTick() TickStats {
	start := time.Now()
	s.tick++

	for _, ch := range s.bridge.drain() {
		s.applyExternalChange(ch)
	}

	due := s.queue.popDue(s.tick, s.cfg.UpdateBudget)
	for _, pos := range due {
		s.resolve(pos)
	}

	flushed := s.dirty.flush()

	stats := TickStats{
		Tick:          s.tick,
		Processed:     len(due),
		ActiveCells:   len(s.cells),
		PendingQueue:  s.queue.pendingCount(),
		ChunksFlushed: flushed,
		StepMs:        float64(time.Since(start).Microseconds()) / 1000.0,
	}
	for _, c := range s.cells {
		if c.Source {
			stats.Sources++
		}
		if c.Falling {
			stats.FallingCells++
		}
	}
	if s.OnTick != nil {
		s.OnTick(stats)
	}
	return stats
}

func (s *Simulation) applyExternalChange(ch blockChange) {
	if ch.next == world.Water {
		// Fresh water needs a fast first evaluation.
		s.QueueUpdate(ch.pos, DelayImmediate)
		return
	}
	// A block vanished or was replaced: re-check the position and its
	// whole 1-neighborhood at the settle cadence.
	s.QueueUpdate(ch.pos, DelaySettle)
	s.QueueUpdate(ch.pos.Above(), DelaySettle)
	s.QueueUpdate(ch.pos.Below(), DelaySettle)
	for _, n := range ch.pos.Horizontal() {
		s.QueueUpdate(n, DelaySettle)
	}
}

// OnChunkLoaded scans a freshly loaded chunk for water the store does not
// track yet. Only cells adjacent to open space are scheduled; interior
// fully-enclosed water stays dormant until disturbed.
func (s *Simulation) OnChunkLoaded(store *world.ChunkStore, key world.ChunkKey) {
	store.ScanChunk(key, func(pos world.Vec3i, b uint16) {
		if b != world.Water {
			return
		}
		if _, ok := s.cells[pos]; ok {
			return
		}
		s.cells[pos] = s.deriveCell(pos)
		if s.nearOpenSpace(pos) {
			s.QueueUpdate(pos, DelayImmediate)
		}
	})
}

// OnChunkUnloaded bulk-removes tracked cells and pending schedule entries
// inside the chunk's coordinate range.
func (s *Simulation) OnChunkUnloaded(key world.ChunkKey) {
	for pos := range s.cells {
		if world.KeyFor(pos) == key {
			delete(s.cells, pos)
		}
	}
	s.queue.purge(func(pos world.Vec3i) bool {
		return world.KeyFor(pos) == key
	})
}

func (s *Simulation) nearOpenSpace(pos world.Vec3i) bool {
	below := pos.Below()
	if s.bridge.inBounds(below) && world.Displaceable(s.bridge.blockAt(below)) {
		return true
	}
	for _, n := range pos.Horizontal() {
		if world.Displaceable(s.bridge.blockAt(n)) {
			return true
		}
	}
	return false
}
