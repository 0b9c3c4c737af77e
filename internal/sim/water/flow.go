package water

import (
	"hydrocraft.sim/internal/sim/world"
)

// resolve runs one visit of the per-cell state machine. Side effects stay
// inside the 1-neighborhood of pos: at most one cell write for pos itself
// plus fall/spread writes below and at the 4 horizontal neighbors. Wider
// effects emerge from the reschedules, not from this pass.
func (s *Simulation) resolve(pos world.Vec3i) {
	if !s.bridge.inBounds(pos) {
		return
	}

	block := s.bridge.blockAt(pos)
	cell, tracked := s.cells[pos]

	// Reconcile with the world first. If the block is no longer water the
	// entry is stale (an external edit raced a pending schedule entry):
	// drop it and let the neighbors re-evaluate.
	if block != world.Water {
		if tracked {
			delete(s.cells, pos)
			s.dirty.markDirty(pos)
			s.rescheduleNeighbors(pos, DelaySettle)
		}
		return
	}

	// Water with no entry: discovered outside the placement path (worldgen,
	// chunk scan gaps). Derive a starting state and continue the visit.
	if !tracked {
		cell = s.deriveCell(pos)
		s.cells[pos] = cell
		s.dirty.markDirty(pos)
	}

	if cell.Source {
		s.resolveSource(pos)
		return
	}
	s.resolveFlowing(pos, cell)
}

// deriveCell picks the initial state for water that appeared without going
// through the fill path: mid-fall if it hangs under more water, otherwise
// a source (placed or generated standing water).
func (s *Simulation) deriveCell(pos world.Vec3i) Cell {
	above := pos.Above()
	below := pos.Below()
	if s.bridge.blockAt(above) == world.Water && s.openBelow(below) {
		return NewFalling(1)
	}
	return NewSource()
}

// resolveSource handles a visit to an infinite source. The cell itself is
// immutable; each visit only pushes water out: a falling cell below if
// there is room, and a fresh level-1 ring sideways.
func (s *Simulation) resolveSource(pos world.Vec3i) {
	below := pos.Below()
	if s.openBelow(below) {
		s.fill(below, NewFalling(1))
	}
	s.spread(pos, SourceLevel)
}

func (s *Simulation) resolveFlowing(pos world.Vec3i, cell Cell) {
	below := pos.Below()

	// Vertical movement wins over everything else. While there is open
	// space underneath the cell is (or becomes) falling and does not
	// spread or decay.
	if s.openBelow(below) {
		filled := s.fill(below, NewFalling(1))
		if filled && !cell.Falling {
			cell.Falling = true
			s.cells[pos] = cell
			s.dirty.markDirty(pos)
		}
		if cell.Falling || filled {
			// Keep watching for the landing transition.
			s.QueueUpdate(pos, DelaySettle)
			return
		}
	} else if cell.Falling {
		if s.bridge.blockAt(below) == world.Water {
			// Water below is the fall continuing, not a landing surface:
			// the cell stays mid-column. It dries once neither the water
			// above nor a horizontal flow feeds it; otherwise the below
			// cell's reschedules cover the eventual landing re-check.
			if _, sustained := s.targetLevel(pos); !sustained {
				delete(s.cells, pos)
				s.bridge.setBlock(pos, world.Air)
				s.dirty.markDirty(pos)
				s.rescheduleNeighbors(pos, DelaySettle)
			}
			return
		}
		// Landed on solid support: the flow count restarts at a fresh
		// level rather than inheriting whatever the fall carried.
		cell.Falling = false
		cell.Level = 1
		s.cells[pos] = cell
		s.dirty.markDirty(pos)
	}

	// Two source-strength flows converging over solid support turn into a
	// new source.
	if s.sourceNeighborCount(pos) >= 2 && world.Solid(s.bridge.blockAt(below)) {
		s.cells[pos] = NewSource()
		s.dirty.markDirty(pos)
		s.resolveSource(pos)
		return
	}

	target, sustained := s.targetLevel(pos)
	if !sustained {
		// Nothing feeds this cell anymore; it dries up.
		delete(s.cells, pos)
		s.bridge.setBlock(pos, world.Air)
		s.dirty.markDirty(pos)
		s.rescheduleNeighbors(pos, DelaySettle)
		return
	}
	if target != cell.Level {
		cell.Level = target
		s.cells[pos] = cell
		s.dirty.markDirty(pos)
		// Downstream cells must re-check against the new level, and this
		// cell may keep decaying.
		s.QueueUpdate(pos, DelaySettle)
		s.rescheduleNeighbors(pos, DelaySettle)
	}

	s.spread(pos, cell.Level)
}

// targetLevel computes the level pos can sustain from its feeds: the four
// horizontal neighbors plus an undiminished feed from water directly
// above. Untracked water blocks count as level-0 source-equivalents (the
// entry simply has not been created yet). Falling neighbors do not feed
// sideways. Returns sustained=false when no feed keeps the cell alive.
func (s *Simulation) targetLevel(pos world.Vec3i) (uint8, bool) {
	const none = MaxLevel + 1
	feed := uint8(none)

	for _, n := range pos.Horizontal() {
		if s.bridge.blockAt(n) != world.Water {
			continue
		}
		nc, ok := s.cells[n]
		if !ok {
			feed = 0
			continue
		}
		if nc.Falling {
			continue
		}
		if nc.Level < feed {
			feed = nc.Level
		}
	}
	if s.bridge.blockAt(pos.Above()) == world.Water {
		feed = 0
	}

	if feed == none || feed >= MaxLevel {
		return 0, false
	}
	return feed + 1, true
}

func (s *Simulation) sourceNeighborCount(pos world.Vec3i) int {
	n := 0
	for _, p := range pos.Horizontal() {
		if s.bridge.blockAt(p) != world.Water {
			continue
		}
		c, ok := s.cells[p]
		if !ok || c.Source {
			n++
		}
	}
	return n
}

// spread attempts the four horizontal fills one level weaker than level.
// Callers guarantee the cell at pos is not falling.
func (s *Simulation) spread(pos world.Vec3i, level uint8) {
	next := level + 1
	if next > MaxLevel {
		return
	}
	cand := NewFlowing(next)
	for _, n := range pos.Horizontal() {
		s.fill(n, cand)
	}
}

// fill attempts to put cand at pos. It succeeds against displaceable world
// blocks (air, and fragile blocks which are destroyed by the write) and
// against tracked water that cand may replace. Sources are never
// overwritten. A success writes the cell store, mutates the world block if
// needed (suppressed), reschedules pos and marks its chunk dirty.
func (s *Simulation) fill(pos world.Vec3i, cand Cell) bool {
	if !s.bridge.inBounds(pos) {
		return false
	}
	block := s.bridge.blockAt(pos)

	if block == world.Water {
		existing, ok := s.cells[pos]
		if !ok {
			// Untracked water is a source-equivalent; never displaced.
			return false
		}
		if !cand.CanReplace(existing) {
			return false
		}
		if existing.Falling && !cand.Falling && !world.Solid(s.bridge.blockAt(pos.Below())) {
			// A mid-air faller keeps falling; only cells over solid
			// support take a settled overwrite.
			return false
		}
		s.cells[pos] = cand
		s.QueueUpdate(pos, DelaySettle)
		s.dirty.markDirty(pos)
		return true
	}

	if !world.Displaceable(block) {
		return false
	}
	if !s.bridge.chunkLoaded(pos) {
		return false
	}
	s.cells[pos] = cand
	s.bridge.setBlock(pos, world.Water)
	s.QueueUpdate(pos, DelaySettle)
	s.dirty.markDirty(pos)
	return true
}

// openBelow reports whether below is inside the world and can accept
// falling water.
func (s *Simulation) openBelow(below world.Vec3i) bool {
	if !s.bridge.inBounds(below) {
		return false
	}
	return world.Displaceable(s.bridge.blockAt(below))
}

func (s *Simulation) rescheduleNeighbors(pos world.Vec3i, delay int) {
	s.QueueUpdate(pos.Above(), delay)
	s.QueueUpdate(pos.Below(), delay)
	for _, n := range pos.Horizontal() {
		s.QueueUpdate(n, delay)
	}
}
