package water

import (
	"sync"

	"hydrocraft.sim/internal/sim/world"
)

// BlockAccess is the slice of the voxel world the simulation touches.
// *world.ChunkStore satisfies it.
type BlockAccess interface {
	GetBlock(pos world.Vec3i) uint16
	SetBlock(pos world.Vec3i, b uint16)
	InBounds(pos world.Vec3i) bool
	Loaded(pos world.Vec3i) bool
}

type blockChange struct {
	pos  world.Vec3i
	prev uint16
	next uint16
}

// worldBridge is the only path between the resolver and the block grid.
// Its own writes raise a suppression counter so the world's change
// callback does not feed the resolver's mutations back into the queue.
// External notifications may arrive from any goroutine; they are parked
// in a pending list and drained at the next tick boundary.
type worldBridge struct {
	store BlockAccess

	mu       sync.Mutex
	suppress int
	pending  []blockChange
}

func newWorldBridge(store BlockAccess) *worldBridge {
	return &worldBridge{store: store}
}

func (b *worldBridge) blockAt(pos world.Vec3i) uint16   { return b.store.GetBlock(pos) }
func (b *worldBridge) inBounds(pos world.Vec3i) bool    { return b.store.InBounds(pos) }
func (b *worldBridge) chunkLoaded(pos world.Vec3i) bool { return b.store.Loaded(pos) }

// setBlock writes through to the world with notifications suppressed.
func (b *worldBridge) setBlock(pos world.Vec3i, block uint16) {
	b.mu.Lock()
	b.suppress++
	b.mu.Unlock()

	b.store.SetBlock(pos, block)

	b.mu.Lock()
	b.suppress--
	b.mu.Unlock()
}

// handleBlockChanged is the world's change callback. Safe to call from any
// goroutine. Changes made by the bridge itself are dropped.
func (b *worldBridge) handleBlockChanged(pos world.Vec3i, prev, next uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.suppress > 0 {
		return
	}
	b.pending = append(b.pending, blockChange{pos: pos, prev: prev, next: next})
}

// drain hands the accumulated external notifications to the caller and
// resets the list. Called once at the start of each tick.
func (b *worldBridge) drain() []blockChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}
