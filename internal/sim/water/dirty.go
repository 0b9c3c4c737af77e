package water

import (
	"sort"

	"hydrocraft.sim/internal/sim/world"
)

// dirtyTracker coalesces per-cell mutations into at most one rebuild and
// one save notification per chunk per tick. Flushed only at tick end.
type dirtyTracker struct {
	chunks map[world.ChunkKey]struct{}

	onRebuild func(world.ChunkKey)
	onSave    func(world.ChunkKey)
}

func newDirtyTracker() *dirtyTracker {
	return &dirtyTracker{chunks: map[world.ChunkKey]struct{}{}}
}

func (d *dirtyTracker) markDirty(pos world.Vec3i) {
	d.chunks[world.KeyFor(pos)] = struct{}{}
}

// flush notifies the hooks once per dirty chunk in deterministic order,
// then clears the set. Returns the number of chunks flushed.
func (d *dirtyTracker) flush() int {
	if len(d.chunks) == 0 {
		return 0
	}
	keys := make([]world.ChunkKey, 0, len(d.chunks))
	for k := range d.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	for _, k := range keys {
		if d.onRebuild != nil {
			d.onRebuild(k)
		}
		if d.onSave != nil {
			d.onSave(k)
		}
	}
	n := len(keys)
	d.chunks = map[world.ChunkKey]struct{}{}
	return n
}
