package water

import (
	"testing"

	"hydrocraft.sim/internal/sim/world"
)

const testGroundY = 4 // solid terrain fills y=0..3, first open layer is y=4

func newTestWorld(t *testing.T) (*world.ChunkStore, *Simulation) {
	t.Helper()
	store := world.NewChunkStore(world.FlatGen{GroundY: testGroundY}, 32)
	sim := New(store, Config{UpdateBudget: 256})
	store.OnBlockChanged = sim.OnBlockChanged
	store.OnChunkLoaded = func(key world.ChunkKey) { sim.OnChunkLoaded(store, key) }
	store.OnChunkUnloaded = sim.OnChunkUnloaded
	for cz := -1; cz <= 1; cz++ {
		for cx := -1; cx <= 1; cx++ {
			store.LoadChunk(world.ChunkKey{CX: cx, CZ: cz})
		}
	}
	return store, sim
}

func runTicks(sim *Simulation, n int) {
	for i := 0; i < n; i++ {
		sim.StepOnce()
	}
}

func TestPoolFillAndStop(t *testing.T) {
	store, sim := newTestWorld(t)
	src := world.Vec3i{X: 0, Y: testGroundY, Z: 0}
	store.SetBlock(src, world.Water)

	runTicks(sim, 300)

	c, ok := sim.CellAt(src)
	if !ok || !c.Source || c.Level != SourceLevel {
		t.Fatalf("source cell = %+v (ok=%v)", c, ok)
	}

	// Along +X the seven reachable cells sit at levels 1..7.
	for d := 1; d <= int(MaxLevel); d++ {
		p := world.Vec3i{X: d, Y: testGroundY, Z: 0}
		c, ok := sim.CellAt(p)
		if !ok {
			t.Fatalf("no cell at distance %d", d)
		}
		if c.Source || c.Falling || c.Level != uint8(d) {
			t.Fatalf("cell at distance %d = %+v", d, c)
		}
		if store.GetBlock(p) != world.Water {
			t.Fatalf("world block at distance %d not water", d)
		}
	}

	// The 8th cell is never filled: the max-level clamp stops the flow.
	beyond := world.Vec3i{X: int(MaxLevel) + 1, Y: testGroundY, Z: 0}
	if _, ok := sim.CellAt(beyond); ok {
		t.Fatal("flow crossed the max-level boundary")
	}
	if store.GetBlock(beyond) != world.Air {
		t.Fatal("world block beyond the max level is not air")
	}

	// Every pool cell's level equals its flow distance from the source.
	sim.EachCell(func(p world.Vec3i, c Cell) {
		if c.Source {
			return
		}
		d := world.Manhattan(p, src)
		if p.Y != testGroundY || int(c.Level) != d {
			t.Fatalf("cell %v level %d, want %d", p, c.Level, d)
		}
	})
}

func TestWaterfallColumn(t *testing.T) {
	store, sim := newTestWorld(t)
	top := world.Vec3i{X: 0, Y: 14, Z: 0}

	// Wall off the spring so the column is the only outlet.
	for _, n := range top.Horizontal() {
		store.SetBlock(n, world.Stone)
	}
	store.SetBlock(top, world.Water)

	runTicks(sim, 400)

	c, ok := sim.CellAt(top)
	if !ok || !c.Source {
		t.Fatalf("spring cell = %+v (ok=%v)", c, ok)
	}

	// Mid-air column: all falling at level 1, no sideways spill.
	for y := testGroundY + 1; y < top.Y; y++ {
		p := world.Vec3i{X: 0, Y: y, Z: 0}
		c, ok := sim.CellAt(p)
		if !ok {
			t.Fatalf("column gap at y=%d", y)
		}
		if !c.Falling || c.Level != 1 {
			t.Fatalf("column cell at y=%d = %+v", y, c)
		}
		for _, n := range p.Horizontal() {
			if _, ok := sim.CellAt(n); ok {
				t.Fatalf("falling cell at y=%d spread horizontally to %v", y, n)
			}
		}
	}

	// The landing restarts the flow count at level 1, settled.
	landed, ok := sim.CellAt(world.Vec3i{X: 0, Y: testGroundY, Z: 0})
	if !ok || landed.Falling || landed.Level != 1 {
		t.Fatalf("landed cell = %+v (ok=%v)", landed, ok)
	}

	// Across the whole mid-air span, nothing may have settled: water below
	// a falling cell is not a landing surface.
	midAirLanded := 0
	sim.EachCell(func(p world.Vec3i, c Cell) {
		if p.Y > testGroundY && !c.Source && !c.Falling {
			midAirLanded++
		}
	})
	if midAirLanded != 0 {
		t.Fatalf("%d mid-air cells settled", midAirLanded)
	}
}

func TestWaterfallDrainsAfterSpringRemoved(t *testing.T) {
	store, sim := newTestWorld(t)
	top := world.Vec3i{X: 0, Y: 14, Z: 0}
	for _, n := range top.Horizontal() {
		store.SetBlock(n, world.Stone)
	}
	store.SetBlock(top, world.Water)
	runTicks(sim, 400)

	if _, ok := sim.CellAt(world.Vec3i{X: 0, Y: 10, Z: 0}); !ok {
		t.Fatal("column never formed")
	}

	// Break the spring: the column dries top-down, then the pool decays.
	store.SetBlock(top, world.Air)
	runTicks(sim, 600)

	if n := sim.CellCount(); n != 0 {
		t.Fatalf("%d cells left after the spring was removed", n)
	}
	for y := testGroundY; y < top.Y; y++ {
		p := world.Vec3i{X: 0, Y: y, Z: 0}
		if store.GetBlock(p) != world.Air {
			t.Fatalf("water block left at %v", p)
		}
	}
}

func TestSourceCreationByCollision(t *testing.T) {
	store, sim := newTestWorld(t)
	left := world.Vec3i{X: -1, Y: testGroundY, Z: 0}
	right := world.Vec3i{X: 1, Y: testGroundY, Z: 0}
	mid := world.Vec3i{X: 0, Y: testGroundY, Z: 0}

	store.SetBlock(left, world.Water)
	store.SetBlock(right, world.Water)

	runTicks(sim, 100)

	c, ok := sim.CellAt(mid)
	if !ok {
		t.Fatal("gap between springs never filled")
	}
	if !c.Source {
		t.Fatalf("converging flows did not form a source: %+v", c)
	}
}

func TestSingleFlowDoesNotCreateSource(t *testing.T) {
	store, sim := newTestWorld(t)
	store.SetBlock(world.Vec3i{X: -1, Y: testGroundY, Z: 0}, world.Water)

	runTicks(sim, 200)

	c, ok := sim.CellAt(world.Vec3i{X: 0, Y: testGroundY, Z: 0})
	if !ok {
		t.Fatal("flow never reached the neighbor cell")
	}
	if c.Source {
		t.Fatalf("single flow must not create a source: %+v", c)
	}
}

func TestNoSourcePromotionOverOpenSpace(t *testing.T) {
	store, sim := newTestWorld(t)
	// Two springs on a stone shelf with a hole between them: the gap has
	// no solid support, so the collision rule must not fire there.
	y := 10
	left := world.Vec3i{X: -1, Y: y, Z: 0}
	right := world.Vec3i{X: 1, Y: y, Z: 0}
	mid := world.Vec3i{X: 0, Y: y, Z: 0}
	store.SetBlock(world.Vec3i{X: -1, Y: y - 1, Z: 0}, world.Stone)
	store.SetBlock(world.Vec3i{X: 1, Y: y - 1, Z: 0}, world.Stone)
	// Keep the springs from spilling elsewhere.
	for _, p := range []world.Vec3i{left, right} {
		for _, n := range p.Horizontal() {
			if n != mid {
				store.SetBlock(n, world.Stone)
			}
		}
	}
	store.SetBlock(left, world.Water)
	store.SetBlock(right, world.Water)

	runTicks(sim, 200)

	c, ok := sim.CellAt(mid)
	if !ok {
		t.Fatal("gap cell dried despite two adjacent springs")
	}
	if c.Source {
		t.Fatalf("source formed over open space: %+v", c)
	}
	if !c.Falling {
		t.Fatalf("unsupported gap cell is not falling: %+v", c)
	}
}

func TestObstructionRemovalExtendsFlow(t *testing.T) {
	store, sim := newTestWorld(t)
	src := world.Vec3i{X: 0, Y: testGroundY, Z: 0}
	wall := world.Vec3i{X: 1, Y: testGroundY, Z: 0}

	store.SetBlock(wall, world.Stone)
	store.SetBlock(src, world.Water)
	runTicks(sim, 150)

	if _, ok := sim.CellAt(wall); ok {
		t.Fatal("water flowed into a solid block")
	}

	// Break the wall through the normal edit path; no rescan.
	store.SetBlock(wall, world.Air)
	runTicks(sim, 150)

	c, ok := sim.CellAt(wall)
	if !ok || c.Level != 1 {
		t.Fatalf("flow did not extend past the removed block: %+v (ok=%v)", c, ok)
	}
}

func TestFragileBlockIsDisplaced(t *testing.T) {
	store, sim := newTestWorld(t)
	grass := world.Vec3i{X: 1, Y: testGroundY, Z: 0}
	store.SetBlock(grass, world.TallGrass)
	store.SetBlock(world.Vec3i{X: 0, Y: testGroundY, Z: 0}, world.Water)

	runTicks(sim, 100)

	if store.GetBlock(grass) != world.Water {
		t.Fatal("tall grass was not displaced by the flow")
	}
	if c, ok := sim.CellAt(grass); !ok || c.Level != 1 {
		t.Fatalf("cell over displaced grass = %+v (ok=%v)", c, ok)
	}
}

func TestDrainAfterSourceRemoved(t *testing.T) {
	store, sim := newTestWorld(t)
	src := world.Vec3i{X: 0, Y: testGroundY, Z: 0}
	store.SetBlock(src, world.Water)
	runTicks(sim, 300)

	sample := world.Vec3i{X: 3, Y: testGroundY, Z: 0}
	if _, ok := sim.CellAt(sample); !ok {
		t.Fatal("pool did not form")
	}

	// Break the source block; levels may only climb until removal.
	store.SetBlock(src, world.Air)
	last := uint8(0)
	if c, ok := sim.CellAt(sample); ok {
		last = c.Level
	}
	for i := 0; i < 600; i++ {
		sim.StepOnce()
		c, ok := sim.CellAt(sample)
		if !ok {
			break
		}
		if c.Level < last {
			t.Fatalf("cell at %v strengthened spontaneously: %d -> %d", sample, last, c.Level)
		}
		last = c.Level
	}

	if n := sim.CellCount(); n != 0 {
		t.Fatalf("%d cells left after drain", n)
	}
	if store.GetBlock(sample) != world.Air {
		t.Fatal("world still holds water after drain")
	}
}

func TestSourceInvariance(t *testing.T) {
	store, sim := newTestWorld(t)
	src := world.Vec3i{X: 0, Y: testGroundY, Z: 0}
	store.SetBlock(src, world.Water)

	for i := 0; i < 500; i++ {
		sim.StepOnce()
		if c, ok := sim.CellAt(src); ok {
			if !c.Source || c.Level != SourceLevel || c.Falling {
				t.Fatalf("source mutated at tick %d: %+v", sim.CurrentTick(), c)
			}
		}
	}
	if _, ok := sim.CellAt(src); !ok {
		t.Fatal("source cell disappeared without a world edit")
	}
}
