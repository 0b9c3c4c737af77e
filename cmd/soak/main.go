package main

import (
	"flag"
	"log"
	"os"

	"hydrocraft.sim/internal/sim/tuning"
	"hydrocraft.sim/internal/sim/water"
	"hydrocraft.sim/internal/sim/world"
	"hydrocraft.sim/internal/telemetry"
)

// soak runs a canned water scenario headless for a fixed number of ticks
// and dumps windowed telemetry, for tuning and regression hunting.
func main() {
	var (
		scenario = flag.String("scenario", "waterfall", "scenario: waterfall | pool | converge | dam")
		ticks    = flag.Int("ticks", 2000, "logical ticks to run")
		outDir   = flag.String("out", "./soak-out", "telemetry output directory (empty: disabled)")
		window   = flag.Int("window", 0, "telemetry window size in ticks (0: tuning default)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[soak] ", log.LstdFlags)

	tune := tuning.Default()
	store := world.NewChunkStore(world.FlatGen{GroundY: tune.GroundY}, tune.WorldHeight)
	sim := water.New(store, water.Config{
		TickInterval:       tune.TickInterval(),
		MaxTicksPerAdvance: tune.MaxTicksPerAdvance,
		UpdateBudget:       tune.UpdateBudget,
	})
	store.OnBlockChanged = sim.OnBlockChanged
	store.OnChunkLoaded = func(key world.ChunkKey) { sim.OnChunkLoaded(store, key) }
	store.OnChunkUnloaded = sim.OnChunkUnloaded

	for cz := -2; cz <= 2; cz++ {
		for cx := -2; cx <= 2; cx++ {
			store.LoadChunk(world.ChunkKey{CX: cx, CZ: cz})
		}
	}

	ground := tune.GroundY
	switch *scenario {
	case "waterfall":
		// A spring high above flat ground.
		store.SetBlock(world.Vec3i{X: 0, Y: ground + 20, Z: 0}, world.Water)

	case "pool":
		// A spring at ground level spreading its full ring.
		store.SetBlock(world.Vec3i{X: 0, Y: ground, Z: 0}, world.Water)

	case "converge":
		// Two springs two blocks apart; the gap becomes a new source.
		store.SetBlock(world.Vec3i{X: -1, Y: ground, Z: 0}, world.Water)
		store.SetBlock(world.Vec3i{X: 1, Y: ground, Z: 0}, world.Water)

	case "dam":
		// A spring against a stone dam; the dam breaks mid-run.
		for z := -3; z <= 3; z++ {
			store.SetBlock(world.Vec3i{X: 2, Y: ground, Z: z}, world.Stone)
		}
		store.SetBlock(world.Vec3i{X: 0, Y: ground, Z: 0}, world.Water)

	default:
		logger.Fatalf("unknown scenario %q", *scenario)
	}

	out, err := telemetry.NewOutputManager(*outDir)
	if err != nil {
		logger.Fatalf("telemetry output: %v", err)
	}
	defer out.Close()

	windowTicks := tune.StatsWindowTicks
	if *window > 0 {
		windowTicks = *window
	}
	collector := telemetry.NewCollector(windowTicks)
	sim.OnTick = func(st water.TickStats) {
		if w, done := collector.Observe(st); done {
			if err := out.WriteWindow(w); err != nil {
				logger.Printf("write window: %v", err)
			}
		}
	}

	damBroken := false
	for i := 0; i < *ticks; i++ {
		if *scenario == "dam" && !damBroken && i == *ticks/2 {
			// Break one dam block through the external edit path.
			store.SetBlock(world.Vec3i{X: 2, Y: ground, Z: 0}, world.Air)
			damBroken = true
			logger.Printf("dam breached at tick %d", sim.CurrentTick())
		}
		sim.StepOnce()
	}

	if w, ok := collector.Flush(); ok {
		if err := out.WriteWindow(w); err != nil {
			logger.Printf("write window: %v", err)
		}
	}

	logger.Printf("scenario=%s ticks=%d cells=%d", *scenario, *ticks, sim.CellCount())
	sources, falling := 0, 0
	sim.EachCell(func(_ world.Vec3i, c water.Cell) {
		if c.Source {
			sources++
		}
		if c.Falling {
			falling++
		}
	})
	logger.Printf("sources=%d falling=%d", sources, falling)
}
