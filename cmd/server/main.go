package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hydrocraft.sim/internal/observerproto"
	persistlog "hydrocraft.sim/internal/persistence/log"
	"hydrocraft.sim/internal/persistence/waterdb"
	"hydrocraft.sim/internal/sim/tuning"
	"hydrocraft.sim/internal/sim/water"
	"hydrocraft.sim/internal/sim/world"
	"hydrocraft.sim/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "http listen address (observer endpoints)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (empty: defaults)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick/chunk index")
		springs    = flag.Int("springs", 0, "number of demo springs to place near the origin on a fresh world")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	store := world.NewChunkStore(world.FlatGen{GroundY: tune.GroundY}, tune.WorldHeight)
	sim := water.New(store, water.Config{
		TickInterval:       tune.TickInterval(),
		MaxTicksPerAdvance: tune.MaxTicksPerAdvance,
		UpdateBudget:       tune.UpdateBudget,
	})

	// World -> simulation wiring. The change callback is the only input
	// that may arrive off the loop goroutine; the sim parks it until the
	// next tick.
	store.OnBlockChanged = sim.OnBlockChanged
	store.OnChunkLoaded = func(key world.ChunkKey) { sim.OnChunkLoaded(store, key) }
	store.OnChunkUnloaded = sim.OnChunkUnloaded

	var db *waterdb.Store
	if !*disableDB {
		db, err = waterdb.Open(filepath.Join(*dataDir, "water.sqlite"))
		if err != nil {
			logger.Fatalf("open waterdb: %v", err)
		}
		defer db.Close()

		// Warm start: chunks persisted by the previous run come back with
		// their water; the chunk-load scan re-tracks the cells.
		restored := 0
		err = db.LoadChunks(func(key world.ChunkKey, blob []byte) error {
			if err := store.InstallChunk(key, blob); err != nil {
				return err
			}
			restored++
			return nil
		})
		if err != nil {
			logger.Fatalf("restore chunks: %v", err)
		}
		if restored > 0 {
			logger.Printf("restored %d chunks from %s", restored, *dataDir)
		}
	}

	for cz := -tune.PreloadChunkR; cz <= tune.PreloadChunkR; cz++ {
		for cx := -tune.PreloadChunkR; cx <= tune.PreloadChunkR; cx++ {
			store.LoadChunk(world.ChunkKey{CX: cx, CZ: cz})
		}
	}

	// Demo springs go through the external edit path so the simulation
	// discovers them like any player placement.
	for i := 0; i < *springs; i++ {
		pos := world.Vec3i{X: i * 5, Y: tune.GroundY + 4, Z: 0}
		store.SetBlock(pos, world.Water)
		logger.Printf("spring at (%d,%d,%d)", pos.X, pos.Y, pos.Z)
	}

	tickLog := persistlog.NewTickLogger(*dataDir)
	defer tickLog.Close()

	obs := observer.NewServer(store, sim, observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		WorldParams: observerproto.WorldParams{
			TickRateHz: tune.TickRateHz,
			ChunkSize:  [3]int{world.ChunkSize, world.ChunkSize, tune.WorldHeight},
			Height:     tune.WorldHeight,
			GroundY:    tune.GroundY,
		},
		BlockPalette: world.BlockPalette(),
	}, logger)

	// Per-tick fanout: rebuild hook feeds the observer frame, save hook
	// feeds the periodic chunk snapshot.
	var dirtyThisTick []world.ChunkKey
	saveSet := map[world.ChunkKey]struct{}{}
	sim.SetChunkRebuildHook(func(key world.ChunkKey) {
		dirtyThisTick = append(dirtyThisTick, key)
	})
	sim.SetChunkSaveHook(func(key world.ChunkKey) {
		saveSet[key] = struct{}{}
	})
	sim.OnTick = func(st water.TickStats) {
		_ = tickLog.WriteTick(st)
		if db != nil {
			db.WriteTick(st)
			if st.Tick%uint64(tune.SnapshotEveryTicks) == 0 && len(saveSet) > 0 {
				for key := range saveSet {
					if ch := store.ChunkAt(key); ch != nil {
						db.SaveChunk(key, st.Tick, ch.Blob())
					}
				}
				saveSet = map[world.ChunkKey]struct{}{}
			}
		}
		obs.Publish(st, dirtyThisTick)
		dirtyThisTick = dirtyThisTick[:0]
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatalf("listen %s: %v", *addr, err)
	}
	httpSrv := &http.Server{Handler: mux}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Printf("http: %v", err)
		}
	}()
	logger.Printf("observer endpoints on http://%s", ln.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("running at %d Hz (height=%d ground=%d)", tune.TickRateHz, tune.WorldHeight, tune.GroundY)

	// Drive the fixed-step accumulator off a faster wall-clock ticker so a
	// late wakeup never skips more logical ticks than the cap allows.
	ticker := time.NewTicker(tune.TickInterval() / 4)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			logger.Printf("shutting down at tick %d", sim.CurrentTick())
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = httpSrv.Shutdown(shutCtx)
			cancel()
			return
		case now := <-ticker.C:
			sim.Advance(now.Sub(last))
			last = now
		}
	}
}
