package waterdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"hydrocraft.sim/internal/sim/water"
	"hydrocraft.sim/internal/sim/world"
)

// Store indexes tick stats and persists dirty chunk snapshots in sqlite.
// Writes go through a single writer goroutine so the simulation thread
// never blocks on the database.
type Store struct {
	db *sql.DB

	enc *zstd.Encoder
	dec *zstd.Decoder

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqChunk
)

type req struct {
	kind reqKind

	tick  water.TickStats
	chunk chunkRow
}

type chunkRow struct {
	Key  world.ChunkKey
	Tick uint64
	Blob []byte
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:  db,
		enc: enc,
		dec: dec,
		// High buffer: floods mark many chunks dirty in bursts.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			processed INTEGER NOT NULL,
			active_cells INTEGER NOT NULL,
			sources INTEGER NOT NULL,
			falling INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			chunks_flushed INTEGER NOT NULL,
			step_ms REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			blob BLOB NOT NULL,
			PRIMARY KEY (cx, cz)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_tick ON chunks(tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		s.enc.Close()
		s.dec.Close()
		err = s.db.Close()
	})
	return err
}

// WriteTick enqueues a tick stats row. Never blocks; rows are dropped if
// the writer falls behind (the JSONL log remains the source of truth).
func (s *Store) WriteTick(st water.TickStats) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTick, tick: st}:
	default:
	}
}

// SaveChunk enqueues a compressed snapshot of the chunk's block array.
// Repeated saves of the same key overwrite the previous row.
func (s *Store) SaveChunk(key world.ChunkKey, tick uint64, blob []byte) {
	if s == nil || s.closed.Load() {
		return
	}
	compressed := s.enc.EncodeAll(blob, nil)
	select {
	case s.ch <- req{kind: reqChunk, chunk: chunkRow{Key: key, Tick: tick, Blob: compressed}}:
	default:
	}
}

// LoadChunks streams every persisted chunk blob to the visitor, for
// warm-starting a world from the last run.
func (s *Store) LoadChunks(visit func(key world.ChunkKey, blob []byte) error) error {
	rows, err := s.db.Query(`SELECT cx, cz, blob FROM chunks ORDER BY cx, cz`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cx, cz int
		var compressed []byte
		if err := rows.Scan(&cx, &cz, &compressed); err != nil {
			return err
		}
		blob, err := s.dec.DecodeAll(compressed, nil)
		if err != nil {
			return fmt.Errorf("chunk (%d,%d): %w", cx, cz, err)
		}
		if err := visit(world.ChunkKey{CX: cx, CZ: cz}, blob); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,processed,active_cells,sources,falling,pending,chunks_flushed,step_ms) VALUES(?,?,?,?,?,?,?,?)`)
	insertChunk, _ := s.db.Prepare(`INSERT OR REPLACE INTO chunks(cx,cz,tick,blob) VALUES(?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertChunk != nil {
			_ = insertChunk.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			if insertTick == nil {
				continue
			}
			t := r.tick
			if _, err := tx.Stmt(insertTick).Exec(
				int64(t.Tick),
				t.Processed,
				t.ActiveCells,
				t.Sources,
				t.FallingCells,
				t.PendingQueue,
				t.ChunksFlushed,
				t.StepMs,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqChunk:
			if insertChunk == nil {
				continue
			}
			c := r.chunk
			if _, err := tx.Stmt(insertChunk).Exec(c.Key.CX, c.Key.CZ, int64(c.Tick), c.Blob); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
