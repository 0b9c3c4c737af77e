package waterdb

import (
	"bytes"
	"path/filepath"
	"testing"

	"hydrocraft.sim/internal/sim/water"
	"hydrocraft.sim/internal/sim/world"
)

func TestChunkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "water.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	blobA := bytes.Repeat([]byte{0xAB, 0x00}, 16*16*8)
	blobB := bytes.Repeat([]byte{0x05, 0x00}, 16*16*8)
	s.SaveChunk(world.ChunkKey{CX: 0, CZ: 0}, 10, blobA)
	s.SaveChunk(world.ChunkKey{CX: -2, CZ: 1}, 10, blobB)
	// Later save of the same key overwrites the first.
	s.SaveChunk(world.ChunkKey{CX: 0, CZ: 0}, 20, blobB)
	s.WriteTick(water.TickStats{Tick: 20, Processed: 7, ActiveCells: 3, StepMs: 0.1})

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got := map[world.ChunkKey][]byte{}
	err = s.LoadChunks(func(key world.ChunkKey, blob []byte) error {
		got[key] = blob
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d chunks, want 2", len(got))
	}
	if !bytes.Equal(got[world.ChunkKey{CX: 0, CZ: 0}], blobB) {
		t.Fatal("overwritten chunk returned stale blob")
	}
	if !bytes.Equal(got[world.ChunkKey{CX: -2, CZ: 1}], blobB) {
		t.Fatal("second chunk blob mismatch")
	}

	var ticks int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&ticks); err != nil {
		t.Fatal(err)
	}
	if ticks != 1 {
		t.Fatalf("ticks rows = %d, want 1", ticks)
	}
}

func TestWriteAfterCloseIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "water.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Must not panic or block.
	s.WriteTick(water.TickStats{Tick: 1})
	s.SaveChunk(world.ChunkKey{}, 1, []byte{0, 0})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("empty path accepted")
	}
}
