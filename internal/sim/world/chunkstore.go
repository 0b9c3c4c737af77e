package world

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

const ChunkSize = 16

type ChunkKey struct {
	CX int
	CZ int
}

// Chunk holds a 16x16 column footprint of blocks, height blocks tall.
type Chunk struct {
	CX, CZ int
	Height int
	Blocks []uint16 // len = 16*16*Height, x fastest, then z, then y

	dirty bool
	hash  [32]byte
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		// Hash the raw uint16 slice deterministically.
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// Blob encodes the block array as little-endian uint16s for persistence.
func (c *Chunk) Blob() []byte {
	out := make([]byte, 2*len(c.Blocks))
	for i, v := range c.Blocks {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

func (c *Chunk) SetBlob(b []byte) error {
	if len(b) != 2*len(c.Blocks) {
		return fmt.Errorf("chunk blob: got %d bytes, want %d", len(b), 2*len(c.Blocks))
	}
	for i := range c.Blocks {
		c.Blocks[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	c.dirty = true
	return nil
}

// ColumnGen generates the terrain column at world coordinates (x, z).
// The col slice has one entry per y, bottom up, prefilled with Air.
type ColumnGen interface {
	Column(x, z int, col []uint16)
}

// FlatGen is the demo terrain: stone up to GroundY-1, grass at GroundY-1,
// air above. Optional water features are stamped by the callers (cmd/soak
// scenarios), not generated here.
type FlatGen struct {
	GroundY int
}

func (g FlatGen) Column(x, z int, col []uint16) {
	for y := 0; y < len(col) && y < g.GroundY; y++ {
		if y == g.GroundY-1 {
			col[y] = Grass
		} else {
			col[y] = Stone
		}
	}
}

// ChunkStore owns the block grid. Accessed only from the simulation
// goroutine; the change callback fires synchronously on every effective
// block mutation, including the water simulation's own writes.
type ChunkStore struct {
	gen    ColumnGen
	height int

	chunks map[ChunkKey]*Chunk

	// OnBlockChanged, if set, observes every effective SetBlock.
	OnBlockChanged func(pos Vec3i, prev, next uint16)
	// OnChunkLoaded fires after a chunk is generated or installed.
	OnChunkLoaded func(key ChunkKey)
	// OnChunkUnloaded fires after a chunk is dropped from the store.
	OnChunkUnloaded func(key ChunkKey)
}

func NewChunkStore(gen ColumnGen, height int) *ChunkStore {
	if height <= 0 {
		height = 64
	}
	return &ChunkStore{
		gen:    gen,
		height: height,
		chunks: map[ChunkKey]*Chunk{},
	}
}

func (s *ChunkStore) Height() int { return s.height }

func (s *ChunkStore) InBounds(pos Vec3i) bool {
	return pos.Y >= 0 && pos.Y < s.height
}

func KeyFor(pos Vec3i) ChunkKey {
	return ChunkKey{CX: floorDiv(pos.X, ChunkSize), CZ: floorDiv(pos.Z, ChunkSize)}
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// GetBlock treats out-of-bounds and unloaded positions as Air.
func (s *ChunkStore) GetBlock(pos Vec3i) uint16 {
	if !s.InBounds(pos) {
		return Air
	}
	ch, ok := s.chunks[KeyFor(pos)]
	if !ok {
		return Air
	}
	return ch.Get(mod(pos.X, ChunkSize), pos.Y, mod(pos.Z, ChunkSize))
}

// Loaded reports whether the chunk containing pos is resident.
func (s *ChunkStore) Loaded(pos Vec3i) bool {
	_, ok := s.chunks[KeyFor(pos)]
	return ok
}

// SetBlock is a no-op out of bounds or in unloaded chunks. An effective
// change fires the OnBlockChanged callback.
func (s *ChunkStore) SetBlock(pos Vec3i, b uint16) {
	if !s.InBounds(pos) {
		return
	}
	ch, ok := s.chunks[KeyFor(pos)]
	if !ok {
		return
	}
	lx, lz := mod(pos.X, ChunkSize), mod(pos.Z, ChunkSize)
	prev := ch.Get(lx, pos.Y, lz)
	if prev == b {
		return
	}
	ch.Set(lx, pos.Y, lz, b)
	if s.OnBlockChanged != nil {
		s.OnBlockChanged(pos, prev, b)
	}
}

// LoadChunk generates (or returns) the chunk at key and fires the load hook
// on first residency.
func (s *ChunkStore) LoadChunk(key ChunkKey) *Chunk {
	if ch, ok := s.chunks[key]; ok {
		return ch
	}
	ch := s.generateChunk(key)
	s.chunks[key] = ch
	if s.OnChunkLoaded != nil {
		s.OnChunkLoaded(key)
	}
	return ch
}

// InstallChunk replaces generation with a persisted block blob (warm start).
func (s *ChunkStore) InstallChunk(key ChunkKey, blob []byte) error {
	ch := &Chunk{
		CX:     key.CX,
		CZ:     key.CZ,
		Height: s.height,
		Blocks: make([]uint16, ChunkSize*ChunkSize*s.height),
	}
	if err := ch.SetBlob(blob); err != nil {
		return err
	}
	_ = ch.Digest()
	s.chunks[key] = ch
	if s.OnChunkLoaded != nil {
		s.OnChunkLoaded(key)
	}
	return nil
}

func (s *ChunkStore) UnloadChunk(key ChunkKey) {
	if _, ok := s.chunks[key]; !ok {
		return
	}
	delete(s.chunks, key)
	if s.OnChunkUnloaded != nil {
		s.OnChunkUnloaded(key)
	}
}

// ChunkAt returns the resident chunk at key, or nil.
func (s *ChunkStore) ChunkAt(key ChunkKey) *Chunk {
	return s.chunks[key]
}

// ScanChunk visits every block in a resident chunk in deterministic order
// (y outer, then z, then x), passing world coordinates.
func (s *ChunkStore) ScanChunk(key ChunkKey, visit func(pos Vec3i, b uint16)) {
	ch, ok := s.chunks[key]
	if !ok {
		return
	}
	for y := 0; y < s.height; y++ {
		for z := 0; z < ChunkSize; z++ {
			for x := 0; x < ChunkSize; x++ {
				b := ch.Get(x, y, z)
				visit(Vec3i{X: key.CX*ChunkSize + x, Y: y, Z: key.CZ*ChunkSize + z}, b)
			}
		}
	}
}

func (s *ChunkStore) generateChunk(key ChunkKey) *Chunk {
	ch := &Chunk{
		CX:     key.CX,
		CZ:     key.CZ,
		Height: s.height,
		Blocks: make([]uint16, ChunkSize*ChunkSize*s.height),
	}
	if s.gen != nil {
		col := make([]uint16, s.height)
		for z := 0; z < ChunkSize; z++ {
			for x := 0; x < ChunkSize; x++ {
				for i := range col {
					col[i] = Air
				}
				s.gen.Column(key.CX*ChunkSize+x, key.CZ*ChunkSize+z, col)
				for y, b := range col {
					ch.Blocks[ch.index(x, y, z)] = b
				}
			}
		}
	}
	ch.dirty = true
	_ = ch.Digest() // initialize digest
	return ch
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
