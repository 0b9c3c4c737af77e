package observerproto

import "hydrocraft.sim/internal/sim/water"

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ChunkRadius     int    `json:"chunk_radius"`
	MaxChunks       int    `json:"max_chunks"`

	// IncludeCells requests per-cell water states inside dirty chunks
	// (level, falling, source) for fluid surface rendering.
	IncludeCells bool `json:"include_cells,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
}

type WorldParams struct {
	TickRateHz int    `json:"tick_rate_hz"`
	ChunkSize  [3]int `json:"chunk_size"`
	Height     int    `json:"height"`
	GroundY    int    `json:"ground_y"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Stats       water.TickStats `json:"stats"`
	DirtyChunks []ChunkRef      `json:"dirty_chunks,omitempty"`
	Cells       []CellState     `json:"cells,omitempty"`
}

type ChunkRef struct {
	CX int `json:"cx"`
	CZ int `json:"cz"`
}

// CellState is one tracked water voxel, for visual fill height and
// flow-direction cues.
type CellState struct {
	Pos     [3]int `json:"pos"`
	Level   uint8  `json:"level"`
	Falling bool   `json:"falling,omitempty"`
	Source  bool   `json:"source,omitempty"`
}

// Server -> Client. Full voxel data for a chunk (16x16xheight).
// Encoding "PAL16_U16LE_YZX" means:
// - Decode base64 to bytes, interpret as little-endian uint16 palette ids
// - Iteration order: for y in 0..height-1, for z in 0..15, for x in 0..15 (x fastest)
// - Total length: 16*16*height uint16s
type ChunkVoxelsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CX              int    `json:"cx"`
	CZ              int    `json:"cz"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}
