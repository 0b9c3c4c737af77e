package world

// Block ids are a fixed compile-time palette. The simulation only needs to
// distinguish air, water, the fragile decoration blocks water can displace,
// and everything else (solid terrain).
const (
	Air uint16 = iota
	Stone
	Dirt
	Grass
	Sand
	Water
	TallGrass
)

var blockNames = [...]string{
	Air:       "AIR",
	Stone:     "STONE",
	Dirt:      "DIRT",
	Grass:     "GRASS",
	Sand:      "SAND",
	Water:     "WATER",
	TallGrass: "TALL_GRASS",
}

func BlockName(b uint16) string {
	if int(b) >= len(blockNames) {
		return ""
	}
	return blockNames[b]
}

// BlockPalette returns the id -> name palette in id order.
func BlockPalette() []string {
	out := make([]string, len(blockNames))
	copy(out, blockNames[:])
	return out
}

// Solid reports whether b blocks water from flowing through or into it.
func Solid(b uint16) bool {
	switch b {
	case Air, Water, TallGrass:
		return false
	}
	return true
}

// Displaceable reports whether flowing water may claim a cell holding b.
// TallGrass is destroyed (it drops as an item at the world layer).
func Displaceable(b uint16) bool {
	return b == Air || b == TallGrass
}
