package water

// Level direction: 0 is a full source, MaxLevel is the weakest trickle.
// Every comparison in this package uses that orientation; "stronger"
// always means a strictly lower level.
const (
	SourceLevel uint8 = 0
	MaxLevel    uint8 = 7
)

// Cell is the tracked state of one water voxel. Pure value semantics; the
// position is the map key, not part of the cell.
type Cell struct {
	Level   uint8
	Falling bool
	Source  bool
}

// NewSource returns an infinite source cell.
func NewSource() Cell {
	return Cell{Level: SourceLevel, Source: true}
}

// NewFalling returns a cell in vertical free-fall at the given level.
func NewFalling(level uint8) Cell {
	if level > MaxLevel {
		level = MaxLevel
	}
	return Cell{Level: level, Falling: true}
}

// NewFlowing returns a settled flowing cell at the given level.
func NewFlowing(level uint8) Cell {
	if level > MaxLevel {
		level = MaxLevel
	}
	return Cell{Level: level}
}

// StrongerThan reports whether c may displace other at the same position.
// Sources are inviolable: nothing displaces them, and a source displaces
// any non-source. Otherwise strictly lower level wins.
func (c Cell) StrongerThan(other Cell) bool {
	if other.Source {
		return false
	}
	if c.Source {
		return true
	}
	return c.Level < other.Level
}

// CanReplace reports whether c may be written over other: either strictly
// stronger, or the same-level landing transition from falling to settled.
func (c Cell) CanReplace(other Cell) bool {
	if c.StrongerThan(other) {
		return true
	}
	return !other.Source && c.Level == other.Level && other.Falling && !c.Falling
}
