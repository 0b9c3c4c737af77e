package world

type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) Above() Vec3i { return Vec3i{X: v.X, Y: v.Y + 1, Z: v.Z} }
func (v Vec3i) Below() Vec3i { return Vec3i{X: v.X, Y: v.Y - 1, Z: v.Z} }

// Horizontal returns the 4-connected neighbors in the XZ plane, in a fixed
// order (west, east, north, south) so that iteration is deterministic.
func (v Vec3i) Horizontal() [4]Vec3i {
	return [4]Vec3i{
		{X: v.X - 1, Y: v.Y, Z: v.Z},
		{X: v.X + 1, Y: v.Y, Z: v.Z},
		{X: v.X, Y: v.Y, Z: v.Z - 1},
		{X: v.X, Y: v.Y, Z: v.Z + 1},
	}
}

func Manhattan(a, b Vec3i) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	return dx + dy + dz
}
