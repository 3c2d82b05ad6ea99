package grid

// Cell flag bits as sent by the terrain system, one byte per cell.
const (
	FlagWalkable byte = 0x01 // bit 0
	FlagWater    byte = 0x04 // bit 2
	FlagObstacle byte = 0x40 // bit 6
)

// Mode selects which flags block a cell for one query.
type Mode struct {
	IgnoreSlopes    bool // clear cells count even without the walkable bit
	IgnoreObstacles bool // only water blocks ("return to safe zone" paths)
}

// Passable reports whether a cell with the given flags can be entered under m.
// IgnoreObstacles wins when both options are set.
func (m Mode) Passable(flags byte) bool {
	switch {
	case m.IgnoreObstacles:
		return flags&FlagWater == 0
	case m.IgnoreSlopes:
		return flags&(FlagObstacle|FlagWater) == 0
	default:
		return flags&FlagWalkable != 0
	}
}

func (m Mode) String() string {
	switch {
	case m.IgnoreObstacles:
		return "ignore_obstacles"
	case m.IgnoreSlopes:
		return "ignore_slopes"
	default:
		return "default"
	}
}
