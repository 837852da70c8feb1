package core

// XPPerLevel is the fixed experience requirement per level.
const XPPerLevel int64 = 100

// LevelInfo describes where an XP total sits within the leveling curve.
type LevelInfo struct {
	Level     int64 `json:"level"`
	XPInLevel int64 `json:"xp_in_level"`
	XPToNext  int64 `json:"xp_to_next_level"`
}

// LevelOf converts accumulated XP into a level. Defined for all xp >= 0
// (negative inputs clamp to zero) and monotonic in xp.
func LevelOf(xp int64) LevelInfo {
	if xp < 0 {
		xp = 0
	}
	inLevel := xp % XPPerLevel
	return LevelInfo{
		Level:     xp/XPPerLevel + 1,
		XPInLevel: inLevel,
		XPToNext:  XPPerLevel - inLevel,
	}
}
