package core

import "testing"

func TestLevelOf(t *testing.T) {
	cases := []struct {
		xp               int64
		level, in, toNxt int64
	}{
		{0, 1, 0, 100},
		{50, 1, 50, 50},
		{99, 1, 99, 1},
		{100, 2, 0, 100},
		{110, 2, 10, 90},
		{250, 3, 50, 50},
		{-5, 1, 0, 100},
	}
	for _, c := range cases {
		got := LevelOf(c.xp)
		if got.Level != c.level || got.XPInLevel != c.in || got.XPToNext != c.toNxt {
			t.Errorf("LevelOf(%d) = %+v, want level=%d in=%d toNext=%d", c.xp, got, c.level, c.in, c.toNxt)
		}
	}
}

func TestLevelOfProperties(t *testing.T) {
	prev := int64(0)
	for xp := int64(0); xp <= 5000; xp += 7 {
		info := LevelOf(xp)
		if info.Level < 1 {
			t.Fatalf("LevelOf(%d).Level = %d, want >= 1", xp, info.Level)
		}
		if info.XPInLevel >= XPPerLevel {
			t.Fatalf("LevelOf(%d).XPInLevel = %d, want < %d", xp, info.XPInLevel, XPPerLevel)
		}
		if info.Level < prev {
			t.Fatalf("level decreased at xp=%d", xp)
		}
		prev = info.Level
	}
}
