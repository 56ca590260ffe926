package domain

import "testing"

func TestPointsFor(t *testing.T) {
	cases := []struct {
		total      int64
		multiplier float64
		want       int64
	}{
		{350000, 1.0, 35},
		{350000, 1.2, 42},
		{359999, 1.0, 35}, // 不足一万的尾数不计
		{350000, 1.1, 38}, // 38.5 向下取整
		{9999, 1.5, 0},    // 不足一万不得分
		{0, 1.0, 0},
		{1000000, 1.5, 150},
	}
	for _, c := range cases {
		if got := PointsFor(c.total, c.multiplier); got != c.want {
			t.Errorf("PointsFor(%d, %.1f) = %d, want %d", c.total, c.multiplier, got, c.want)
		}
	}
}

func TestTierFor(t *testing.T) {
	tiers := []MemberTier{
		{ID: 1, Name: "BRONZE", MinPoints: 0, PointMultiplier: 1.0},
		{ID: 2, Name: "SILVER", MinPoints: 1000, PointMultiplier: 1.1},
		{ID: 3, Name: "GOLD", MinPoints: 5000, PointMultiplier: 1.2},
	}

	cases := []struct {
		balance int64
		want    string
	}{
		{0, "BRONZE"},
		{999, "BRONZE"},
		{1000, "SILVER"},
		{4999, "SILVER"},
		{5000, "GOLD"},
		{100000, "GOLD"},
	}
	for _, c := range cases {
		got := TierFor(tiers, c.balance)
		if got == nil || got.Name != c.want {
			t.Errorf("TierFor(%d) = %v, want %s", c.balance, got, c.want)
		}
	}

	if got := TierFor(nil, 100); got != nil {
		t.Errorf("TierFor with no tiers = %v, want nil", got)
	}
	if got := TierFor([]MemberTier{{ID: 1, MinPoints: 500}}, 100); got != nil {
		t.Errorf("TierFor below lowest threshold = %v, want nil", got)
	}
}

func TestTierForEqualThresholds(t *testing.T) {
	tiers := []MemberTier{
		{ID: 1, Name: "A", MinPoints: 100},
		{ID: 2, Name: "B", MinPoints: 100},
	}
	got := TierFor(tiers, 150)
	if got == nil || got.Name != "B" {
		t.Errorf("TierFor with equal thresholds = %v, want the later entry", got)
	}
}
