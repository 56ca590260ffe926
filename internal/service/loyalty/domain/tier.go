package domain

import "math"

// MemberTier 是会员等级。等级按 MinPoints 升序排列，
// 每级携带下单折扣和积分倍率。
type MemberTier struct {
	ID              int64
	Name            string
	MinPoints       int64
	DiscountPercent float64
	PointMultiplier float64
}

// PointsFor 计算一笔已完成订单应得的积分：
// 每 10,000 VND 得 1 点基础积分，再乘以会员等级倍率，向下取整。
func PointsFor(totalAmount int64, multiplier float64) int64 {
	base := totalAmount / 10000
	return int64(math.Floor(float64(base) * multiplier))
}

// TierFor 在按 MinPoints 升序的等级表中找出积分余额可达的最高等级。
// 多个等级门槛相同时取门槛最高的那个（即序列中靠后的）。
// 找不到任何可达等级时返回 nil。
func TierFor(tiers []MemberTier, balance int64) *MemberTier {
	var best *MemberTier
	for i := range tiers {
		t := &tiers[i]
		if t.MinPoints > balance {
			continue
		}
		if best == nil || t.MinPoints >= best.MinPoints {
			best = t
		}
	}
	return best
}
