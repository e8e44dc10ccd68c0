package aggregator

import "rewardwatch/pkg/model"

// Aggregate 汇总应用数、总用户、总激励、各阶段分布与各档达标数
func Aggregate(values []model.EnrichedRecord) model.Summary {
	s := model.Summary{AppCount: len(values)}
	for _, v := range values {
		s.TotalUsers += v.TotalUsers
		s.TotalReward += v.Rewards.Total
		if v.CurrentPhase >= 0 && int(v.CurrentPhase) < model.PhaseCount {
			s.PhaseCounts[v.CurrentPhase]++
		}
		if v.Rewards.Base > 0 {
			s.TierCounts.BaseAchieved++
		}
		if v.Rewards.Phase1 > 0 {
			s.TierCounts.Phase1Achieved++
		}
		if v.Rewards.Phase2 > 0 {
			s.TierCounts.Phase2Achieved++
		}
	}
	return s
}
