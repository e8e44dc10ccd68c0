package enricher

import (
	"strconv"
	"strings"
	"time"

	"rewardwatch/pkg/model"
)

// 每个考核阶段的天数
const phaseDays = 30

// 激励金额（元）
const (
	BaseReward   = 5000
	Phase1Reward = 3000
	Phase2Reward = 2000
)

// 达标门槛（有效月活）
const (
	baseMinUsers   = 50
	phase1MinUsers = 100
	phase2MinUsers = 200
)

// Enrich 计算阶段窗口、当前阶段、截止天数与激励金额。today 只取日历日期
func Enrich(rec model.AppRecord, today time.Time) model.EnrichedRecord {
	day := model.DateOf(today)
	u1 := parseUsers(rec.FirstMonthValidActiveUserNum)
	u2 := parseUsers(rec.SecondMonthValidActiveUserNum)
	u3 := parseUsers(rec.ThirdMonthValidActiveUserNum)

	var (
		phases model.Phases
		phase  = model.PhaseEnded
		days   = 0
	)
	if rec.FirstOnShelfDate.IsZero() {
		// 上架日期无法解析：没有窗口，按已结束处理
		phases.Phase1.Users, phases.Phase2.Users, phases.Phase3.Users = u1, u2, u3
	} else {
		phases = windows(rec.FirstOnShelfDate, u1, u2, u3)
		phase, days = locate(day, phases)
	}
	rewards := computeRewards(rec.IsMatureApp, u1, u2, u3)

	return model.EnrichedRecord{
		AppRecord:         rec,
		Phases:            phases,
		CurrentPhase:      phase,
		PhaseStatus:       phase.String(),
		DaysUntilDeadline: days,
		TotalUsers:        u1 + u2 + u3,
		Rewards:           rewards,
	}
}

// windows 上架次日起连续三个 30 天窗口
func windows(onShelf model.Date, u1, u2, u3 int) model.Phases {
	start := onShelf.AddDays(1)
	return model.Phases{
		Phase1: window(start, 0, u1),
		Phase2: window(start, 1, u2),
		Phase3: window(start, 2, u3),
	}
}

func window(start model.Date, idx, users int) model.PhaseWindow {
	s := start.AddDays(idx * phaseDays)
	e := s.AddDays(phaseDays - 1)
	return model.PhaseWindow{
		Start: s,
		End:   e,
		Range: s.String() + " ~ " + e.String(),
		Users: users,
	}
}

// locate 当前阶段与距截止的天数，覆盖全部日期
func locate(today model.Date, p model.Phases) (model.Phase, int) {
	switch {
	case today.Before(p.Phase1.Start):
		return model.PhaseNotStarted, today.DaysUntil(p.Phase1.Start)
	case !today.After(p.Phase1.End):
		return model.Phase1, today.DaysUntil(p.Phase1.End)
	case !today.After(p.Phase2.End):
		return model.Phase2, today.DaysUntil(p.Phase2.End)
	case !today.After(p.Phase3.End):
		return model.Phase3, today.DaysUntil(p.Phase3.End)
	default:
		return model.PhaseEnded, 0
	}
}

func computeRewards(mature bool, u1, u2, u3 int) model.Rewards {
	var r model.Rewards
	if mature || u1 >= baseMinUsers {
		r.Base = BaseReward
	}
	if phase1Qualified(mature, u2) {
		r.Phase1 = Phase1Reward
	}
	// 二阶段与是否成熟无关
	if u3 >= phase2MinUsers {
		r.Phase2 = Phase2Reward
	}
	r.Total = r.Base + r.Phase1 + r.Phase2
	return r
}

// phase1Qualified 成熟应用直接视为达标。
// TODO: 成熟应用还需满足功能与 HarmonyOS 4.x 版本对齐，接口提供该字段后在此校验。
func phase1Qualified(mature bool, u2 int) bool {
	return mature || u2 >= phase1MinUsers
}

// parseUsers 取前导整数部分（"123abc" -> 123），无法解析或为负时为 0
func parseUsers(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
