package model

import (
	"encoding/json"
	"strconv"
)

type TargetID string

// Transport 捕获请求所经过的传输通道
type Transport string

const (
	TransportFetch Transport = "fetch"
	TransportXHR   Transport = "xhr"
)

// CallStatus 响应状态码，网络失败时为 StatusError
type CallStatus int

// StatusError 网络层失败（无响应）
const StatusError CallStatus = -1

// Failed 是否为网络层失败
func (s CallStatus) Failed() bool { return s == StatusError }

// MarshalJSON 失败时输出 "error"，否则输出数字状态码
func (s CallStatus) MarshalJSON() ([]byte, error) {
	if s.Failed() {
		return []byte(`"error"`), nil
	}
	return []byte(strconv.Itoa(int(s))), nil
}

// UnmarshalJSON 接受数字或 "error"
func (s *CallStatus) UnmarshalJSON(b []byte) error {
	if string(b) == `"error"` {
		*s = StatusError
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = CallStatus(n)
	return nil
}

// CapturedCall 一次被拦截的目标调用，创建后不再修改
type CapturedCall struct {
	ID          string     `json:"id"`
	Transport   Transport  `json:"transport"`
	URL         string     `json:"url"`
	Method      string     `json:"method"`
	RequestBody string     `json:"requestBody,omitempty"`
	TimestampMs int64      `json:"timestampMs"`
	Status      CallStatus `json:"status"`
	Error       string     `json:"error,omitempty"`

	// ResponseBody 为合法 JSON 时 ResponseJSON 为 true，否则是截断后的原始文本
	ResponseBody []byte `json:"-"`
	ResponseJSON bool   `json:"-"`
}

// MarshalJSON 响应体按 JSON 原样嵌入或作为字符串输出
func (c CapturedCall) MarshalJSON() ([]byte, error) {
	type alias CapturedCall
	var resp any
	switch {
	case c.ResponseJSON && len(c.ResponseBody) > 0:
		resp = json.RawMessage(c.ResponseBody)
	case len(c.ResponseBody) > 0:
		resp = string(c.ResponseBody)
	}
	return json.Marshal(struct {
		alias
		Response any `json:"response,omitempty"`
	}{alias(c), resp})
}

// AppRecord 奖励查询接口返回的单个应用记录，业务主键为 AppID
type AppRecord struct {
	AppID            string `json:"appId"`
	AppName          string `json:"appName"`
	AppType          string `json:"appType"`
	FirstOnShelfDate Date   `json:"firstOnShelfDate"`
	IsMatureApp      bool   `json:"isMatureApp"`
	Status           string `json:"status"`

	// 月活保持原始文本，由 enricher 解析
	FirstMonthValidActiveUserNum  string `json:"firstMonthValidActiveUserNum"`
	SecondMonthValidActiveUserNum string `json:"secondMonthValidActiveUserNum"`
	ThirdMonthValidActiveUserNum  string `json:"thirdMonthValidActiveUserNum"`
}

// Phase 考核阶段
type Phase int

const (
	PhaseNotStarted Phase = iota
	Phase1
	Phase2
	Phase3
	PhaseEnded
)

// PhaseCount 阶段状态总数（含未开始与已结束）
const PhaseCount = 5

var phaseLabels = [PhaseCount]string{"未开始", "第一阶段", "第二阶段", "第三阶段", "已结束"}

// String 返回阶段的中文名称
func (p Phase) String() string {
	if p < 0 || int(p) >= PhaseCount {
		return "未知"
	}
	return phaseLabels[p]
}

// PhaseWindow 单个考核阶段的时间窗口（首尾均包含）
type PhaseWindow struct {
	Start Date   `json:"start"`
	End   Date   `json:"end"`
	Range string `json:"range"`
	Users int    `json:"users"`
}

// Contains 判断日期是否落在窗口内
func (w PhaseWindow) Contains(d Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

type Phases struct {
	Phase1 PhaseWindow `json:"phase1"`
	Phase2 PhaseWindow `json:"phase2"`
	Phase3 PhaseWindow `json:"phase3"`
}

// Rewards 各档激励金额（元）
type Rewards struct {
	Base   int `json:"base"`
	Phase1 int `json:"phase1"`
	Phase2 int `json:"phase2"`
	Total  int `json:"total"`
}

// EnrichedRecord 计算了阶段与激励后的应用记录
type EnrichedRecord struct {
	AppRecord

	Phases            Phases  `json:"phases"`
	CurrentPhase      Phase   `json:"currentPhase"`
	PhaseStatus       string  `json:"phaseStatus"`
	DaysUntilDeadline int     `json:"daysUntilDeadline"`
	TotalUsers        int     `json:"totalUsers"`
	Rewards           Rewards `json:"rewards"`
}

// TierCounts 各档激励达标的应用数
type TierCounts struct {
	BaseAchieved   int `json:"baseAchieved"`
	Phase1Achieved int `json:"phase1Achieved"`
	Phase2Achieved int `json:"phase2Achieved"`
}

// Summary 全部应用的汇总统计
type Summary struct {
	AppCount    int             `json:"appCount"`
	TotalUsers  int             `json:"totalUsers"`
	TotalReward int             `json:"totalReward"`
	PhaseCounts [PhaseCount]int `json:"phaseCounts"`
	TierCounts  TierCounts      `json:"tierCounts"`
}

// TargetInfo DevTools 可附加的目标
type TargetInfo struct {
	ID       TargetID `json:"id"`
	Type     string   `json:"type"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Attached bool     `json:"attached"`
}
