package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

const dayMillis = int64(24 * time.Hour / time.Millisecond)

var dateLayouts = []string{
	dateLayout,
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
}

// Date 日历日期，内部固定为 UTC 零点
type Date struct {
	t time.Time
}

// NewDate 按年月日构造日期
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf 取 t 在其自身时区下的日历日期，丢弃时分秒
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate 同 ParseDateIn(s, time.UTC)
func ParseDate(s string) (Date, bool) {
	return ParseDateIn(s, time.UTC)
}

// ParseDateIn 解析上架日期，支持常见日期格式与毫秒时间戳。
// 带时区的时间点（时间戳、RFC3339）先换算到 loc 再取日历日期，不带时区的按字面日期
func ParseDateIn(s string, loc *time.Location) (Date, bool) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == time.RFC3339 {
				t = t.In(loc)
			}
			return DateOf(t), true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return DateOf(time.UnixMilli(ms).In(loc)), true
	}
	return Date{}, false
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// AddDays 日历加减天数
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) After(o Date) bool { return d.t.After(o.t) }

func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// Time 返回该日期的 UTC 零点
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// DaysUntil 从 d 到 o 的天数，毫秒差按天向上取整
func (d Date) DaysUntil(o Date) int {
	diff := o.t.UnixMilli() - d.t.UnixMilli()
	return int(math.Ceil(float64(diff) / float64(dayMillis)))
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*d, _ = ParseDate(s)
	return nil
}
