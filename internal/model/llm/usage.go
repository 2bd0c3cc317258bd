package llm

import (
	"sync"
	"time"
)

// DailyUsage 按 UTC 自然日统计生成次数，00:00 UTC 归零
type DailyUsage struct {
	mu    sync.Mutex
	day   string
	count int
	now   func() time.Time
}

// NewDailyUsage 创建计数器
func NewDailyUsage() *DailyUsage {
	return &DailyUsage{now: time.Now}
}

func (u *DailyUsage) roll() {
	today := u.now().UTC().Format("2006-01-02")
	if u.day != today {
		u.day = today
		u.count = 0
	}
}

// Inc 记一次生成，返回当日累计
func (u *DailyUsage) Inc() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roll()
	u.count++
	return u.count
}

// Today 当日累计
func (u *DailyUsage) Today() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roll()
	return u.count
}

// NextReset 下一个 00:00 UTC
func (u *DailyUsage) NextReset() time.Time {
	now := u.now().UTC()
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
