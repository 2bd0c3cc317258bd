// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"context"
	"time"

	"listing-watcher/internal/listing"
	"listing-watcher/internal/model/llm"
	"listing-watcher/internal/watch"
)

const accountTimeout = 10 * time.Second

// Status 引擎状态快照
type Status struct {
	Running     bool           `json:"running"`
	Destination string         `json:"destination,omitempty"`
	ListURL     string         `json:"list_url"`
	Sent        int64          `json:"sent"`
	Crawl       watch.Snapshot `json:"crawl"`
	LastTopURL  string         `json:"last_top_url,omitempty"`
	Registry    Capacity       `json:"registry"`
	InFlight    int            `json:"in_flight"`
	LastError   string         `json:"last_error,omitempty"`
	LastErrorAt *time.Time     `json:"last_error_at,omitempty"`
	AI          *AIStatus      `json:"ai,omitempty"`
}

// Capacity 当前数量 / 容量
type Capacity struct {
	Len int `json:"len"`
	Cap int `json:"cap"`
}

// AIStatus 生成用量与账户信息
type AIStatus struct {
	UsedToday    int                `json:"used_today"`
	ResetAt      time.Time          `json:"reset_at"`
	DailyLimit   *int               `json:"daily_limit,omitempty"`
	IsFreeTier   *bool              `json:"is_free_tier,omitempty"`
	LimitReset   string             `json:"limit_reset,omitempty"`
	RateLimit    *llm.RateLimitInfo `json:"rate_limit,omitempty"`
	AccountError string             `json:"account_error,omitempty"`
}

// Remaining 免费额度剩余；未知时 ok 为 false
func (a *AIStatus) Remaining() (int, bool) {
	if a == nil || a.DailyLimit == nil {
		return 0, false
	}
	r := *a.DailyLimit - a.UsedToday
	if r < 0 {
		r = 0
	}
	return r, true
}

// Status 汇总状态；账户信息查询失败只记录在 AI.AccountError
func (e *Engine) Status(ctx context.Context) Status {
	snap := e.crawler.Snapshot()
	st := Status{
		Running:     e.Running(),
		Destination: e.pipeline.Destination(),
		ListURL:     e.cfg.Watch.ListURL,
		Sent:        e.pipeline.Sent(),
		Crawl:       snap,
		Registry:    Capacity{Len: e.registry.Len(), Cap: e.registry.Cap()},
	}
	if snap.LastTopHandle != "" {
		st.LastTopURL = listing.ResolveURL(e.cfg.Watch.ListURL, snap.LastTopHandle)
	}
	if info := e.lastErr.Load(); info != nil {
		at := info.at
		st.LastError = info.msg
		st.LastErrorAt = &at
	}
	st.InFlight = e.inFlight()
	st.AI = e.aiStatus(ctx)
	return st
}

func (e *Engine) inFlight() int {
	return e.coord.Guard.Len()
}

func (e *Engine) aiStatus(ctx context.Context) *AIStatus {
	if e.deps.Usage == nil && e.deps.Account == nil && e.deps.RateLimit == nil {
		return nil
	}
	ai := &AIStatus{}
	if e.deps.Usage != nil {
		ai.UsedToday = e.deps.Usage.Today()
		ai.ResetAt = e.deps.Usage.NextReset()
	}
	if e.deps.RateLimit != nil {
		if rl, ok := e.deps.RateLimit(); ok && !rl.At.IsZero() {
			ai.RateLimit = &rl
		}
	}
	if e.deps.Account == nil {
		return ai
	}

	ctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()
	if limit, err := e.deps.Account.FreeDailyLimit(ctx); err != nil {
		ai.AccountError = err.Error()
	} else {
		ai.DailyLimit = &limit
	}
	if key, err := e.deps.Account.Key(ctx); err != nil {
		ai.AccountError = err.Error()
	} else {
		ai.IsFreeTier = key.IsFreeTier
		ai.LimitReset = key.LimitReset
	}
	return ai
}
