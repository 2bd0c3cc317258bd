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

// Package watch 增量抓取：水位线 + 已见集合判定新条目，逐条拉取详情并推入投递队列
package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"listing-watcher/internal/listing"
	pkgerrors "listing-watcher/pkg/errors"
	"listing-watcher/pkg/log"
	"listing-watcher/pkg/metrics"
	"listing-watcher/pkg/retry"
	"listing-watcher/pkg/tracing"
)

// Options 抓取参数
type Options struct {
	ScanLimit           int
	BootstrapMultiplier int // 首轮扫描窗口倍数
	PerCycleCap         int // 首轮最多投递条数
	SeenLimit           int
	Interval            time.Duration
	ItemDelay           time.Duration
	ErrorDelay          time.Duration
	ScanRetry           retry.Policy
	DetailRetry         retry.Policy
}

func (o Options) normalized() Options {
	if o.ScanLimit <= 0 {
		o.ScanLimit = 5
	}
	if o.BootstrapMultiplier <= 0 {
		o.BootstrapMultiplier = 1
	}
	if o.PerCycleCap <= 0 {
		o.PerCycleCap = o.ScanLimit
	}
	if o.SeenLimit <= 0 {
		o.SeenLimit = 50
	}
	if o.Interval <= 0 {
		o.Interval = 10 * time.Minute
	}
	if o.ErrorDelay <= 0 {
		o.ErrorDelay = 2 * time.Second
	}
	return o
}

// ErrorReporter 记录非致命错误（引擎的 last-error）
type ErrorReporter func(err error)

// Snapshot 抓取状态的只读快照，供其它协程读取
type Snapshot struct {
	MaxOrdinal    int64     `json:"max_ordinal"`
	LastTopHandle string    `json:"last_top_handle,omitempty"`
	SeenLen       int       `json:"seen_len"`
	SeenCap       int       `json:"seen_cap"`
	Cycles        int64     `json:"cycles"`
	Pushed        int64     `json:"pushed"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CycleResult 单轮结果
type CycleResult struct {
	Bootstrap bool
	Fetched   int
	New       int
	Pushed    int
	Failed    int
}

// Crawler 增量抓取器；水位与已见集合只在 Run 所在协程中修改
type Crawler struct {
	fetcher listing.Fetcher
	out     chan<- *listing.Record
	opts    Options
	logger  *log.Logger
	report  ErrorReporter

	seen   *SeenSet
	wm     Watermark
	cycles int64
	pushed int64

	snap atomic.Pointer[Snapshot]
}

// NewCrawler 创建抓取器；out 为投递队列，满时阻塞
func NewCrawler(fetcher listing.Fetcher, out chan<- *listing.Record, opts Options, logger *log.Logger, report ErrorReporter) *Crawler {
	opts = opts.normalized()
	if logger == nil {
		logger = log.Nop()
	}
	if report == nil {
		report = func(error) {}
	}
	c := &Crawler{
		fetcher: fetcher,
		out:     out,
		opts:    opts,
		logger:  logger.With("component", "crawler"),
		report:  report,
		seen:    NewSeenSet(opts.SeenLimit),
	}
	c.publish()
	return c
}

// Reset 新一次启动：水位清零，已见集合保留
func (c *Crawler) Reset() {
	c.wm = Watermark{}
	c.publish()
}

// Snapshot 最近一次发布的状态
func (c *Crawler) Snapshot() Snapshot {
	return *c.snap.Load()
}

func (c *Crawler) publish() {
	c.snap.Store(&Snapshot{
		MaxOrdinal:    c.wm.MaxOrdinal,
		LastTopHandle: c.wm.LastTopHandle,
		SeenLen:       c.seen.Len(),
		SeenCap:       c.seen.Cap(),
		Cycles:        c.cycles,
		Pushed:        c.pushed,
		UpdatedAt:     time.Now(),
	})
	metrics.Watermark.Set(float64(c.wm.MaxOrdinal))
	metrics.SeenSize.Set(float64(c.seen.Len()))
}

// Run 轮询直到 ctx 取消；扫描失败记录错误并在 ErrorDelay 后重试同一轮
func (c *Crawler) Run(ctx context.Context) error {
	c.logger.Info("crawler started", "scan_limit", c.opts.ScanLimit, "interval", c.opts.Interval.String())
	defer c.logger.Info("crawler stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, err := c.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("scan failed", "error", err)
			c.report(err)
			c.reload(ctx)
			if !sleep(ctx, c.opts.ErrorDelay) {
				return nil
			}
			continue
		}
		if !sleep(ctx, c.opts.Interval) {
			return nil
		}
		c.reload(ctx)
	}
}

func (c *Crawler) reload(ctx context.Context) {
	r, ok := c.fetcher.(listing.Reloader)
	if !ok {
		return
	}
	if err := r.Reload(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn("reload failed", "error", err)
		c.report(err)
	}
}

// RunCycle 执行一轮：扫描、判定、按旧到新拉取详情并推送、推进水位
// 返回错误时水位不推进；中途取消同样不推进水位
func (c *Crawler) RunCycle(ctx context.Context) (res CycleResult, err error) {
	start := time.Now()
	res.Bootstrap = c.wm.Bootstrapping()
	ctx, span := tracing.StartCycleSpan(ctx, res.Bootstrap)
	defer func() {
		tracing.End(span, err)
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			metrics.CycleTotal.WithLabelValues("ok").Inc()
		case ctx.Err() != nil:
			metrics.CycleTotal.WithLabelValues("aborted").Inc()
		default:
			metrics.CycleTotal.WithLabelValues("scan_error").Inc()
		}
	}()

	limit := c.opts.ScanLimit
	if res.Bootstrap {
		limit *= c.opts.BootstrapMultiplier
	}
	entries, err := retry.DoValue(ctx, c.opts.ScanRetry, nil, c.notify("scan"), func(ctx context.Context) ([]listing.Entry, error) {
		return c.fetcher.FetchListing(ctx, limit)
	})
	if err != nil {
		return res, pkgerrors.Wrap(err, "scan listing")
	}
	res.Fetched = len(entries)

	fresh := c.selectNew(entries, res.Bootstrap)
	res.New = len(fresh)
	metrics.NewItemsTotal.Add(float64(len(fresh)))
	if len(fresh) > 0 {
		c.logger.Info("new items", "count", len(fresh), "bootstrap", res.Bootstrap)
	}

	// 新条目按旧到新处理，投递顺序与出现顺序一致
	for i := len(fresh) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ok, err := c.process(ctx, fresh[i])
		if err != nil {
			return res, err
		}
		if ok {
			res.Pushed++
		} else {
			res.Failed++
		}
		if i > 0 && !sleep(ctx, c.opts.ItemDelay) {
			return res, ctx.Err()
		}
	}

	c.wm = c.wm.Advance(entries)
	c.cycles++
	c.publish()
	return res, nil
}

// selectNew 返回新条目，保持列表顺序（新到旧）
func (c *Crawler) selectNew(entries []listing.Entry, bootstrap bool) []listing.Entry {
	var fresh []listing.Entry
	if bootstrap {
		for _, e := range entries {
			if len(fresh) >= c.opts.PerCycleCap {
				break
			}
			if !c.seen.Contains(e.Handle) {
				fresh = append(fresh, e)
			}
		}
		return fresh
	}

	candidates := entries
	if c.wm.LastTopHandle != "" {
		for i, e := range entries {
			if e.Handle == c.wm.LastTopHandle {
				candidates = entries[:i]
				break
			}
		}
	}
	for _, e := range candidates {
		if e.HasOrdinal && e.Ordinal > c.wm.MaxOrdinal && !c.seen.Contains(e.Handle) {
			fresh = append(fresh, e)
		}
	}
	return fresh
}

// process 拉取详情并推送；详情失败时仍标记已见并返回 false
// 只有推送被取消时返回错误，此时条目不标记已见
func (c *Crawler) process(ctx context.Context, e listing.Entry) (bool, error) {
	dctx, span := tracing.StartDetailSpan(ctx, e.Handle, e.Ordinal)
	rec, err := retry.DoValue(dctx, c.opts.DetailRetry, nil, c.notify("detail"), func(ctx context.Context) (*listing.Record, error) {
		return c.fetcher.FetchDetail(ctx, e.Handle)
	})
	tracing.End(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		metrics.DetailFailTotal.WithLabelValues(failureKind(err)).Inc()
		c.logger.Warn("detail fetch failed, skipping", "handle", e.Handle, "error", err)
		c.report(pkgerrors.Wrapf(err, "detail %s", e.Handle))
		c.seen.Mark(e.Handle)
		c.publish()
		return false, nil
	}

	select {
	case c.out <- rec:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	metrics.QueueDepth.Set(float64(len(c.out)))
	c.seen.Mark(e.Handle)
	c.pushed++
	c.publish()
	c.logger.Debug("item queued", "handle", e.Handle, "ordinal", e.Ordinal)
	return true, nil
}

func (c *Crawler) notify(layer string) retry.Notify {
	return func(err error, attempt int, wait time.Duration) {
		c.logger.Debug("retrying", "layer", layer, "attempt", attempt, "wait", wait.String(), "error", err)
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, pkgerrors.ErrStructural):
		return "structural"
	case pkgerrors.IsTransient(err):
		return "transient"
	default:
		return "other"
	}
}

// sleep 可被 ctx 打断，返回 false 表示已取消
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
