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

// Package engine 管理抓取与投递两个后台任务的生命周期，并汇总状态快照
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"listing-watcher/internal/action"
	"listing-watcher/internal/delivery"
	"listing-watcher/internal/listing"
	"listing-watcher/internal/model/llm"
	"listing-watcher/internal/notify"
	"listing-watcher/internal/registry"
	"listing-watcher/internal/watch"
	"listing-watcher/pkg/config"
	"listing-watcher/pkg/log"
)

var (
	// ErrAlreadyRunning 重复启动
	ErrAlreadyRunning = errors.New("watcher is already running")
	// ErrNotRunning 未启动时停止
	ErrNotRunning = errors.New("watcher is not running")
)

// UsageCounter 当日生成用量
type UsageCounter interface {
	Today() int
	NextReset() time.Time
}

// Account 生成服务账户信息（尽力而为）
type Account interface {
	Key(ctx context.Context) (*llm.KeyInfo, error)
	FreeDailyLimit(ctx context.Context) (int, error)
}

// Deps 引擎依赖；Generator 为 nil 时 Accept 始终可重试失败
type Deps struct {
	Fetcher   listing.Fetcher
	Notifier  notify.Notifier
	Generator action.Generator
	Artifacts *action.ArtifactCache
	Usage     UsageCounter
	RateLimit func() (llm.RateLimitInfo, bool)
	Account   Account
	Logger    *log.Logger
}

// Engine 单实例；抓取状态只在抓取协程中修改
type Engine struct {
	cfg      *config.Config
	deps     Deps
	logger   *log.Logger
	crawler  *watch.Crawler
	pipeline *delivery.Pipeline
	coord    *action.Coordinator
	registry *registry.Registry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastErr atomic.Pointer[errorInfo]
}

type errorInfo struct {
	msg string
	at  time.Time
}

// New 按配置装配抓取器、投递管道、注册表与动作协调器
func New(cfg *config.Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	e := &Engine{cfg: cfg, deps: deps, logger: deps.Logger.With("component", "engine")}

	queueSize := cfg.Watch.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	queue := make(chan *listing.Record, queueSize)

	capacity := cfg.Registry.Capacity
	if capacity <= 0 {
		capacity = cfg.Watch.SeenLimit
	}
	e.registry = registry.New(capacity)

	e.crawler = watch.NewCrawler(deps.Fetcher, queue, watch.Options{
		ScanLimit:           cfg.Watch.ScanLimit,
		BootstrapMultiplier: cfg.Watch.BootstrapMultiplier,
		PerCycleCap:         cfg.Watch.PerCycleCap,
		SeenLimit:           cfg.Watch.SeenLimit,
		Interval:            cfg.Watch.Interval,
		ItemDelay:           cfg.Watch.ItemDelay,
		ErrorDelay:          cfg.Watch.ErrorDelay,
		ScanRetry:           cfg.Retry.Scan,
		DetailRetry:         cfg.Retry.Detail,
	}, deps.Logger, e.Report)

	formatter := notify.NewFormatter()
	sender := delivery.NewSender(deps.Notifier, cfg.Delivery.PartDelay, cfg.Retry.Delivery, deps.Logger)
	e.pipeline = delivery.NewPipeline(queue, e.registry, formatter, sender, deps.Logger, e.Report)
	e.pipeline.SetDestination(cfg.Delivery.Destination)

	liveness, _ := deps.Fetcher.(listing.LivenessChecker)
	e.coord = action.NewCoordinator(action.Deps{
		Registry:  e.registry,
		Artifacts: deps.Artifacts,
		Generator: generatorOrMissing(deps.Generator),
		Liveness:  liveness,
		Sender:    sender,
		Formatter: formatter,
		Logger:    deps.Logger,
		Report:    e.Report,
	}, action.Options{
		GenerateTimeout: cfg.Action.GenerateTimeout,
		LivenessCheck:   cfg.Action.LivenessCheck,
		GenerationRetry: cfg.Retry.Generation,
	})
	return e
}

type missingGenerator struct{}

func (missingGenerator) Generate(context.Context, *listing.Record) (string, error) {
	return "", errors.New("reply generation is not configured")
}

func generatorOrMissing(g action.Generator) action.Generator {
	if g == nil {
		return missingGenerator{}
	}
	return g
}

// Report 记录最近一次非致命错误
func (e *Engine) Report(err error) {
	if err == nil {
		return
	}
	e.lastErr.Store(&errorInfo{msg: err.Error(), at: time.Now()})
}

// OnDelivered 条目送达回调（启动提示等）
func (e *Engine) OnDelivered(fn delivery.DeliveredFunc) { e.pipeline.OnDelivered(fn) }

// Start 启动抓取与投递；dest 非空时覆盖投递目的地。每次启动水位清零，已见集合保留
func (e *Engine) Start(dest string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runningLocked() {
		return ErrAlreadyRunning
	}
	if dest != "" {
		e.pipeline.SetDestination(dest)
	}
	e.crawler.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel, e.done = cancel, done

	var wg sync.WaitGroup
	wg.Add(2)
	go e.runTask(ctx, cancel, &wg, "crawler", e.crawler.Run)
	go e.runTask(ctx, cancel, &wg, "pipeline", e.pipeline.Run)
	go func() {
		wg.Wait()
		close(done)
	}()

	e.logger.Info("watcher started", "destination", e.pipeline.Destination(), "list_url", e.cfg.Watch.ListURL)
	return nil
}

// runTask 运行单个后台任务；panic 记为最近错误并停止整个 watcher
func (e *Engine) runTask(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, name string, run func(context.Context) error) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s panic: %v", name, r)
			e.logger.Error("background task panicked", "task", name, "error", err)
			e.Report(err)
			cancel()
		}
	}()
	_ = run(ctx)
}

// Stop 取消后台任务并等待退出（或 ctx 结束）
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.runningLocked() {
		e.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
		e.logger.Info("watcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running 后台任务是否仍在运行
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runningLocked()
}

func (e *Engine) runningLocked() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Accept 见 action.Coordinator.Accept
func (e *Engine) Accept(ctx context.Context, handle, dest string) action.Result {
	return e.coord.Accept(ctx, handle, dest)
}

// Skip 见 action.Coordinator.Skip
func (e *Engine) Skip(ctx context.Context, handle string) action.Result {
	return e.coord.Skip(ctx, handle)
}

// ItemState handle 当前状态
func (e *Engine) ItemState(handle string) action.State { return e.coord.State(handle) }

// Registry 供状态与测试读取
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Crawler 抓取器（仅用于读取快照）
func (e *Engine) Crawler() *watch.Crawler { return e.crawler }

// Destination 当前投递目的地
func (e *Engine) Destination() string { return e.pipeline.Destination() }
