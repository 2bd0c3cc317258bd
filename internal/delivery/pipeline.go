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

package delivery

import (
	"context"
	"sync"
	"sync/atomic"

	"listing-watcher/internal/listing"
	"listing-watcher/internal/notify"
	"listing-watcher/internal/registry"
	pkgerrors "listing-watcher/pkg/errors"
	"listing-watcher/pkg/log"
	"listing-watcher/pkg/metrics"
	"listing-watcher/pkg/tracing"
)

// ErrorReporter 记录非致命错误
type ErrorReporter func(err error)

// DeliveredFunc 条目首条分片送达后回调
type DeliveredFunc func(ctx context.Context, handle string, ref registry.MessageRef)

// Pipeline 投递队列的唯一消费者
type Pipeline struct {
	in        <-chan *listing.Record
	reg       *registry.Registry
	formatter *notify.Formatter
	sender    *Sender
	logger    *log.Logger
	report    ErrorReporter

	dest atomic.Pointer[string]
	sent atomic.Int64

	mu    sync.Mutex
	hooks []DeliveredFunc
}

// NewPipeline 创建投递管道；in 由抓取器写入
func NewPipeline(in <-chan *listing.Record, reg *registry.Registry, formatter *notify.Formatter, sender *Sender, logger *log.Logger, report ErrorReporter) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	if report == nil {
		report = func(error) {}
	}
	if formatter == nil {
		formatter = notify.NewFormatter()
	}
	p := &Pipeline{
		in:        in,
		reg:       reg,
		formatter: formatter,
		sender:    sender,
		logger:    logger.With("component", "delivery"),
		report:    report,
	}
	empty := ""
	p.dest.Store(&empty)
	return p
}

// SetDestination 设置投递目的地
func (p *Pipeline) SetDestination(dest string) { p.dest.Store(&dest) }

// Destination 当前目的地
func (p *Pipeline) Destination() string { return *p.dest.Load() }

// Sent 成功投递的条目数
func (p *Pipeline) Sent() int64 { return p.sent.Load() }

// OnDelivered 注册送达回调
func (p *Pipeline) OnDelivered(fn DeliveredFunc) {
	p.mu.Lock()
	p.hooks = append(p.hooks, fn)
	p.mu.Unlock()
}

// Run 消费队列直到 ctx 取消
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("delivery started")
	defer p.logger.Info("delivery stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-p.in:
			metrics.QueueDepth.Set(float64(len(p.in)))
			if err := p.Deliver(ctx, rec); err != nil && ctx.Err() == nil {
				p.logger.Warn("delivery failed", "handle", rec.Handle, "error", err)
				p.report(err)
			}
		}
	}
}

// Deliver 投递单个条目
// 首条分片未送达时从注册表移除 handle；已送达的分片保留
func (p *Pipeline) Deliver(ctx context.Context, rec *listing.Record) (err error) {
	dest := p.Destination()
	if dest == "" {
		p.logger.Warn("no destination configured, dropping item", "handle", rec.Handle)
		metrics.DeliveryTotal.WithLabelValues("dropped").Inc()
		return nil
	}

	handle := p.reg.Remember(rec)
	parts := p.formatter.ItemParts(rec)

	ctx, span := tracing.StartDeliverySpan(ctx, handle, len(parts))
	defer func() { tracing.End(span, err) }()

	receipts, err := p.sender.SendParts(ctx, dest, handle, parts, func(i int, msg *notify.Message) {
		if i == 0 {
			msg.Buttons = notify.ActionButtons(handle)
		}
	})
	if len(receipts) == 0 {
		p.reg.Forget(handle)
	} else {
		p.reg.Attach(handle, registry.MessageRef{Dest: dest, MessageID: receipts[0].MessageID})
	}
	if err != nil {
		result := "failed"
		if len(receipts) > 0 {
			result = "partial"
		}
		metrics.DeliveryTotal.WithLabelValues(result).Inc()
		return pkgerrors.Wrapf(err, "deliver %s", rec.Handle)
	}

	p.sent.Add(1)
	metrics.DeliveryTotal.WithLabelValues("delivered").Inc()
	p.logger.Info("item delivered", "handle", rec.Handle, "parts", len(parts))

	ref := registry.MessageRef{Dest: dest, MessageID: receipts[0].MessageID}
	p.mu.Lock()
	hooks := append([]DeliveredFunc(nil), p.hooks...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(ctx, handle, ref)
	}
	return nil
}
