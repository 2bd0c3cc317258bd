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

// Package action 用户触发的后续动作（接受 / 跳过）：按 handle 互斥、生成结果缓存、失败可重试
package action

import (
	"context"
	"errors"
	"html"
	"strconv"
	"time"

	"listing-watcher/internal/delivery"
	"listing-watcher/internal/listing"
	"listing-watcher/internal/notify"
	"listing-watcher/internal/registry"
	pkgerrors "listing-watcher/pkg/errors"
	"listing-watcher/pkg/log"
	"listing-watcher/pkg/metrics"
	"listing-watcher/pkg/retry"
	"listing-watcher/pkg/tracing"
)

// Outcome 动作结果
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeBusy      Outcome = "busy"
	OutcomeExpired   Outcome = "expired"
	OutcomeStale     Outcome = "stale"
	OutcomeRetryable Outcome = "retryable"
)

// State handle 的处理状态
type State string

const (
	StateUnknown  State = "unknown"
	StateIdle     State = "idle"
	StateInFlight State = "in_flight"
)

// Generator 由记录生成回复文本
type Generator interface {
	Generate(ctx context.Context, rec *listing.Record) (string, error)
}

// Options 动作参数
type Options struct {
	GenerateTimeout time.Duration // 单次生成调用超时
	LivenessCheck   bool
	GenerationRetry retry.Policy
}

// Result 动作结果
type Result struct {
	Outcome Outcome `json:"outcome"`
	Handle  string  `json:"handle"`
	Cached  bool    `json:"cached,omitempty"`
	Parts   int     `json:"parts,omitempty"`
	Error   string  `json:"error,omitempty"`
	Err     error   `json:"-"`
}

// Message 给用户的简短提示
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeCompleted:
		return "Reply sent"
	case OutcomeRejected:
		return "Skipped"
	case OutcomeBusy:
		return "Still working on it…"
	case OutcomeExpired:
		return "Job data not found (cache expired)"
	case OutcomeStale:
		return "The listing is no longer available"
	case OutcomeRetryable:
		return "Generation error, press Retry"
	default:
		return string(r.Outcome)
	}
}

// Deps 协调器依赖；Liveness 可为 nil
type Deps struct {
	Registry  *registry.Registry
	Guard     *Guard
	Artifacts *ArtifactCache
	Generator Generator
	Liveness  listing.LivenessChecker
	Sender    *delivery.Sender
	Formatter *notify.Formatter
	Logger    *log.Logger
	Report    func(err error)
}

// Coordinator 执行接受 / 跳过
type Coordinator struct {
	Deps
	opts Options
}

// NewCoordinator 创建协调器，并将 Guard 接为注册表的淘汰保护、将结果缓存接为移除回调
func NewCoordinator(deps Deps, opts Options) *Coordinator {
	if deps.Guard == nil {
		deps.Guard = NewGuard()
	}
	if deps.Artifacts == nil {
		deps.Artifacts = NewArtifactCache(nil, 0)
	}
	if deps.Formatter == nil {
		deps.Formatter = notify.NewFormatter()
	}
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	deps.Logger = deps.Logger.With("component", "action")
	if deps.Report == nil {
		deps.Report = func(error) {}
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 90 * time.Second
	}

	c := &Coordinator{Deps: deps, opts: opts}
	deps.Registry.SetPinned(deps.Guard.Held)
	deps.Registry.OnRemove(func(handle string) {
		if err := deps.Artifacts.Delete(context.Background(), handle); err != nil {
			c.Logger.Warn("delete artifact failed", "handle", handle, "error", err)
		}
	})
	return c
}

// State handle 当前状态
func (c *Coordinator) State(handle string) State {
	if c.Guard.Held(handle) {
		return StateInFlight
	}
	if _, ok := c.Registry.Lookup(handle); ok {
		return StateIdle
	}
	return StateUnknown
}

// Accept 生成并投递回复；dest 为空时回复到条目消息所在的目的地
func (c *Coordinator) Accept(ctx context.Context, handle, dest string) (res Result) {
	res.Handle = handle
	ctx, span := tracing.StartActionSpan(ctx, notify.ActionAccept, handle)
	defer func() {
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
		metrics.ActionTotal.WithLabelValues(notify.ActionAccept, string(res.Outcome)).Inc()
		tracing.End(span, res.Err)
	}()

	release, ok := c.Guard.TryAcquire(handle)
	if !ok {
		res.Outcome = OutcomeBusy
		return res
	}
	defer release()

	rec, ok := c.Registry.Lookup(handle)
	if !ok {
		res.Outcome = OutcomeExpired
		res.Err = pkgerrors.ErrExpired
		return res
	}
	ref, _ := c.Registry.Ref(handle)
	if dest == "" {
		dest = ref.Dest
	}
	base := c.itemText(rec)
	accepted := notify.AppendStatus(base, notify.StatusAccepted)
	c.mark(ctx, ref, notify.WithProgress(accepted, notify.StatusGenerating), nil)

	if c.opts.LivenessCheck && c.Liveness != nil && !c.Liveness.CheckLiveness(ctx, rec.Handle) {
		c.mark(ctx, ref, notify.WithProgress(accepted, notify.StatusStale), nil)
		c.Registry.Forget(handle)
		res.Outcome = OutcomeStale
		res.Err = pkgerrors.ErrStale
		return res
	}

	if dest == "" {
		return c.retryable(ctx, res, ref, accepted, "", pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "no destination for reply"))
	}

	text, cached, err := c.artifact(ctx, handle, rec)
	if err != nil {
		return c.retryable(ctx, res, ref, accepted, dest, pkgerrors.Wrap(err, "generate reply"))
	}
	res.Cached = cached

	replyTo := ""
	if ref.Dest == dest {
		replyTo = ref.MessageID
	}
	parts := c.Formatter.ArtifactParts(rec, text)
	_, err = c.Sender.SendParts(ctx, dest, "reply:"+handle, parts, func(i int, msg *notify.Message) {
		if i == 0 {
			msg.ReplyTo = replyTo
		}
	})
	if err != nil {
		return c.retryable(ctx, res, ref, accepted, dest, pkgerrors.Wrap(err, "deliver reply"))
	}

	c.mark(ctx, ref, notify.WithProgress(accepted, notify.StatusReplySent), nil)
	c.Registry.Forget(handle)
	res.Outcome = OutcomeCompleted
	res.Parts = len(parts)
	c.Logger.Info("reply delivered", "handle", handle, "listing", rec.Handle, "parts", len(parts), "cached", cached)
	return res
}

// Skip 放弃条目
func (c *Coordinator) Skip(ctx context.Context, handle string) (res Result) {
	res.Handle = handle
	ctx, span := tracing.StartActionSpan(ctx, notify.ActionSkip, handle)
	defer func() {
		metrics.ActionTotal.WithLabelValues(notify.ActionSkip, string(res.Outcome)).Inc()
		tracing.End(span, nil)
	}()

	release, ok := c.Guard.TryAcquire(handle)
	if !ok {
		res.Outcome = OutcomeBusy
		return res
	}
	defer release()

	if rec, ok := c.Registry.Lookup(handle); ok {
		ref, _ := c.Registry.Ref(handle)
		c.mark(ctx, ref, notify.AppendStatus(c.itemText(rec), notify.StatusSkipped), nil)
	}
	c.Registry.Forget(handle)
	res.Outcome = OutcomeRejected
	return res
}

// artifact 先查缓存，未命中时在单次超时与生成级重试下调用 Generator
func (c *Coordinator) artifact(ctx context.Context, handle string, rec *listing.Record) (string, bool, error) {
	text, ok, err := c.Artifacts.Get(ctx, handle)
	if err != nil {
		c.Logger.Warn("artifact cache read failed", "handle", handle, "error", err)
	}
	if ok {
		return text, true, nil
	}

	text, err = retry.DoValue(ctx, c.opts.GenerationRetry, nil, func(err error, attempt int, wait time.Duration) {
		c.Logger.Warn("generation failed, retrying", "handle", handle, "attempt", attempt, "wait", wait.String(), "error", err)
	}, func(ctx context.Context) (string, error) {
		actx, cancel := context.WithTimeout(ctx, c.opts.GenerateTimeout)
		defer cancel()
		return c.Generator.Generate(actx, rec)
	})
	if err != nil {
		return "", false, err
	}
	if err := c.Artifacts.Put(ctx, handle, text); err != nil {
		c.Logger.Warn("artifact cache write failed", "handle", handle, "error", err)
	}
	return text, false, nil
}

// retryable 保留 handle 与已缓存的结果，条目消息换成重试按钮
func (c *Coordinator) retryable(ctx context.Context, res Result, ref registry.MessageRef, accepted, dest string, err error) Result {
	res.Outcome = OutcomeRetryable
	res.Err = err
	c.Logger.Warn("accept failed", "handle", res.Handle, "error", err)
	c.Report(err)
	if errors.Is(err, context.Canceled) {
		return res
	}
	c.mark(ctx, ref, notify.WithProgress(accepted, notify.StatusGenFailed), notify.RetryButtons(res.Handle))
	if dest != "" {
		msg := notify.Message{
			Key:  res.Handle + ":error:" + strconv.FormatInt(time.Now().UnixNano(), 10),
			Text: "❗ " + html.EscapeString(err.Error()),
		}
		if ref.Dest == dest {
			msg.ReplyTo = ref.MessageID
		}
		if _, serr := c.Sender.Notifier().Send(ctx, dest, msg); serr != nil {
			c.Logger.Warn("send error reply failed", "handle", res.Handle, "error", serr)
		}
	}
	return res
}

func (c *Coordinator) itemText(rec *listing.Record) string {
	parts := c.Formatter.ItemParts(rec)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// mark 编辑条目首条消息；目标不支持编辑或消息未知时跳过
func (c *Coordinator) mark(ctx context.Context, ref registry.MessageRef, text string, buttons [][]notify.Button) {
	if ref.MessageID == "" {
		return
	}
	editor, ok := c.Sender.Notifier().(notify.Editor)
	if !ok {
		return
	}
	if err := editor.Edit(ctx, ref.Dest, ref.MessageID, text, buttons); err != nil {
		c.Logger.Warn("edit item message failed", "message_id", ref.MessageID, "error", err)
	}
}
