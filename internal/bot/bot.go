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

// Package bot Telegram 控制面：/start /stop /status 命令与条目按钮回调
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"listing-watcher/internal/action"
	"listing-watcher/internal/delivery"
	"listing-watcher/internal/engine"
	"listing-watcher/internal/notify"
	"listing-watcher/internal/registry"
	"listing-watcher/pkg/log"
)

const (
	textStarting       = "⏳ Starting…"
	textStarted        = "✅ Monitoring started. I’ll send new job listings here."
	textAlreadyRunning = "Already running"
	textNotStarted     = "Parser is not started yet. /start"
	textStopping       = "Stopping…"
	textStopped        = "⏹ Stopped"
	textGettingStatus  = "⏳ Getting status…"

	stopTimeout  = 30 * time.Second
	pollBackoff  = 2 * time.Second
	replyTimeout = 15 * time.Second
)

// Client 机器人所需的 Telegram 能力
type Client interface {
	notify.Notifier
	notify.Editor
	AnswerCallback(ctx context.Context, callbackID, text string) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]notify.Update, error)
}

// Controller 引擎操作
type Controller interface {
	Start(dest string) error
	Stop(ctx context.Context) error
	Running() bool
	Accept(ctx context.Context, handle, dest string) action.Result
	Skip(ctx context.Context, handle string) action.Result
	ItemState(handle string) action.State
	Status(ctx context.Context) engine.Status
	OnDelivered(fn delivery.DeliveredFunc)
}

type notice struct {
	dest      string
	messageID string
}

// Bot 长轮询 getUpdates 并分发命令与回调
type Bot struct {
	client      Client
	ctrl        Controller
	pollTimeout time.Duration
	logger      *log.Logger

	mu     sync.Mutex
	notice *notice
	wg     sync.WaitGroup
}

// New 创建机器人，并注册首条投递后的启动提示更新
func New(client Client, ctrl Controller, pollTimeout time.Duration, logger *log.Logger) *Bot {
	if logger == nil {
		logger = log.Nop()
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	b := &Bot{client: client, ctrl: ctrl, pollTimeout: pollTimeout, logger: logger.With("component", "bot")}
	ctrl.OnDelivered(b.onDelivered)
	return b
}

// Run 轮询直到 ctx 取消；回调处理协程在返回前全部结束
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot polling started")
	defer b.logger.Info("bot polling stopped")
	defer b.wg.Wait()

	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollBackoff):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.Handle(ctx, u)
		}
	}
}

// Handle 处理单个 update；回调在独立协程中执行，不阻塞轮询
func (b *Bot) Handle(ctx context.Context, u notify.Update) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("callback panicked", "data", q.Data, "panic", fmt.Sprint(r))
				}
			}()
			b.handleCallback(ctx, q)
		}()
	case u.Message != nil:
		b.handleCommand(ctx, u.Message)
	}
}

func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}

func (b *Bot) handleCommand(ctx context.Context, m *notify.InMessage) {
	chat := m.ChatID()
	switch command(m.Text) {
	case "/start":
		b.start(ctx, chat)
	case "/stop":
		b.stop(ctx, chat)
	case "/status":
		b.status(ctx, chat)
	}
}

func (b *Bot) start(ctx context.Context, chat string) {
	if b.ctrl.Running() {
		b.reply(ctx, chat, textAlreadyRunning)
		return
	}
	id := b.reply(ctx, chat, textStarting)
	if err := b.ctrl.Start(chat); err != nil {
		text := "❗ " + err.Error()
		if errors.Is(err, engine.ErrAlreadyRunning) {
			text = textAlreadyRunning
		}
		b.edit(ctx, chat, id, text)
		return
	}
	if id != "" {
		b.mu.Lock()
		b.notice = &notice{dest: chat, messageID: id}
		b.mu.Unlock()
	}
}

func (b *Bot) stop(ctx context.Context, chat string) {
	if !b.ctrl.Running() {
		b.reply(ctx, chat, textNotStarted)
		return
	}
	id := b.reply(ctx, chat, textStopping)
	sctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := b.ctrl.Stop(sctx); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		b.logger.Warn("stop failed", "error", err)
		return
	}
	b.mu.Lock()
	b.notice = nil
	b.mu.Unlock()
	b.edit(ctx, chat, id, textStopped)
}

func (b *Bot) status(ctx context.Context, chat string) {
	id := b.reply(ctx, chat, textGettingStatus)
	text := StatusHTML(b.ctrl.Status(ctx))
	if id == "" {
		b.reply(ctx, chat, text)
		return
	}
	b.edit(ctx, chat, id, text)
}

func (b *Bot) handleCallback(ctx context.Context, q *notify.CallbackQuery) {
	act, handle, ok := notify.ParseCallback(q.Data)
	if !ok || q.Message == nil {
		b.answer(ctx, q.ID, "Unknown action")
		return
	}
	chat := q.Message.ChatID()

	switch act {
	case notify.ActionSkip:
		res := b.ctrl.Skip(ctx, handle)
		b.answer(ctx, q.ID, res.Message())
	case notify.ActionAccept:
		// 生成可能很慢，先应答回调
		switch b.ctrl.ItemState(handle) {
		case action.StateInFlight:
			b.answer(ctx, q.ID, action.Result{Outcome: action.OutcomeBusy}.Message())
			return
		case action.StateUnknown:
			b.answer(ctx, q.ID, action.Result{Outcome: action.OutcomeExpired}.Message())
			return
		}
		b.answer(ctx, q.ID, notify.StatusGenerating)
		res := b.ctrl.Accept(ctx, handle, chat)
		b.logger.Info("accept finished", "handle", handle, "outcome", res.Outcome, "error", res.Error)
		// 状态检查与加锁之间存在竞争，回调已应答，结果改为消息回复
		switch res.Outcome {
		case action.OutcomeBusy, action.OutcomeExpired:
			b.reply(ctx, chat, res.Message())
		}
	}
}

// onDelivered 启动后首条条目送达时更新启动提示
func (b *Bot) onDelivered(ctx context.Context, handle string, ref registry.MessageRef) {
	b.mu.Lock()
	n := b.notice
	b.notice = nil
	b.mu.Unlock()
	if n == nil {
		return
	}
	b.edit(ctx, n.dest, n.messageID, textStarted)
}

func (b *Bot) reply(ctx context.Context, chat, text string) string {
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	r, err := b.client.Send(ctx, chat, notify.Message{Text: text})
	if err != nil {
		b.logger.Warn("send reply failed", "chat", chat, "error", err)
		return ""
	}
	return r.MessageID
}

func (b *Bot) edit(ctx context.Context, chat, messageID, text string) {
	if messageID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	if err := b.client.Edit(ctx, chat, messageID, text, nil); err != nil {
		b.logger.Warn("edit message failed", "chat", chat, "error", err)
	}
}

func (b *Bot) answer(ctx context.Context, id, text string) {
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	if err := b.client.AnswerCallback(ctx, id, text); err != nil {
		b.logger.Warn("answer callback failed", "error", err)
	}
}
