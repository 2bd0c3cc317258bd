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

// Package notify 出站通知：Telegram、Redis、Postgres 归档及多目标分发，附消息格式化
package notify

import (
	"context"
	"strings"

	"listing-watcher/pkg/log"
)

// Button 内联按钮
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

// Message 出站消息；Key 为幂等键（同一 Key 重复发送在支持去重的目标上只生效一次）
type Message struct {
	Key     string
	Text    string
	Buttons [][]Button
	ReplyTo string
}

// Receipt 发送回执
type Receipt struct {
	MessageID string
	Duplicate bool
}

// Notifier 向目的地发送消息
type Notifier interface {
	Send(ctx context.Context, dest string, msg Message) (Receipt, error)
}

// Editor 可选能力：修改已发送消息的文本与按钮
type Editor interface {
	Edit(ctx context.Context, dest, messageID, text string, buttons [][]Button) error
}

// Multi 先发送主目标，成功后尽力发送到其余目标（仅记录失败）
// 重试只会发生在主目标失败时，因此次要目标不会因重试重复收到消息
type Multi struct {
	primary Notifier
	rest    []Notifier
	logger  *log.Logger
}

// NewMulti 第一个 notifier 为主目标
func NewMulti(logger *log.Logger, primary Notifier, rest ...Notifier) *Multi {
	if logger == nil {
		logger = log.Nop()
	}
	return &Multi{primary: primary, rest: rest, logger: logger}
}

// Send 实现 Notifier
func (m *Multi) Send(ctx context.Context, dest string, msg Message) (Receipt, error) {
	r, err := m.primary.Send(ctx, dest, msg)
	if err != nil {
		return r, err
	}
	for _, n := range m.rest {
		if _, err := n.Send(ctx, dest, msg); err != nil {
			m.logger.Warn("secondary notify failed", "key", msg.Key, "error", err)
		}
	}
	return r, nil
}

// Edit 委托给主目标（若支持）
func (m *Multi) Edit(ctx context.Context, dest, messageID, text string, buttons [][]Button) error {
	if e, ok := m.primary.(Editor); ok {
		return e.Edit(ctx, dest, messageID, text, buttons)
	}
	return nil
}

// Primary 返回主目标
func (m *Multi) Primary() Notifier { return m.primary }

const callbackPrefix = "job"

// 动作名
const (
	ActionAccept = "accept"
	ActionSkip   = "skip"
)

// CallbackData 编码按钮回调数据，如 job:accept:<handle>
func CallbackData(action, handle string) string {
	return callbackPrefix + ":" + action + ":" + handle
}

// ParseCallback 解析 CallbackData 生成的数据
func ParseCallback(data string) (action, handle string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[2] == "" {
		return "", "", false
	}
	switch parts[1] {
	case ActionAccept, ActionSkip:
		return parts[1], parts[2], true
	default:
		return "", "", false
	}
}

// ActionButtons 条目首条消息上的 Accept / Skip 按钮
func ActionButtons(handle string) [][]Button {
	return [][]Button{{
		{Text: "✅ Accept", Data: CallbackData(ActionAccept, handle)},
		{Text: "❌ Skip", Data: CallbackData(ActionSkip, handle)},
	}}
}

// RetryButtons 生成失败后的重试按钮
func RetryButtons(handle string) [][]Button {
	return [][]Button{{
		{Text: "🔁 Retry", Data: CallbackData(ActionAccept, handle)},
	}}
}
