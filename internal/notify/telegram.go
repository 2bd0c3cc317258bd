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

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"listing-watcher/pkg/config"
	pkgerrors "listing-watcher/pkg/errors"
)

// Telegram Bot API 客户端：发送、编辑、回调应答与长轮询
type Telegram struct {
	client *resty.Client
}

// NewTelegram 创建客户端；APIURL 为空时使用官方地址
func NewTelegram(cfg config.TelegramConfig) *Telegram {
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	c := resty.New().
		SetBaseURL(base+"/bot"+cfg.Token).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Telegram{client: c}
}

type inlineKeyboard struct {
	InlineKeyboard [][]Button `json:"inline_keyboard"`
}

func markup(buttons [][]Button) *inlineKeyboard {
	if buttons == nil {
		return nil
	}
	return &inlineKeyboard{InlineKeyboard: buttons}
}

// call 调用 Bot API 方法，返回 result 字段
// ok=false 时按 error_code 构造 StatusError：429 / 5xx 可重试，其余视为永久失败
func (t *Telegram) call(ctx context.Context, method string, body interface{}) (gjson.Result, error) {
	resp, err := t.client.R().SetContext(ctx).SetBody(body).Post("/" + method)
	if err != nil {
		return gjson.Result{}, pkgerrors.Wrap(err, "telegram "+method)
	}
	payload := gjson.ParseBytes(resp.Body())
	if !payload.Get("ok").Bool() {
		code := int(payload.Get("error_code").Int())
		if code == 0 {
			code = resp.StatusCode()
		}
		desc := payload.Get("description").String()
		if desc == "" {
			desc = resp.String()
		}
		return gjson.Result{}, &pkgerrors.StatusError{Op: "telegram " + method, Code: code, Body: desc}
	}
	return payload.Get("result"), nil
}

// Send 实现 Notifier（HTML 模式，关闭链接预览）
func (t *Telegram) Send(ctx context.Context, dest string, msg Message) (Receipt, error) {
	body := map[string]interface{}{
		"chat_id":                  dest,
		"text":                     msg.Text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if m := markup(msg.Buttons); m != nil {
		body["reply_markup"] = m
	}
	if msg.ReplyTo != "" {
		body["reply_to_message_id"] = msg.ReplyTo
		body["allow_sending_without_reply"] = true
	}
	res, err := t.call(ctx, "sendMessage", body)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{MessageID: res.Get("message_id").String()}, nil
}

// Edit 实现 Editor；buttons 为 nil 时移除键盘。内容未变化不视为错误
func (t *Telegram) Edit(ctx context.Context, dest, messageID, text string, buttons [][]Button) error {
	body := map[string]interface{}{
		"chat_id":                  dest,
		"message_id":               messageID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if m := markup(buttons); m != nil {
		body["reply_markup"] = m
	} else {
		body["reply_markup"] = inlineKeyboard{InlineKeyboard: [][]Button{}}
	}
	_, err := t.call(ctx, "editMessageText", body)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// AnswerCallback 应答按钮回调（关闭客户端的加载状态）
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := t.call(ctx, "answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackID,
		"text":              text,
	})
	return err
}

// Update getUpdates 返回的一项（只关心文本消息与按钮回调）
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *InMessage     `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Chat 会话
type Chat struct {
	ID int64 `json:"id"`
}

// InMessage 收到的消息
type InMessage struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// CallbackQuery 按钮回调
type CallbackQuery struct {
	ID      string     `json:"id"`
	Data    string     `json:"data"`
	Message *InMessage `json:"message,omitempty"`
}

// ChatID 字符串形式的会话 ID
func (m *InMessage) ChatID() string { return strconv.FormatInt(m.Chat.ID, 10) }

// ID 字符串形式的消息 ID
func (m *InMessage) ID() string { return strconv.FormatInt(m.MessageID, 10) }

// GetUpdates 长轮询；timeout 为服务端挂起时长
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	secs := int(timeout / time.Second)
	res, err := t.call(ctx, "getUpdates", map[string]interface{}{
		"offset":          offset,
		"timeout":         secs,
		"allowed_updates": []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal([]byte(res.Raw), &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}
