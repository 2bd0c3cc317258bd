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

// Package delivery 投递：单消费者按 FIFO 取出抓取结果，注册到 JobRegistry 后按节奏分片发送
package delivery

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"listing-watcher/internal/notify"
	"listing-watcher/pkg/log"
	"listing-watcher/pkg/metrics"
	"listing-watcher/pkg/retry"
)

// Sender 逐条发送消息分片；全局节奏由令牌桶控制，每条分片带投递级重试
type Sender struct {
	notifier notify.Notifier
	limiter  *rate.Limiter
	policy   retry.Policy
	logger   *log.Logger
}

// NewSender partDelay<=0 时不限速
func NewSender(notifier notify.Notifier, partDelay time.Duration, policy retry.Policy, logger *log.Logger) *Sender {
	if logger == nil {
		logger = log.Nop()
	}
	limit := rate.Inf
	if partDelay > 0 {
		limit = rate.Every(partDelay)
	}
	return &Sender{
		notifier: notifier,
		limiter:  rate.NewLimiter(limit, 1),
		policy:   policy,
		logger:   logger,
	}
}

// Decorate 修改第 i 条分片（按钮、回复目标）
type Decorate func(i int, msg *notify.Message)

// SendParts 按顺序发送；某条最终失败时放弃后续分片，返回已送达的回执与错误
// 分片幂等键为 key:i，重试不会在支持去重的目标上重复生效
func (s *Sender) SendParts(ctx context.Context, dest, key string, parts []string, decorate Decorate) ([]notify.Receipt, error) {
	receipts := make([]notify.Receipt, 0, len(parts))
	for i, text := range parts {
		if err := s.limiter.Wait(ctx); err != nil {
			return receipts, err
		}
		msg := notify.Message{Key: key + ":" + strconv.Itoa(i), Text: text}
		if decorate != nil {
			decorate(i, &msg)
		}
		r, err := retry.DoValue(ctx, s.policy, nil, func(err error, attempt int, wait time.Duration) {
			s.logger.Warn("send part failed, retrying", "key", msg.Key, "attempt", attempt, "wait", wait.String(), "error", err)
		}, func(ctx context.Context) (notify.Receipt, error) {
			return s.notifier.Send(ctx, dest, msg)
		})
		if err != nil {
			metrics.DeliveryPartsTotal.WithLabelValues("failed").Inc()
			return receipts, err
		}
		metrics.DeliveryPartsTotal.WithLabelValues("ok").Inc()
		receipts = append(receipts, r)
	}
	return receipts, nil
}

// Notifier 底层通知目标
func (s *Sender) Notifier() notify.Notifier { return s.notifier }
