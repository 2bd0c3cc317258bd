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

// Package retry 提供统一的有界指数退避重试（扫描、详情拉取、投递、生成共用）
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	pkgerrors "listing-watcher/pkg/errors"
)

// Policy 重试策略；MaxAttempts 含首次执行
type Policy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Initial     time.Duration `mapstructure:"initial"`
	Max         time.Duration `mapstructure:"max"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// Notify 每次失败且即将重试时回调，attempt 从 1 开始
type Notify func(err error, attempt int, wait time.Duration)

// Classifier 判断错误是否可重试
type Classifier func(err error) bool

// DefaultPolicy 3 次尝试，1.2s 起步、倍率 1.7，上限 30s
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Initial: 1200 * time.Millisecond, Max: 30 * time.Second, Multiplier: 1.7}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = 500 * time.Millisecond
	}
	if p.Max <= 0 || p.Max < p.Initial {
		p.Max = p.Initial * 30
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// Do 按策略执行 op；classify 返回 false 的错误立即返回不再重试，classify 为 nil 时使用 errors.IsTransient
func Do(ctx context.Context, p Policy, classify Classifier, notify Notify, op func(ctx context.Context) error) error {
	p = p.normalized()
	if classify == nil {
		classify = pkgerrors.IsTransient
	}
	attempt := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := op(ctx)
		if err != nil && !classify(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) { notify(err, attempt, wait) }
	}
	return backoff.RetryNotify(operation, p.backOff(ctx), onRetry)
}

// DoValue 与 Do 相同，但返回 op 的结果值
func DoValue[T any](ctx context.Context, p Policy, classify Classifier, notify Notify, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, classify, notify, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
