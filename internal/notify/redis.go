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
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "listing-watcher/pkg/errors"
)

// RedisPublisher 将消息发布到 Redis 频道 <prefix>notify:<dest>
// 以 SETNX <prefix>sent:<key> 去重，发布失败时释放去重键以便重试
type RedisPublisher struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPublisher 创建发布器；ttl 为去重键有效期
func NewRedisPublisher(client *redis.Client, prefix string, ttl time.Duration) *RedisPublisher {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisPublisher{client: client, prefix: prefix, ttl: ttl}
}

type published struct {
	Key  string `json:"key"`
	Text string `json:"text"`
	At   int64  `json:"at"`
}

// Channel 目的地对应的频道名
func (p *RedisPublisher) Channel(dest string) string {
	return p.prefix + "notify:" + dest
}

// Send 实现 Notifier
func (p *RedisPublisher) Send(ctx context.Context, dest string, msg Message) (Receipt, error) {
	dedupe := ""
	if msg.Key != "" {
		dedupe = p.prefix + "sent:" + msg.Key
		ok, err := p.client.SetNX(ctx, dedupe, 1, p.ttl).Result()
		if err != nil {
			return Receipt{}, pkgerrors.Transient(fmt.Errorf("redis setnx: %w", err))
		}
		if !ok {
			return Receipt{MessageID: msg.Key, Duplicate: true}, nil
		}
	}

	payload, err := json.Marshal(published{Key: msg.Key, Text: msg.Text, At: time.Now().Unix()})
	if err != nil {
		return Receipt{}, err
	}
	if err := p.client.Publish(ctx, p.Channel(dest), payload).Err(); err != nil {
		if dedupe != "" {
			_ = p.client.Del(context.WithoutCancel(ctx), dedupe).Err()
		}
		return Receipt{}, pkgerrors.Transient(fmt.Errorf("redis publish: %w", err))
	}
	return Receipt{MessageID: msg.Key}, nil
}
