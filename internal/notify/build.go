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
	"fmt"

	"github.com/redis/go-redis/v9"

	"listing-watcher/pkg/config"
	"listing-watcher/pkg/log"
)

// Targets 按配置构建的通知目标
type Targets struct {
	*Multi
	// Telegram 配置了 telegram 目标时非 nil，供机器人命令与回调使用
	Telegram *Telegram
	closers  []func()
}

// Close 释放连接
func (t *Targets) Close() {
	for _, c := range t.closers {
		c()
	}
}

// Build 根据 notify.targets 构建目标，顺序即主次顺序
func Build(ctx context.Context, cfg config.NotifyConfig, logger *log.Logger) (*Targets, error) {
	t := &Targets{}
	var list []Notifier
	for _, name := range cfg.Targets {
		switch name {
		case "telegram":
			t.Telegram = NewTelegram(cfg.Telegram)
			list = append(list, t.Telegram)
		case "redis":
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			t.closers = append(t.closers, func() { _ = client.Close() })
			list = append(list, NewRedisPublisher(client, cfg.Redis.Prefix, cfg.Redis.TTL))
		case "postgres":
			sink, err := NewPostgresSink(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
			if err != nil {
				t.Close()
				return nil, err
			}
			t.closers = append(t.closers, sink.Close)
			list = append(list, sink)
		default:
			t.Close()
			return nil, fmt.Errorf("unsupported notify target: %s", name)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no notify targets configured")
	}
	t.Multi = NewMulti(logger, list[0], list[1:]...)
	return t, nil
}
