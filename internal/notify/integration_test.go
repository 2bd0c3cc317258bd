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
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-watcher/internal/registry"
)

// 以下测试需要真实服务：REDIS_ADDR / POSTGRES_DSN

func TestRedisPublisher_Dedupe(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	p := NewRedisPublisher(client, "watcher-test:", time.Minute)

	sub := client.Subscribe(ctx, p.Channel("chan"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	key := registry.NewHandle() + ":0"
	r1, err := p.Send(ctx, "chan", Message{Key: key, Text: "hello"})
	require.NoError(t, err)
	assert.False(t, r1.Duplicate)
	r2, err := p.Send(ctx, "chan", Message{Key: key, Text: "hello"})
	require.NoError(t, err)
	assert.True(t, r2.Duplicate)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"text":"hello"`)
}

func TestPostgresSink_Idempotent(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	sink, err := NewPostgresSink(ctx, dsn, "delivered_items_test")
	require.NoError(t, err)
	defer sink.Close()

	key := registry.NewHandle() + ":0"
	r1, err := sink.Send(ctx, "d", Message{Key: key, Text: "body"})
	require.NoError(t, err)
	assert.False(t, r1.Duplicate)
	r2, err := sink.Send(ctx, "d", Message{Key: key, Text: "body"})
	require.NoError(t, err)
	assert.True(t, r2.Duplicate)

	_, err = sink.Send(ctx, "d", Message{Text: "no key"})
	assert.Error(t, err)
}
