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

package action

import (
	"context"
	"errors"
	"time"

	"listing-watcher/internal/storage/cache"
	pkgerrors "listing-watcher/pkg/errors"
)

const artifactPrefix = "artifact:"

// ArtifactCache handle -> 生成结果
type ArtifactCache struct {
	store cache.Store
	ttl   time.Duration
}

// NewArtifactCache ttl<=0 表示不过期（仍随 handle 移除而清理）
func NewArtifactCache(store cache.Store, ttl time.Duration) *ArtifactCache {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &ArtifactCache{store: store, ttl: ttl}
}

// Get 未命中返回 ok=false 且 err=nil
func (c *ArtifactCache) Get(ctx context.Context, handle string) (string, bool, error) {
	var text string
	err := c.store.Get(ctx, artifactPrefix+handle, &text)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// Put 保存生成结果
func (c *ArtifactCache) Put(ctx context.Context, handle, text string) error {
	return c.store.Set(ctx, artifactPrefix+handle, text, c.ttl)
}

// Delete 删除；不存在时不报错
func (c *ArtifactCache) Delete(ctx context.Context, handle string) error {
	return c.store.Delete(ctx, artifactPrefix+handle)
}
