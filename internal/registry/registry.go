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

// Package registry 已投递条目的有界注册表：随机不可预测的 handle -> 详情记录
package registry

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"listing-watcher/internal/listing"
	"listing-watcher/pkg/metrics"
)

// PinnedFunc 返回 true 的 handle 在容量淘汰时被跳过（如正在处理的动作）
type PinnedFunc func(handle string) bool

// RemoveHook 条目被 Forget 或淘汰后调用，在锁外执行
type RemoveHook func(handle string)

// MessageRef 条目首条消息的位置，用于回复与状态编辑
type MessageRef struct {
	Dest      string `json:"dest"`
	MessageID string `json:"message_id,omitempty"`
}

// Registry 并发安全；按插入顺序淘汰最早的非 pinned 条目
type Registry struct {
	mu       sync.Mutex
	capacity int
	items    *orderedmap.OrderedMap[string, *listing.Record]
	refs     map[string]MessageRef
	pinned   PinnedFunc
	hooks    []RemoveHook
}

// New capacity<=0 时按 1 处理
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 1
	}
	return &Registry{
		capacity: capacity,
		items:    orderedmap.New[string, *listing.Record](),
		refs:     make(map[string]MessageRef),
	}
}

// SetPinned 设置淘汰保护判定
func (r *Registry) SetPinned(fn PinnedFunc) {
	r.mu.Lock()
	r.pinned = fn
	r.mu.Unlock()
}

// OnRemove 注册移除回调
func (r *Registry) OnRemove(fn RemoveHook) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// NewHandle 生成 32 位十六进制随机 handle
func NewHandle() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Remember 保存记录并返回新 handle；超出容量时淘汰最早的非 pinned 条目
// 若所有条目都 pinned，允许暂时超出容量，下次插入时再淘汰
func (r *Registry) Remember(rec *listing.Record) string {
	handle := NewHandle()

	r.mu.Lock()
	for {
		if _, taken := r.items.Get(handle); !taken {
			break
		}
		handle = NewHandle()
	}
	r.items.Set(handle, rec)
	evicted := r.evictLocked(handle)
	hooks := r.hooks
	size := r.items.Len()
	r.mu.Unlock()

	metrics.RegistrySize.Set(float64(size))
	for _, h := range evicted {
		for _, fn := range hooks {
			fn(h)
		}
	}
	return handle
}

// evictLocked 不淘汰刚插入的 keep
func (r *Registry) evictLocked(keep string) []string {
	var evicted []string
	for r.items.Len() > r.capacity {
		var victim string
		for p := r.items.Oldest(); p != nil; p = p.Next() {
			if p.Key == keep || (r.pinned != nil && r.pinned(p.Key)) {
				continue
			}
			victim = p.Key
			break
		}
		if victim == "" {
			break
		}
		r.items.Delete(victim)
		delete(r.refs, victim)
		evicted = append(evicted, victim)
	}
	return evicted
}

// Lookup 查找记录
func (r *Registry) Lookup(handle string) (*listing.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items.Get(handle)
}

// Attach 记录条目首条消息位置；handle 不存在时忽略
func (r *Registry) Attach(handle string, ref MessageRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items.Get(handle); ok {
		r.refs[handle] = ref
	}
}

// Ref 条目首条消息位置
func (r *Registry) Ref(handle string) (MessageRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[handle]
	return ref, ok
}

// Forget 移除记录，返回是否存在；重复调用安全
func (r *Registry) Forget(handle string) bool {
	r.mu.Lock()
	_, ok := r.items.Delete(handle)
	delete(r.refs, handle)
	hooks := r.hooks
	size := r.items.Len()
	r.mu.Unlock()

	metrics.RegistrySize.Set(float64(size))
	if ok {
		for _, fn := range hooks {
			fn(handle)
		}
	}
	return ok
}

// Len 当前条目数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items.Len()
}

// Cap 容量
func (r *Registry) Cap() int { return r.capacity }
