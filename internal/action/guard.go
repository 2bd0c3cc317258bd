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
	"sync"

	"listing-watcher/pkg/metrics"
)

// Guard 正在处理的 handle 集合；同一 handle 同时至多一个动作
type Guard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewGuard 创建 Guard
func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// TryAcquire 立即返回；ok 为 true 时调用方必须调用 release（可重复调用）
func (g *Guard) TryAcquire(handle string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[handle]; busy {
		return nil, false
	}
	g.inflight[handle] = struct{}{}
	metrics.ActionsInFlight.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, handle)
			g.mu.Unlock()
			metrics.ActionsInFlight.Dec()
		})
	}, true
}

// Held handle 是否正在处理
func (g *Guard) Held(handle string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[handle]
	return ok
}

// Len 正在处理的数量
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}
