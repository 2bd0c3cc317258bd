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

package watch

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SeenSet 固定容量、按插入顺序淘汰的已见集合
// 只由抓取协程访问，不加锁
type SeenSet struct {
	capacity int
	items    *orderedmap.OrderedMap[string, struct{}]
}

// NewSeenSet capacity<=0 时按 1 处理
func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = 1
	}
	return &SeenSet{
		capacity: capacity,
		items:    orderedmap.New[string, struct{}](),
	}
}

// Contains 是否已见
func (s *SeenSet) Contains(handle string) bool {
	_, ok := s.items.Get(handle)
	return ok
}

// Mark 记录 handle；重复插入不改变顺序，超出容量时淘汰最早插入的项
func (s *SeenSet) Mark(handle string) {
	if s.Contains(handle) {
		return
	}
	s.items.Set(handle, struct{}{})
	for s.items.Len() > s.capacity {
		oldest := s.items.Oldest()
		if oldest == nil {
			break
		}
		s.items.Delete(oldest.Key)
	}
}

// Len 当前大小
func (s *SeenSet) Len() int { return s.items.Len() }

// Cap 容量
func (s *SeenSet) Cap() int { return s.capacity }

// Handles 按插入顺序（旧到新）返回当前内容
func (s *SeenSet) Handles() []string {
	out := make([]string, 0, s.items.Len())
	for p := s.items.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}
