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

import "listing-watcher/internal/listing"

// Watermark 抓取水位：已处理过的最大序号与上一轮列表的首项
type Watermark struct {
	MaxOrdinal    int64
	LastTopHandle string
}

// Bootstrapping 水位未初始化时为首轮
func (w Watermark) Bootstrapping() bool {
	return w.MaxOrdinal == 0
}

// Advance 用本轮列表推进水位；MaxOrdinal 只增不减，空列表不改变 LastTopHandle
func (w Watermark) Advance(entries []listing.Entry) Watermark {
	if len(entries) == 0 {
		return w
	}
	for _, e := range entries {
		if e.HasOrdinal && e.Ordinal > w.MaxOrdinal {
			w.MaxOrdinal = e.Ordinal
		}
	}
	w.LastTopHandle = entries[0].Handle
	return w
}
