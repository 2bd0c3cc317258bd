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
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-watcher/internal/listing"
	pkgerrors "listing-watcher/pkg/errors"
)

type fakeFetcher struct {
	mu        sync.Mutex
	listings  [][]string // 每次 FetchListing 依次返回，最后一项重复
	scanErrs  map[int]error
	detailErr map[string]error
	calls     int
	details   []string
	reloads   int
	limits    []int
}

func (f *fakeFetcher) FetchListing(_ context.Context, limit int) ([]listing.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	f.limits = append(f.limits, limit)
	if err, ok := f.scanErrs[idx]; ok {
		return nil, err
	}
	if len(f.listings) == 0 {
		return nil, nil
	}
	if idx >= len(f.listings) {
		idx = len(f.listings) - 1
	}
	handles := f.listings[idx]
	if limit > 0 && len(handles) > limit {
		handles = handles[:limit]
	}
	out := make([]listing.Entry, 0, len(handles))
	for _, h := range handles {
		out = append(out, listing.NewEntry(h))
	}
	return out, nil
}

func (f *fakeFetcher) FetchDetail(_ context.Context, handle string) (*listing.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details = append(f.details, handle)
	if err, ok := f.detailErr[handle]; ok {
		return nil, err
	}
	return &listing.Record{Handle: handle, Title: "title " + handle}, nil
}

func (f *fakeFetcher) Reload(context.Context) error {
	f.mu.Lock()
	f.reloads++
	f.mu.Unlock()
	return nil
}

func handles(from, to int) []string {
	var out []string
	for i := from; i >= to; i-- {
		out = append(out, fmt.Sprintf("/jobs/item-%d", i))
	}
	return out
}

func drain(ch chan *listing.Record) []string {
	var out []string
	for {
		select {
		case r := <-ch:
			out = append(out, r.Handle)
		default:
			return out
		}
	}
}

func newTestCrawler(f listing.Fetcher, out chan *listing.Record, opts Options) *Crawler {
	return NewCrawler(f, out, opts, nil, nil)
}

func TestSeenSet_CapacityAndOrder(t *testing.T) {
	s := NewSeenSet(3)
	for _, h := range []string{"a", "b", "c", "a", "d", "e"} {
		s.Mark(h)
	}
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"c", "d", "e"}, s.Handles())
	assert.False(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
	assert.True(t, s.Contains("e"))

	s.Mark("c")
	assert.Equal(t, []string{"c", "d", "e"}, s.Handles(), "duplicate insert is a no-op")
}

func TestSeenSet_NPlusK(t *testing.T) {
	const n, k = 50, 17
	s := NewSeenSet(n)
	for i := 0; i < n+k; i++ {
		s.Mark(fmt.Sprint(i))
		require.LessOrEqual(t, s.Len(), n)
	}
	got := s.Handles()
	require.Len(t, got, n)
	assert.Equal(t, fmt.Sprint(k), got[0])
	assert.Equal(t, fmt.Sprint(n+k-1), got[n-1])
}

func TestWatermark_Advance(t *testing.T) {
	w := Watermark{}
	assert.True(t, w.Bootstrapping())
	w = w.Advance([]listing.Entry{listing.NewEntry("/x-10"), listing.NewEntry("/x-9")})
	assert.Equal(t, Watermark{MaxOrdinal: 10, LastTopHandle: "/x-10"}, w)

	w = w.Advance(nil)
	assert.Equal(t, int64(10), w.MaxOrdinal)
	assert.Equal(t, "/x-10", w.LastTopHandle, "empty window keeps last top")

	w = w.Advance([]listing.Entry{listing.NewEntry("/x-3"), listing.NewEntry("/no-ordinal")})
	assert.Equal(t, int64(10), w.MaxOrdinal)
	assert.Equal(t, "/x-3", w.LastTopHandle)
}

func TestRunCycle_BootstrapCap(t *testing.T) {
	f := &fakeFetcher{listings: [][]string{handles(111, 100)}}
	out := make(chan *listing.Record, 32)
	c := newTestCrawler(f, out, Options{ScanLimit: 4, BootstrapMultiplier: 3, PerCycleCap: 5, SeenLimit: 50})

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Bootstrap)
	assert.Equal(t, 12, res.Fetched)
	assert.Equal(t, []int{12}, f.limits)

	assert.Equal(t, []string{
		"/jobs/item-107", "/jobs/item-108", "/jobs/item-109", "/jobs/item-110", "/jobs/item-111",
	}, drain(out))

	snap := c.Snapshot()
	assert.Equal(t, int64(111), snap.MaxOrdinal)
	assert.Equal(t, "/jobs/item-111", snap.LastTopHandle)
	assert.Equal(t, 5, snap.SeenLen)
}

func TestRunCycle_ItemDelayOnlyBetweenItems(t *testing.T) {
	f := &fakeFetcher{listings: [][]string{handles(11, 10)}}
	out := make(chan *listing.Record, 32)
	c := newTestCrawler(f, out, Options{
		ScanLimit: 2, BootstrapMultiplier: 1, PerCycleCap: 5, SeenLimit: 50,
		ItemDelay: 150 * time.Millisecond,
	})

	start := time.Now()
	res, err := c.RunCycle(context.Background())
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pushed)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond, "no pause after the last item")
}

func TestRunCycle_SteadyStatePrefix(t *testing.T) {
	listingNow := []string{"/jobs/item-53", "/jobs/item-52", "/jobs/item-51", "/jobs/item-50", "/jobs/item-49"}
	f := &fakeFetcher{listings: [][]string{listingNow}}
	out := make(chan *listing.Record, 32)
	c := newTestCrawler(f, out, Options{ScanLimit: 5, PerCycleCap: 1, SeenLimit: 50})
	c.wm = Watermark{MaxOrdinal: 50, LastTopHandle: "/jobs/item-50"}

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Bootstrap)
	assert.Equal(t, []int{5}, f.limits, "steady state scans the normal window")
	assert.Equal(t, []string{"/jobs/item-51", "/jobs/item-52", "/jobs/item-53"}, drain(out),
		"per-cycle cap only bounds the bootstrap cycle")
	assert.Equal(t, int64(53), c.Snapshot().MaxOrdinal)
}

func TestRunCycle_ShiftedListingFallsBackToWholeWindow(t *testing.T) {
	f := &fakeFetcher{listings: [][]string{{"/jobs/item-62", "/jobs/item-61", "/jobs/item-58"}}}
	out := make(chan *listing.Record, 32)
	c := newTestCrawler(f, out, Options{ScanLimit: 5, SeenLimit: 50})
	c.wm = Watermark{MaxOrdinal: 60, LastTopHandle: "/jobs/item-60"}

	_, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/jobs/item-61", "/jobs/item-62"}, drain(out))
}

func TestRunCycle_DetailFailureMarksSeen(t *testing.T) {
	f := &fakeFetcher{
		listings:  [][]string{handles(12, 10)},
		detailErr: map[string]error{"/jobs/item-11": pkgerrors.Structural(errors.New("no description"))},
	}
	out := make(chan *listing.Record, 32)
	var reported []error
	c := NewCrawler(f, out, Options{ScanLimit: 3, PerCycleCap: 5, SeenLimit: 50}, nil, func(err error) {
		reported = append(reported, err)
	})

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pushed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"/jobs/item-10", "/jobs/item-12"}, drain(out))
	assert.True(t, c.seen.Contains("/jobs/item-11"), "failed item is marked seen anyway")
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "/jobs/item-11")

	// 再次以首轮方式扫描，失败条目也不会重试
	c.Reset()
	_, err = c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drain(out))
	assert.Equal(t, 3, len(f.details))
}

func TestRunCycle_WatermarkNonDecreasing(t *testing.T) {
	f := &fakeFetcher{
		listings: [][]string{
			handles(60, 58),
			nil, // 占位：被 scanErrs 覆盖
			{},
			{"/jobs/item-55", "/jobs/item-54"},
			handles(61, 59),
		},
		scanErrs: map[int]error{1: pkgerrors.Transient(errors.New("timeout"))},
	}
	out := make(chan *listing.Record, 32)
	c := newTestCrawler(f, out, Options{ScanLimit: 3, PerCycleCap: 3, SeenLimit: 50})
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		_, _ = c.RunCycle(ctx)
		cur := c.Snapshot().MaxOrdinal
		assert.GreaterOrEqual(t, cur, prev, "cycle %d", i)
		prev = cur
	}
	assert.Equal(t, int64(61), prev)
	assert.Equal(t, []string{"/jobs/item-58", "/jobs/item-59", "/jobs/item-60", "/jobs/item-61"}, drain(out))
}

func TestRunCycle_ScanErrorKeepsWatermark(t *testing.T) {
	f := &fakeFetcher{scanErrs: map[int]error{0: pkgerrors.Transient(errors.New("boom"))}}
	c := newTestCrawler(f, make(chan *listing.Record, 1), Options{})
	_, err := c.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, Watermark{}, c.wm)
}

func TestRunCycle_NoDuplicatesAcrossChurn(t *testing.T) {
	f := &fakeFetcher{listings: [][]string{
		handles(10, 6),
		handles(12, 8),
		{"/jobs/item-12", "/jobs/item-13", "/jobs/item-11"}, // 排序抖动
		handles(15, 11),
		{"/jobs/item-16", "/jobs/item-14", "/jobs/item-15"},
		handles(16, 12),
	}}
	out := make(chan *listing.Record, 64)
	c := newTestCrawler(f, out, Options{ScanLimit: 5, PerCycleCap: 5, SeenLimit: 50})
	for i := 0; i < 6; i++ {
		_, err := c.RunCycle(context.Background())
		require.NoError(t, err)
	}
	got := drain(out)
	seen := map[string]bool{}
	for _, h := range got {
		assert.False(t, seen[h], "duplicate delivery of %s", h)
		seen[h] = true
	}
	for i := 6; i <= 16; i++ {
		if i == 13 {
			continue
		}
		assert.True(t, seen[fmt.Sprintf("/jobs/item-%d", i)], "item-%d delivered", i)
	}
}

func TestRunCycle_CancelWhileQueueFull(t *testing.T) {
	f := &fakeFetcher{listings: [][]string{handles(3, 1)}}
	out := make(chan *listing.Record) // 无缓冲且无人消费
	c := newTestCrawler(f, out, Options{ScanLimit: 3, PerCycleCap: 3, SeenLimit: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.RunCycle(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Watermark{}, c.wm, "aborted cycle does not advance the watermark")
	assert.Equal(t, 0, c.seen.Len(), "item not pushed is not marked seen")
}

func TestRun_StopsAndRecoversFromScanErrors(t *testing.T) {
	f := &fakeFetcher{
		listings: [][]string{handles(5, 4)},
		scanErrs: map[int]error{0: pkgerrors.Transient(errors.New("flaky"))},
	}
	out := make(chan *listing.Record, 8)
	var mu sync.Mutex
	var reported []error
	c := NewCrawler(f, out, Options{
		ScanLimit: 2, PerCycleCap: 2, SeenLimit: 10,
		Interval: time.Hour, ErrorDelay: 5 * time.Millisecond,
	}, nil, func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(out) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "flaky")
	f.mu.Lock()
	assert.GreaterOrEqual(t, f.reloads, 1)
	f.mu.Unlock()
}
