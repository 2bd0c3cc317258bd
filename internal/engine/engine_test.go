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

package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-watcher/internal/action"
	"listing-watcher/internal/listing"
	"listing-watcher/internal/model/llm"
	"listing-watcher/internal/notify"
	"listing-watcher/internal/registry"
	"listing-watcher/pkg/config"
	"listing-watcher/pkg/retry"
)

type fakeFetcher struct {
	entries []listing.Entry
}

func (f *fakeFetcher) FetchListing(ctx context.Context, limit int) ([]listing.Entry, error) {
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeFetcher) FetchDetail(ctx context.Context, handle string) (*listing.Record, error) {
	return &listing.Record{Handle: handle, Title: "Job " + handle, URL: "https://jobs.test" + handle}, nil
}

type panickingFetcher struct{ fakeFetcher }

func (panickingFetcher) FetchListing(ctx context.Context, limit int) ([]listing.Entry, error) {
	panic("listing layout changed")
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	dest []string
}

func (n *recordingNotifier) Send(ctx context.Context, dest string, msg notify.Message) (notify.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	n.dest = append(n.dest, dest)
	return notify.Receipt{MessageID: fmt.Sprint(len(n.sent))}, nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, rec *listing.Record) (string, error) {
	return "hello " + rec.Title, nil
}

type fakeUsage struct{ n int }

func (u fakeUsage) Today() int           { return u.n }
func (u fakeUsage) NextReset() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }

type fakeAccount struct{}

func (fakeAccount) Key(ctx context.Context) (*llm.KeyInfo, error) {
	free := true
	return &llm.KeyInfo{IsFreeTier: &free, LimitReset: "monthly"}, nil
}

func (fakeAccount) FreeDailyLimit(ctx context.Context) (int, error) { return 50, nil }

func testConfig() *config.Config {
	fast := retry.Policy{MaxAttempts: 1, Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	cfg := &config.Config{}
	cfg.Watch = config.WatchConfig{
		ListURL:             "https://jobs.test/jobs",
		Interval:            time.Hour,
		ScanLimit:           5,
		BootstrapMultiplier: 1,
		PerCycleCap:         3,
		SeenLimit:           10,
		QueueSize:           4,
	}
	cfg.Retry = config.RetryConfig{Scan: fast, Detail: fast, Delivery: fast, Generation: fast}
	cfg.Action.GenerateTimeout = time.Second
	return cfg
}

func entries(ords ...int) []listing.Entry {
	out := make([]listing.Entry, 0, len(ords))
	for _, o := range ords {
		out = append(out, listing.NewEntry(fmt.Sprintf("/jobs/job-%d", o)))
	}
	return out
}

func TestEngine_StartStopLifecycle(t *testing.T) {
	n := &recordingNotifier{}
	e := New(testConfig(), Deps{
		Fetcher:   &fakeFetcher{entries: entries(105, 104, 103, 102, 101)},
		Notifier:  n,
		Generator: fakeGenerator{},
	})

	var delivered []registry.MessageRef
	var mu sync.Mutex
	e.OnDelivered(func(ctx context.Context, handle string, ref registry.MessageRef) {
		mu.Lock()
		delivered = append(delivered, ref)
		mu.Unlock()
	})

	require.NoError(t, e.Start("chat-9"))
	assert.ErrorIs(t, e.Start(""), ErrAlreadyRunning)
	assert.True(t, e.Running())

	require.Eventually(t, func() bool { return n.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return e.Status(context.Background()).Crawl.MaxOrdinal == 105 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	assert.False(t, e.Running())
	assert.ErrorIs(t, e.Stop(ctx), ErrNotRunning)

	st := e.Status(context.Background())
	assert.False(t, st.Running)
	assert.EqualValues(t, 3, st.Sent)
	assert.Equal(t, "chat-9", st.Destination)
	assert.Equal(t, "https://jobs.test/jobs/job-105", st.LastTopURL)
	assert.Equal(t, Capacity{Len: 3, Cap: 10}, st.Registry)
	assert.Nil(t, st.AI)

	mu.Lock()
	assert.Len(t, delivered, 3)
	mu.Unlock()

	n.mu.Lock()
	assert.Contains(t, n.sent[0].Text, "job-103", "oldest of the capped bootstrap window first")
	assert.Contains(t, n.sent[2].Text, "job-105")
	n.mu.Unlock()
}

func TestEngine_TaskPanicStopsWatcherAndIsReported(t *testing.T) {
	e := New(testConfig(), Deps{Fetcher: &panickingFetcher{}, Notifier: &recordingNotifier{}})

	require.NoError(t, e.Start("d"))
	require.Eventually(t, func() bool { return !e.Running() }, 2*time.Second, 5*time.Millisecond)

	st := e.Status(context.Background())
	assert.Contains(t, st.LastError, "crawler panic")
	assert.Contains(t, st.LastError, "listing layout changed")

	require.NoError(t, e.Start("d"), "watcher can be started again after a crash")
	require.Eventually(t, func() bool { return !e.Running() }, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_RestartResetsWatermarkKeepsSeen(t *testing.T) {
	n := &recordingNotifier{}
	f := &fakeFetcher{entries: entries(3, 2, 1)}
	e := New(testConfig(), Deps{Fetcher: f, Notifier: n})

	require.NoError(t, e.Start("d"))
	require.Eventually(t, func() bool { return n.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, e.Stop(context.Background()))

	require.NoError(t, e.Start("d"))
	require.Eventually(t, func() bool { return e.Status(context.Background()).Crawl.Cycles >= 2 && e.Status(context.Background()).Crawl.MaxOrdinal == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, e.Stop(context.Background()))
	assert.Equal(t, 3, n.count(), "seen handles are not redelivered after restart")
}

func TestEngine_AcceptAndStatus(t *testing.T) {
	n := &recordingNotifier{}
	e := New(testConfig(), Deps{
		Fetcher:   &fakeFetcher{},
		Notifier:  n,
		Generator: fakeGenerator{},
		Usage:     fakeUsage{n: 7},
		Account:   fakeAccount{},
	})

	h := e.Registry().Remember(&listing.Record{Handle: "/jobs/x-1", Title: "X"})
	e.Registry().Attach(h, registry.MessageRef{Dest: "chat", MessageID: "1"})
	assert.Equal(t, action.StateIdle, e.ItemState(h))

	res := e.Accept(context.Background(), h, "")
	require.Equal(t, action.OutcomeCompleted, res.Outcome, res.Error)
	assert.Equal(t, action.OutcomeRejected, e.Skip(context.Background(), h).Outcome)

	st := e.Status(context.Background())
	require.NotNil(t, st.AI)
	assert.Equal(t, 7, st.AI.UsedToday)
	remaining, ok := st.AI.Remaining()
	require.True(t, ok)
	assert.Equal(t, 43, remaining)
	require.NotNil(t, st.AI.IsFreeTier)
	assert.True(t, *st.AI.IsFreeTier)
}

func TestEngine_MissingGeneratorIsRetryable(t *testing.T) {
	e := New(testConfig(), Deps{Fetcher: &fakeFetcher{}, Notifier: &recordingNotifier{}})
	h := e.Registry().Remember(&listing.Record{Handle: "/jobs/x-1"})

	res := e.Accept(context.Background(), h, "chat")
	assert.Equal(t, action.OutcomeRetryable, res.Outcome)
	assert.Contains(t, e.Status(context.Background()).LastError, "not configured")
}
