package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-watcher/internal/listing"
	"listing-watcher/pkg/config"
	pkgerrors "listing-watcher/pkg/errors"
)

func TestOpenAIClient_Generate(t *testing.T) {
	var gotAuth, gotTitle string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotTitle = r.Header.Get("X-Title")
		w.Header().Set("X-RateLimit-Limit", "20")
		w.Header().Set("X-RateLimit-Remaining", "19")
		w.Header().Set("X-RateLimit-Reset", "1700000000000")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{Model: "m", APIKey: "k", BaseURL: srv.URL, AppTitle: "watcher"})
	out, err := c.GenerateWithContext(context.Background(), "hi", GenerateOptions{Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, "watcher", gotTitle)

	rl := c.RateLimit()
	require.NotNil(t, rl.Limit)
	require.NotNil(t, rl.Remaining)
	require.NotNil(t, rl.ResetMs)
	assert.EqualValues(t, 20, *rl.Limit)
	assert.EqualValues(t, 19, *rl.Remaining)
	assert.EqualValues(t, 1700000000000, *rl.ResetMs)
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      string
		transient bool
	}{
		{name: "empty content", status: 200, body: `{"choices":[{"message":{"content":""}}]}`, want: "(empty)"},
		{name: "bad format", status: 200, body: `{"foo":1}`, transient: true},
		{name: "rate limited", status: 429, body: `slow down`, transient: true},
		{name: "server error", status: 502, body: `bad gateway`, transient: true},
		{name: "unauthorized", status: 401, body: `no`, transient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAIClient(OpenAIConfig{Model: "m", APIKey: "k", BaseURL: srv.URL})
			out, err := c.GenerateWithContext(context.Background(), "hi", GenerateOptions{})
			if tt.want != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, out)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.transient, pkgerrors.IsTransient(err))
		})
	}
}

func TestPromptBuilder_Build(t *testing.T) {
	b := NewPromptBuilder("T={{TITLE}} U={{URL}} P={{PRICE}} D={{DAYS}} DL={{DEADLINE}} X={{DESCRIPTION}} F={{PORTFOLIO_URL}}", "https://me.dev")
	out := b.Build(&listing.Record{Title: " Bot ", Price: "100 USDC", Description: "make a bot"})
	assert.Equal(t, "T=Bot U= P=100 USDC D=(not found) DL=(not found) X=make a bot F=https://me.dev", out)

	def := NewPromptBuilder("  ", "")
	assert.Contains(t, def.Build(&listing.Record{Title: "x"}), "- title: x")
}

func TestLoadPromptBuilder(t *testing.T) {
	b, err := LoadPromptBuilder("", "p")
	require.NoError(t, err)
	assert.True(t, strings.Contains(b.Build(&listing.Record{}), "Portfolio: p"))

	_, err = LoadPromptBuilder("/nonexistent/prompt.txt", "p")
	assert.Error(t, err)
}

func TestDailyUsage_ResetsAtUTCMidnight(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	u := NewDailyUsage()
	u.now = func() time.Time { return now }

	assert.Equal(t, 1, u.Inc())
	assert.Equal(t, 2, u.Inc())
	assert.Equal(t, 2, u.Today())
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), u.NextReset())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, u.Today())
	assert.Equal(t, 1, u.Inc())
}

func TestOpenRouterAccount(t *testing.T) {
	credits := `{"data":{"total_credits":12.5,"total_usage":3}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/key":
			_, _ = w.Write([]byte(`{"data":{"label":"main","is_free_tier":true,"limit_reset":"monthly"}}`))
		case "/credits":
			_, _ = w.Write([]byte(credits))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewOpenRouterAccount(srv.URL, "key", time.Second)
	ctx := context.Background()

	key, err := a.Key(ctx)
	require.NoError(t, err)
	require.NotNil(t, key.IsFreeTier)
	assert.True(t, *key.IsFreeTier)
	assert.Equal(t, "monthly", key.LimitReset)

	limit, err := a.FreeDailyLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000, limit)

	credits = `{"data":{"total_credits":0,"total_usage":0}}`
	limit, err = a.FreeDailyLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)
}

type countingClient struct {
	calls int32
	text  string
	err   error
}

func (c *countingClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.text, c.err
}
func (c *countingClient) Model() string    { return "fake" }
func (c *countingClient) Provider() string { return "fake" }

func TestReplyGenerator_CountsUsageOnSuccessOnly(t *testing.T) {
	usage := NewDailyUsage()
	inner := &countingClient{text: "draft"}
	g := NewReplyGenerator(NewRateLimitedClient(inner, NewRateLimiter(LimitConfig{MaxConcurrent: 1})), nil, GenerateOptions{}, usage)

	out, err := g.Generate(context.Background(), &listing.Record{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, "draft", out)
	assert.Equal(t, 1, usage.Today())

	inner.err = pkgerrors.ErrTransient
	_, err = g.Generate(context.Background(), &listing.Record{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, usage.Today())
	assert.EqualValues(t, 2, atomic.LoadInt32(&inner.calls))
}

func TestRateLimitOf_Unwraps(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{Model: "m", APIKey: "k"})
	_, ok := RateLimitOf(NewRateLimitedClient(c, nil))
	assert.True(t, ok)

	_, ok = RateLimitOf(&countingClient{})
	assert.False(t, ok)
}

func TestRateLimiter_ConcurrencySlot(t *testing.T) {
	l := NewRateLimiter(LimitConfig{MaxConcurrent: 1})
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))

	l.Release()
	require.NoError(t, l.Wait(context.Background()))
	l.Release()
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(context.Background(), testModelConfig("", "m", "openai"))
	assert.Error(t, err)
	_, err = NewClient(context.Background(), testModelConfig("k", "m", "nope"))
	assert.Error(t, err)
	c, err := NewClient(context.Background(), testModelConfig("k", "m", "openrouter"))
	require.NoError(t, err)
	assert.Equal(t, "m", c.Model())
}

func testModelConfig(key, model, provider string) config.ModelConfig {
	return config.ModelConfig{Provider: provider, APIKey: key, Model: model, Timeout: time.Second}
}
