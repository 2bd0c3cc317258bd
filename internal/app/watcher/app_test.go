package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-watcher/internal/app"
	"listing-watcher/pkg/config"
	"listing-watcher/pkg/log"
	"listing-watcher/pkg/retry"
)

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
		Fetcher:             config.FetcherConfig{Type: "html", Timeout: time.Second},
	}
	cfg.Registry.Capacity = 10
	cfg.Retry = config.RetryConfig{Scan: fast, Detail: fast, Delivery: fast, Generation: fast}
	cfg.Action.GenerateTimeout = time.Second
	cfg.Notify = config.NotifyConfig{
		Targets:  []string{"telegram"},
		Telegram: config.TelegramConfig{Token: "t", APIURL: "http://127.0.0.1:1", Bot: true},
	}
	cfg.Cache.Type = "memory"
	cfg.API = config.APIConfig{Host: "127.0.0.1", Port: 18080}
	return cfg
}

func TestNewApp_WithoutModel(t *testing.T) {
	a, err := NewApp(context.Background(), &app.Bootstrap{Config: testConfig(), Logger: log.Nop()})
	require.NoError(t, err)

	assert.NotNil(t, a.bot, "telegram target with bot enabled")
	assert.Equal(t, "127.0.0.1:18080", a.Addr())
	assert.False(t, a.Engine().Running())

	st := a.Engine().Status(context.Background())
	assert.Nil(t, st.AI, "no generator configured")

	require.NoError(t, a.Shutdown(context.Background()))
}

func TestNewApp_BotDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.Telegram.Bot = false
	cfg.Model = config.ModelConfig{Provider: "openrouter", APIKey: "k", Model: "m", BaseURL: "http://127.0.0.1:1"}

	a, err := NewApp(context.Background(), &app.Bootstrap{Config: cfg, Logger: log.Nop()})
	require.NoError(t, err)
	assert.Nil(t, a.bot)
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestNewApp_BadCache(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Type = "memcached"
	_, err := NewApp(context.Background(), &app.Bootstrap{Config: cfg, Logger: log.Nop()})
	require.Error(t, err)
}
