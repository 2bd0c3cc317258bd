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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"listing-watcher/pkg/retry"
	"listing-watcher/pkg/secrets"
)

// DefaultPath 默认配置文件路径，可由 WATCHER_CONFIG 覆盖
const DefaultPath = "configs/watcher.yaml"

// Config 应用配置结构体
type Config struct {
	Watch      WatchConfig      `mapstructure:"watch"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Action     ActionConfig     `mapstructure:"action"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Model      ModelConfig      `mapstructure:"model"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Secrets    secrets.Config   `mapstructure:"secrets"`
	API        APIConfig        `mapstructure:"api"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// WatchConfig 列表轮询配置
type WatchConfig struct {
	ListURL             string        `mapstructure:"list_url"`
	Interval            time.Duration `mapstructure:"interval"`
	ScanLimit           int           `mapstructure:"scan_limit"`
	BootstrapMultiplier int           `mapstructure:"bootstrap_multiplier"` // 首轮扫描窗口 = scan_limit * multiplier
	PerCycleCap         int           `mapstructure:"per_cycle_cap"`        // 首轮最多投递条数
	SeenLimit           int           `mapstructure:"seen_limit"`
	ItemDelay           time.Duration `mapstructure:"item_delay"`
	ErrorDelay          time.Duration `mapstructure:"error_delay"`
	QueueSize           int           `mapstructure:"queue_size"`
	Autostart           bool          `mapstructure:"autostart"` // 进程启动即开始抓取，投递到 delivery.destination
	Fetcher             FetcherConfig `mapstructure:"fetcher"`
}

// FetcherConfig 列表/详情抓取配置
type FetcherConfig struct {
	Type      string        `mapstructure:"type"` // html | json
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	HTML      HTMLSelectors `mapstructure:"html"`
	JSON      JSONPaths     `mapstructure:"json"`
}

// HTMLSelectors 列表与详情页 CSS 选择器
type HTMLSelectors struct {
	Card        string `mapstructure:"card"`
	Link        string `mapstructure:"link"`
	Content     string `mapstructure:"content"` // 详情页必需的结构元素，缺失即视为结构错误
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	Tags        string `mapstructure:"tags"`
	Price       string `mapstructure:"price"`
	Days        string `mapstructure:"days"`
	Deadline    string `mapstructure:"deadline"`
}

// JSONPaths gjson 路径；DetailURL 中的 {handle} 会被替换
type JSONPaths struct {
	Items       string `mapstructure:"items"`
	Handle      string `mapstructure:"handle"`
	DetailURL   string `mapstructure:"detail_url"`
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	Tags        string `mapstructure:"tags"`
	Price       string `mapstructure:"price"`
	Days        string `mapstructure:"days"`
	Deadline    string `mapstructure:"deadline"`
	URL         string `mapstructure:"url"`
}

// RegistryConfig 投递记录注册表配置
type RegistryConfig struct {
	Capacity int `mapstructure:"capacity"` // <=0 时取 watch.seen_limit
}

// DeliveryConfig 投递配置
type DeliveryConfig struct {
	Destination string        `mapstructure:"destination"` // 默认目的地，可被 start 请求覆盖
	PartDelay   time.Duration `mapstructure:"part_delay"`
}

// RetryConfig 各层重试策略
type RetryConfig struct {
	Scan       retry.Policy `mapstructure:"scan"`
	Detail     retry.Policy `mapstructure:"detail"`
	Delivery   retry.Policy `mapstructure:"delivery"`
	Generation retry.Policy `mapstructure:"generation"`
}

// ActionConfig 用户动作（accept/skip）配置
type ActionConfig struct {
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
	LivenessCheck   bool          `mapstructure:"liveness_check"`
	PortfolioURL    string        `mapstructure:"portfolio_url"`
	PromptFile      string        `mapstructure:"prompt_file"` // 空则使用内置模板
}

// NotifyConfig 通知目标配置
type NotifyConfig struct {
	Targets  []string       `mapstructure:"targets"` // telegram | redis | postgres
	Telegram TelegramConfig `mapstructure:"telegram"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// TelegramConfig Telegram Bot 配置
type TelegramConfig struct {
	Token       string        `mapstructure:"token"`
	APIURL      string        `mapstructure:"api_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"` // getUpdates 长轮询时长
	Bot         bool          `mapstructure:"bot"`          // 是否启用 /start /stop /status 命令与按钮回调
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// PostgresConfig 归档存储配置
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// ModelConfig 生成模型配置
type ModelConfig struct {
	Provider          string        `mapstructure:"provider"` // openai | eino
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout"`
	SiteURL           string        `mapstructure:"site_url"`
	AppTitle          string        `mapstructure:"app_title"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
}

// CacheConfig 生成结果缓存配置
type CacheConfig struct {
	Type  string      `mapstructure:"type"` // memory | redis
	Redis RedisConfig `mapstructure:"redis"`
}

// APIConfig 控制 API 配置
type APIConfig struct {
	Host string    `mapstructure:"host"`
	Port int       `mapstructure:"port"`
	JWT  JWTConfig `mapstructure:"jwt"`
}

// JWTConfig 为空 Key 时不启用鉴权
type JWTConfig struct {
	Key        string        `mapstructure:"key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRefresh time.Duration `mapstructure:"max_refresh"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	Exporter       string `mapstructure:"exporter"` // http | grpc
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// Path 返回配置文件路径：WATCHER_CONFIG 优先
func Path() string {
	if p := strings.TrimSpace(os.Getenv("WATCHER_CONFIG")); p != "" {
		return p
	}
	return DefaultPath
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("watch.interval", "10m")
	v.SetDefault("watch.scan_limit", 5)
	v.SetDefault("watch.bootstrap_multiplier", 3)
	v.SetDefault("watch.per_cycle_cap", 5)
	v.SetDefault("watch.seen_limit", 50)
	v.SetDefault("watch.item_delay", "800ms")
	v.SetDefault("watch.error_delay", "2s")
	v.SetDefault("watch.queue_size", 64)
	v.SetDefault("watch.autostart", false)
	v.SetDefault("watch.fetcher.type", "html")
	v.SetDefault("watch.fetcher.timeout", "20s")
	v.SetDefault("watch.fetcher.user_agent", "listing-watcher/1.0")
	v.SetDefault("registry.capacity", 0)
	v.SetDefault("delivery.part_delay", "200ms")

	def := retry.DefaultPolicy()
	for _, layer := range []string{"scan", "detail", "delivery", "generation"} {
		v.SetDefault("retry."+layer+".max_attempts", def.MaxAttempts)
		v.SetDefault("retry."+layer+".initial", def.Initial.String())
		v.SetDefault("retry."+layer+".max", def.Max.String())
		v.SetDefault("retry."+layer+".multiplier", def.Multiplier)
	}
	// 生成层与原有 OpenRouter 调用一致：首次 + 3 次重试
	v.SetDefault("retry.generation.max_attempts", 4)
	v.SetDefault("retry.detail.max_attempts", 1)

	v.SetDefault("action.generate_timeout", "90s")
	v.SetDefault("action.liveness_check", true)

	v.SetDefault("notify.targets", []string{"telegram"})
	v.SetDefault("notify.telegram.api_url", "https://api.telegram.org")
	v.SetDefault("notify.telegram.timeout", "90s")
	v.SetDefault("notify.telegram.poll_timeout", "30s")
	v.SetDefault("notify.telegram.bot", true)
	v.SetDefault("notify.redis.prefix", "watcher:")
	v.SetDefault("notify.redis.ttl", "24h")
	v.SetDefault("notify.postgres.table", "delivered_items")

	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.timeout", "90s")
	v.SetDefault("model.requests_per_minute", 20)
	v.SetDefault("model.max_concurrent", 2)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis.prefix", "watcher:artifact:")
	v.SetDefault("cache.redis.ttl", "24h")

	v.SetDefault("secrets.provider", "env")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.jwt.timeout", "1h")
	v.SetDefault("api.jwt.max_refresh", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("monitoring.prometheus.enable", true)
	v.SetDefault("monitoring.tracing.service_name", "listing-watcher")
	v.SetDefault("monitoring.tracing.exporter", "http")
}

// LoadConfig 加载配置文件并解析 ${NAME} 形式的 secret 占位符
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("WATCHER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}
	if cfg.Registry.Capacity <= 0 {
		cfg.Registry.Capacity = cfg.Watch.SeenLimit
	}

	if err := cfg.resolveSecrets(context.Background()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load 从 Path() 加载
func Load() (*Config, error) {
	return LoadConfig(Path())
}

// resolveSecrets vault 自身的凭据只从环境变量解析，其余字段经配置的 secret store 解析
func (c *Config) resolveSecrets(ctx context.Context) error {
	env := secrets.NewEnvStore()
	if err := secrets.ResolveAll(ctx, env, &c.Secrets.Vault.Address, &c.Secrets.Vault.Token); err != nil {
		return fmt.Errorf("secrets.vault: %w", err)
	}
	store, err := secrets.NewStore(c.Secrets)
	if err != nil {
		return err
	}
	return secrets.ResolveAll(ctx, store,
		&c.Watch.ListURL,
		&c.Delivery.Destination,
		&c.Action.PortfolioURL,
		&c.Notify.Telegram.Token,
		&c.Notify.Redis.Password,
		&c.Notify.Postgres.DSN,
		&c.Model.APIKey,
		&c.Cache.Redis.Password,
		&c.API.JWT.Key,
		&c.API.JWT.Password,
	)
}

// Validate 启动前的配置校验
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Watch.ListURL) == "" {
		errs = append(errs, errors.New("watch.list_url is required"))
	}
	if c.Watch.ScanLimit <= 0 {
		errs = append(errs, errors.New("watch.scan_limit must be positive"))
	}
	if c.Watch.SeenLimit <= 0 {
		errs = append(errs, errors.New("watch.seen_limit must be positive"))
	}
	if c.Watch.PerCycleCap <= 0 {
		errs = append(errs, errors.New("watch.per_cycle_cap must be positive"))
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, errors.New("watch.interval must be positive"))
	}
	switch c.Watch.Fetcher.Type {
	case "html", "json":
	default:
		errs = append(errs, fmt.Errorf("watch.fetcher.type %q unsupported", c.Watch.Fetcher.Type))
	}
	for _, t := range c.Notify.Targets {
		switch t {
		case "telegram":
			if c.Notify.Telegram.Token == "" {
				errs = append(errs, errors.New("notify.telegram.token is required for telegram target"))
			}
		case "redis":
			if c.Notify.Redis.Addr == "" {
				errs = append(errs, errors.New("notify.redis.addr is required for redis target"))
			}
		case "postgres":
			if c.Notify.Postgres.DSN == "" {
				errs = append(errs, errors.New("notify.postgres.dsn is required for postgres target"))
			}
		default:
			errs = append(errs, fmt.Errorf("notify target %q unsupported", t))
		}
	}
	switch c.Monitoring.Tracing.Exporter {
	case "", "http", "grpc":
	default:
		errs = append(errs, fmt.Errorf("monitoring.tracing.exporter %q unsupported", c.Monitoring.Tracing.Exporter))
	}
	if len(c.Notify.Targets) == 0 {
		errs = append(errs, errors.New("notify.targets must not be empty"))
	}
	return errors.Join(errs...)
}
