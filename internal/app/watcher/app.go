package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"listing-watcher/internal/action"
	"listing-watcher/internal/api/http"
	"listing-watcher/internal/api/http/middleware"
	"listing-watcher/internal/app"
	"listing-watcher/internal/bot"
	"listing-watcher/internal/engine"
	"listing-watcher/internal/listing"
	"listing-watcher/internal/notify"
	"listing-watcher/internal/storage/cache"
	"listing-watcher/pkg/log"
	"listing-watcher/pkg/tracing"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App 装配抓取引擎、通知目标、Telegram 机器人与控制 API
type App struct {
	boot    *app.Bootstrap
	logger  *log.Logger
	targets *notify.Targets
	store   cache.Store
	engine  *engine.Engine
	bot     *bot.Bot
	router  *http.Router
	hertz   *server.Hertz

	otelProvider otelProviderShutdown

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp 创建应用（由 cmd/watcher 调用）
func NewApp(ctx context.Context, boot *app.Bootstrap) (*App, error) {
	cfg := boot.Config
	logger := boot.Logger

	targets, err := notify.Build(ctx, cfg.Notify, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化通知目标失败: %w", err)
	}
	store, err := cache.NewCache(cfg.Cache)
	if err != nil {
		targets.Close()
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}
	fetcher, err := listing.New(cfg.Watch.ListURL, cfg.Watch.Fetcher)
	if err != nil {
		targets.Close()
		_ = store.Close()
		return nil, fmt.Errorf("初始化抓取器失败: %w", err)
	}

	deps := engine.Deps{
		Fetcher:   fetcher,
		Notifier:  targets,
		Artifacts: action.NewArtifactCache(store, cfg.Cache.Redis.TTL),
		Logger:    logger,
	}
	gen, err := app.NewGeneratorFromConfig(ctx, cfg)
	if err != nil {
		// 未配置模型时仍可抓取与投递，Accept 返回可重试错误
		logger.Warn("回复生成未启用", "error", err)
	} else {
		deps.Generator = gen
		deps.Usage = gen.Usage()
		deps.RateLimit = gen.RateLimit
	}
	if account := app.NewAccountFromConfig(cfg); account != nil {
		deps.Account = account
	}

	a := &App{
		boot:    boot,
		logger:  logger.With("component", "app"),
		targets: targets,
		store:   store,
		engine:  engine.New(cfg, deps),
	}
	if targets.Telegram != nil && cfg.Notify.Telegram.Bot {
		a.bot = bot.New(targets.Telegram, a.engine, cfg.Notify.Telegram.PollTimeout, logger)
	}

	handler := http.NewHandler(a.engine, logger)
	router := http.NewRouter(handler, middleware.NewMiddleware(logger))
	router.EnableMetrics(cfg.Monitoring.Prometheus.Enable)
	if jwtCfg := cfg.API.JWT; jwtCfg.Key != "" {
		jwtAuth, err := middleware.NewJWTAuth([]byte(jwtCfg.Key), jwtCfg.Timeout, jwtCfg.MaxRefresh, jwtCfg.Username, jwtCfg.Password)
		if err != nil {
			logger.Warn("JWT 初始化失败，将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			logger.Info("JWT 认证已启用")
		}
	}
	a.router = router
	return a, nil
}

// Engine 返回抓取引擎
func (a *App) Engine() *engine.Engine { return a.engine }

// Addr 控制 API 监听地址
func (a *App) Addr() string {
	api := a.boot.Config.API
	return net.JoinHostPort(api.Host, strconv.Itoa(api.Port))
}

// Start 启动机器人长轮询与（可选）自动抓取，然后构建 HTTP 服务并在后台运行
func (a *App) Start() error {
	cfg := a.boot.Config
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.bot != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("bot stopped", "error", err)
			}
		}()
	}
	if cfg.Watch.Autostart {
		if err := a.engine.Start(cfg.Delivery.Destination); err != nil {
			return fmt.Errorf("自动启动失败: %w", err)
		}
	}

	if err := a.setupHertzLogger(); err != nil {
		return err
	}
	a.hertz = a.buildServer(a.Addr())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.hertz.Run(); err != nil {
			a.logger.Error("HTTP 服务退出", "error", err)
		}
	}()
	a.logger.Info("watcher 应用启动成功", "addr", a.Addr(), "bot", a.bot != nil, "autostart", cfg.Watch.Autostart)
	return nil
}

// setupHertzLogger 使用 Hertz slog 扩展，与 log 配置对齐
func (a *App) setupHertzLogger() error {
	output, err := app.LogConfig(a.boot.Config).Output()
	if err != nil {
		return err
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(a.boot.Config.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))
	return nil
}

// buildServer 可选启用链路追踪：exporter=grpc 走 obs-opentelemetry provider，否则 OTLP/HTTP
func (a *App) buildServer(addr string) *server.Hertz {
	tc := a.boot.Config.Monitoring.Tracing
	if !tc.Enable || tc.ExportEndpoint == "" {
		return a.router.Build(addr)
	}
	serviceName := tc.ServiceName
	if serviceName == "" {
		serviceName = "listing-watcher"
	}
	switch tc.Exporter {
	case "grpc":
		opts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(tc.ExportEndpoint),
		}
		if tc.Insecure {
			opts = append(opts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
	default:
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    serviceName,
			ExportEndpoint: tc.ExportEndpoint,
			Insecure:       tc.Insecure,
		})
		if err != nil {
			a.logger.Warn("链路追踪初始化失败", "error", err)
			return a.router.Build(addr)
		}
		a.otelProvider = tp
	}
	tracerOpt, cfg := hertztracing.NewServerTracer()
	h := a.router.Build(addr, tracerOpt)
	h.Use(hertztracing.ServerMiddleware(cfg))
	a.logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", tc.ExportEndpoint, "exporter", tc.Exporter)
	return h
}

// Shutdown 优雅关闭：先停抓取与投递，再停 HTTP 与机器人，最后释放连接
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 watcher 应用")
	var errs []error

	if a.engine.Running() {
		if err := a.engine.Stop(ctx); err != nil && !errors.Is(err, engine.ErrNotRunning) {
			errs = append(errs, err)
		}
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	a.targets.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error("关闭缓存失败", "error", err)
	}
	return errors.Join(errs...)
}
