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

package http

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"listing-watcher/internal/api/http/middleware"
)

// actionRate 动作接口的全局限流（每秒请求数）
const actionRate = 5

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	jwt        *jwt.HertzJWTMiddleware
	metrics    bool
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetJWT 启用 JWT；启停与条目动作需携带 Bearer token
func (r *Router) SetJWT(j *jwt.HertzJWTMiddleware) {
	r.jwt = j
}

// EnableMetrics 暴露 GET /metrics
func (r *Router) EnableMetrics(enable bool) {
	r.metrics = enable
}

// Build 创建 Hertz 服务并注册路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	h := server.Default(append([]config.Option{server.WithHostPorts(addr)}, opts...)...)
	r.Register(h)
	return h
}

// Register 注册全部路由
func (r *Router) Register(h *server.Hertz) {
	h.Use(r.middleware.CORS(), r.middleware.Logger())

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/status", r.handler.Status)

	var guarded []app.HandlerFunc
	if r.jwt != nil {
		api.POST("/login", r.jwt.LoginHandler)
		api.GET("/refresh_token", r.jwt.RefreshHandler)
		guarded = append(guarded, r.jwt.MiddlewareFunc())
	}
	guarded = append(guarded, r.middleware.RateLimit(actionRate, actionRate))

	watch := api.Group("/watch", guarded...)
	watch.POST("/start", r.handler.StartWatch)
	watch.POST("/stop", r.handler.StopWatch)

	items := api.Group("/items", guarded...)
	items.POST("/:handle/accept", r.handler.AcceptItem)
	items.POST("/:handle/skip", r.handler.SkipItem)

	if r.metrics {
		h.GET("/metrics", r.handler.Metrics)
	}
}
