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

// Package http 控制 API：状态、启停、条目接受 / 跳过与指标
package http

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/prometheus/common/expfmt"

	"listing-watcher/internal/action"
	"listing-watcher/internal/engine"
	"listing-watcher/pkg/log"
	"listing-watcher/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// Engine Handler 依赖的引擎操作
type Engine interface {
	Start(dest string) error
	Stop(ctx context.Context) error
	Accept(ctx context.Context, handle, dest string) action.Result
	Skip(ctx context.Context, handle string) action.Result
	Status(ctx context.Context) engine.Status
}

// Handler HTTP 处理器
type Handler struct {
	engine Engine
	logger *log.Logger
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(engine Engine, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{engine: engine, logger: logger}
}

type destinationRequest struct {
	Destination string `json:"destination"`
}

// bindOptional 请求体为空时保持零值
func bindOptional(c *app.RequestContext, v interface{}) error {
	if len(c.Request.Body()) == 0 {
		return nil
	}
	return c.BindJSON(v)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
}

// Status 引擎状态
func (h *Handler) Status(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, h.engine.Status(ctx))
}

// StartWatch 启动抓取与投递
func (h *Handler) StartWatch(ctx context.Context, c *app.RequestContext) {
	var req destinationRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(consts.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if err := h.engine.Start(req.Destination); err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			c.JSON(consts.StatusConflict, errorBody(err.Error()))
			return
		}
		c.JSON(consts.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"running": true})
}

// StopWatch 停止抓取与投递
func (h *Handler) StopWatch(ctx context.Context, c *app.RequestContext) {
	sctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := h.engine.Stop(sctx); err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			c.JSON(consts.StatusConflict, errorBody(err.Error()))
			return
		}
		c.JSON(consts.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"running": false})
}

// AcceptItem 接受条目并生成回复
func (h *Handler) AcceptItem(ctx context.Context, c *app.RequestContext) {
	var req destinationRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(consts.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	res := h.engine.Accept(ctx, c.Param("handle"), req.Destination)
	c.JSON(outcomeStatus(res.Outcome), res)
}

// SkipItem 跳过条目
func (h *Handler) SkipItem(ctx context.Context, c *app.RequestContext) {
	res := h.engine.Skip(ctx, c.Param("handle"))
	c.JSON(outcomeStatus(res.Outcome), res)
}

// Metrics Prometheus 文本格式
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		h.logger.Error("gather metrics failed", "error", err)
		c.JSON(consts.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.Data(consts.StatusOK, string(expfmt.FmtText), buf.Bytes())
}

func outcomeStatus(o action.Outcome) int {
	switch o {
	case action.OutcomeCompleted, action.OutcomeRejected:
		return consts.StatusOK
	case action.OutcomeBusy:
		return consts.StatusConflict
	case action.OutcomeExpired, action.OutcomeStale:
		return consts.StatusGone
	case action.OutcomeRetryable:
		return consts.StatusServiceUnavailable
	default:
		return consts.StatusInternalServerError
	}
}
