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

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "listing-watcher"

// OTelConfig OpenTelemetry 导出配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 创建 OTLP/HTTP exporter 并设置全局 TracerProvider
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartCycleSpan 一轮抓取
func StartCycleSpan(ctx context.Context, bootstrap bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "crawl.cycle",
		trace.WithAttributes(attribute.Bool("crawl.bootstrap", bootstrap)),
	)
}

// StartDetailSpan 单个条目的详情拉取
func StartDetailSpan(ctx context.Context, handle string, ordinal int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "crawl.detail",
		trace.WithAttributes(
			attribute.String("listing.handle", handle),
			attribute.Int64("listing.ordinal", ordinal),
		),
	)
}

// StartDeliverySpan 单个条目的投递
func StartDeliverySpan(ctx context.Context, handle string, parts int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "delivery.item",
		trace.WithAttributes(
			attribute.String("registry.handle", handle),
			attribute.Int("delivery.parts", parts),
		),
	)
}

// StartActionSpan 用户动作
func StartActionSpan(ctx context.Context, action string, handle string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "action."+action,
		trace.WithAttributes(attribute.String("registry.handle", handle)),
	)
}

// End 结束 span，err 非 nil 时记录错误状态
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
