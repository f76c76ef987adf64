// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry sets up OpenTelemetry tracing and metrics for the
// server, exporting either to an OTLP collector or directly to Google
// Cloud Monitoring/Trace.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation holds the tracer and counters used by the server: the
// tracer for initialization and the REST API handlers, the toolset/tool
// counters for the REST API handlers, and the McpSse/McpPost counters.
// Fields are read directly by callers rather than through accessor methods,
// matching the rest of this codebase's plain struct conventions.
type Instrumentation struct {
	Tracer  trace.Tracer
	McpSse  metric.Int64Counter
	McpPost metric.Int64Counter

	ToolsetGet, ToolGet, ToolInvoke metric.Int64Counter
}

// ShutdownFunc flushes and stops the exporters registered by SetupOTel.
type ShutdownFunc func(context.Context) error

// SetupOTel wires up the global tracer/meter providers for the given
// version and service name. If otlpEndpoint is non-empty, exports go to
// that OTLP/HTTP collector; if gcpEnabled is true, exports also (or
// instead) go directly to Google Cloud Monitoring/Trace. With neither
// option set, this configures no-op providers.
func SetupOTel(ctx context.Context, version, otlpEndpoint string, gcpEnabled bool, serviceName string) (ShutdownFunc, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create resource: %w", err)
	}

	var shutdowns []func(context.Context) error

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if otlpEndpoint != "" {
		traceExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(otlpEndpoint))
		if err != nil {
			return nil, fmt.Errorf("unable to create OTLP trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExp))
		shutdowns = append(shutdowns, traceExp.Shutdown)

		metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(otlpEndpoint))
		if err != nil {
			return nil, fmt.Errorf("unable to create OTLP metric exporter: %w", err)
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
		shutdowns = append(shutdowns, metricExp.Shutdown)
	}

	if gcpEnabled {
		gcpTraceExp, err := texporter.New()
		if err != nil {
			return nil, fmt.Errorf("unable to create Cloud Trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(gcpTraceExp))
		shutdowns = append(shutdowns, gcpTraceExp.Shutdown)

		gcpMetricExp, err := mexporter.New()
		if err != nil {
			return nil, fmt.Errorf("unable to create Cloud Monitoring exporter: %w", err)
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(gcpMetricExp)))
		shutdowns = append(shutdowns, gcpMetricExp.Shutdown)
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tp)
	shutdowns = append(shutdowns, tp.Shutdown)

	mp := sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetMeterProvider(mp)
	shutdowns = append(shutdowns, mp.Shutdown)

	return func(ctx context.Context) error {
		var firstErr error
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}

// CreateTelemetryInstrumentation builds the tracer and counters of
// Instrumentation from the globally configured providers. Call
// SetupOTel first so the providers aren't the no-op defaults.
func CreateTelemetryInstrumentation(version string) (*Instrumentation, error) {
	tracer := otel.Tracer(
		"github.com/mcpkit/mcp-go",
		trace.WithInstrumentationVersion(version),
	)

	meter := otel.Meter(
		"github.com/mcpkit/mcp-go",
		metric.WithInstrumentationVersion(version),
	)

	mcpSse, err := meter.Int64Counter(
		"mcp.sse",
		metric.WithDescription("Count of MCP SSE requests handled."),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create mcp.sse counter: %w", err)
	}

	mcpPost, err := meter.Int64Counter(
		"mcp.streamable_http",
		metric.WithDescription("Count of MCP Streamable HTTP requests handled."),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create mcp.streamable_http counter: %w", err)
	}

	toolsetGet, err1 := meter.Int64Counter("toolbox.server.toolset.get.count")
	toolGet, err2 := meter.Int64Counter("toolbox.server.tool.get.count")
	toolInvoke, err3 := meter.Int64Counter("toolbox.server.tool.invoke.count")
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, fmt.Errorf("unable to create toolbox server counters: %w", err)
	}

	return &Instrumentation{
		Tracer:     tracer,
		McpSse:     mcpSse,
		McpPost:    mcpPost,
		ToolsetGet: toolsetGet,
		ToolGet:    toolGet,
		ToolInvoke: toolInvoke,
	}, nil
}
