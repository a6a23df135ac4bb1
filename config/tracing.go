// Copyright 2023 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"

	"github.com/juju/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracingConfig is the configuration for OpenTelemetry tracing.
type TracingConfig struct {
	EnableTracing     bool    `mapstructure:"enable_tracing"`
	Exporter          string  `mapstructure:"exporter" validate:"oneof=zipkin otlp otlphttp"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	Sampler           string  `mapstructure:"sampler" validate:"oneof=always never ratio"`
	Ratio             float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

func (config *TracingConfig) newExporter() (tracesdk.SpanExporter, error) {
	switch config.Exporter {
	case "zipkin":
		return zipkin.New(config.CollectorEndpoint)
	case "otlp":
		client := otlptracegrpc.NewClient(otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(config.CollectorEndpoint))
		return otlptrace.New(context.Background(), client)
	case "otlphttp":
		client := otlptracehttp.NewClient(otlptracehttp.WithInsecure(), otlptracehttp.WithEndpoint(config.CollectorEndpoint))
		return otlptrace.New(context.Background(), client)
	}
	return nil, errors.NotSupportedf("exporter %s", config.Exporter)
}

func (config *TracingConfig) newSampler() (tracesdk.Sampler, error) {
	switch config.Sampler {
	case "always":
		return tracesdk.AlwaysSample(), nil
	case "never":
		return tracesdk.NeverSample(), nil
	case "ratio":
		return tracesdk.TraceIDRatioBased(config.Ratio), nil
	}
	return nil, errors.NotSupportedf("sampler %s", config.Sampler)
}

// NewTracerProvider creates a tracer provider exporting spans to the collector.
// A no-op provider is returned if tracing is disabled.
func (config *TracingConfig) NewTracerProvider() (trace.TracerProvider, error) {
	if !config.EnableTracing {
		return noop.NewTracerProvider(), nil
	}
	exporter, err := config.newExporter()
	if err != nil {
		return nil, errors.Trace(err)
	}
	sampler, err := config.newSampler()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(sampler),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(resource.NewSchemaless(attribute.String("service.name", "recsys"))),
	), nil
}
