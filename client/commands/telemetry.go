package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/about"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

const name = "github.com/ocuroot/gitdrop/client/commands"

var (
	tracer = otel.Tracer(name)
	logger = otelslog.NewLogger(name)
)

func setupTelemetry() func() {
	if os.Getenv("GITDROP_ENABLE_OTEL") != "" || os.Getenv("ENABLE_OTEL") != "" {
		log.Info("Enabling OpenTelemetry")

		// Create resource.
		res, err := newResource()
		if err != nil {
			panic(err)
		}

		ctx := context.Background()

		tp, err := initTracer(ctx, res)
		if err != nil {
			log.Fatal(err)
		}

		return func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Printf("Error shutting down tracer provider: %v", err)
			}
		}
	}

	return func() {}
}

func newResource() (*resource.Resource, error) {
	return resource.Merge(resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNamespace("gitdrop"),
			semconv.ServiceName("gitdrop"),
			semconv.ServiceVersion(about.Version),
		))
}

func initTracer(ctx context.Context, res *resource.Resource) (*trace.TracerProvider, error) {
	var options []otlptracehttp.Option

	otlpURL := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpURL == "" {
		otlpURL = "http://localhost:4318"
	}

	options = append(options, otlptracehttp.WithEndpointURL(otlpURL))
	if strings.HasPrefix(otlpURL, "http://") {
		options = append(options, otlptracehttp.WithInsecure())
	}

	headers := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")
	if headers != "" {
		headerMap, err := parseOTLPHeaders(headers)
		if err != nil {
			return nil, err
		}
		options = append(options, otlptracehttp.WithHeaders(headerMap))
	}

	exporter, err := otlptracehttp.New(
		ctx,
		options...,
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}

// parseOTLPHeaders reads the key=value,key=value form of
// OTEL_EXPORTER_OTLP_HEADERS. Values may contain '='.
func parseOTLPHeaders(headers string) (map[string]string, error) {
	headerMap := make(map[string]string)
	for _, h := range strings.Split(headers, ",") {
		key, value, ok := strings.Cut(h, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header format: %s", h)
		}
		headerMap[key] = strings.TrimSpace(value)
	}
	return headerMap, nil
}
