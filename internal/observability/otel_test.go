package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/vroymv/AfroLingo-sub000/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func enabledConfig(name string) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)
	prevTP := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: false, Endpoint: "ignored:4317"}, "v0.0.0", "node-a")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatalf("disabled tracing must not replace the global provider")
	}
}

func TestSetupOTel_InstallsProviderAndPropagator(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		preserveOTelGlobals(t)
		cfg := enabledConfig("realtime")
		cfg.Insecure = insecure

		shutdown, err := SetupOTel(context.Background(), cfg, "v1.2.3", "node-a")
		if err != nil {
			t.Fatalf("insecure=%v: unexpected err: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("insecure=%v: expected *sdktrace.TracerProvider", insecure)
		}

		ctx, span := otel.Tracer("test").Start(context.Background(), "span")
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		span.End()
		if !strings.HasPrefix(carrier.Get("traceparent"), "00-") {
			t.Fatalf("traceparent not injected: %v", carrier)
		}
		_ = shutdown(context.Background())
	}
}

func TestSetupOTel_ResourceCarriesInstanceID(t *testing.T) {
	preserveOTelGlobals(t)

	orig := newServiceResourceFn
	t.Cleanup(func() { newServiceResourceFn = orig })

	var got *resource.Resource
	newServiceResourceFn = func(ctx context.Context, serviceName, version, instanceID string) (*resource.Resource, error) {
		r, err := orig(ctx, serviceName, version, instanceID)
		got = r
		return r, err
	}

	shutdown, err := SetupOTel(context.Background(), enabledConfig("realtime"), "v1", "node-7")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	want := map[string]string{
		string(semconv.ServiceNameKey):       "realtime",
		string(semconv.ServiceVersionKey):    "v1",
		string(semconv.ServiceInstanceIDKey): "node-7",
	}
	for _, kv := range got.Attributes() {
		if w, ok := want[string(kv.Key)]; ok {
			if kv.Value.AsString() != w {
				t.Fatalf("%s = %q; want %q", kv.Key, kv.Value.AsString(), w)
			}
			delete(want, string(kv.Key))
		}
	}
	if len(want) != 0 {
		t.Fatalf("missing resource attributes: %v", want)
	}
}

func TestSetupOTel_Errors_LeaveGlobalsIntact(t *testing.T) {
	cases := []struct {
		name    string
		install func(t *testing.T)
		wantMsg string
	}{
		{
			name: "exporter",
			install: func(t *testing.T) {
				orig := newOTLPExporterFn
				t.Cleanup(func() { newOTLPExporterFn = orig })
				newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
					return nil, errors.New("boom-exporter")
				}
			},
			wantMsg: "otlp exporter",
		},
		{
			name: "resource",
			install: func(t *testing.T) {
				orig := newServiceResourceFn
				t.Cleanup(func() { newServiceResourceFn = orig })
				newServiceResourceFn = func(context.Context, string, string, string) (*resource.Resource, error) {
					return nil, errors.New("boom-resource")
				}
			},
			wantMsg: "otel resource",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			preserveOTelGlobals(t)
			tc.install(t)

			prevTP := otel.GetTracerProvider()
			prevProp := otel.GetTextMapPropagator()

			_, err := SetupOTel(context.Background(), enabledConfig("svc"), "v0", "")
			if err == nil || !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("err = %v; want %q", err, tc.wantMsg)
			}
			if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestShutdown_IsCallable(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := SetupOTel(context.Background(), enabledConfig("svc-shutdown"), "v1", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ct, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := shutdown(ct); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}

func Test_sampler(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		if got := sampler(tc.ratio).Description(); !strings.Contains(got, "root:"+tc.want) {
			t.Fatalf("sampler(%v) = %q; want root %s", tc.ratio, got, tc.want)
		}
	}
}
