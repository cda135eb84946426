package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const incomingTrace = "4bf92f3577b34da6a3ce929d0e0e4736"

type harness struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

// newHarness wraps a mux carrying the routes Frinny serves. These tests swap
// global providers and must not run in parallel.
func newHarness(t *testing.T) *harness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP, origProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetTextMapPropagator(origProp)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/feedback", func(w http.ResponseWriter, r *http.Request) {
		Logger(r.Context()).Info("feedback handler")
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		Logger(r.Context()).Info("socket handler")
		w.Header().Set(HeaderCorrelationID+"-Seen", CorrelationID(r.Context()))
		w.WriteHeader(http.StatusUpgradeRequired)
	})

	return &harness{handler: Middleware(m)(mux), reader: reader, spans: exp}
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) durations(t *testing.T) metricdata.Histogram[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "frinny.http.request.duration")
	if met == nil {
		t.Fatal("frinny.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration data is %T", met.Data)
	}
	return hist
}

// captureDebugLogs routes the default logger into a buffer at debug level.
func captureDebugLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func logLine(t *testing.T, logs, msg string) string {
	t.Helper()
	for _, line := range strings.Split(logs, "\n") {
		if strings.Contains(line, `msg="`+msg+`"`) || strings.Contains(line, "msg="+msg) {
			return line
		}
	}
	t.Fatalf("no %q line in:\n%s", msg, logs)
	return ""
}

// ── correlation ──

func TestMiddleware_FreshTrace(t *testing.T) {
	h := newHarness(t)
	rec := h.serve(httptest.NewRequest("GET", "/", nil))

	cid := rec.Header().Get(HeaderCorrelationID)
	if len(cid) != 32 {
		t.Fatalf("correlation ID = %q, want a 32-char trace ID", cid)
	}
	if seen := rec.Header().Get(HeaderCorrelationID + "-Seen"); seen != cid {
		t.Errorf("handler saw %q, response carries %q", seen, cid)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("traceparent not injected into the response")
	}
}

func TestMiddleware_ContinuesCallerTrace(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("traceparent", "00-"+incomingTrace+"-00f067aa0ba902b7-01")

	rec := h.serve(req)
	if got := rec.Header().Get(HeaderCorrelationID); got != incomingTrace {
		t.Errorf("correlation ID = %q, want %q", got, incomingTrace)
	}
}

// ── spans ──

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	tests := []struct {
		method, path string
		wantName     string
		wantStatus   int64
	}{
		{"GET", "/healthz", "GET /healthz", 200},
		{"POST", "/api/feedback", "POST /api/feedback", 400},
		{"GET", "/missing", "GET unmatched", 404},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			h := newHarness(t)
			h.serve(httptest.NewRequest(tt.method, tt.path, nil))

			spans := h.spans.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			if spans[0].Name != tt.wantName {
				t.Errorf("span name = %q, want %q", spans[0].Name, tt.wantName)
			}
			var status int64
			for _, a := range spans[0].Attributes {
				if a.Key == "http.response.status_code" {
					status = a.Value.AsInt64()
				}
			}
			if status != tt.wantStatus {
				t.Errorf("status attribute = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}

// ── metrics ──

func TestMiddleware_DurationLabelledByPattern(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/?userId=a", "/?userId=b", "/healthz"} {
		h.serve(httptest.NewRequest("GET", path, nil))
	}

	counts := map[string]uint64{}
	for _, dp := range h.durations(t).DataPoints {
		route, _ := dp.Attributes.Value("path")
		counts[route.AsString()] += dp.Count
	}
	if counts["GET /{$}"] != 2 || counts["GET /healthz"] != 1 {
		t.Errorf("counts by route = %v", counts)
	}
	if _, ok := counts["/?userId=a"]; ok {
		t.Error("raw path leaked into the route label")
	}
}

// ── logging ──

func TestMiddleware_LogLevels(t *testing.T) {
	tests := []struct {
		name, method, path string
		wantLevel          string
	}{
		{"health check", "GET", "/healthz", "level=DEBUG"},
		{"client error", "POST", "/api/feedback", "level=WARN"},
		{"socket refused", "GET", "/?userId=u1", "level=WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			logs := captureDebugLogs(t)
			h.serve(httptest.NewRequest(tt.method, tt.path, nil))

			line := logLine(t, logs.String(), "request completed")
			if !strings.Contains(line, tt.wantLevel) {
				t.Errorf("completion line %q, want %s", line, tt.wantLevel)
			}
		})
	}
}

func TestMiddleware_SocketUpgradeTagsUser(t *testing.T) {
	h := newHarness(t)
	logs := captureDebugLogs(t)

	req := httptest.NewRequest("GET", "/?userId=gm-42", nil)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	h.serve(req)

	out := logs.String()
	if line := logLine(t, out, "socket handler"); !strings.Contains(line, "user_id=gm-42") {
		t.Errorf("handler line lacks user_id: %q", line)
	}
	line := logLine(t, out, "socket upgrade refused")
	if !strings.Contains(line, "user_id=gm-42") || !strings.Contains(line, "status=426") {
		t.Errorf("completion line = %q", line)
	}
}

func TestMiddleware_PlainRequestIsNotTagged(t *testing.T) {
	h := newHarness(t)
	logs := captureDebugLogs(t)
	h.serve(httptest.NewRequest("POST", "/api/feedback?userId=u1", nil))

	if line := logLine(t, logs.String(), "feedback handler"); strings.Contains(line, "user_id=") {
		t.Errorf("non-upgrade request tagged: %q", line)
	}
}

// ── responseWriter ──

func TestResponseWriter_Hijack(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := rw.Hijack(); err == nil {
		t.Fatal("a ResponseRecorder cannot be hijacked")
	}
	if rw.upgraded || rw.status != http.StatusOK {
		t.Errorf("failed hijack changed state: %+v", rw)
	}
	if rw.Unwrap() == nil {
		t.Error("Unwrap returned nil")
	}
}
