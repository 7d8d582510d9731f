package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates both metrics and tracing infrastructure for middleware tests.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	// Metrics.
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// Tracing.
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// statusHandler answers every request with code and records the
// correlation ID it saw.
func statusHandler(code int, seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = CorrelationID(r.Context())
		}
		w.WriteHeader(code)
	})
}

func TestMiddleware_Span(t *testing.T) {
	tests := []struct {
		method string
		path   string
		code   int
	}{
		{method: "GET", path: "/readyz", code: http.StatusOK},
		{method: "GET", path: "/readyz", code: http.StatusServiceUnavailable},
		{method: "POST", path: "/metrics", code: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		m, _, exp := testSetup(t)

		var cid string
		rec := httptest.NewRecorder()
		Middleware(m)(statusHandler(tt.code, &cid)).ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

		if rec.Code != tt.code {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.code)
		}
		if len(cid) != 32 {
			t.Errorf("%s %s: correlation ID %q, want 32 hex chars", tt.method, tt.path, cid)
		}
		if got := rec.Header().Get("X-Correlation-ID"); got != cid {
			t.Errorf("%s %s: X-Correlation-ID = %q, want %q", tt.method, tt.path, got, cid)
		}

		spans := exp.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("%s %s: got %d spans, want 1", tt.method, tt.path, len(spans))
		}
		wantName := "HTTP " + tt.method + " " + tt.path
		if spans[0].Name != wantName {
			t.Errorf("span name = %q, want %q", spans[0].Name, wantName)
		}
		var status int64
		for _, a := range spans[0].Attributes {
			if a.Key == "http.response.status_code" {
				status = a.Value.AsInt64()
			}
		}
		if status != int64(tt.code) {
			t.Errorf("%s: span http.response.status_code = %d, want %d", wantName, status, tt.code)
		}
	}
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	m, reader, _ := testSetup(t)

	handler := Middleware(m)(statusHandler(http.StatusOK, nil))
	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "earshot.http.request.duration")
	if met == nil {
		t.Fatal("earshot.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("want one histogram data point, got %+v", met.Data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("sample count = %d, want 2", dp.Count)
	}
	if v, ok := dp.Attributes.Value("method"); !ok || v.AsString() != "GET" {
		t.Errorf("method attribute = %v, want GET", v)
	}
	if v, ok := dp.Attributes.Value("path"); !ok || v.AsString() != "/healthz" {
		t.Errorf("path attribute = %v, want /healthz", v)
	}
}

func TestMiddleware_PropagatesW3CTraceContext(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	m, _, _ := testSetup(t)

	var cid string
	req := httptest.NewRequest("GET", "/readyz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	Middleware(m)(statusHandler(http.StatusOK, &cid)).ServeHTTP(rec, req)

	if cid != traceID {
		t.Errorf("correlation ID = %q, want the caller's trace %q", cid, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
}

func TestMiddleware_ProbesLogAtDebug(t *testing.T) {
	m, _, _ := testSetup(t)
	buf := captureDefaultLog(t)

	Middleware(m)(statusHandler(http.StatusOK, nil)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/readyz", nil))
	if buf.Len() != 0 {
		t.Errorf("healthy probe logged at info: %s", buf.String())
	}

	Middleware(m)(statusHandler(http.StatusServiceUnavailable, nil)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/readyz", nil))
	if !strings.Contains(buf.String(), "status=503") {
		t.Errorf("failing probe not logged: %q", buf.String())
	}

	buf.Reset()
	Middleware(m)(statusHandler(http.StatusOK, nil)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/devices", nil))
	if !strings.Contains(buf.String(), "path=/devices") {
		t.Errorf("regular request not logged: %q", buf.String())
	}
}
