package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestMetricsCollector_HTTPMiddleware(t *testing.T) {
	m := NewMetricsCollector(zap.NewNop())

	r := chi.NewRouter()
	r.Use(m.HTTPMiddleware)
	r.Get("/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/assets/{id}", "404")))
}

func TestMetricsCollector_FlowCounters(t *testing.T) {
	m := NewMetricsCollector(zap.NewNop())

	m.StaleCompletion(FlowImage)
	m.FlowOutcome(FlowRecommendation, "error")
	m.KnowledgeLookup(true)
	m.KnowledgeLookup(false)
	m.KnowledgeLookup(false)
	m.UpstreamRequest(UpstreamImage, "huggingface", "200", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.staleCompletions.WithLabelValues(FlowImage)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flowOutcomes.WithLabelValues(FlowRecommendation, "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.knowledgeMatches.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequestsTotal.WithLabelValues(UpstreamImage, "huggingface", "200")))
}

func TestMetricsCollector_Handler(t *testing.T) {
	m := NewMetricsCollector(zap.NewNop())
	m.RegisterAssetGauge(func(ctx context.Context) (int, error) { return 3, nil })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "assets_held 3"))
}

func TestTracingProvider_Disabled(t *testing.T) {
	tp, err := NewTracingProvider(context.Background(), TracingConfig{ServiceName: "kbcanvas"}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, tp.Enabled())

	assert.Empty(t, TraceIDFromContext(context.Background()))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	ctx, span := tracer.Start(context.Background(), "imagegen.Generate")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	RecordError(span, assert.AnError)
	span.End()

	_, quiet := tracer.Start(context.Background(), "imagegen.Render")
	RecordError(quiet, nil)
	quiet.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, assert.AnError.Error(), ended[0].Status().Description)
	assert.Len(t, ended[0].Events(), 1)
	assert.Equal(t, codes.Unset, ended[1].Status().Code)
}
