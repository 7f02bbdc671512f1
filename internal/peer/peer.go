// Package peer holds HTTP clients for the business and notification services.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/utafrali/review-service/pkg/errors"
	"github.com/utafrali/review-service/pkg/httpclient"
	"github.com/utafrali/review-service/pkg/logger"
	"github.com/utafrali/review-service/pkg/tracing"
)

const tracerName = "github.com/utafrali/review-service/internal/peer"

// Metrics records outbound peer calls.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the peer call collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_peer_calls_total",
			Help: "Outbound peer service calls by peer, operation and outcome.",
		}, []string{"peer", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "review_peer_call_duration_seconds",
			Help:    "Latency of outbound peer service calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"peer", "operation"}),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

func (m *Metrics) observe(peer, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case apperrors.IsTimeout(err):
		outcome = "timeout"
	case apperrors.HTTPStatus(err) == http.StatusServiceUnavailable:
		outcome = "circuit_open"
	default:
		outcome = "failure"
	}
	m.calls.WithLabelValues(peer, op, outcome).Inc()
	m.duration.WithLabelValues(peer, op).Observe(time.Since(start).Seconds())
}

// endpoint is the transport shared by the peer clients.
type endpoint struct {
	name    string
	baseURL string
	doer    httpclient.Doer
	timeout time.Duration
	metrics *Metrics
}

// dataEnvelope matches the {"data": ...} body of a successful peer response.
type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// call sends body as JSON to path and decodes the response data into out
// when out is non-nil. Every failure is returned as an upstream AppError.
func (e *endpoint) call(ctx context.Context, op, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() { e.metrics.observe(e.name, op, start, err) }()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ctx, span := tracing.Tracer(tracerName).Start(ctx, e.name+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("peer.service", e.name),
			attribute.String("http.request.method", method),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Internal(fmt.Errorf("marshal %s request: %w", op, err))
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Internal(fmt.Errorf("create %s request: %w", op, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	tracing.InjectHeaders(ctx, req)

	resp, err := e.doer.Do(ctx, req)
	if err != nil {
		return e.classify(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.UpstreamFailure(e.name, httpclient.ParseResponseError(resp))
	}

	if out == nil {
		return nil
	}
	var env dataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperrors.UpstreamFailure(e.name, fmt.Errorf("decode %s response: %w", op, err))
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.UpstreamFailure(e.name, fmt.Errorf("decode %s data: %w", op, err))
	}
	return nil
}

// classify maps a transport error onto the upstream error kinds.
func (e *endpoint) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, httpclient.ErrCircuitOpen):
		return apperrors.UpstreamUnavailable(e.name, err)
	case httpclient.IsTimeout(err), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.UpstreamTimeout(e.name, err)
	default:
		return apperrors.UpstreamFailure(e.name, err)
	}
}
