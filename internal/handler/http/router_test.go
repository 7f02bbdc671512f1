package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/review-service/internal/access"
	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/event"
	"github.com/utafrali/review-service/internal/rating"
	"github.com/utafrali/review-service/internal/repository"
	"github.com/utafrali/review-service/internal/service"
	apperrors "github.com/utafrali/review-service/pkg/errors"
	"github.com/utafrali/review-service/pkg/health"
	"github.com/utafrali/review-service/pkg/httputil"
	pkgkafka "github.com/utafrali/review-service/pkg/kafka"
	"github.com/utafrali/review-service/pkg/middleware"
	"github.com/utafrali/review-service/pkg/pagination"
)

// ============================================================================
// In-memory repositories
// ============================================================================

func statusMatches(filter, status string) bool {
	switch filter {
	case repository.StatusAll:
		return true
	case "":
		return status == domain.StatusNormal
	default:
		return status == filter
	}
}

func window[T any](items []T, w pagination.Window) []T {
	if w.Skip != nil {
		if *w.Skip >= len(items) {
			return []T{}
		}
		items = items[*w.Skip:]
	}
	if w.Limit != nil && *w.Limit < len(items) {
		items = items[:*w.Limit]
	}
	return items
}

type memReviews struct {
	mu         sync.Mutex
	items      map[string]domain.Review
	failDelete error
}

func newMemReviews() *memReviews {
	return &memReviews{items: make(map[string]domain.Review)}
}

func cloneReview(r domain.Review) domain.Review {
	r.Upvote = slices.Clone(r.Upvote)
	r.Images = slices.Clone(r.Images)
	return r
}

func (m *memReviews) Create(_ context.Context, r *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[r.ID] = cloneReview(*r)
	return nil
}

func (m *memReviews) GetByID(_ context.Context, id string) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	r = cloneReview(r)
	return &r, nil
}

func (m *memReviews) filter(f repository.ReviewFilter) []domain.Review {
	var out []domain.Review
	for _, r := range m.items {
		if !statusMatches(f.Status, r.Status) {
			continue
		}
		if f.BusinessID != "" && r.BusinessID != f.BusinessID {
			continue
		}
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		out = append(out, cloneReview(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memReviews) List(_ context.Context, f repository.ReviewFilter) ([]domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return window(m.filter(f), f.Window), nil
}

func (m *memReviews) Count(_ context.Context, f repository.ReviewFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.filter(f))), nil
}

func (m *memReviews) Update(_ context.Context, r *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[r.ID]
	if !ok || stored.Version != r.Version {
		return apperrors.Conflict("review was modified concurrently, please retry")
	}
	r.Version++
	r.UpdatedAt = time.Now().UTC()
	m.items[r.ID] = cloneReview(*r)
	return nil
}

func (m *memReviews) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	if _, ok := m.items[id]; !ok {
		return apperrors.NotFound("review", id)
	}
	delete(m.items, id)
	return nil
}

type memComments struct {
	mu           sync.Mutex
	items        map[string]domain.Comment
	summaryCalls int
}

func newMemComments() *memComments {
	return &memComments{items: make(map[string]domain.Comment)}
}

func cloneComment(c domain.Comment) domain.Comment {
	c.Upvote = slices.Clone(c.Upvote)
	c.Downvote = slices.Clone(c.Downvote)
	return c
}

func (m *memComments) Create(_ context.Context, c *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.ID] = cloneComment(*c)
	return nil
}

func (m *memComments) GetByID(_ context.Context, id string) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("comment", id)
	}
	c = cloneComment(c)
	return &c, nil
}

func (m *memComments) filter(f repository.CommentFilter) []domain.Comment {
	var out []domain.Comment
	for _, c := range m.items {
		if !statusMatches(f.Status, c.Status) {
			continue
		}
		if f.PostID != "" && c.PostID != f.PostID {
			continue
		}
		if f.ParentID != "" && (c.ParentID == nil || *c.ParentID != f.ParentID) {
			continue
		}
		out = append(out, cloneComment(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memComments) List(_ context.Context, f repository.CommentFilter) ([]domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return window(m.filter(f), f.Window), nil
}

func (m *memComments) Count(_ context.Context, f repository.CommentFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.filter(f))), nil
}

func (m *memComments) Update(_ context.Context, c *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[c.ID]
	if !ok || stored.Version != c.Version {
		return apperrors.Conflict("comment was modified concurrently, please retry")
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	m.items[c.ID] = cloneComment(*c)
	return nil
}

func (m *memComments) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperrors.NotFound("comment", id)
	}
	delete(m.items, id)
	return nil
}

func (m *memComments) GetSummaries(_ context.Context, ids []string) (map[string]domain.CommentSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaryCalls++
	out := make(map[string]domain.CommentSummary, len(ids))
	for _, id := range ids {
		if c, ok := m.items[id]; ok {
			out[id] = domain.CommentSummary{ID: c.ID, UserID: c.UserID, Content: c.Content, Status: c.Status}
		}
	}
	return out, nil
}

// ============================================================================
// Peer fakes
// ============================================================================

type businessCall struct {
	op     string
	review string
	value  float64
}

type fakeBusiness struct {
	mu        sync.Mutex
	calls     []businessCall
	addErr    error
	updateErr error
	deleteErr error
}

func (f *fakeBusiness) AddReview(_ context.Context, businessID, reviewID string, rating float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, businessCall{"add", reviewID, rating})
	if f.addErr != nil {
		return "", f.addErr
	}
	return businessID, nil
}

func (f *fakeBusiness) UpdateReview(_ context.Context, reviewID, _ string, difference float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, businessCall{"update", reviewID, difference})
	return f.updateErr
}

func (f *fakeBusiness) DeleteReview(_ context.Context, _, reviewID string, rating float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, businessCall{"delete", reviewID, rating})
	return f.deleteErr
}

func (f *fakeBusiness) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (f *fakeNotifier) AddNotification(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakePublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return nil
}

// ============================================================================
// Test server
// ============================================================================

const (
	authorID = "user-author"
	voterID  = "user-voter"
	modID    = "user-mod"
)

var tokens = map[string]*middleware.Claims{
	"author":     {UserID: authorID, Role: domain.RoleRegular, IsVerified: true},
	"voter":      {UserID: voterID, Role: domain.RoleRegular, IsVerified: true},
	"unverified": {UserID: "user-new", Role: domain.RoleRegular},
	"mod":        {UserID: modID, Role: domain.RoleManager, IsVerified: true},
}

func validateToken(token string) (*middleware.Claims, error) {
	if c, ok := tokens[token]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	router    http.Handler
	reviews   *memReviews
	comments  *memComments
	business  *fakeBusiness
	notifier  *fakeNotifier
	publisher *fakePublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{
		reviews:   newMemReviews(),
		comments:  newMemComments(),
		business:  &fakeBusiness{},
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
	}

	logger := testLogger()
	reg := prometheus.NewRegistry()
	metrics := service.NewMetrics(reg)
	policy := access.DefaultPolicy()
	events := event.NewProducer(s.publisher, logger)

	reviewSvc := service.NewReviewService(s.reviews, rating.NewReconciler(s.business, s.reviews, logger),
		policy, s.notifier, events, nil, metrics, logger)
	commentSvc := service.NewCommentService(s.comments, policy, s.notifier, events, nil, metrics, logger)

	s.router = NewRouter(reviewSvc, commentSvc, s.comments, validateToken, health.NewHandler(), RouterOptions{
		ServiceName: "review-service",
		HTTPMetrics: middleware.NewHTTPMetrics(reg, "review-service"),
		Gatherer:    reg,
		PprofCIDRs:  []string{"127.0.0.1/32"},
	}, logger)
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	env := decodeEnvelope(t, rec)
	var out map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type listData struct {
	TotalCount int64            `json:"total_count"`
	List       []map[string]any `json:"list"`
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) listData {
	t.Helper()
	env := decodeEnvelope(t, rec)
	var out listData
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error, rec.Body.String())
	return env.Error.Code
}

// ============================================================================
// Router tests
// ============================================================================

func TestRouter_HealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MetricsExposeRouteAndServiceCounters(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/v1/reviews", "", nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `route="/api/v1/reviews"`)
	assert.Contains(t, body, "http_requests_total")
}

func TestRouter_PprofRestrictedByAllowlist(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_CorrelationIDEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reviews", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "corr-123", rec.Header().Get("X-Correlation-ID"))
}

func TestRouter_AuthLayers(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"business_id": "biz-1", "rating": 4}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"create without token", http.MethodPost, "/api/v1/reviews", "", body, http.StatusUnauthorized},
		{"create with bad token", http.MethodPost, "/api/v1/reviews", "forged", body, http.StatusUnauthorized},
		{"create unverified", http.MethodPost, "/api/v1/reviews", "unverified", body, http.StatusUnauthorized},
		{"admin list as regular", http.MethodGet, "/api/v1/admin/reviews", "author", nil, http.StatusForbidden},
		{"admin list unverified", http.MethodGet, "/api/v1/admin/comments", "unverified", nil, http.StatusUnauthorized},
		{"public list with bad token", http.MethodGet, "/api/v1/reviews", "forged", nil, http.StatusUnauthorized},
		{"public list anonymous", http.MethodGet, "/api/v1/reviews", "", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
