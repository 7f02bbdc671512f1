package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"

	"github.com/utafrali/review-service/internal/access"
	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/rating"
	"github.com/utafrali/review-service/internal/repository"
)

// --- Mock Review Repository ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) List(ctx context.Context, filter repository.ReviewFilter) ([]domain.Review, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Review), args.Error(1)
}

func (m *mockReviewRepository) Count(ctx context.Context, filter repository.ReviewFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockReviewRepository) Update(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockReviewRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Comment Repository ---

type mockCommentRepository struct {
	mock.Mock
}

func (m *mockCommentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	args := m.Called(ctx, comment)
	return args.Error(0)
}

func (m *mockCommentRepository) GetByID(ctx context.Context, id string) (*domain.Comment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

func (m *mockCommentRepository) List(ctx context.Context, filter repository.CommentFilter) ([]domain.Comment, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Comment), args.Error(1)
}

func (m *mockCommentRepository) Count(ctx context.Context, filter repository.CommentFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCommentRepository) Update(ctx context.Context, comment *domain.Comment) error {
	args := m.Called(ctx, comment)
	return args.Error(0)
}

func (m *mockCommentRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCommentRepository) GetSummaries(ctx context.Context, ids []string) (map[string]domain.CommentSummary, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.CommentSummary), args.Error(1)
}

// --- Mock Business Aggregate ---

type mockBusiness struct {
	mock.Mock
}

func (m *mockBusiness) AddReview(ctx context.Context, businessID, reviewID string, rating float64) (string, error) {
	args := m.Called(ctx, businessID, reviewID, rating)
	return args.String(0), args.Error(1)
}

func (m *mockBusiness) UpdateReview(ctx context.Context, reviewID, businessID string, difference float64) error {
	args := m.Called(ctx, reviewID, businessID, difference)
	return args.Error(0)
}

func (m *mockBusiness) DeleteReview(ctx context.Context, businessID, reviewID string, rating float64) error {
	args := m.Called(ctx, businessID, reviewID, rating)
	return args.Error(0)
}

// --- Mock Notifier ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) AddNotification(ctx context.Context, n domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// --- Mock Event Publishers ---

type mockReviewEvents struct {
	mock.Mock
}

func (m *mockReviewEvents) PublishReviewCreated(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReviewEvents) PublishReviewUpdated(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReviewEvents) PublishReviewDeleted(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReviewEvents) PublishReviewVoted(ctx context.Context, r *domain.Review, voterID, direction string, cast bool) error {
	return m.Called(ctx, r, voterID, direction, cast).Error(0)
}

type mockCommentEvents struct {
	mock.Mock
}

func (m *mockCommentEvents) PublishCommentCreated(ctx context.Context, c *domain.Comment) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCommentEvents) PublishCommentUpdated(ctx context.Context, c *domain.Comment) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCommentEvents) PublishCommentDeleted(ctx context.Context, c *domain.Comment) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCommentEvents) PublishCommentVoted(ctx context.Context, c *domain.Comment, voterID, direction string, cast bool) error {
	return m.Called(ctx, c, voterID, direction, cast).Error(0)
}

// --- Mock Review Cache ---

type mockReviewCache struct {
	mock.Mock
}

func (m *mockReviewCache) Get(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewCache) Set(ctx context.Context, id string, v *domain.Review) error {
	return m.Called(ctx, id, v).Error(0)
}

func (m *mockReviewCache) Invalidate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type reviewFixture struct {
	repo     *mockReviewRepository
	business *mockBusiness
	notifier *mockNotifier
	events   *mockReviewEvents
	metrics  *Metrics
	svc      *ReviewService
}

func newReviewFixture(cache EntityCache[domain.Review]) *reviewFixture {
	f := &reviewFixture{
		repo:     new(mockReviewRepository),
		business: new(mockBusiness),
		notifier: new(mockNotifier),
		events:   new(mockReviewEvents),
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	logger := newTestLogger()
	reconciler := rating.NewReconciler(f.business, f.repo, logger)
	f.svc = NewReviewService(f.repo, reconciler, access.DefaultPolicy(), f.notifier, f.events, cache, f.metrics, logger)
	return f
}

func (f *reviewFixture) assertExpectations(t mock.TestingT) {
	f.repo.AssertExpectations(t)
	f.business.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

type commentFixture struct {
	repo     *mockCommentRepository
	notifier *mockNotifier
	events   *mockCommentEvents
	metrics  *Metrics
	svc      *CommentService
}

func newCommentFixture() *commentFixture {
	f := &commentFixture{
		repo:     new(mockCommentRepository),
		notifier: new(mockNotifier),
		events:   new(mockCommentEvents),
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	f.svc = NewCommentService(f.repo, access.DefaultPolicy(), f.notifier, f.events, nil, f.metrics, newTestLogger())
	return f
}

func (f *commentFixture) assertExpectations(t mock.TestingT) {
	f.repo.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

var (
	author    = Actor{UserID: "user-author", Role: domain.RoleRegular}
	voter     = Actor{UserID: "user-voter", Role: domain.RoleRegular}
	moderator = Actor{UserID: "user-mod", Role: domain.RoleManager}
	guest     = Actor{}
)

func sampleReview() *domain.Review {
	now := time.Now().UTC()
	return &domain.Review{
		ID:         "rev-1",
		Status:     domain.StatusNormal,
		Quality:    2,
		BusinessID: "biz-1",
		UserID:     author.UserID,
		Rating:     3,
		Content:    "Solid coffee, slow service.",
		Upvote:     []string{},
		Images:     []domain.Image{},
		Version:    4,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func sampleComment() *domain.Comment {
	now := time.Now().UTC()
	return &domain.Comment{
		ID:        "com-1",
		Status:    domain.StatusNormal,
		UserID:    author.UserID,
		PostID:    "post-1",
		Content:   "Agreed, the terrace is lovely.",
		Upvote:    []string{},
		Downvote:  []string{},
		Version:   2,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func strPtr(s string) *string { return &s }
