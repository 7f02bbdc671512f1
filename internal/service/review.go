package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/review-service/internal/access"
	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/rating"
	"github.com/utafrali/review-service/internal/repository"
	"github.com/utafrali/review-service/internal/vote"
	apperrors "github.com/utafrali/review-service/pkg/errors"
	"github.com/utafrali/review-service/pkg/pagination"
)

// ReviewEvents publishes review domain events.
type ReviewEvents interface {
	PublishReviewCreated(ctx context.Context, r *domain.Review) error
	PublishReviewUpdated(ctx context.Context, r *domain.Review) error
	PublishReviewDeleted(ctx context.Context, r *domain.Review) error
	PublishReviewVoted(ctx context.Context, r *domain.Review, voterID, direction string, cast bool) error
}

// ReviewService implements the business logic for review operations.
type ReviewService struct {
	repo       repository.ReviewRepository
	reconciler *rating.Reconciler
	policy     *access.Policy
	notify     dispatcher
	events     ReviewEvents
	cache      cached[domain.Review]
	metrics    *Metrics
	logger     *slog.Logger
}

// NewReviewService creates a new review service. cache may be nil.
func NewReviewService(
	repo repository.ReviewRepository,
	reconciler *rating.Reconciler,
	policy *access.Policy,
	notifier Notifier,
	events ReviewEvents,
	cache EntityCache[domain.Review],
	metrics *Metrics,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		repo:       repo,
		reconciler: reconciler,
		policy:     policy,
		notify:     dispatcher{notifier: notifier, metrics: metrics, logger: logger},
		events:     events,
		cache:      cached[domain.Review]{store: cache, entity: "review", logger: logger},
		metrics:    metrics,
		logger:     logger,
	}
}

// CreateReviewInput holds the parameters for creating a review.
type CreateReviewInput struct {
	BusinessID  string
	Rating      float64
	Content     string
	ServiceGood bool
	EnvGood     bool
	Comeback    bool
	Images      []domain.Image
}

func (in *CreateReviewInput) fields() map[string]any {
	return map[string]any{
		"rating":       in.Rating,
		"content":      in.Content,
		"service_good": in.ServiceGood,
		"env_good":     in.EnvGood,
		"comeback":     in.Comeback,
		"images":       in.Images,
	}
}

// UpdateReviewInput holds the owner-editable fields of a review. Nil fields
// are left unchanged.
type UpdateReviewInput struct {
	Rating      *float64
	Content     *string
	ServiceGood *bool
	EnvGood     *bool
	Comeback    *bool
	Images      *[]domain.Image
}

func (in *UpdateReviewInput) fields() map[string]any {
	m := make(map[string]any)
	if in.Rating != nil {
		m["rating"] = *in.Rating
	}
	if in.Content != nil {
		m["content"] = *in.Content
	}
	if in.ServiceGood != nil {
		m["service_good"] = *in.ServiceGood
	}
	if in.EnvGood != nil {
		m["env_good"] = *in.EnvGood
	}
	if in.Comeback != nil {
		m["comeback"] = *in.Comeback
	}
	if in.Images != nil {
		m["images"] = *in.Images
	}
	return m
}

// ModerateReviewInput holds the moderation fields of a review.
type ModerateReviewInput struct {
	Status  *string
	Quality *int
}

func (in *ModerateReviewInput) fields() map[string]any {
	m := make(map[string]any)
	if in.Status != nil {
		m["status"] = *in.Status
	}
	if in.Quality != nil {
		m["quality"] = *in.Quality
	}
	return m
}

// VoteReviewInput holds a vote and the business context used in the
// notification sent to the review author.
type VoteReviewInput struct {
	Direction    string
	BusinessName string
	BusinessSlug string
}

// applyReviewFields assigns the permitted fields to r.
func applyReviewFields(r *domain.Review, fields map[string]any) error {
	for k, v := range fields {
		switch k {
		case "rating":
			r.Rating = v.(float64)
		case "content":
			r.Content = v.(string)
		case "service_good":
			r.ServiceGood = v.(bool)
		case "env_good":
			r.EnvGood = v.(bool)
		case "comeback":
			r.Comeback = v.(bool)
		case "images":
			r.Images = v.([]domain.Image)
		case "status":
			r.Status = v.(string)
		case "quality":
			r.Quality = v.(int)
		}
	}
	return validateReview(r)
}

func validateReview(r *domain.Review) error {
	if r.Rating < domain.MinRating || r.Rating > domain.MaxRating {
		return apperrors.InvalidInput(fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
	}
	if len(r.Images) > domain.MaxImages {
		return apperrors.InvalidInput(fmt.Sprintf("at most %d images are allowed", domain.MaxImages))
	}
	if !domain.IsValidStatus(r.Status) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid status %q", r.Status))
	}
	if r.Quality < 0 || r.Quality > domain.MaxQuality {
		return apperrors.InvalidInput(fmt.Sprintf("quality must be between 0 and %d", domain.MaxQuality))
	}
	return nil
}

// ListReviews returns the reviews matching filter, redacted for actor.
func (s *ReviewService) ListReviews(ctx context.Context, actor Actor, filter repository.ReviewFilter) (pagination.Result[map[string]any], error) {
	var empty pagination.Result[map[string]any]

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return empty, fmt.Errorf("count reviews: %w", err)
	}

	reviews, err := s.repo.List(ctx, filter)
	if err != nil {
		return empty, fmt.Errorf("list reviews: %w", err)
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceReview, access.ActionRead, false)
	if !perm.Granted() {
		return empty, apperrors.Forbidden("not allowed to read reviews")
	}

	list, err := redactAll(perm, reviews)
	if err != nil {
		return empty, err
	}
	return pagination.NewResult(list, total), nil
}

// GetReview returns a single review redacted for actor. Reviews that are not
// NORMAL are only visible to their author and to moderators.
func (s *ReviewService) GetReview(ctx context.Context, actor Actor, id string) (map[string]any, error) {
	review := s.cache.get(ctx, id)
	if review == nil {
		var err error
		review, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get review by id: %w", err)
		}
		s.cache.set(ctx, id, review)
	}

	if review.Status != domain.StatusNormal && !actor.canSeeHidden(review.UserID) {
		return nil, apperrors.NotFound("review", id)
	}
	return s.present(actor, review)
}

// CreateReview stores a review by actor and registers its rating with the
// business service.
func (s *ReviewService) CreateReview(ctx context.Context, actor Actor, input *CreateReviewInput) (map[string]any, error) {
	if actor.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if input.BusinessID == "" {
		return nil, apperrors.InvalidInput("business_id is required")
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceReview, access.ActionCreate, true)
	if !perm.Granted() {
		return nil, apperrors.Forbidden("not allowed to create reviews")
	}

	now := time.Now().UTC()
	review := &domain.Review{
		ID:         uuid.New().String(),
		Status:     domain.StatusNormal,
		BusinessID: input.BusinessID,
		UserID:     actor.UserID,
		Upvote:     []string{},
		Images:     []domain.Image{},
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := applyReviewFields(review, perm.Filter(input.fields())); err != nil {
		return nil, err
	}
	if review.Images == nil {
		review.Images = []domain.Image{}
	}

	if err := s.reconciler.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	if err := s.events.PublishReviewCreated(ctx, review); err != nil {
		s.publishFailed(ctx, "review.created", review.ID, err)
	}

	s.logger.InfoContext(ctx, "review created",
		slog.String("review_id", review.ID),
		slog.String("business_id", review.BusinessID),
		slog.String("user_id", review.UserID),
		slog.Float64("rating", review.Rating),
	)

	return s.present(actor, review)
}

// UpdateReview applies the fields of input that actor may write. A rating
// change is propagated to the business service before the review is saved.
func (s *ReviewService) UpdateReview(ctx context.Context, actor Actor, id string, input *UpdateReviewInput) (map[string]any, error) {
	review, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review by id: %w", err)
	}

	owner := actor.owns(review.UserID)
	perm := s.policy.Resolve(actor.role(), access.ResourceReview, access.ActionUpdate, owner)
	allowed := perm.Filter(input.fields())
	if len(allowed) == 0 {
		if !owner {
			return nil, apperrors.Forbidden("not allowed to update this review")
		}
		return s.present(actor, review)
	}

	oldRating := review.Rating
	if err := applyReviewFields(review, allowed); err != nil {
		return nil, err
	}
	_, ratingSubmitted := allowed["rating"]

	if err := s.reconciler.Update(ctx, review, oldRating, ratingSubmitted); err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	s.cache.invalidate(ctx, review.ID)

	if err := s.events.PublishReviewUpdated(ctx, review); err != nil {
		s.publishFailed(ctx, "review.updated", review.ID, err)
	}

	s.logger.InfoContext(ctx, "review updated",
		slog.String("review_id", review.ID),
		slog.Float64("rating_difference", rating.Difference(oldRating, review.Rating, ratingSubmitted)),
	)

	return s.present(actor, review)
}

// ModerateReview changes the status or quality of a review. Every submitted
// field must be covered by the actor's update:any grant.
func (s *ReviewService) ModerateReview(ctx context.Context, actor Actor, id string, input *ModerateReviewInput) (map[string]any, error) {
	fields := input.fields()
	if len(fields) == 0 {
		return nil, apperrors.InvalidInput("status or quality is required")
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceReview, access.ActionUpdate, false)
	allowed := perm.Filter(fields)
	if len(allowed) != len(fields) {
		return nil, apperrors.Forbidden("not allowed to moderate reviews")
	}

	review, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review by id: %w", err)
	}
	if err := applyReviewFields(review, allowed); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, review); err != nil {
		return nil, fmt.Errorf("moderate review: %w", err)
	}
	s.cache.invalidate(ctx, review.ID)

	if err := s.events.PublishReviewUpdated(ctx, review); err != nil {
		s.publishFailed(ctx, "review.updated", review.ID, err)
	}

	s.logger.InfoContext(ctx, "review moderated",
		slog.String("review_id", review.ID),
		slog.String("status", review.Status),
		slog.Int("quality", review.Quality),
	)

	return s.present(actor, review)
}

// DeleteReview removes actor's review and withdraws its rating from the
// business service.
func (s *ReviewService) DeleteReview(ctx context.Context, actor Actor, id string) error {
	review, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get review by id: %w", err)
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceReview, access.ActionDelete, actor.owns(review.UserID))
	if !perm.Granted() {
		return apperrors.Forbidden("not allowed to delete this review")
	}

	if err := s.reconciler.Delete(ctx, review); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	s.cache.invalidate(ctx, review.ID)

	if err := s.events.PublishReviewDeleted(ctx, review); err != nil {
		s.publishFailed(ctx, "review.deleted", review.ID, err)
	}

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("review_id", review.ID),
		slog.String("business_id", review.BusinessID),
	)

	return nil
}

// VoteReview toggles actor's vote on a review. A cast vote notifies the
// review author.
func (s *ReviewService) VoteReview(ctx context.Context, actor Actor, id string, input *VoteReviewInput) (map[string]any, error) {
	if actor.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	dir, err := vote.ParseDirection(input.Direction)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	review, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review by id: %w", err)
	}
	if review.Status != domain.StatusNormal && !actor.canSeeHidden(review.UserID) {
		return nil, apperrors.NotFound("review", id)
	}
	if actor.owns(review.UserID) {
		return nil, apperrors.Forbidden("cannot vote on your own review")
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceReview, access.ActionUpdate, false)
	if !perm.Allows(dir.Field()) {
		return nil, apperrors.Forbidden(fmt.Sprintf("%s is not allowed on reviews", dir))
	}

	outcome, err := vote.Apply(review, actor.UserID, dir)
	if err != nil {
		if errors.Is(err, vote.ErrUnsupportedDirection) {
			return nil, apperrors.Forbidden(err.Error())
		}
		return nil, apperrors.InvalidInput(err.Error())
	}

	if err := s.repo.Update(ctx, review); err != nil {
		return nil, fmt.Errorf("save review vote: %w", err)
	}
	s.metrics.voted(access.ResourceReview, string(dir), outcome.Cast)

	if outcome.Cast {
		s.notify.send(ctx, domain.Notification{
			Type:           domain.NotificationTypeReview,
			Event:          outcome.Event,
			UserID:         review.UserID,
			SenderID:       actor.UserID,
			SubjectURL:     input.BusinessSlug,
			SubjectTitle:   input.BusinessName,
			CommentID:      review.ID,
			CommentContent: review.Content,
		})
	}

	if err := s.events.PublishReviewVoted(ctx, review, actor.UserID, string(dir), outcome.Cast); err != nil {
		s.publishFailed(ctx, "review.voted", review.ID, err)
	}
	s.cache.invalidate(ctx, review.ID)

	return s.present(actor, review)
}

func (s *ReviewService) present(actor Actor, review *domain.Review) (map[string]any, error) {
	perm := s.policy.Resolve(actor.role(), access.ResourceReview, access.ActionRead, actor.owns(review.UserID))
	if !perm.Granted() {
		return nil, apperrors.Forbidden("not allowed to read reviews")
	}
	return access.Redact(perm, review)
}

func (s *ReviewService) publishFailed(ctx context.Context, topic, id string, err error) {
	s.logger.ErrorContext(ctx, "failed to publish "+topic+" event",
		slog.String("review_id", id),
		slog.String("error", err.Error()),
	)
}
