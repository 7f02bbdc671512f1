// Package rating keeps the business service's aggregate rating in step with
// local review writes.
package rating

import (
	"context"
	"errors"
	"log/slog"

	"github.com/utafrali/review-service/internal/domain"
	apperrors "github.com/utafrali/review-service/pkg/errors"
)

const businessService = "business"

// BusinessAggregate is the peer that owns per-business rating totals.
type BusinessAggregate interface {
	AddReview(ctx context.Context, businessID, reviewID string, rating float64) (string, error)
	UpdateReview(ctx context.Context, reviewID, businessID string, difference float64) error
	DeleteReview(ctx context.Context, businessID, reviewID string, rating float64) error
}

// Store is the local persistence a Reconciler coordinates with. Update must
// only succeed when the stored version equals review.Version.
type Store interface {
	Create(ctx context.Context, review *domain.Review) error
	Update(ctx context.Context, review *domain.Review) error
	Delete(ctx context.Context, id string) error
}

// Reconciler sequences local writes and peer rating updates, undoing the
// completed half when the other half fails.
type Reconciler struct {
	business BusinessAggregate
	store    Store
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(business BusinessAggregate, store Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{business: business, store: store, logger: logger}
}

// Difference returns the rating delta to propagate. It is zero unless the
// rating was part of the authorised submitted fields.
func Difference(oldRating, newRating float64, submitted bool) float64 {
	if !submitted {
		return 0
	}
	return newRating - oldRating
}

// Create stores review and registers it with the business aggregate. If the
// peer call fails or returns no business id the local row is removed.
func (r *Reconciler) Create(ctx context.Context, review *domain.Review) error {
	if err := r.store.Create(ctx, review); err != nil {
		return err
	}

	businessID, err := r.business.AddReview(ctx, review.BusinessID, review.ID, review.Rating)
	if err == nil && businessID == "" {
		err = apperrors.UpstreamFailure(businessService, errors.New("add review response has no business_id"))
	}
	if err != nil {
		r.compensate(ctx, "delete review after failed add", review.ID, func(ctx context.Context) error {
			return r.store.Delete(ctx, review.ID)
		})
		return err
	}

	return nil
}

// Update propagates the rating change of review, whose stored rating was
// oldRating, then saves it under its version guard. A failed save issues the
// inverse delta.
func (r *Reconciler) Update(ctx context.Context, review *domain.Review, oldRating float64, ratingSubmitted bool) error {
	diff := Difference(oldRating, review.Rating, ratingSubmitted)

	if diff != 0 {
		if err := r.business.UpdateReview(ctx, review.ID, review.BusinessID, diff); err != nil {
			return err
		}
	}

	if err := r.store.Update(ctx, review); err != nil {
		if diff != 0 {
			r.compensate(ctx, "revert rating difference", review.ID, func(ctx context.Context) error {
				return r.business.UpdateReview(ctx, review.ID, review.BusinessID, -diff)
			})
		}
		return err
	}

	return nil
}

// Delete withdraws review from the business aggregate and then deletes it
// locally. A failed local delete re-adds the rating.
func (r *Reconciler) Delete(ctx context.Context, review *domain.Review) error {
	if err := r.business.DeleteReview(ctx, review.BusinessID, review.ID, review.Rating); err != nil {
		return err
	}

	if err := r.store.Delete(ctx, review.ID); err != nil {
		r.compensate(ctx, "re-add review after failed delete", review.ID, func(ctx context.Context) error {
			_, err := r.business.AddReview(ctx, review.BusinessID, review.ID, review.Rating)
			return err
		})
		return err
	}

	return nil
}

// compensate runs fn detached from the caller's cancellation. Failures are
// logged only; the caller returns the original error.
func (r *Reconciler) compensate(ctx context.Context, what, reviewID string, fn func(context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		r.logger.ErrorContext(ctx, "rating compensation failed",
			slog.String("step", what),
			slog.String("review_id", reviewID),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.WarnContext(ctx, "rating compensation applied",
		slog.String("step", what),
		slog.String("review_id", reviewID),
	)
}
