package repository

import (
	"context"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/pkg/pagination"
)

// StatusAll disables the status filter of a listing.
const StatusAll = "ALL"

// Listing orders.
const (
	OrderNew         = "new"
	OrderUseful      = "useful"
	OrderRecommended = "recommended"
)

// ReviewFilter narrows review listings. Empty fields are ignored, except
// Status which defaults to NORMAL.
type ReviewFilter struct {
	BusinessID string
	UserID     string
	Status     string
	Search     string
	OrderBy    string
	Window     pagination.Window
}

// CommentFilter narrows comment listings. Empty fields are ignored, except
// Status which defaults to NORMAL.
type CommentFilter struct {
	PostID   string
	UserID   string
	ParentID string
	Status   string
	Search   string
	OrderBy  string
	Window   pagination.Window
}

// ReviewRepository defines the persistence operations for reviews.
// Update only succeeds when the stored version matches review.Version and
// increments it; otherwise it returns a conflict error.
type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error
	GetByID(ctx context.Context, id string) (*domain.Review, error)
	List(ctx context.Context, filter ReviewFilter) ([]domain.Review, error)
	Count(ctx context.Context, filter ReviewFilter) (int64, error)
	Update(ctx context.Context, review *domain.Review) error
	Delete(ctx context.Context, id string) error
}

// CommentRepository defines the persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	GetByID(ctx context.Context, id string) (*domain.Comment, error)
	List(ctx context.Context, filter CommentFilter) ([]domain.Comment, error)
	Count(ctx context.Context, filter CommentFilter) (int64, error)
	Update(ctx context.Context, comment *domain.Comment) error
	Delete(ctx context.Context, id string) error
	GetSummaries(ctx context.Context, ids []string) (map[string]domain.CommentSummary, error)
}
