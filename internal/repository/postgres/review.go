package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/repository"
	"github.com/utafrali/review-service/pkg/database"
	apperrors "github.com/utafrali/review-service/pkg/errors"
)

const reviewColumns = `id, status, quality, business_id, user_id, rating, content,
		service_good, env_good, comeback, upvote, images, version, created_at, updated_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a new review.
func (r *ReviewRepository) Create(ctx context.Context, rev *domain.Review) (err error) {
	imagesJSON, err := marshalImages(rev.Images)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	ctx, end := database.TraceQuery(ctx, "reviews.Create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		rev.ID,
		rev.Status,
		rev.Quality,
		rev.BusinessID,
		rev.UserID,
		rev.Rating,
		rev.Content,
		rev.ServiceGood,
		rev.EnvGood,
		rev.Comeback,
		nonNil(rev.Upvote),
		imagesJSON,
		rev.Version,
		rev.CreatedAt,
		rev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID retrieves a review by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "reviews.GetByID", query)
	defer func() { end(err) }()

	rev, err := scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rev, nil
}

func reviewWhere(f repository.ReviewFilter) *where {
	w := &where{}
	w.eq("business_id", f.BusinessID)
	w.eq("user_id", f.UserID)
	w.status(f.Status)
	w.search(f.Search)
	return w
}

// List returns reviews matching filter in the requested order.
func (r *ReviewRepository) List(ctx context.Context, f repository.ReviewFilter) (_ []domain.Review, err error) {
	w := reviewWhere(f)
	query := fmt.Sprintf(`SELECT %s FROM reviews %s %s`, reviewColumns, w.clause(), reviewOrder(f.OrderBy))
	query += w.window(f.Window)

	ctx, end := database.TraceQuery(ctx, "reviews.List", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		rev, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, nil
}

// Count returns the number of reviews matching filter, ignoring the window.
func (r *ReviewRepository) Count(ctx context.Context, f repository.ReviewFilter) (_ int64, err error) {
	w := reviewWhere(f)
	query := `SELECT count(*) FROM reviews ` + w.clause()

	ctx, end := database.TraceQuery(ctx, "reviews.Count", query)
	defer func() { end(err) }()

	var n int64
	if err = r.db.QueryRow(ctx, query, w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return n, nil
}

// Update saves rev if its version is unchanged and bumps the version.
func (r *ReviewRepository) Update(ctx context.Context, rev *domain.Review) (err error) {
	imagesJSON, err := marshalImages(rev.Images)
	if err != nil {
		return err
	}

	query := `
		UPDATE reviews
		SET status = $1, quality = $2, rating = $3, content = $4, service_good = $5,
		    env_good = $6, comeback = $7, upvote = $8, images = $9,
		    version = version + 1, updated_at = $10
		WHERE id = $11 AND version = $12`

	ctx, end := database.TraceQuery(ctx, "reviews.Update", query)
	defer func() { end(err) }()

	now := time.Now().UTC()
	ct, err := r.db.Exec(ctx, query,
		rev.Status,
		rev.Quality,
		rev.Rating,
		rev.Content,
		rev.ServiceGood,
		rev.EnvGood,
		rev.Comeback,
		nonNil(rev.Upvote),
		imagesJSON,
		now,
		rev.ID,
		rev.Version,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Conflict("review " + conflictMessage)
	}

	rev.Version++
	rev.UpdatedAt = now
	return nil
}

// Delete removes a review by its ID.
func (r *ReviewRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "reviews.Delete", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

func scanReview(row pgx.Row) (*domain.Review, error) {
	var (
		rev        domain.Review
		imagesJSON []byte
	)
	if err := row.Scan(
		&rev.ID,
		&rev.Status,
		&rev.Quality,
		&rev.BusinessID,
		&rev.UserID,
		&rev.Rating,
		&rev.Content,
		&rev.ServiceGood,
		&rev.EnvGood,
		&rev.Comeback,
		&rev.Upvote,
		&imagesJSON,
		&rev.Version,
		&rev.CreatedAt,
		&rev.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if imagesJSON != nil {
		if err := json.Unmarshal(imagesJSON, &rev.Images); err != nil {
			return nil, fmt.Errorf("unmarshal images: %w", err)
		}
	}
	if rev.Images == nil {
		rev.Images = []domain.Image{}
	}
	rev.Upvote = nonNil(rev.Upvote)
	return &rev, nil
}

func marshalImages(images []domain.Image) ([]byte, error) {
	if images == nil {
		images = []domain.Image{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("marshal images: %w", err)
	}
	return b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
