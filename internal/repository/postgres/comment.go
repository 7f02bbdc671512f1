package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/repository"
	"github.com/utafrali/review-service/pkg/database"
	apperrors "github.com/utafrali/review-service/pkg/errors"
)

const commentColumns = `id, status, user_id, post_id, parent_id, reply_to_user, content,
		upvote, downvote, version, created_at, updated_at`

// CommentRepository implements repository.CommentRepository using PostgreSQL.
type CommentRepository struct {
	db database.DBTX
}

// NewCommentRepository creates a new PostgreSQL-backed comment repository.
func NewCommentRepository(db database.DBTX) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts a new comment.
func (r *CommentRepository) Create(ctx context.Context, c *domain.Comment) (err error) {
	query := `
		INSERT INTO comments (` + commentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	ctx, end := database.TraceQuery(ctx, "comments.Create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		c.ID,
		c.Status,
		c.UserID,
		c.PostID,
		c.ParentID,
		c.ReplyToUser,
		c.Content,
		nonNil(c.Upvote),
		nonNil(c.Downvote),
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// GetByID retrieves a comment by its ID.
func (r *CommentRepository) GetByID(ctx context.Context, id string) (_ *domain.Comment, err error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "comments.GetByID", query)
	defer func() { end(err) }()

	c, err := scanComment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("comment", id)
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func commentWhere(f repository.CommentFilter) *where {
	w := &where{}
	w.eq("post_id", f.PostID)
	w.eq("user_id", f.UserID)
	w.eq("parent_id", f.ParentID)
	w.status(f.Status)
	w.search(f.Search)
	return w
}

// List returns comments matching filter in the requested order.
func (r *CommentRepository) List(ctx context.Context, f repository.CommentFilter) (_ []domain.Comment, err error) {
	w := commentWhere(f)
	query := fmt.Sprintf(`SELECT %s FROM comments %s %s`, commentColumns, w.clause(), commentOrder(f.OrderBy))
	query += w.window(f.Window)

	ctx, end := database.TraceQuery(ctx, "comments.List", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []domain.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment rows: %w", err)
	}
	return comments, nil
}

// Count returns the number of comments matching filter, ignoring the window.
func (r *CommentRepository) Count(ctx context.Context, f repository.CommentFilter) (_ int64, err error) {
	w := commentWhere(f)
	query := `SELECT count(*) FROM comments ` + w.clause()

	ctx, end := database.TraceQuery(ctx, "comments.Count", query)
	defer func() { end(err) }()

	var n int64
	if err = r.db.QueryRow(ctx, query, w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

// Update saves c if its version is unchanged and bumps the version.
func (r *CommentRepository) Update(ctx context.Context, c *domain.Comment) (err error) {
	query := `
		UPDATE comments
		SET status = $1, content = $2, upvote = $3, downvote = $4,
		    version = version + 1, updated_at = $5
		WHERE id = $6 AND version = $7`

	ctx, end := database.TraceQuery(ctx, "comments.Update", query)
	defer func() { end(err) }()

	now := time.Now().UTC()
	ct, err := r.db.Exec(ctx, query,
		c.Status,
		c.Content,
		nonNil(c.Upvote),
		nonNil(c.Downvote),
		now,
		c.ID,
		c.Version,
	)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Conflict("comment " + conflictMessage)
	}

	c.Version++
	c.UpdatedAt = now
	return nil
}

// Delete removes a comment by its ID.
func (r *CommentRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM comments WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "comments.Delete", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("comment", id)
	}
	return nil
}

// GetSummaries fetches the summaries of the given comments in one query.
// Missing ids are absent from the result.
func (r *CommentRepository) GetSummaries(ctx context.Context, ids []string) (_ map[string]domain.CommentSummary, err error) {
	out := make(map[string]domain.CommentSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT id, user_id, content, status FROM comments WHERE id = ANY($1::uuid[])`

	ctx, end := database.TraceQuery(ctx, "comments.GetSummaries", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get comment summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.CommentSummary
		if err := rows.Scan(&s.ID, &s.UserID, &s.Content, &s.Status); err != nil {
			return nil, fmt.Errorf("scan comment summary: %w", err)
		}
		out[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment summaries: %w", err)
	}
	return out, nil
}

func scanComment(row pgx.Row) (*domain.Comment, error) {
	var c domain.Comment
	if err := row.Scan(
		&c.ID,
		&c.Status,
		&c.UserID,
		&c.PostID,
		&c.ParentID,
		&c.ReplyToUser,
		&c.Content,
		&c.Upvote,
		&c.Downvote,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Upvote = nonNil(c.Upvote)
	c.Downvote = nonNil(c.Downvote)
	return &c, nil
}
