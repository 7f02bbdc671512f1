package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/repository"
	"github.com/utafrali/review-service/pkg/database"
	apperrors "github.com/utafrali/review-service/pkg/errors"
	"github.com/utafrali/review-service/pkg/pagination"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupCommentRepo(t *testing.T) (*CommentRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewCommentRepository(mock), mock
}

func sampleComment() *domain.Comment {
	now := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	parent := "6d7e2b1a-0c4f-4e0e-9a3c-000000000001"
	replyTo := "user-010"
	return &domain.Comment{
		ID:          "6d7e2b1a-0c4f-4e0e-9a3c-000000000002",
		Status:      domain.StatusNormal,
		UserID:      "user-011",
		PostID:      "post-001",
		ParentID:    &parent,
		ReplyToUser: &replyTo,
		Content:     "Agreed, the broth was excellent",
		Upvote:      []string{"user-012"},
		Downvote:    []string{},
		Version:     3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func commentColumnNames() []string {
	return []string{
		"id", "status", "user_id", "post_id", "parent_id", "reply_to_user", "content",
		"upvote", "downvote", "version", "created_at", "updated_at",
	}
}

func commentRows(comments ...*domain.Comment) *pgxmock.Rows {
	rows := pgxmock.NewRows(commentColumnNames())
	for _, c := range comments {
		rows.AddRow(
			c.ID, c.Status, c.UserID, c.PostID, c.ParentID, c.ReplyToUser, c.Content,
			c.Upvote, c.Downvote, c.Version, c.CreatedAt, c.UpdatedAt,
		)
	}
	return rows
}

// ---------------------------------------------------------------------------
// Create / GetByID
// ---------------------------------------------------------------------------

func TestCommentRepository_Create_Success(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	c := sampleComment()
	mock.ExpectExec("INSERT INTO comments").
		WithArgs(
			c.ID, c.Status, c.UserID, c.PostID, c.ParentID, c.ReplyToUser, c.Content,
			c.Upvote, c.Downvote, c.Version, c.CreatedAt, c.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_Create_ExecError(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO comments").WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), sampleComment())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert comment")
}

func TestCommentRepository_GetByID_Success(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	c := sampleComment()
	mock.ExpectQuery("SELECT .+ FROM comments WHERE id").
		WithArgs(c.ID).
		WillReturnRows(commentRows(c))

	got, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_GetByID_TopLevel(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	c := sampleComment()
	c.ParentID = nil
	c.ReplyToUser = nil
	mock.ExpectQuery("SELECT .+ FROM comments WHERE id").
		WithArgs(c.ID).
		WillReturnRows(commentRows(c))

	got, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
	assert.Nil(t, got.ReplyToUser)
}

func TestCommentRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM comments WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// List / Count
// ---------------------------------------------------------------------------

func TestCommentRepository_List_DefaultOrder(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	c := sampleComment()
	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM comments WHERE post_id = $1 AND status = $2 ORDER BY cardinality(upvote) DESC, created_at DESC, id ASC",
	)).
		WithArgs("post-001", domain.StatusNormal).
		WillReturnRows(commentRows(c))

	got, err := repo.List(context.Background(), repository.CommentFilter{PostID: "post-001"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_List_ParentAndSearch(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	parent := *sampleComment().ParentID
	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM comments WHERE user_id = $1 AND parent_id = $2 AND content ILIKE $3 ESCAPE '\\' " +
			"ORDER BY created_at DESC, id ASC OFFSET $4",
	)).
		WithArgs("user-011", parent, "%broth%", 5).
		WillReturnRows(commentRows())

	_, err := repo.List(context.Background(), repository.CommentFilter{
		UserID:   "user-011",
		ParentID: parent,
		Status:   repository.StatusAll,
		Search:   "broth",
		OrderBy:  repository.OrderNew,
		Window:   pagination.Window{Skip: intPtr(5)},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_List_ZeroSkipOmitsOffset(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM comments WHERE post_id = $1 ORDER BY created_at DESC, id ASC LIMIT $2",
	) + "$").
		WithArgs("post-001", 10).
		WillReturnRows(commentRows())

	_, err := repo.List(context.Background(), repository.CommentFilter{
		PostID:  "post-001",
		Status:  repository.StatusAll,
		OrderBy: repository.OrderNew,
		Window:  pagination.Window{Skip: intPtr(0), Limit: intPtr(10)},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_Count(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM comments WHERE status = $1")).
		WithArgs(domain.StatusSuspended).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := repo.Count(context.Background(), repository.CommentFilter{Status: domain.StatusSuspended})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

// ---------------------------------------------------------------------------
// Update / Delete
// ---------------------------------------------------------------------------

func TestCommentRepository_Update_BumpsVersion(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	c := sampleComment()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $6 AND version = $7")).
		WithArgs(c.Status, c.Content, c.Upvote, c.Downvote, pgxmock.AnyArg(), c.ID, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), c))
	assert.Equal(t, 4, c.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_Update_StaleVersionConflicts(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE comments").WithArgs(anyArgs(7)...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), sampleComment())
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
}

func TestCommentRepository_Delete_NotFound(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM comments").
		WithArgs("c-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "c-1"), apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// GetSummaries
// ---------------------------------------------------------------------------

func TestCommentRepository_GetSummaries(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	ids := []string{"p-1", "p-2", "p-3"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ANY($1::uuid[])")).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "content", "status"}).
			AddRow("p-1", "u-1", "first", domain.StatusNormal).
			AddRow("p-3", "u-3", "third", domain.StatusSuspended))

	got, err := repo.GetSummaries(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "first", got["p-1"].Content)
	assert.Equal(t, domain.StatusSuspended, got["p-3"].Status)
	assert.NotContains(t, got, "p-2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_GetSummaries_EmptySkipsQuery(t *testing.T) {
	repo, mock := setupCommentRepo(t)
	defer mock.Close()

	got, err := repo.GetSummaries(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
