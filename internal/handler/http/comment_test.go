package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/event"
)

const (
	parentID = "0b9c8d7e-1f2a-4b3c-9d4e-5f60718293a4"
	replyID  = "1c0d9e8f-2a3b-4c4d-8e5f-6071829304b5"
	replyID2 = "2d1e0f9a-3b4c-4d5e-9f60-7182930415c6"
)

func (s *testServer) seedComment(t *testing.T, id, userID string, parent *string, created time.Time) domain.Comment {
	t.Helper()
	c := domain.Comment{
		ID:        id,
		Status:    domain.StatusNormal,
		UserID:    userID,
		PostID:    "post-1",
		ParentID:  parent,
		Content:   "comment " + id[:4],
		Upvote:    []string{},
		Downvote:  []string{},
		Version:   1,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, s.comments.Create(context.Background(), &c))
	return c
}

func ptr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateComment_ReplyNotifiesRecipient(t *testing.T) {
	s := newTestServer(t)
	s.seedComment(t, parentID, voterID, nil, time.Now().UTC())

	rec := s.do(t, http.MethodPost, "/api/v1/comments", "author", map[string]any{
		"post_id":       "post-1",
		"content":       "agreed",
		"parent_id":     parentID,
		"reply_to_user": voterID,
		"post_title":    "Best espresso in town",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Equal(t, parentID, data["parent_id"])
	assert.NotContains(t, data, "status")

	require.Equal(t, 1, s.notifier.count())
	n := s.notifier.sent[0]
	assert.Equal(t, domain.NotificationTypeComment, n.Type)
	assert.Equal(t, domain.NotificationEventReply, n.Event)
	assert.Equal(t, voterID, n.UserID)
	assert.Equal(t, authorID, n.SenderID)
	assert.Equal(t, parentID, n.CommentID)
	assert.Equal(t, "post-1", n.SubjectURL)
	assert.Equal(t, "Best espresso in town", n.SubjectTitle)

	assert.Contains(t, s.publisher.topics, event.TopicCommentCreated)
}

func TestCreateComment_Rejections(t *testing.T) {
	s := newTestServer(t)
	s.seedComment(t, parentID, voterID, nil, time.Now().UTC())

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"missing content", map[string]any{"post_id": "post-1"}, http.StatusBadRequest},
		{"parent not a uuid", map[string]any{"post_id": "post-1", "content": "x", "parent_id": "nope"}, http.StatusBadRequest},
		{"unknown parent", map[string]any{"post_id": "post-1", "content": "x", "parent_id": replyID}, http.StatusBadRequest},
		{"parent on other post", map[string]any{"post_id": "post-2", "content": "x", "parent_id": parentID}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/comments", "author", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
	assert.Len(t, s.comments.items, 1)
	assert.Zero(t, s.notifier.count())
}

// ---------------------------------------------------------------------------
// List / Get
// ---------------------------------------------------------------------------

func TestListComments_AttachesParentsInOneBatch(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedComment(t, parentID, voterID, nil, now)
	s.seedComment(t, replyID, authorID, ptr(parentID), now.Add(time.Minute))
	s.seedComment(t, replyID2, modID, ptr(parentID), now.Add(2*time.Minute))

	rec := s.do(t, http.MethodGet, "/api/v1/comments?post_id=post-1&parent_id="+parentID, "", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decodeList(t, rec)
	assert.Equal(t, int64(2), list.TotalCount)
	require.Len(t, list.List, 2)
	for _, item := range list.List {
		parent, ok := item["parent"].(map[string]any)
		require.True(t, ok, "reply should carry its parent summary")
		assert.Equal(t, parentID, parent["id"])
		assert.Equal(t, voterID, parent["user_id"])
		assert.NotContains(t, parent, "status")
		assert.NotContains(t, item, "status")
	}
	assert.Equal(t, 1, s.comments.summaryCalls)
}

func TestListComments_SuspendedParentNotExposed(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	parent := s.seedComment(t, parentID, voterID, nil, now)
	s.seedComment(t, replyID, authorID, ptr(parentID), now.Add(time.Minute))
	parent.Status = domain.StatusSuspended
	s.comments.items[parentID] = parent

	rec := s.do(t, http.MethodGet, "/api/v1/comments/"+parentID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/comments?post_id=post-1&parent_id="+parentID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decodeList(t, rec)
	require.Len(t, list.List, 1)
	assert.NotContains(t, list.List[0], "parent")

	rec = s.do(t, http.MethodPost, "/api/v1/comments/"+parentID+"/vote", "author", map[string]any{"direction": "UP"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, s.notifier.count())
}

func TestListComments_InvalidParentID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/comments?parent_id=abc", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, rec))
}

func TestAdminListComments_ShowsStatus(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedComment(t, parentID, voterID, nil, now)
	s.seedComment(t, replyID, authorID, ptr(parentID), now.Add(time.Minute))

	rec := s.do(t, http.MethodGet, "/api/v1/admin/comments?status=ALL", "mod", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeList(t, rec)
	require.Len(t, list.List, 2)
	reply := list.List[0]
	assert.Equal(t, domain.StatusNormal, reply["status"])
	assert.Equal(t, domain.StatusNormal, reply["parent"].(map[string]any)["status"])
}

func TestGetComment_WithParent(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedComment(t, parentID, voterID, nil, now)
	s.seedComment(t, replyID, authorID, ptr(parentID), now.Add(time.Minute))

	rec := s.do(t, http.MethodGet, "/api/v1/comments/"+replyID, "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, replyID, data["id"])
	assert.Equal(t, parentID, data["parent"].(map[string]any)["id"])
}

// ---------------------------------------------------------------------------
// Update / Delete / Moderate
// ---------------------------------------------------------------------------

func TestUpdateComment(t *testing.T) {
	s := newTestServer(t)
	s.seedComment(t, parentID, authorID, nil, time.Now().UTC())

	rec := s.do(t, http.MethodPut, "/api/v1/comments/"+parentID, "voter", map[string]any{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/comments/"+parentID, "author", map[string]any{"content": "typo fixed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "typo fixed", decodeData(t, rec)["content"])
	assert.Contains(t, s.publisher.topics, event.TopicCommentUpdated)
}

func TestDeleteComment(t *testing.T) {
	s := newTestServer(t)
	s.seedComment(t, parentID, authorID, nil, time.Now().UTC())

	rec := s.do(t, http.MethodDelete, "/api/v1/comments/"+parentID, "voter", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/comments/"+parentID, "author", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.comments.items)

	rec = s.do(t, http.MethodDelete, "/api/v1/comments/"+parentID, "author", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModerateComment(t *testing.T) {
	s := newTestServer(t)
	s.seedComment(t, parentID, authorID, nil, time.Now().UTC())

	rec := s.do(t, http.MethodPatch, "/api/v1/admin/comments/"+parentID, "mod", map[string]any{"status": domain.StatusSuspended})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusSuspended, decodeData(t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/api/v1/comments/"+parentID, "voter", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/v1/admin/comments/"+parentID, "mod", map[string]any{"status": "GONE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---------------------------------------------------------------------------
// Vote
// ---------------------------------------------------------------------------

func TestVoteComment_DownvoteReplacesUpvote(t *testing.T) {
	s := newTestServer(t)
	s.seedComment(t, parentID, authorID, nil, time.Now().UTC())
	path := "/api/v1/comments/" + parentID + "/vote"

	rec := s.do(t, http.MethodPost, path, "voter", map[string]any{"direction": "UP", "post_title": "Espresso"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{voterID}, decodeData(t, rec)["upvote"])

	rec = s.do(t, http.MethodPost, path, "voter", map[string]any{"direction": "DOWN", "post_title": "Espresso"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Empty(t, data["upvote"])
	assert.Equal(t, []any{voterID}, data["downvote"])

	require.Equal(t, 2, s.notifier.count())
	assert.Equal(t, domain.NotificationEventUpvote, s.notifier.sent[0].Event)
	assert.Equal(t, domain.NotificationEventDownvote, s.notifier.sent[1].Event)
	assert.Equal(t, parentID, s.notifier.sent[1].CommentID)
	assert.Equal(t, "Espresso", s.notifier.sent[1].SubjectTitle)
	assert.Contains(t, s.publisher.topics, event.TopicCommentVoted)
}

func TestVoteComment_OwnCommentForbidden(t *testing.T) {
	s := newTestServer(t)
	s.seedComment(t, parentID, authorID, nil, time.Now().UTC())

	rec := s.do(t, http.MethodPost, "/api/v1/comments/"+parentID+"/vote", "author", map[string]any{"direction": "UP"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, s.notifier.count())
}
