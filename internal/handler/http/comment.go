package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/review-service/internal/service"
	"github.com/utafrali/review-service/pkg/httputil"
)

// CommentHandler handles HTTP requests for comment endpoints.
type CommentHandler struct {
	service *service.CommentService
	logger  *slog.Logger
}

// NewCommentHandler creates a new comment HTTP handler.
func NewCommentHandler(svc *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateCommentRequest is the JSON request body for creating a comment.
type CreateCommentRequest struct {
	PostID      string  `json:"post_id" validate:"required,max=64"`
	Content     string  `json:"content" validate:"required,max=2000"`
	ParentID    *string `json:"parent_id" validate:"omitempty,uuid"`
	ReplyToUser *string `json:"reply_to_user" validate:"omitempty,max=64"`
	PostTitle   string  `json:"post_title" validate:"max=255"`
}

// UpdateCommentRequest is the JSON request body for editing a comment.
type UpdateCommentRequest struct {
	Content *string `json:"content" validate:"required,max=2000"`
}

// VoteCommentRequest is the JSON request body for voting on a comment.
type VoteCommentRequest struct {
	Direction string `json:"direction" validate:"required,oneof=UP DOWN"`
	PostTitle string `json:"post_title" validate:"max=255"`
}

// ModerateCommentRequest is the JSON request body for the admin edit endpoint.
type ModerateCommentRequest struct {
	Status *string `json:"status" validate:"required,oneof=NORMAL SUSPENDED"`
}

// --- Handlers ---

// ListComments handles GET /api/v1/comments.
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// AdminListComments handles GET /api/v1/admin/comments.
func (h *CommentHandler) AdminListComments(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *CommentHandler) list(w http.ResponseWriter, r *http.Request, admin bool) {
	filter, err := commentFilter(r, admin)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.ListComments(r.Context(), actorFrom(r), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// GetComment handles GET /api/v1/comments/{id}.
func (h *CommentHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	comment, err := h.service.GetComment(r.Context(), actorFrom(r), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, comment)
}

// CreateComment handles POST /api/v1/comments.
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req CreateCommentRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	comment, err := h.service.CreateComment(r.Context(), actorFrom(r), &service.CreateCommentInput{
		PostID:      req.PostID,
		Content:     req.Content,
		ParentID:    req.ParentID,
		ReplyToUser: req.ReplyToUser,
		PostTitle:   req.PostTitle,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, comment)
}

// UpdateComment handles PUT /api/v1/comments/{id}.
func (h *CommentHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateCommentRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	comment, err := h.service.UpdateComment(r.Context(), actorFrom(r), id, &service.UpdateCommentInput{Content: req.Content})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, comment)
}

// DeleteComment handles DELETE /api/v1/comments/{id}.
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteComment(r.Context(), actorFrom(r), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VoteComment handles POST /api/v1/comments/{id}/vote.
func (h *CommentHandler) VoteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req VoteCommentRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	comment, err := h.service.VoteComment(r.Context(), actorFrom(r), id, &service.VoteCommentInput{
		Direction: req.Direction,
		PostTitle: req.PostTitle,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, comment)
}

// ModerateComment handles PATCH /api/v1/admin/comments/{id}.
func (h *CommentHandler) ModerateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req ModerateCommentRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	comment, err := h.service.ModerateComment(r.Context(), actorFrom(r), id, &service.ModerateCommentInput{Status: req.Status})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, comment)
}
