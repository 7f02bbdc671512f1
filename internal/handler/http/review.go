package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/service"
	"github.com/utafrali/review-service/pkg/httputil"
)

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateReviewRequest is the JSON request body for creating a review.
type CreateReviewRequest struct {
	BusinessID  string         `json:"business_id" validate:"required,max=64"`
	Rating      float64        `json:"rating" validate:"required,gte=1,lte=5"`
	Content     string         `json:"content" validate:"max=5000"`
	ServiceGood bool           `json:"service_good"`
	EnvGood     bool           `json:"env_good"`
	Comeback    bool           `json:"comeback"`
	Images      []domain.Image `json:"images" validate:"max=9,dive"`
}

// UpdateReviewRequest is the JSON request body for updating a review.
// Omitted fields are left unchanged.
type UpdateReviewRequest struct {
	Rating      *float64        `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Content     *string         `json:"content" validate:"omitempty,max=5000"`
	ServiceGood *bool           `json:"service_good"`
	EnvGood     *bool           `json:"env_good"`
	Comeback    *bool           `json:"comeback"`
	Images      *[]domain.Image `json:"images" validate:"omitempty,max=9,dive"`
}

// VoteReviewRequest is the JSON request body for voting on a review.
type VoteReviewRequest struct {
	Direction    string `json:"direction" validate:"required,oneof=UP DOWN"`
	BusinessName string `json:"business_name" validate:"max=255"`
	BusinessSlug string `json:"business_slug" validate:"max=255"`
}

// ModerateReviewRequest is the JSON request body for the admin edit endpoint.
type ModerateReviewRequest struct {
	Status  *string `json:"status" validate:"omitempty,oneof=NORMAL SUSPENDED"`
	Quality *int    `json:"quality" validate:"omitempty,gte=0,lte=9"`
}

// --- Handlers ---

// ListReviews handles GET /api/v1/reviews.
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// AdminListReviews handles GET /api/v1/admin/reviews.
func (h *ReviewHandler) AdminListReviews(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *ReviewHandler) list(w http.ResponseWriter, r *http.Request, admin bool) {
	filter, err := reviewFilter(r, admin)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.ListReviews(r.Context(), actorFrom(r), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// GetReview handles GET /api/v1/reviews/{id}.
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	review, err := h.service.GetReview(r.Context(), actorFrom(r), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, review)
}

// CreateReview handles POST /api/v1/reviews.
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.CreateReview(r.Context(), actorFrom(r), &service.CreateReviewInput{
		BusinessID:  req.BusinessID,
		Rating:      req.Rating,
		Content:     req.Content,
		ServiceGood: req.ServiceGood,
		EnvGood:     req.EnvGood,
		Comeback:    req.Comeback,
		Images:      req.Images,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, review)
}

// UpdateReview handles PUT /api/v1/reviews/{id}.
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateReviewRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.UpdateReview(r.Context(), actorFrom(r), id, &service.UpdateReviewInput{
		Rating:      req.Rating,
		Content:     req.Content,
		ServiceGood: req.ServiceGood,
		EnvGood:     req.EnvGood,
		Comeback:    req.Comeback,
		Images:      req.Images,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, review)
}

// DeleteReview handles DELETE /api/v1/reviews/{id}.
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), actorFrom(r), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VoteReview handles POST /api/v1/reviews/{id}/vote.
func (h *ReviewHandler) VoteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req VoteReviewRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.VoteReview(r.Context(), actorFrom(r), id, &service.VoteReviewInput{
		Direction:    req.Direction,
		BusinessName: req.BusinessName,
		BusinessSlug: req.BusinessSlug,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, review)
}

// ModerateReview handles PATCH /api/v1/admin/reviews/{id}.
func (h *ReviewHandler) ModerateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req ModerateReviewRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.ModerateReview(r.Context(), actorFrom(r), id, &service.ModerateReviewInput{
		Status:  req.Status,
		Quality: req.Quality,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, review)
}
