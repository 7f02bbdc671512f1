package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/repository"
	"github.com/utafrali/review-service/internal/service"
	apperrors "github.com/utafrali/review-service/pkg/errors"
	"github.com/utafrali/review-service/pkg/httputil"
	"github.com/utafrali/review-service/pkg/middleware"
	"github.com/utafrali/review-service/pkg/pagination"
	"github.com/utafrali/review-service/pkg/validator"
)

// maxListLimit caps the limit query parameter of listing endpoints.
const maxListLimit = 100

// actorFrom builds the service caller from the authenticated claims.
func actorFrom(r *http.Request) service.Actor {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return service.Actor{Role: domain.RoleGuest}
	}
	return service.Actor{UserID: claims.UserID, Role: claims.Role}
}

// decode reads and validates the JSON body. Malformed JSON becomes an
// INVALID_INPUT error, failed validation keeps its field map.
func decode(r *http.Request, dst any) error {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return nil
	}
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return apperrors.InvalidInput("invalid request body")
}

// pathID reads the {id} URL parameter as a UUID.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	return httputil.ParseUUID(w, chi.URLParam(r, "id"))
}

// listStatus resolves the status query parameter. Public listings always
// show NORMAL content only.
func listStatus(r *http.Request, admin bool) (string, error) {
	if !admin {
		return domain.StatusNormal, nil
	}
	status := r.URL.Query().Get("status")
	if status == "" || status == repository.StatusAll || domain.IsValidStatus(status) {
		return status, nil
	}
	return "", apperrors.InvalidInput("status must be one of NORMAL, SUSPENDED, ALL")
}

func listWindow(r *http.Request) (pagination.Window, error) {
	win, err := pagination.FromRequest(r, maxListLimit)
	if err != nil {
		return win, apperrors.InvalidInput(err.Error())
	}
	return win, nil
}

func reviewFilter(r *http.Request, admin bool) (repository.ReviewFilter, error) {
	var f repository.ReviewFilter

	status, err := listStatus(r, admin)
	if err != nil {
		return f, err
	}
	win, err := listWindow(r)
	if err != nil {
		return f, err
	}

	q := r.URL.Query()
	return repository.ReviewFilter{
		BusinessID: q.Get("business_id"),
		UserID:     q.Get("user_id"),
		Status:     status,
		Search:     q.Get("search"),
		OrderBy:    q.Get("order_by"),
		Window:     win,
	}, nil
}

func commentFilter(r *http.Request, admin bool) (repository.CommentFilter, error) {
	var f repository.CommentFilter

	status, err := listStatus(r, admin)
	if err != nil {
		return f, err
	}
	win, err := listWindow(r)
	if err != nil {
		return f, err
	}

	q := r.URL.Query()
	parentID := q.Get("parent_id")
	if parentID != "" {
		if _, err := uuid.Parse(parentID); err != nil {
			return f, apperrors.InvalidInput("parent_id must be a valid UUID")
		}
	}

	return repository.CommentFilter{
		PostID:   q.Get("post_id"),
		UserID:   q.Get("user_id"),
		ParentID: parentID,
		Status:   status,
		Search:   q.Get("search"),
		OrderBy:  q.Get("order_by"),
		Window:   win,
	}, nil
}
