package peer

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/utafrali/review-service/pkg/httpclient"
)

// BusinessService is the peer name used in errors, spans and metrics.
const BusinessService = "business"

// BusinessClient maintains per-business rating aggregates on the business service.
type BusinessClient struct {
	endpoint
}

// NewBusinessClient creates a client for the business service at baseURL.
// Each call is bounded by timeout.
func NewBusinessClient(baseURL string, doer httpclient.Doer, timeout time.Duration, metrics *Metrics) *BusinessClient {
	return &BusinessClient{endpoint{
		name:    BusinessService,
		baseURL: baseURL,
		doer:    doer,
		timeout: timeout,
		metrics: metrics,
	}}
}

func reviewsPath(businessID string) string {
	return "/api/v1/businesses/" + url.PathEscape(businessID) + "/reviews"
}

// AddReview adds rating to the business aggregate and returns the business id
// echoed by the peer.
func (c *BusinessClient) AddReview(ctx context.Context, businessID, reviewID string, rating float64) (string, error) {
	req := struct {
		ReviewID string  `json:"review_id"`
		Rating   float64 `json:"rating"`
	}{reviewID, rating}

	var resp struct {
		BusinessID string `json:"business_id"`
	}
	if err := c.call(ctx, "AddReview", http.MethodPost, reviewsPath(businessID), req, &resp); err != nil {
		return "", err
	}
	return resp.BusinessID, nil
}

// UpdateReview shifts the aggregate by difference for an existing review.
func (c *BusinessClient) UpdateReview(ctx context.Context, reviewID, businessID string, difference float64) error {
	req := struct {
		Difference float64 `json:"difference"`
	}{difference}

	path := reviewsPath(businessID) + "/" + url.PathEscape(reviewID)
	return c.call(ctx, "UpdateReview", http.MethodPatch, path, req, nil)
}

// DeleteReview removes rating from the business aggregate.
func (c *BusinessClient) DeleteReview(ctx context.Context, businessID, reviewID string, rating float64) error {
	req := struct {
		Rating float64 `json:"rating"`
	}{rating}

	path := reviewsPath(businessID) + "/" + url.PathEscape(reviewID) + "/remove"
	return c.call(ctx, "DeleteReview", http.MethodPost, path, req, nil)
}
