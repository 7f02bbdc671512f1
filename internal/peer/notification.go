package peer

import (
	"context"
	"net/http"
	"time"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/pkg/httpclient"
)

// NotificationService is the peer name used in errors, spans and metrics.
const NotificationService = "notification"

// NotificationClient delivers social notifications to the notification service.
type NotificationClient struct {
	endpoint
}

// NewNotificationClient creates a client for the notification service at baseURL.
func NewNotificationClient(baseURL string, doer httpclient.Doer, timeout time.Duration, metrics *Metrics) *NotificationClient {
	return &NotificationClient{endpoint{
		name:    NotificationService,
		baseURL: baseURL,
		doer:    doer,
		timeout: timeout,
		metrics: metrics,
	}}
}

// AddNotification sends n.
func (c *NotificationClient) AddNotification(ctx context.Context, n domain.Notification) error {
	return c.call(ctx, "AddNotification", http.MethodPost, "/api/v1/notifications", n, nil)
}
