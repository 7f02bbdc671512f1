// Package service implements the review and comment use cases on top of the
// repositories, the access policy and the peer services.
package service

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/review-service/internal/access"
	"github.com/utafrali/review-service/internal/domain"
)

// Actor identifies the caller of an operation. The zero value is an
// anonymous guest.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) role() string {
	return domain.ParseRole(a.Role)
}

func (a Actor) owns(userID string) bool {
	return a.UserID != "" && a.UserID == userID
}

// canSeeHidden reports whether a may read content that is not NORMAL.
func (a Actor) canSeeHidden(ownerID string) bool {
	return domain.IsPrivileged(a.role()) || a.owns(ownerID)
}

// Notifier delivers social notifications.
type Notifier interface {
	AddNotification(ctx context.Context, n domain.Notification) error
}

// EntityCache is a read-through cache keyed by entity id.
type EntityCache[T any] interface {
	Get(ctx context.Context, id string) (*T, error)
	Set(ctx context.Context, id string, v *T) error
	Invalidate(ctx context.Context, id string) error
}

// Metrics holds the service level counters.
type Metrics struct {
	notificationFailures *prometheus.CounterVec
	votes                *prometheus.CounterVec
}

// NewMetrics registers the service counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_notification_failures_total",
			Help: "Notifications that could not be delivered, by type and event.",
		}, []string{"type", "event"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_votes_total",
			Help: "Votes applied by resource, direction and outcome.",
		}, []string{"resource", "direction", "outcome"}),
	}
	reg.MustRegister(m.notificationFailures, m.votes)
	return m
}

func (m *Metrics) notificationFailed(n domain.Notification) {
	if m != nil {
		m.notificationFailures.WithLabelValues(n.Type, n.Event).Inc()
	}
}

func (m *Metrics) voted(res access.Resource, direction string, cast bool) {
	if m == nil {
		return
	}
	outcome := "withdrawn"
	if cast {
		outcome = "cast"
	}
	m.votes.WithLabelValues(string(res), direction, outcome).Inc()
}

// dispatcher sends notifications. Failures are logged and counted and
// never fail the triggering operation.
type dispatcher struct {
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger
}

func (d dispatcher) send(ctx context.Context, n domain.Notification) {
	if d.notifier == nil || n.UserID == "" || n.UserID == n.SenderID {
		return
	}
	if err := d.notifier.AddNotification(ctx, n); err != nil {
		d.metrics.notificationFailed(n)
		d.logger.ErrorContext(ctx, "failed to send notification",
			slog.String("type", n.Type),
			slog.String("event", n.Event),
			slog.String("user_id", n.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// cached wraps an optional EntityCache. Cache errors are logged and the
// caller falls back to the repository.
type cached[T any] struct {
	store  EntityCache[T]
	entity string
	logger *slog.Logger
}

func (c cached[T]) get(ctx context.Context, id string) *T {
	if c.store == nil {
		return nil
	}
	v, err := c.store.Get(ctx, id)
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed",
			slog.String("entity", c.entity),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return v
}

func (c cached[T]) set(ctx context.Context, id string, v *T) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, id, v); err != nil {
		c.logger.WarnContext(ctx, "cache write failed",
			slog.String("entity", c.entity),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (c cached[T]) invalidate(ctx context.Context, id string) {
	if c.store == nil {
		return
	}
	if err := c.store.Invalidate(ctx, id); err != nil {
		c.logger.WarnContext(ctx, "cache invalidation failed",
			slog.String("entity", c.entity),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}

// redactAll filters every item of list through perm.
func redactAll[T any](perm access.Permission, list []T) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(list))
	for i := range list {
		m, err := access.Redact(perm, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
