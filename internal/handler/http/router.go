package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/loader"
	"github.com/utafrali/review-service/internal/service"
	"github.com/utafrali/review-service/pkg/health"
	"github.com/utafrali/review-service/pkg/middleware"
)

// RouterOptions holds the ambient settings of the HTTP surface.
type RouterOptions struct {
	ServiceName    string
	HTTPMetrics    *middleware.HTTPMetrics
	Gatherer       prometheus.Gatherer
	PprofCIDRs     []string
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
	// WriteRateLimit throttles authenticated mutations per user. Zero RPS disables it.
	WriteRateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all review service routes registered.
func NewRouter(
	reviewService *service.ReviewService,
	commentService *service.CommentService,
	summaries loader.SummaryFetcher,
	validateToken middleware.TokenValidator,
	healthHandler *health.Handler,
	opts RouterOptions,
	logger *slog.Logger,
) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(opts.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	if opts.HTTPMetrics != nil {
		r.Use(opts.HTTPMetrics.Handler)
	}
	r.Use(middleware.CORS(opts.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(opts.RequestTimeout))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if len(opts.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, opts.PprofCIDRs, logger)
	}

	reviewHandler := NewReviewHandler(reviewService, logger)
	commentHandler := NewCommentHandler(commentService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(loader.Middleware(summaries))

		// Public reads; a bearer token is optional.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(validateToken))

			r.Get("/reviews", reviewHandler.ListReviews)
			r.Get("/reviews/{id}", reviewHandler.GetReview)
			r.Get("/comments", commentHandler.ListComments)
			r.Get("/comments/{id}", commentHandler.GetComment)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(validateToken))
			r.Use(middleware.RateLimit(opts.WriteRateLimit, logger))

			r.Post("/reviews/{id}/vote", reviewHandler.VoteReview)
			r.Post("/comments/{id}/vote", commentHandler.VoteComment)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireVerified)

				r.Post("/reviews", reviewHandler.CreateReview)
				r.Put("/reviews/{id}", reviewHandler.UpdateReview)
				r.Delete("/reviews/{id}", reviewHandler.DeleteReview)

				r.Post("/comments", commentHandler.CreateComment)
				r.Put("/comments/{id}", commentHandler.UpdateComment)
				r.Delete("/comments/{id}", commentHandler.DeleteComment)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireVerified)
				r.Use(middleware.RequireRole(domain.PrivilegedRoles()...))

				r.Get("/reviews", reviewHandler.AdminListReviews)
				r.Patch("/reviews/{id}", reviewHandler.ModerateReview)
				r.Get("/comments", commentHandler.AdminListComments)
				r.Patch("/comments/{id}", commentHandler.ModerateComment)
			})
		})
	})

	return r
}
