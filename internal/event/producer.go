package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/review-service/internal/domain"
	pkgkafka "github.com/utafrali/review-service/pkg/kafka"
	"github.com/utafrali/review-service/pkg/logger"
)

// Kafka topic constants for review and comment domain events.
const (
	TopicReviewCreated  = "review.created"
	TopicReviewUpdated  = "review.updated"
	TopicReviewDeleted  = "review.deleted"
	TopicReviewVoted    = "review.voted"
	TopicCommentCreated = "comment.created"
	TopicCommentUpdated = "comment.updated"
	TopicCommentDeleted = "comment.deleted"
	TopicCommentVoted   = "comment.voted"
)

// Aggregate type constants.
const (
	AggregateTypeReview  = "review"
	AggregateTypeComment = "comment"
)

// SourceReviewService identifies events originating from this service.
const SourceReviewService = "review-service"

// ReviewData is the payload for review.created, review.updated and review.deleted.
type ReviewData struct {
	ID         string  `json:"id"`
	BusinessID string  `json:"business_id"`
	UserID     string  `json:"user_id"`
	Rating     float64 `json:"rating"`
	Status     string  `json:"status"`
	Quality    int     `json:"quality"`
}

// CommentData is the payload for comment.created, comment.updated and comment.deleted.
type CommentData struct {
	ID          string  `json:"id"`
	PostID      string  `json:"post_id"`
	UserID      string  `json:"user_id"`
	ParentID    *string `json:"parent_id,omitempty"`
	ReplyToUser *string `json:"reply_to_user,omitempty"`
	Status      string  `json:"status"`
}

// VoteData is the payload for *.voted events. Cast is false when the vote
// was withdrawn.
type VoteData struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	VoterID   string `json:"voter_id"`
	Direction string `json:"direction"`
	Cast      bool   `json:"cast"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

// Publisher writes an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes review and comment domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the review service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceReviewService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published "+topic+" event",
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func reviewData(r *domain.Review) ReviewData {
	return ReviewData{
		ID:         r.ID,
		BusinessID: r.BusinessID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		Status:     r.Status,
		Quality:    r.Quality,
	}
}

func commentData(c *domain.Comment) CommentData {
	return CommentData{
		ID:          c.ID,
		PostID:      c.PostID,
		UserID:      c.UserID,
		ParentID:    c.ParentID,
		ReplyToUser: c.ReplyToUser,
		Status:      c.Status,
	}
}

// PublishReviewCreated publishes a review.created event.
func (p *Producer) PublishReviewCreated(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewCreated, r.ID, AggregateTypeReview, reviewData(r))
}

// PublishReviewUpdated publishes a review.updated event.
func (p *Producer) PublishReviewUpdated(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewUpdated, r.ID, AggregateTypeReview, reviewData(r))
}

// PublishReviewDeleted publishes a review.deleted event.
func (p *Producer) PublishReviewDeleted(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewDeleted, r.ID, AggregateTypeReview, reviewData(r))
}

// PublishReviewVoted publishes a review.voted event.
func (p *Producer) PublishReviewVoted(ctx context.Context, r *domain.Review, voterID, direction string, cast bool) error {
	return p.publish(ctx, TopicReviewVoted, r.ID, AggregateTypeReview, VoteData{
		ID:        r.ID,
		OwnerID:   r.UserID,
		VoterID:   voterID,
		Direction: direction,
		Cast:      cast,
		Upvotes:   len(r.Upvote),
	})
}

// PublishCommentCreated publishes a comment.created event.
func (p *Producer) PublishCommentCreated(ctx context.Context, c *domain.Comment) error {
	return p.publish(ctx, TopicCommentCreated, c.ID, AggregateTypeComment, commentData(c))
}

// PublishCommentUpdated publishes a comment.updated event.
func (p *Producer) PublishCommentUpdated(ctx context.Context, c *domain.Comment) error {
	return p.publish(ctx, TopicCommentUpdated, c.ID, AggregateTypeComment, commentData(c))
}

// PublishCommentDeleted publishes a comment.deleted event.
func (p *Producer) PublishCommentDeleted(ctx context.Context, c *domain.Comment) error {
	return p.publish(ctx, TopicCommentDeleted, c.ID, AggregateTypeComment, commentData(c))
}

// PublishCommentVoted publishes a comment.voted event.
func (p *Producer) PublishCommentVoted(ctx context.Context, c *domain.Comment, voterID, direction string, cast bool) error {
	return p.publish(ctx, TopicCommentVoted, c.ID, AggregateTypeComment, VoteData{
		ID:        c.ID,
		OwnerID:   c.UserID,
		VoterID:   voterID,
		Direction: direction,
		Cast:      cast,
		Upvotes:   len(c.Upvote),
		Downvotes: len(c.Downvote),
	})
}
