package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/review-service/internal/access"
	"github.com/utafrali/review-service/internal/domain"
	"github.com/utafrali/review-service/internal/loader"
	"github.com/utafrali/review-service/internal/repository"
	"github.com/utafrali/review-service/internal/vote"
	apperrors "github.com/utafrali/review-service/pkg/errors"
	"github.com/utafrali/review-service/pkg/pagination"
)

// CommentEvents publishes comment domain events.
type CommentEvents interface {
	PublishCommentCreated(ctx context.Context, c *domain.Comment) error
	PublishCommentUpdated(ctx context.Context, c *domain.Comment) error
	PublishCommentDeleted(ctx context.Context, c *domain.Comment) error
	PublishCommentVoted(ctx context.Context, c *domain.Comment, voterID, direction string, cast bool) error
}

// CommentService implements the business logic for comment operations.
type CommentService struct {
	repo    repository.CommentRepository
	policy  *access.Policy
	notify  dispatcher
	events  CommentEvents
	cache   cached[domain.Comment]
	metrics *Metrics
	logger  *slog.Logger
}

// NewCommentService creates a new comment service. cache may be nil.
func NewCommentService(
	repo repository.CommentRepository,
	policy *access.Policy,
	notifier Notifier,
	events CommentEvents,
	cache EntityCache[domain.Comment],
	metrics *Metrics,
	logger *slog.Logger,
) *CommentService {
	return &CommentService{
		repo:    repo,
		policy:  policy,
		notify:  dispatcher{notifier: notifier, metrics: metrics, logger: logger},
		events:  events,
		cache:   cached[domain.Comment]{store: cache, entity: "comment", logger: logger},
		metrics: metrics,
		logger:  logger,
	}
}

// CreateCommentInput holds the parameters for creating a comment.
// PostTitle is only used in the reply notification.
type CreateCommentInput struct {
	PostID      string
	Content     string
	ParentID    *string
	ReplyToUser *string
	PostTitle   string
}

// UpdateCommentInput holds the owner-editable fields of a comment.
type UpdateCommentInput struct {
	Content *string
}

// ModerateCommentInput holds the moderation fields of a comment.
type ModerateCommentInput struct {
	Status *string
}

// VoteCommentInput holds a vote and the post title used in the notification.
type VoteCommentInput struct {
	Direction string
	PostTitle string
}

func optional(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// ListComments returns the comments matching filter, redacted for actor.
// Replies carry a summary of their parent comment.
func (s *CommentService) ListComments(ctx context.Context, actor Actor, filter repository.CommentFilter) (pagination.Result[map[string]any], error) {
	var empty pagination.Result[map[string]any]

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return empty, fmt.Errorf("count comments: %w", err)
	}

	comments, err := s.repo.List(ctx, filter)
	if err != nil {
		return empty, fmt.Errorf("list comments: %w", err)
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceComment, access.ActionRead, false)
	if !perm.Granted() {
		return empty, apperrors.Forbidden("not allowed to read comments")
	}

	if err := s.attachParents(ctx, actor, perm, comments); err != nil {
		return empty, err
	}

	list, err := redactAll(perm, comments)
	if err != nil {
		return empty, err
	}
	return pagination.NewResult(list, total), nil
}

// attachParents resolves the parent summaries of comments in one batch.
// Parents that actor may not see are left off.
func (s *CommentService) attachParents(ctx context.Context, actor Actor, perm access.Permission, comments []domain.Comment) error {
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range comments {
		if c.ParentID == nil {
			continue
		}
		if _, ok := seen[*c.ParentID]; !ok {
			seen[*c.ParentID] = struct{}{}
			ids = append(ids, *c.ParentID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	loaders := loader.For(ctx)
	if loaders == nil {
		loaders = loader.New(s.repo)
	}
	summaries, err := loaders.ParentSummaries(ctx, ids)
	if err != nil {
		return fmt.Errorf("load parent comments: %w", err)
	}

	for i := range comments {
		if comments[i].ParentID == nil {
			continue
		}
		summary, ok := summaries[*comments[i].ParentID]
		if !ok {
			continue
		}
		if summary.Status != domain.StatusNormal && !actor.canSeeHidden(summary.UserID) {
			continue
		}
		if !perm.Allows("status") {
			summary.Status = ""
		}
		comments[i].Parent = &summary
	}
	return nil
}

// GetComment returns a single comment redacted for actor. Comments that are
// not NORMAL are only visible to their author and to moderators.
func (s *CommentService) GetComment(ctx context.Context, actor Actor, id string) (map[string]any, error) {
	comment := s.cache.get(ctx, id)
	if comment == nil {
		var err error
		comment, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get comment by id: %w", err)
		}
		s.cache.set(ctx, id, comment)
	}

	if comment.Status != domain.StatusNormal && !actor.canSeeHidden(comment.UserID) {
		return nil, apperrors.NotFound("comment", id)
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceComment, access.ActionRead, actor.owns(comment.UserID))
	if !perm.Granted() {
		return nil, apperrors.Forbidden("not allowed to read comments")
	}
	comments := []domain.Comment{*comment}
	if err := s.attachParents(ctx, actor, perm, comments); err != nil {
		return nil, err
	}
	return access.Redact(perm, &comments[0])
}

// CreateComment stores a comment by actor. A reply to another user notifies
// that user once the comment is stored.
func (s *CommentService) CreateComment(ctx context.Context, actor Actor, input *CreateCommentInput) (map[string]any, error) {
	if actor.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if input.PostID == "" {
		return nil, apperrors.InvalidInput("post_id is required")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, apperrors.InvalidInput("content is required")
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceComment, access.ActionCreate, true)
	if !perm.Allows("content") {
		return nil, apperrors.Forbidden("not allowed to create comments")
	}

	parentID := optional(input.ParentID)
	replyTo := optional(input.ReplyToUser)

	if parentID != nil {
		parent, err := s.repo.GetByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.InvalidInput("parent comment does not exist")
			}
			return nil, fmt.Errorf("get parent comment: %w", err)
		}
		if parent.PostID != input.PostID {
			return nil, apperrors.InvalidInput("parent comment belongs to another post")
		}
	}

	now := time.Now().UTC()
	comment := &domain.Comment{
		ID:          uuid.New().String(),
		Status:      domain.StatusNormal,
		UserID:      actor.UserID,
		PostID:      input.PostID,
		ParentID:    parentID,
		ReplyToUser: replyTo,
		Content:     input.Content,
		Upvote:      []string{},
		Downvote:    []string{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	if replyTo != nil {
		n := domain.Notification{
			Type:           domain.NotificationTypeComment,
			Event:          domain.NotificationEventReply,
			UserID:         *replyTo,
			SenderID:       actor.UserID,
			SubjectURL:     comment.PostID,
			SubjectTitle:   input.PostTitle,
			CommentContent: comment.Content,
		}
		if parentID != nil {
			n.CommentID = *parentID
		}
		s.notify.send(ctx, n)
	}

	if err := s.events.PublishCommentCreated(ctx, comment); err != nil {
		s.publishFailed(ctx, "comment.created", comment.ID, err)
	}

	s.logger.InfoContext(ctx, "comment created",
		slog.String("comment_id", comment.ID),
		slog.String("post_id", comment.PostID),
		slog.String("user_id", comment.UserID),
	)

	return s.present(actor, comment)
}

// UpdateComment replaces the content of actor's comment.
func (s *CommentService) UpdateComment(ctx context.Context, actor Actor, id string, input *UpdateCommentInput) (map[string]any, error) {
	if input.Content == nil || strings.TrimSpace(*input.Content) == "" {
		return nil, apperrors.InvalidInput("content is required")
	}

	comment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get comment by id: %w", err)
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceComment, access.ActionUpdate, actor.owns(comment.UserID))
	if !perm.Allows("content") {
		return nil, apperrors.Forbidden("not allowed to update this comment")
	}
	comment.Content = *input.Content

	if err := s.repo.Update(ctx, comment); err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	s.cache.invalidate(ctx, comment.ID)

	if err := s.events.PublishCommentUpdated(ctx, comment); err != nil {
		s.publishFailed(ctx, "comment.updated", comment.ID, err)
	}

	s.logger.InfoContext(ctx, "comment updated", slog.String("comment_id", comment.ID))

	return s.present(actor, comment)
}

// ModerateComment changes the status of a comment.
func (s *CommentService) ModerateComment(ctx context.Context, actor Actor, id string, input *ModerateCommentInput) (map[string]any, error) {
	if input.Status == nil {
		return nil, apperrors.InvalidInput("status is required")
	}
	if !domain.IsValidStatus(*input.Status) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q", *input.Status))
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceComment, access.ActionUpdate, false)
	if !perm.Allows("status") {
		return nil, apperrors.Forbidden("not allowed to moderate comments")
	}

	comment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get comment by id: %w", err)
	}
	comment.Status = *input.Status

	if err := s.repo.Update(ctx, comment); err != nil {
		return nil, fmt.Errorf("moderate comment: %w", err)
	}
	s.cache.invalidate(ctx, comment.ID)

	if err := s.events.PublishCommentUpdated(ctx, comment); err != nil {
		s.publishFailed(ctx, "comment.updated", comment.ID, err)
	}

	s.logger.InfoContext(ctx, "comment moderated",
		slog.String("comment_id", comment.ID),
		slog.String("status", comment.Status),
	)

	return s.present(actor, comment)
}

// DeleteComment removes actor's comment. Replies keep existing with their
// parent reference cleared.
func (s *CommentService) DeleteComment(ctx context.Context, actor Actor, id string) error {
	comment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get comment by id: %w", err)
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceComment, access.ActionDelete, actor.owns(comment.UserID))
	if !perm.Granted() {
		return apperrors.Forbidden("not allowed to delete this comment")
	}

	if err := s.repo.Delete(ctx, comment.ID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	s.cache.invalidate(ctx, comment.ID)

	if err := s.events.PublishCommentDeleted(ctx, comment); err != nil {
		s.publishFailed(ctx, "comment.deleted", comment.ID, err)
	}

	s.logger.InfoContext(ctx, "comment deleted", slog.String("comment_id", comment.ID))

	return nil
}

// VoteComment toggles actor's vote on a comment. A cast vote notifies the
// comment author.
func (s *CommentService) VoteComment(ctx context.Context, actor Actor, id string, input *VoteCommentInput) (map[string]any, error) {
	if actor.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	dir, err := vote.ParseDirection(input.Direction)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	comment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get comment by id: %w", err)
	}
	if comment.Status != domain.StatusNormal && !actor.canSeeHidden(comment.UserID) {
		return nil, apperrors.NotFound("comment", id)
	}
	if actor.owns(comment.UserID) {
		return nil, apperrors.Forbidden("cannot vote on your own comment")
	}

	perm := s.policy.Resolve(actor.role(), access.ResourceComment, access.ActionUpdate, false)
	if !perm.Allows(dir.Field()) {
		return nil, apperrors.Forbidden(fmt.Sprintf("%s is not allowed on comments", dir))
	}

	outcome, err := vote.Apply(comment, actor.UserID, dir)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if err := s.repo.Update(ctx, comment); err != nil {
		return nil, fmt.Errorf("save comment vote: %w", err)
	}
	s.metrics.voted(access.ResourceComment, string(dir), outcome.Cast)

	if outcome.Cast {
		s.notify.send(ctx, domain.Notification{
			Type:           domain.NotificationTypeComment,
			Event:          outcome.Event,
			UserID:         comment.UserID,
			SenderID:       actor.UserID,
			SubjectURL:     comment.PostID,
			SubjectTitle:   input.PostTitle,
			CommentID:      comment.ID,
			CommentContent: comment.Content,
		})
	}

	if err := s.events.PublishCommentVoted(ctx, comment, actor.UserID, string(dir), outcome.Cast); err != nil {
		s.publishFailed(ctx, "comment.voted", comment.ID, err)
	}
	s.cache.invalidate(ctx, comment.ID)

	return s.present(actor, comment)
}

func (s *CommentService) present(actor Actor, comment *domain.Comment) (map[string]any, error) {
	perm := s.policy.Resolve(actor.role(), access.ResourceComment, access.ActionRead, actor.owns(comment.UserID))
	if !perm.Granted() {
		return nil, apperrors.Forbidden("not allowed to read comments")
	}
	return access.Redact(perm, comment)
}

func (s *CommentService) publishFailed(ctx context.Context, topic, id string, err error) {
	s.logger.ErrorContext(ctx, "failed to publish "+topic+" event",
		slog.String("comment_id", id),
		slog.String("error", err.Error()),
	)
}
