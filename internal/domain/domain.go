package domain

import "time"

// Roles in ascending order of privilege.
const (
	RoleGuest   = "guest"
	RoleRegular = "regular"
	RoleManager = "manager"
	RoleAdmin   = "admin"
	RoleGod     = "god"
)

var roleRank = map[string]int{
	RoleGuest:   0,
	RoleRegular: 1,
	RoleManager: 2,
	RoleAdmin:   3,
	RoleGod:     4,
}

// ParseRole normalises a role claim. Unknown or empty roles become guest.
func ParseRole(s string) string {
	if _, ok := roleRank[s]; ok {
		return s
	}
	return RoleGuest
}

// Rank returns the position of role in the privilege order.
func Rank(role string) int {
	return roleRank[ParseRole(role)]
}

// AtLeast reports whether role is at or above min.
func AtLeast(role, min string) bool {
	return Rank(role) >= Rank(min)
}

// IsPrivileged reports whether role may moderate content.
func IsPrivileged(role string) bool {
	return AtLeast(role, RoleManager)
}

// PrivilegedRoles returns the roles allowed on moderation endpoints.
func PrivilegedRoles() []string {
	return []string{RoleManager, RoleAdmin, RoleGod}
}

// Content status constants.
const (
	StatusNormal    = "NORMAL"
	StatusSuspended = "SUSPENDED"
)

// IsValidStatus checks whether s is a storable content status.
func IsValidStatus(s string) bool {
	return s == StatusNormal || s == StatusSuspended
}

// Review limits.
const (
	MinRating  = 1
	MaxRating  = 5
	MaxQuality = 9
	MaxImages  = 9
)

// Image is a reference to an uploaded picture attached to a review.
type Image struct {
	Name string `json:"name" validate:"required,max=255"`
	URL  string `json:"url" validate:"required,url,max=2048"`
}

// Review is a user's rating of a business.
type Review struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Quality     int       `json:"quality"`
	BusinessID  string    `json:"business_id"`
	UserID      string    `json:"user_id"`
	Rating      float64   `json:"rating"`
	Content     string    `json:"content"`
	ServiceGood bool      `json:"service_good"`
	EnvGood     bool      `json:"env_good"`
	Comeback    bool      `json:"comeback"`
	Upvote      []string  `json:"upvote"`
	Images      []Image   `json:"images"`
	Version     int       `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ballots exposes the vote sets of a review. Reviews cannot be downvoted.
func (r *Review) Ballots() (up, down *[]string) {
	return &r.Upvote, nil
}

// Comment is a threaded remark on a post.
type Comment struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	UserID      string          `json:"user_id"`
	PostID      string          `json:"post_id"`
	ParentID    *string         `json:"parent_id"`
	ReplyToUser *string         `json:"reply_to_user"`
	Content     string          `json:"content"`
	Upvote      []string        `json:"upvote"`
	Downvote    []string        `json:"downvote"`
	Version     int             `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Parent      *CommentSummary `json:"parent,omitempty"`
}

// Ballots exposes the vote sets of a comment.
func (c *Comment) Ballots() (up, down *[]string) {
	return &c.Upvote, &c.Downvote
}

// CommentSummary is the subset of a parent comment shown alongside replies.
type CommentSummary struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Status  string `json:"status,omitempty"`
}

// Notification kinds sent to the notification service.
const (
	NotificationTypeReview  = "REVIEW"
	NotificationTypeComment = "COMMENT"

	NotificationEventUpvote   = "UPVOTE"
	NotificationEventDownvote = "DOWNVOTE"
	NotificationEventReply    = "REPLY"
)

// Notification is a social event addressed to one user.
type Notification struct {
	Type           string `json:"type"`
	Event          string `json:"event"`
	UserID         string `json:"user_id"`
	SenderID       string `json:"sender_id"`
	SubjectURL     string `json:"subject_url"`
	SubjectTitle   string `json:"subject_title"`
	CommentID      string `json:"comment_id"`
	CommentContent string `json:"comment_content"`
}
