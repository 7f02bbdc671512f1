// Package vote implements toggle voting over per-entity sets of voter ids.
package vote

import (
	"errors"
	"slices"

	"github.com/utafrali/review-service/internal/domain"
)

// Direction is the side a voter picks.
type Direction string

const (
	Up   Direction = "UP"
	Down Direction = "DOWN"
)

var (
	ErrInvalidDirection     = errors.New("vote direction must be UP or DOWN")
	ErrUnsupportedDirection = errors.New("vote direction not supported for this resource")
)

// ParseDirection validates a raw direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	default:
		return "", ErrInvalidDirection
	}
}

// Field returns the entity field a direction writes to.
func (d Direction) Field() string {
	if d == Down {
		return "downvote"
	}
	return "upvote"
}

// Votable is an entity carrying vote sets. A nil down pointer means the
// entity only accepts upvotes.
type Votable interface {
	Ballots() (up, down *[]string)
}

// Outcome describes the effect of Apply. Event is empty when a vote was
// withdrawn.
type Outcome struct {
	Cast  bool
	Event string
}

// Apply toggles voter's vote in direction on target. Casting removes any vote
// in the opposite set; casting an existing vote withdraws it.
func Apply(target Votable, voter string, dir Direction) (Outcome, error) {
	up, down := target.Ballots()

	var same, opposite *[]string
	switch dir {
	case Up:
		same, opposite = up, down
	case Down:
		if down == nil {
			return Outcome{}, ErrUnsupportedDirection
		}
		same, opposite = down, up
	default:
		return Outcome{}, ErrInvalidDirection
	}

	if slices.Contains(*same, voter) {
		*same = remove(*same, voter)
		return Outcome{}, nil
	}

	*same = append(*same, voter)
	if opposite != nil {
		*opposite = remove(*opposite, voter)
	}
	return Outcome{Cast: true, Event: event(dir)}, nil
}

func event(dir Direction) string {
	if dir == Down {
		return domain.NotificationEventDownvote
	}
	return domain.NotificationEventUpvote
}

// remove returns s without any occurrence of id.
func remove(s []string, id string) []string {
	out := s[:0:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
