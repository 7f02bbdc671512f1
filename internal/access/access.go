// Package access resolves role grants into field-level permissions.
package access

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/utafrali/review-service/internal/domain"
)

// Resource names an entity kind covered by the grant table.
type Resource string

const (
	ResourceReview  Resource = "review"
	ResourceComment Resource = "comment"
)

// Action is an operation on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

const (
	possessionOwn = "own"
	possessionAny = "any"
)

// Grants maps role -> resource -> "action:possession" -> field list.
// "*" selects every field and "!field" removes one.
type Grants map[string]map[Resource]map[string][]string

// Permission is the result of resolving a grant. The zero value is denied.
type Permission struct {
	granted bool
	all     bool
	allow   map[string]struct{}
	deny    map[string]struct{}
}

// Granted reports whether the action is permitted at all.
func (p Permission) Granted() bool {
	return p.granted
}

// Allows reports whether field may be read or written under p.
func (p Permission) Allows(field string) bool {
	if !p.granted {
		return false
	}
	if _, denied := p.deny[field]; denied {
		return false
	}
	if p.all {
		return true
	}
	_, ok := p.allow[field]
	return ok
}

// Filter returns the subset of payload whose keys are permitted. Unknown
// keys are dropped.
func (p Permission) Filter(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if p.Allows(k) {
			out[k] = v
		}
	}
	return out
}

// Redact converts v to its JSON field map and filters it through p.
func Redact(p Permission, v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for redaction: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal for redaction: %w", err)
	}
	return p.Filter(fields), nil
}

// Policy is an immutable compiled grant table.
type Policy struct {
	grants map[string]map[Resource]map[string]Permission
}

// NewPolicy compiles and validates grants.
func NewPolicy(g Grants) (*Policy, error) {
	p := &Policy{grants: make(map[string]map[Resource]map[string]Permission, len(g))}
	for role, resources := range g {
		if domain.ParseRole(role) != role {
			return nil, fmt.Errorf("unknown role %q in grants", role)
		}
		p.grants[role] = make(map[Resource]map[string]Permission, len(resources))
		for res, actions := range resources {
			compiled := make(map[string]Permission, len(actions))
			for key, fields := range actions {
				if err := validateKey(key); err != nil {
					return nil, fmt.Errorf("%s/%s: %w", role, res, err)
				}
				compiled[key] = compile(fields)
			}
			p.grants[role][res] = compiled
		}
	}
	return p, nil
}

func validateKey(key string) error {
	action, possession, ok := strings.Cut(key, ":")
	if !ok {
		return fmt.Errorf("grant key %q must be action:possession", key)
	}
	switch Action(action) {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("grant key %q has unknown action", key)
	}
	if possession != possessionOwn && possession != possessionAny {
		return fmt.Errorf("grant key %q has unknown possession", key)
	}
	return nil
}

func compile(fields []string) Permission {
	p := Permission{allow: map[string]struct{}{}, deny: map[string]struct{}{}}
	for _, f := range fields {
		switch {
		case f == "*":
			p.all = true
		case strings.HasPrefix(f, "!"):
			p.deny[f[1:]] = struct{}{}
		case f != "":
			p.allow[f] = struct{}{}
		}
	}
	p.granted = p.all || len(p.allow) > 0
	return p
}

// Resolve returns the permission role holds for action on resource. Owners
// get the :own grant when one exists and fall back to :any; everyone else
// only has :any. Unknown roles resolve as guest.
func (p *Policy) Resolve(role string, res Resource, action Action, isOwner bool) Permission {
	actions := p.grants[domain.ParseRole(role)][res]
	if actions == nil {
		return Permission{}
	}
	if isOwner {
		if perm, ok := actions[string(action)+":"+possessionOwn]; ok {
			return perm
		}
	}
	return actions[string(action)+":"+possessionAny]
}

var (
	reviewOwnFields  = []string{"content", "rating", "images", "service_good", "env_good", "comeback"}
	commentOwnFields = []string{"content"}
)

func regularGrants() map[Resource]map[string][]string {
	return map[Resource]map[string][]string{
		ResourceReview: {
			"read:any":   {"*", "!status", "!quality"},
			"create:own": reviewOwnFields,
			"update:own": reviewOwnFields,
			"update:any": {"upvote"},
			"delete:own": {"*"},
		},
		ResourceComment: {
			"read:any":   {"*", "!status", "!quality"},
			"create:own": commentOwnFields,
			"update:own": commentOwnFields,
			"update:any": {"upvote", "downvote"},
			"delete:own": {"*"},
		},
	}
}

func privilegedGrants() map[Resource]map[string][]string {
	return map[Resource]map[string][]string{
		ResourceReview: {
			"read:any":   {"*"},
			"create:own": reviewOwnFields,
			"update:own": reviewOwnFields,
			"update:any": {"upvote", "status", "quality"},
			"delete:own": {"*"},
		},
		ResourceComment: {
			"read:any":   {"*"},
			"create:own": commentOwnFields,
			"update:own": commentOwnFields,
			"update:any": {"upvote", "downvote", "status"},
			"delete:own": {"*"},
		},
	}
}

// DefaultGrants returns the service's grant table.
func DefaultGrants() Grants {
	return Grants{
		domain.RoleGuest: {
			ResourceReview:  {"read:any": {"*", "!status", "!quality"}},
			ResourceComment: {"read:any": {"*", "!status"}},
		},
		domain.RoleRegular: regularGrants(),
		domain.RoleManager: privilegedGrants(),
		domain.RoleAdmin:   privilegedGrants(),
		domain.RoleGod:     privilegedGrants(),
	}
}

// DefaultPolicy compiles DefaultGrants. It panics on an invalid table since
// the table is static.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultGrants())
	if err != nil {
		panic(err)
	}
	return p
}
