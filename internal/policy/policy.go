// Package policy decides which task operations an actor may perform.
//
// Decisions depend only on the actor's role and identity and on the
// target task's owner and status. The evaluator holds no mutable state
// and is safe for concurrent use.
package policy

import (
	"fmt"

	dom "tasktracker/internal/domain"
)

// Variant names a rule set.
type Variant string

const (
	// Strict lets only the user role create tasks and requires the user
	// role for the owner-deletes-draft rule.
	Strict Variant = "strict"

	// Lenient lets any authenticated actor create tasks and lets any
	// owner delete their own drafts.
	Lenient Variant = "lenient"
)

// ParseVariant validates a configured variant name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case Strict, Lenient:
		return v, nil
	}
	return "", fmt.Errorf("unknown task policy %q (want %q or %q)", s, Strict, Lenient)
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason describes why a check was denied.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	ReasonRole
	ReasonNotOwner
	ReasonNotDraft
)

func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonRole:
		return "role not permitted"
	case ReasonNotOwner:
		return "not the owner"
	case ReasonNotDraft:
		return "task is not a draft"
	default:
		return "unknown"
	}
}

// Result is a decision plus, when denied, the first rule that failed.
type Result struct {
	Decision Decision
	Reason   DenyReason
}

// Allowed reports whether the decision is Allow.
func (r Result) Allowed() bool { return r.Decision == Allow }

var allow = Result{Decision: Allow}

func deny(reason DenyReason) Result {
	return Result{Decision: Deny, Reason: reason}
}

// Policy evaluates task permissions under one Variant.
type Policy struct {
	variant Variant
}

// New returns a Policy for v. An empty variant selects Strict.
func New(v Variant) (*Policy, error) {
	if v == "" {
		v = Strict
	}
	if _, err := ParseVariant(string(v)); err != nil {
		return nil, err
	}
	return &Policy{variant: v}, nil
}

// Variant returns the rule set in use.
func (p *Policy) Variant() Variant { return p.variant }

func isOversight(a dom.Actor) bool {
	return a.Role == dom.RoleManager || a.Role == dom.RoleAdmin
}

// ListScope returns the owner a listing must be restricted to. An empty
// string means the actor sees every task.
func (p *Policy) ListScope(a dom.Actor) string {
	if isOversight(a) {
		return ""
	}
	return a.UserID
}

// CanRead reports whether a may view t.
func (p *Policy) CanRead(a dom.Actor, t dom.Task) Result {
	if isOversight(a) || t.OwnerID == a.UserID {
		return allow
	}
	return deny(ReasonNotOwner)
}

// CanCreate reports whether a may create a task.
func (p *Policy) CanCreate(a dom.Actor) Result {
	if p.variant == Lenient || a.Role == dom.RoleUser {
		return allow
	}
	return deny(ReasonRole)
}

// CanUpdate reports whether a may modify t. Only the owning user may;
// there is no admin override.
func (p *Policy) CanUpdate(a dom.Actor, t dom.Task) Result {
	if a.Role != dom.RoleUser {
		return deny(ReasonRole)
	}
	if t.OwnerID != a.UserID {
		return deny(ReasonNotOwner)
	}
	return allow
}

// CanDelete reports whether a may delete t. Admins may delete anything;
// otherwise the owner may delete a draft.
func (p *Policy) CanDelete(a dom.Actor, t dom.Task) Result {
	if a.Role == dom.RoleAdmin {
		return allow
	}
	if p.variant == Strict && a.Role != dom.RoleUser {
		return deny(ReasonRole)
	}
	if t.OwnerID != a.UserID {
		return deny(ReasonNotOwner)
	}
	if t.Status != dom.StatusDraft {
		return deny(ReasonNotDraft)
	}
	return allow
}

// Permissions summarizes what a may do with t.
type Permissions struct {
	CanUpdate bool
	CanDelete bool
}

// PermissionsFor evaluates the update and delete rules for a and t.
func (p *Policy) PermissionsFor(a dom.Actor, t dom.Task) Permissions {
	return Permissions{
		CanUpdate: p.CanUpdate(a, t).Allowed(),
		CanDelete: p.CanDelete(a, t).Allowed(),
	}
}
