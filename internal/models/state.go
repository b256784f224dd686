package models

import (
	"iter"
	"strings"
	"time"
)

type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateDeleted  State = "deleted"
)

// State derives the moderation state from the comment flags. Deletion
// shadows approval so that a restore brings the previous state back.
func (c *Comment) State() State {
	switch {
	case c.Deleted:
		return StateDeleted
	case c.Approved:
		return StateApproved
	case c.Rejected:
		return StateRejected
	default:
		return StatePending
	}
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
)

func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionApprove, ActionReject, ActionDelete, ActionRestore:
		return a, true
	}
	return "", false
}

// Reached reports whether the comment already sits in the state the action
// leads to.
func (a Action) Reached(c *Comment) bool {
	switch a {
	case ActionApprove:
		return !c.Deleted && c.Approved
	case ActionReject:
		return !c.Deleted && c.Rejected && !c.Approved
	case ActionDelete:
		return c.Deleted
	case ActionRestore:
		return !c.Deleted
	}
	return false
}

// Apply mutates the moderation flags and audit trail of c. It returns false
// when the transition is not allowed from the current state.
func (a Action) Apply(c *Comment, actor int64, now time.Time) bool {
	switch a {
	case ActionApprove:
		if c.Deleted {
			return false
		}
		c.Approved = true
		c.ApprovedOn = &now
		c.ApprovedBy = actor
		c.Rejected = false
		c.RejectedOn = nil
		c.RejectedBy = 0
	case ActionReject:
		if c.Deleted {
			return false
		}
		c.Approved = false
		c.ApprovedOn = nil
		c.ApprovedBy = 0
		c.Rejected = true
		c.RejectedOn = &now
		c.RejectedBy = actor
	case ActionDelete:
		c.Deleted = true
		c.DeletedOn = &now
		c.DeletedBy = actor
	case ActionRestore:
		if !c.Deleted {
			return false
		}
		c.Deleted = false
		c.DeletedOn = nil
		c.DeletedBy = 0
	default:
		return false
	}
	return true
}

type Policy string

const (
	PolicyPublic    Policy = "public"
	PolicyModerator Policy = "moderator"
)

func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), string(PolicyModerator)) {
		return PolicyModerator
	}
	return PolicyPublic
}

func (p Policy) Shows(c *Comment) bool {
	if p == PolicyModerator {
		return true
	}
	return c.Visible()
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Fatal outcomes flip the overall batch result to unsuccessful.
func (o Outcome) Fatal() bool {
	switch o {
	case OutcomeInvalid, OutcomeFailed, OutcomeCancelled:
		return true
	}
	return false
}

type BulkResult struct {
	Action   Action            `json:"action"`
	Success  bool              `json:"success"`
	Outcomes map[int64]Outcome `json:"outcomes"`
	Failed   []int64           `json:"failed,omitempty"`
}

func NewBulkResult(action Action, size int) *BulkResult {
	return &BulkResult{Action: action, Success: true, Outcomes: make(map[int64]Outcome, size)}
}

// Record stores the outcome for id and folds it into the overall result.
func (r *BulkResult) Record(id int64, o Outcome) {
	r.Outcomes[id] = o
	if o.Fatal() {
		r.Success = false
		r.Failed = append(r.Failed, id)
	}
}

// Walk yields n and its descendants depth-first, children in display order.
func (n *Node) Walk() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		n.walk(yield)
	}
}

func (n *Node) walk(yield func(*Node) bool) bool {
	if !yield(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.walk(yield) {
			return false
		}
	}
	return true
}

// Permission names checked through the permission collaborator.
const (
	PermApprove  = "comments.approve"
	PermRemove   = "comments.remove"
	PermUpdate   = "comments.update"
	PermModerate = "comments.moderate"
)

// Permission returns the permission an action requires.
func (a Action) Permission() string {
	switch a {
	case ActionApprove, ActionReject:
		return PermApprove
	case ActionDelete, ActionRestore:
		return PermRemove
	}
	return ""
}
