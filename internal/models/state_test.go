package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActionTransitions(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		from    Comment
		action  Action
		reached bool
		allowed bool
		want    State
	}{
		{"approve pending", Comment{}, ActionApprove, false, true, StateApproved},
		{"approve rejected", Comment{Rejected: true}, ActionApprove, false, true, StateApproved},
		{"approve approved", Comment{Approved: true}, ActionApprove, true, true, StateApproved},
		{"approve deleted", Comment{Deleted: true}, ActionApprove, false, false, StateDeleted},
		{"reject approved", Comment{Approved: true}, ActionReject, false, true, StateRejected},
		{"reject pending", Comment{}, ActionReject, false, true, StateRejected},
		{"reject rejected", Comment{Rejected: true}, ActionReject, true, true, StateRejected},
		{"reject deleted", Comment{Deleted: true, Approved: true}, ActionReject, false, false, StateDeleted},
		{"delete approved", Comment{Approved: true}, ActionDelete, false, true, StateDeleted},
		{"delete deleted", Comment{Deleted: true}, ActionDelete, true, true, StateDeleted},
		{"restore approved", Comment{Deleted: true, Approved: true}, ActionRestore, false, true, StateApproved},
		{"restore pending", Comment{Deleted: true}, ActionRestore, false, true, StatePending},
		{"restore live", Comment{Approved: true}, ActionRestore, true, false, StateApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.from
			assert.Equal(t, tt.reached, tt.action.Reached(&c))
			if tt.reached {
				return
			}
			assert.Equal(t, tt.allowed, tt.action.Apply(&c, 7, now))
			assert.Equal(t, tt.want, c.State())
		})
	}
}

func TestActionApplyAuditTrail(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := Comment{}

	ActionReject.Apply(&c, 3, now)
	assert.Equal(t, int64(3), c.RejectedBy)
	assert.Equal(t, now, *c.RejectedOn)

	ActionApprove.Apply(&c, 4, now)
	assert.False(t, c.Rejected)
	assert.Nil(t, c.RejectedOn)
	assert.Equal(t, int64(4), c.ApprovedBy)

	ActionDelete.Apply(&c, 5, now)
	assert.Equal(t, int64(5), c.DeletedBy)
	ActionRestore.Apply(&c, 6, now)
	assert.Zero(t, c.DeletedBy)
	assert.Nil(t, c.DeletedOn)
	assert.True(t, c.Approved)
}

func TestParseActionAndPolicy(t *testing.T) {
	a, ok := ParseAction(" Approve ")
	assert.True(t, ok)
	assert.Equal(t, ActionApprove, a)
	_, ok = ParseAction("purge")
	assert.False(t, ok)

	assert.Equal(t, PolicyModerator, ParsePolicy("MODERATOR"))
	assert.Equal(t, PolicyPublic, ParsePolicy(""))
	assert.Equal(t, PolicyPublic, ParsePolicy("anything"))

	assert.Equal(t, PermApprove, ActionReject.Permission())
	assert.Equal(t, PermRemove, ActionRestore.Permission())
}

func TestCompareComments(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	r := func(s string) *string { return &s }
	a := &Comment{ID: 1, Rank: r("a"), CreatedOn: base.Add(time.Hour)}
	b := &Comment{ID: 2, Rank: r("b"), CreatedOn: base}
	old := &Comment{ID: 3, CreatedOn: base}
	young := &Comment{ID: 4, CreatedOn: base.Add(time.Minute)}
	twin := &Comment{ID: 5, CreatedOn: base.Add(time.Minute)}

	assert.Negative(t, CompareComments(a, b, false))
	assert.Positive(t, CompareComments(a, b, true))
	assert.Negative(t, CompareComments(b, old, false), "ranked before unranked")
	assert.Negative(t, CompareComments(b, old, true), "unranked stay last when descending")
	assert.Negative(t, CompareComments(old, young, false))
	assert.Negative(t, CompareComments(young, twin, false))
	assert.Positive(t, CompareComments(young, twin, true))
}

func TestBulkResultRecord(t *testing.T) {
	r := NewBulkResult(ActionDelete, 4)
	r.Record(1, OutcomeApplied)
	r.Record(2, OutcomeNotFound)
	r.Record(3, OutcomeUnchanged)
	assert.True(t, r.Success)
	assert.Empty(t, r.Failed)

	r.Record(4, OutcomeFailed)
	assert.False(t, r.Success)
	assert.Equal(t, []int64{4}, r.Failed)
}

func TestErrorTaxonomy(t *testing.T) {
	err := fmt.Errorf("failed to create comment: %w", Validation(KeyParent))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KeyParent, KeyOf(err))

	cause := errors.New("duplicate row")
	cons := Consistency(cause)
	assert.True(t, errors.Is(cons, ErrConsistency))
	assert.True(t, errors.Is(cons, cause))

	assert.Equal(t, KeyAccessDenied, KeyOf(Forbidden()))
	assert.Equal(t, KeySave, KeyOf(errors.New("pq: connection reset")))
}

func TestNodeWalkStopsEarly(t *testing.T) {
	leaf := &Node{Comment: Comment{ID: 3}}
	tree := &Node{Comment: Comment{ID: 1}, Children: []*Node{
		{Comment: Comment{ID: 2}, Children: []*Node{leaf}},
		{Comment: Comment{ID: 4}},
	}}

	var seen []int64
	for n := range tree.Walk() {
		seen = append(seen, n.ID)
		if n.ID == 3 {
			break
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, seen)
}
