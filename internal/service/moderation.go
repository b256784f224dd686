package service

import (
	"CommentThreads/internal/events"
	"CommentThreads/internal/models"
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
)

var (
	errUnchanged = errors.New("comment already in target state")
	errInvalid   = errors.New("transition not allowed from current state")
)

var actionEvents = map[models.Action]events.Type{
	models.ActionApprove: events.CommentApproved,
	models.ActionReject:  events.CommentRejected,
	models.ActionDelete:  events.CommentDeleted,
	models.ActionRestore: events.CommentRestored,
}

// BulkTransition applies action to every id in its own transaction. The
// permission is checked once before anything is touched; after that a single
// item can not fail the batch, it only shows up in the outcome map.
func (s *Service) BulkTransition(ctx context.Context, ids []int64, action models.Action, actor models.Actor) (*models.BulkResult, error) {
	perm := action.Permission()
	if perm == "" {
		return nil, models.Validation(models.KeyAction)
	}
	if !s.perms.HasPermission(actor, perm) {
		s.log.Warn("Moderation denied", zap.String("action", string(action)), zap.Int64("actor", actor.ID))
		return nil, models.Forbidden()
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, models.Validation(models.KeyNoSelection)
	}

	result := models.NewBulkResult(action, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				result.Record(rest, models.OutcomeCancelled)
			}
			s.log.Warn("Moderation batch cancelled", zap.String("action", string(action)), zap.Int("done", i), zap.Int("total", len(ids)))
			return result, err
		}
		err := s.transition(ctx, id, action, actor, nil)
		outcome := outcomeOf(err)
		if outcome == models.OutcomeFailed {
			s.log.Error("Moderation failed for comment", zap.String("action", string(action)), zap.Int64("id", id), zap.Error(err))
		}
		result.Record(id, outcome)
	}

	s.log.Debug("Moderation batch done", zap.String("action", string(action)), zap.Int("count", len(ids)), zap.Bool("success", result.Success))
	return result, nil
}

func (s *Service) ApproveComments(ctx context.Context, ids []int64, actor models.Actor) (*models.BulkResult, error) {
	return s.BulkTransition(ctx, ids, models.ActionApprove, actor)
}

func (s *Service) RejectComments(ctx context.Context, ids []int64, actor models.Actor) (*models.BulkResult, error) {
	return s.BulkTransition(ctx, ids, models.ActionReject, actor)
}

func (s *Service) DeleteComments(ctx context.Context, ids []int64, actor models.Actor) (*models.BulkResult, error) {
	return s.BulkTransition(ctx, ids, models.ActionDelete, actor)
}

func (s *Service) RestoreComments(ctx context.Context, ids []int64, actor models.Actor) (*models.BulkResult, error) {
	return s.BulkTransition(ctx, ids, models.ActionRestore, actor)
}

// DeleteComment soft-deletes one comment. Authors may delete their own
// comments without holding comments.remove. Deleting twice is not an error.
func (s *Service) DeleteComment(ctx context.Context, id int64, actor models.Actor) error {
	moderator := s.perms.HasPermission(actor, models.PermRemove)
	err := s.transition(ctx, id, models.ActionDelete, actor, func(c *models.Comment) error {
		if moderator || (!actor.IsGuest() && c.Author == actor.ID) {
			return nil
		}
		return models.Forbidden()
	})
	switch {
	case err == nil, errors.Is(err, errUnchanged):
		return nil
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrForbidden):
		return err
	default:
		s.log.Error("Failed to delete comment", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete comment: %w", err)
	}
}

// transition runs one state change inside a row-locked transaction.
func (s *Service) transition(ctx context.Context, id int64, action models.Action, actor models.Actor, guard func(c *models.Comment) error) error {
	updated, err := s.repo.Modify(ctx, id, func(c *models.Comment) error {
		if guard != nil {
			if err := guard(c); err != nil {
				return err
			}
		}
		if action.Reached(c) {
			return errUnchanged
		}
		if !action.Apply(c, actor.ID, s.now()) {
			return errInvalid
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(ctx, actionEvents[action], updated, actor.ID)
	return nil
}

func outcomeOf(err error) models.Outcome {
	switch {
	case err == nil:
		return models.OutcomeApplied
	case errors.Is(err, errUnchanged):
		return models.OutcomeUnchanged
	case errors.Is(err, errInvalid):
		return models.OutcomeInvalid
	case errors.Is(err, models.ErrNotFound):
		return models.OutcomeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeCancelled
	default:
		return models.OutcomeFailed
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
