package service

import (
	"CommentThreads/internal/events"
	"CommentThreads/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"strings"
)

// CreateComment validates the parent linkage and stores the comment together
// with its closure rows.
func (s *Service) CreateComment(ctx context.Context, req models.CreateRequest, actor models.Actor) (*models.Comment, error) {
	thread := strings.TrimSpace(req.Thread)
	if thread == "" {
		return nil, models.Validation(models.KeyThread)
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, models.Validation(models.KeyBody)
	}
	if req.Parent < 0 {
		return nil, models.Validation(models.KeyParent)
	}

	name := strings.TrimSpace(req.Name)
	if actor.IsGuest() {
		if !s.cfg.AllowGuests {
			s.log.Warn("Guest comment rejected", zap.String("thread", thread))
			return nil, models.Forbidden()
		}
		if name == "" {
			return nil, models.Validation(models.KeyName)
		}
	} else if name == "" {
		name = actor.Username
	}

	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage("[]")
	} else if !json.Valid(params) {
		return nil, models.Validation(models.KeyParams)
	}

	if req.Parent != models.RootParent {
		parent, err := s.repo.GetByID(ctx, req.Parent)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.Validation(models.KeyParent)
			}
			s.log.Error("Failed to load parent comment", zap.Int64("parent", req.Parent), zap.Error(err))
			return nil, fmt.Errorf("failed to load parent comment: %w", err)
		}
		if parent.Thread != thread {
			s.log.Debug("Cross-thread reply rejected",
				zap.String("thread", thread), zap.String("parent_thread", parent.Thread), zap.Int64("parent", parent.ID))
			return nil, models.Validation(models.KeyParent)
		}
	}

	now := s.now()
	comment := models.Comment{
		Thread:         thread,
		Parent:         req.Parent,
		Rank:           req.Rank,
		Author:         actor.ID,
		Body:           body,
		CreatedOn:      now,
		Name:           name,
		Email:          strings.TrimSpace(req.Email),
		Website:        strings.TrimSpace(req.Website),
		IP:             actor.IP,
		Resource:       req.Resource,
		IDPrefix:       strings.TrimSpace(req.IDPrefix),
		ExistingParams: params,
	}
	if comment.IP == "" {
		comment.IP = models.DefaultIP
	}
	if comment.IDPrefix == "" {
		comment.IDPrefix = s.cfg.IDPrefix
	}
	if comment.IDPrefix == "" {
		comment.IDPrefix = models.DefaultIDPrefix
	}
	if s.cfg.AutoApprove || s.perms.HasPermission(actor, models.PermApprove) {
		comment.Approved = true
		comment.ApprovedOn = &now
		comment.ApprovedBy = actor.ID
	}

	created, err := s.repo.Create(ctx, comment)
	if err != nil {
		s.log.Error("Failed to create comment", zap.String("thread", thread), zap.Int64("parent", req.Parent), zap.Error(err))
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	s.log.Debug("Comment created", zap.Int64("id", created.ID), zap.String("thread", thread), zap.Bool("approved", created.Approved))

	s.changed(ctx, events.CommentCreated, &created, actor.ID)
	return &created, nil
}

// EditComment replaces the body. Only the author or an actor holding
// comments.update may edit; structural fields never change.
func (s *Service) EditComment(ctx context.Context, id int64, body string, actor models.Actor) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, models.Validation(models.KeyBody)
	}

	updated, err := s.repo.Modify(ctx, id, func(c *models.Comment) error {
		if !s.canEdit(actor, c) {
			return models.Forbidden()
		}
		now := s.now()
		c.Body = body
		c.EditedOn = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrForbidden) {
			return nil, err
		}
		s.log.Error("Failed to edit comment", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to edit comment: %w", err)
	}

	s.changed(ctx, events.CommentEdited, updated, actor.ID)
	return updated, nil
}

func (s *Service) canEdit(actor models.Actor, c *models.Comment) bool {
	if actor.IsGuest() {
		return false
	}
	return c.Author == actor.ID || s.perms.HasPermission(actor, models.PermUpdate)
}

// AncestorsOf returns the ancestor ids of a comment, root first.
func (s *Service) AncestorsOf(ctx context.Context, id int64) ([]int64, error) {
	return s.repo.Ancestors(ctx, id)
}

// DescendantsOf returns the ids of the subtree rooted at id, id included.
func (s *Service) DescendantsOf(ctx context.Context, id int64) ([]int64, error) {
	return s.repo.Descendants(ctx, id)
}
