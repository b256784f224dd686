package service

import (
	"CommentThreads/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"go.uber.org/zap"
	"slices"
	"strings"
)

const minSearchLength = 3

// GetThread returns one page of root comments of a thread with their whole
// subtrees nested below them. Paging never splits a subtree.
func (s *Service) GetThread(ctx context.Context, thread string, policy models.Policy, page models.Page, actor models.Actor) (*models.ThreadView, error) {
	thread = strings.TrimSpace(thread)
	if thread == "" {
		return nil, models.Validation(models.KeyThread)
	}
	if err := s.checkPolicy(policy, actor); err != nil {
		return nil, err
	}
	page = s.normalizePage(page)

	cacheKey := fmt.Sprintf("%s:%d:%d:%s", policy, page.Page, page.Limit, page.SortOrder)
	// The version is taken before any repository read.
	raw, version, ok := s.cache.Get(ctx, thread, cacheKey)
	if ok {
		var view models.ThreadView
		if err := json.Unmarshal(raw, &view); err == nil {
			s.log.Debug("Thread served from cache", zap.String("thread", thread), zap.String("key", cacheKey))
			return &view, nil
		}
		s.log.Warn("Dropping undecodable cached thread", zap.String("thread", thread))
	}

	offset := (page.Page - 1) * page.Limit
	s.log.Debug("Getting paginated root comments", zap.String("thread", thread), zap.Int("page", page.Page), zap.Int("limit", page.Limit))
	roots, total, err := s.repo.GetTopLevelComments(ctx, thread, policy == models.PolicyPublic, page.Limit, offset, page.SortOrder)
	if err != nil {
		s.log.Error("Failed to get root comments", zap.String("thread", thread), zap.Error(err))
		return nil, fmt.Errorf("failed to get root comments: %w", err)
	}

	view := &models.ThreadView{
		Thread:   thread,
		Policy:   policy,
		Comments: []*models.Node{},
		Total:    total,
		Page:     page.Page,
		Limit:    page.Limit,
	}
	if len(roots) > 0 {
		rootIDs := make([]int64, len(roots))
		for i, r := range roots {
			rootIDs[i] = r.ID
		}
		all, err := s.repo.GetSubtrees(ctx, rootIDs)
		if err != nil {
			s.log.Error("Failed to get subtrees", zap.String("thread", thread), zap.Error(err))
			return nil, fmt.Errorf("failed to get subtrees: %w", err)
		}
		s.log.Debug("Got all comments for the page", zap.Int("roots", len(roots)), zap.Int("count", len(all)))
		view.Comments = assemble(all, rootIDs, policy)
	}

	if raw, err := json.Marshal(view); err == nil {
		s.cache.Set(ctx, thread, cacheKey, version, raw)
	}
	return view, nil
}

// GetSubtree returns the comment id with every reply below it.
func (s *Service) GetSubtree(ctx context.Context, id int64, policy models.Policy, actor models.Actor) (*models.Node, error) {
	if err := s.checkPolicy(policy, actor); err != nil {
		return nil, err
	}
	all, err := s.repo.GetSubtrees(ctx, []int64{id})
	if err != nil {
		s.log.Error("Failed to get subtree", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get subtree: %w", err)
	}
	nodes := assemble(all, []int64{id}, policy)
	if len(nodes) == 0 {
		return nil, models.NotFound(models.KeyNotFound)
	}
	return nodes[0], nil
}

// GetAncestors returns the breadcrumb of a comment, root first, without the
// comment itself. Hidden ancestors come back as placeholders.
func (s *Service) GetAncestors(ctx context.Context, id int64, policy models.Policy, actor models.Actor) ([]*models.Node, error) {
	if err := s.checkPolicy(policy, actor); err != nil {
		return nil, err
	}
	ids, err := s.repo.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		s.log.Error("Failed to get ancestors", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get ancestors: %w", err)
	}
	byID := make(map[int64]*models.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	path := make([]*models.Node, 0, len(ids))
	for depth, aid := range ids {
		c, ok := byID[aid]
		if !ok {
			return nil, models.Consistency(fmt.Errorf("ancestor %d of %d is missing", aid, id))
		}
		n := &models.Node{Comment: *c, Depth: depth, Children: []*models.Node{}}
		if !policy.Shows(c) {
			blank(n)
		} else if policy == models.PolicyPublic {
			redact(&n.Comment)
		}
		path = append(path, n)
	}
	return path, nil
}

// SearchComments is a moderator tool: newest matches first, at most 50.
func (s *Service) SearchComments(ctx context.Context, thread, query string, actor models.Actor) ([]*models.Comment, error) {
	if !s.perms.HasPermission(actor, models.PermModerate) {
		return nil, models.Forbidden()
	}
	thread = strings.TrimSpace(thread)
	if thread == "" {
		return nil, models.Validation(models.KeyThread)
	}
	query = strings.TrimSpace(query)
	s.log.Debug("Searching for comments", zap.String("thread", thread), zap.String("query", query))
	if len([]rune(query)) < minSearchLength {
		return []*models.Comment{}, nil
	}
	found, err := s.repo.SearchByText(ctx, thread, query)
	if err != nil {
		s.log.Error("Failed to search comments", zap.String("thread", thread), zap.Error(err))
		return nil, fmt.Errorf("failed to search comments: %w", err)
	}
	return found, nil
}

func (s *Service) checkPolicy(policy models.Policy, actor models.Actor) error {
	if policy == models.PolicyModerator && !s.perms.HasPermission(actor, models.PermModerate) {
		return models.Forbidden()
	}
	return nil
}

func (s *Service) normalizePage(p models.Page) models.Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > s.cfg.MaxLimit {
		p.Limit = s.cfg.DefaultLimit
	}
	if strings.EqualFold(p.SortOrder, "desc") {
		p.SortOrder = "desc"
	} else {
		p.SortOrder = "asc"
	}
	return p
}

// assemble nests comments under their parents and returns the nodes for
// rootIDs in that order. Depth is relative to the root of each subtree.
func assemble(comments []*models.Comment, rootIDs []int64, policy models.Policy) []*models.Node {
	nodes := make(map[int64]*models.Node, len(comments))
	order := make([]*models.Node, 0, len(comments))
	for _, c := range comments {
		if _, dup := nodes[c.ID]; dup {
			continue
		}
		n := &models.Node{Comment: *c, Children: []*models.Node{}}
		nodes[c.ID] = n
		order = append(order, n)
	}

	isRoot := make(map[int64]bool, len(rootIDs))
	for _, id := range rootIDs {
		isRoot[id] = true
	}
	for _, n := range order {
		if isRoot[n.ID] {
			continue
		}
		if parent, ok := nodes[n.Parent]; ok {
			parent.Children = append(parent.Children, n)
		}
	}

	out := make([]*models.Node, 0, len(rootIDs))
	for _, id := range rootIDs {
		root, ok := nodes[id]
		if !ok {
			continue
		}
		sortChildren(root, 0)
		if prune(root, policy) {
			out = append(out, root)
		}
	}
	return out
}

func sortChildren(n *models.Node, depth int) {
	n.Depth = depth
	slices.SortFunc(n.Children, func(a, b *models.Node) int {
		return models.CompareComments(&a.Comment, &b.Comment, false)
	})
	for _, child := range n.Children {
		sortChildren(child, depth+1)
	}
}

// prune drops hidden comments without visible replies and turns hidden
// comments that still carry visible replies into placeholders. It reports
// whether n stays in the view.
func prune(n *models.Node, policy models.Policy) bool {
	kept := n.Children[:0]
	for _, child := range n.Children {
		if prune(child, policy) {
			kept = append(kept, child)
		}
	}
	n.Children = kept

	if policy.Shows(&n.Comment) {
		if policy == models.PolicyPublic {
			redact(&n.Comment)
		}
		return true
	}
	if len(n.Children) == 0 {
		return false
	}
	blank(n)
	return true
}

// redact strips fields readers never see.
func redact(c *models.Comment) {
	c.Email = ""
	c.IP = ""
}

func blank(n *models.Node) {
	n.Placeholder = true
	n.Body = ""
	n.Author = 0
	n.Name = ""
	n.Email = ""
	n.Website = ""
	n.IP = ""
	n.ExistingParams = nil
}
