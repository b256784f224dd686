package repository

import (
	"CommentThreads/internal/closure"
	"CommentThreads/internal/models"
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
)

// InMemoryRepository keeps comments and their closure rows in process memory.
// It follows the Postgres repository semantics and backs tests and local runs.
type InMemoryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	comments map[int64]*models.Comment
	closure  *closure.Index
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		comments: make(map[int64]*models.Comment),
		closure:  closure.NewIndex(),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, c models.Comment) (models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var path []closure.Row
	if !c.IsRoot() {
		parent, ok := r.comments[c.Parent]
		if !ok || parent.Thread != c.Thread {
			return c, models.Validation(models.KeyParent)
		}
		path = r.closure.PathOf(c.Parent)
	}

	id := r.nextID + 1
	rows, err := closure.Extend(id, c.Parent, path)
	if err != nil {
		return c, models.Consistency(err)
	}
	if err := r.closure.Insert(rows); err != nil {
		return c, models.Consistency(err)
	}
	r.nextID = id
	c.ID = id
	stored := c
	r.comments[id] = &stored
	return c, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id int64) (*models.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.comments[id]
	if !ok {
		return nil, models.NotFound(models.KeyNotFound)
	}
	out := *c
	return &out, nil
}

func (r *InMemoryRepository) GetByIDs(_ context.Context, ids []int64) ([]*models.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Comment
	for _, id := range ids {
		if c, ok := r.comments[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) Modify(_ context.Context, id int64, fn func(c *models.Comment) error) (*models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.comments[id]
	if !ok {
		return nil, models.NotFound(models.KeyNotFound)
	}
	draft := *c
	if err := fn(&draft); err != nil {
		return nil, err
	}
	r.comments[id] = &draft
	out := draft
	return &out, nil
}

func (r *InMemoryRepository) Ancestors(_ context.Context, id int64) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.comments[id]; !ok {
		return nil, models.NotFound(models.KeyNotFound)
	}
	return r.closure.Ancestors(id), nil
}

func (r *InMemoryRepository) Descendants(_ context.Context, id int64) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.comments[id]; !ok {
		return nil, models.NotFound(models.KeyNotFound)
	}
	var ids []int64
	for d := range r.closure.Descendants(id) {
		ids = append(ids, d)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *InMemoryRepository) GetSubtrees(_ context.Context, ids []int64) ([]*models.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Comment
	for _, id := range ids {
		for d := range r.closure.Descendants(id) {
			if c, ok := r.comments[d]; ok {
				cp := *c
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (r *InMemoryRepository) GetTopLevelComments(_ context.Context, thread string, visibleOnly bool, limit, offset int, sortOrder string) ([]*models.Comment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var roots []*models.Comment
	for _, c := range r.comments {
		if c.Thread != thread || !c.IsRoot() {
			continue
		}
		if visibleOnly && !r.subtreeVisible(c.ID) {
			continue
		}
		cp := *c
		roots = append(roots, &cp)
	}
	desc := strings.EqualFold(sortOrder, "desc")
	slices.SortFunc(roots, func(a, b *models.Comment) int {
		return models.CompareComments(a, b, desc)
	})

	total := len(roots)
	if offset >= total {
		return []*models.Comment{}, total, nil
	}
	end := min(offset+limit, total)
	return roots[offset:end], total, nil
}

func (r *InMemoryRepository) subtreeVisible(id int64) bool {
	for d := range r.closure.Descendants(id) {
		if c, ok := r.comments[d]; ok && c.Visible() {
			return true
		}
	}
	return false
}

func (r *InMemoryRepository) SearchByText(_ context.Context, thread, query string) ([]*models.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	var out []*models.Comment
	for _, c := range r.comments {
		if c.Thread == thread && strings.Contains(strings.ToLower(c.Body), q) {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Comment) int {
		if c := b.CreatedOn.Compare(a.CreatedOn); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if len(out) > 50 {
		out = out[:50]
	}
	return out, nil
}
