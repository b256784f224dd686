package service

import (
	"CommentThreads/internal/auth"
	"CommentThreads/internal/cache"
	"CommentThreads/internal/config"
	"CommentThreads/internal/events"
	"CommentThreads/internal/models"
	"context"
	"go.uber.org/zap"
	"time"
)

type Repository interface {
	Create(ctx context.Context, c models.Comment) (models.Comment, error)
	GetByID(ctx context.Context, id int64) (*models.Comment, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*models.Comment, error)
	Modify(ctx context.Context, id int64, fn func(c *models.Comment) error) (*models.Comment, error)
	Ancestors(ctx context.Context, id int64) ([]int64, error)
	Descendants(ctx context.Context, id int64) ([]int64, error)
	GetSubtrees(ctx context.Context, ids []int64) ([]*models.Comment, error)
	GetTopLevelComments(ctx context.Context, thread string, visibleOnly bool, limit, offset int, sortOrder string) ([]*models.Comment, int, error)
	SearchByText(ctx context.Context, thread, query string) ([]*models.Comment, error)
}

type Permissions interface {
	HasPermission(actor models.Actor, action string) bool
}

type ThreadCache interface {
	Get(ctx context.Context, thread, key string) (val []byte, version int64, ok bool)
	Set(ctx context.Context, thread, key string, version int64, val []byte)
	Invalidate(ctx context.Context, thread string)
}

type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

// Options carries the optional collaborators. Zero values fall back to
// grant-based permissions, no caching, no events and the wall clock.
type Options struct {
	Permissions Permissions
	Cache       ThreadCache
	Events      Publisher
	Now         func() time.Time
}

type Service struct {
	repo   Repository
	cfg    config.CommentsConfig
	perms  Permissions
	cache  ThreadCache
	events Publisher
	now    func() time.Time
	log    *zap.Logger
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, events.Event) {}

func NewService(repo Repository, cfg config.CommentsConfig, log *zap.Logger, opts Options) *Service {
	s := &Service{
		repo:   repo,
		cfg:    cfg,
		perms:  opts.Permissions,
		cache:  opts.Cache,
		events: opts.Events,
		now:    opts.Now,
		log:    log.Named("service"),
	}
	if s.perms == nil {
		s.perms = auth.Granted{}
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// changed runs after every committed mutation.
func (s *Service) changed(ctx context.Context, t events.Type, c *models.Comment, actor int64) {
	s.cache.Invalidate(ctx, c.Thread)
	s.events.Publish(ctx, events.NewEvent(t, c.ID, c.Thread, c.Parent, c.Resource, actor, s.now()))
}
