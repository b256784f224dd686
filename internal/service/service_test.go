package service

import (
	"CommentThreads/internal/auth"
	"CommentThreads/internal/config"
	"CommentThreads/internal/events"
	"CommentThreads/internal/models"
	"CommentThreads/internal/repository"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	guest     = models.Actor{IP: "10.0.0.9"}
	alice     = models.Actor{ID: 1, Username: "alice", IP: "10.0.0.1"}
	bob       = models.Actor{ID: 2, Username: "bob"}
	moderator = models.Actor{ID: 100, Username: "mod", Permissions: []string{auth.Wildcard}}
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// memoryCache keys pages by thread version the way the Redis cache does.
type memoryCache struct {
	mu          sync.Mutex
	versions    map[string]int64
	pages       map[string][]byte
	hits        int
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{versions: make(map[string]int64), pages: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, thread, key string) ([]byte, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ver := c.versions[thread]
	v, ok := c.pages[fmt.Sprintf("%s|%d|%s", thread, ver, key)]
	if ok {
		c.hits++
	}
	return v, ver, ok
}

func (c *memoryCache) Set(_ context.Context, thread, key string, version int64, val []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[fmt.Sprintf("%s|%d|%s", thread, version, key)] = val
}

func (c *memoryCache) Invalidate(_ context.Context, thread string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[thread]++
	c.invalidated = append(c.invalidated, thread)
}

type fixture struct {
	svc    *Service
	repo   *repository.InMemoryRepository
	events *recordingPublisher
	cache  *memoryCache
}

func newFixture(t *testing.T, mutate ...func(*config.CommentsConfig)) *fixture {
	t.Helper()
	cfg := config.DefaultComments()
	for _, m := range mutate {
		m(&cfg)
	}
	f := &fixture{
		repo:   repository.NewInMemoryRepository(),
		events: &recordingPublisher{},
		cache:  newMemoryCache(),
	}
	clock := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.svc = NewService(f.repo, cfg, zap.NewNop(), Options{
		Cache:  f.cache,
		Events: f.events,
		Now:    clock.Now,
	})
	return f
}

func (f *fixture) post(t *testing.T, thread string, parent int64, body string, actor models.Actor) *models.Comment {
	t.Helper()
	req := models.CreateRequest{Thread: thread, Parent: parent, Body: body}
	if actor.IsGuest() {
		req.Name = "guest"
	}
	c, err := f.svc.CreateComment(context.Background(), req, actor)
	require.NoError(t, err)
	return c
}

// seedScenario builds t1: R1(1) <- C1(2) <- C2(3).
func (f *fixture) seedScenario(t *testing.T) (r1, c1, c2 *models.Comment) {
	t.Helper()
	r1 = f.post(t, "t1", 0, "root", alice)
	c1 = f.post(t, "t1", r1.ID, "reply", bob)
	c2 = f.post(t, "t1", c1.ID, "reply to reply", alice)
	return r1, c1, c2
}
