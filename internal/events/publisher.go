// Package events publishes comment lifecycle events to NATS JetStream for
// downstream consumers such as notifiers and search indexers.
package events

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"time"
)

type Type string

const (
	CommentCreated  Type = "comments.created"
	CommentEdited   Type = "comments.edited"
	CommentApproved Type = "comments.approved"
	CommentRejected Type = "comments.rejected"
	CommentDeleted  Type = "comments.deleted"
	CommentRestored Type = "comments.restored"

	streamName = "COMMENTS"
)

type Event struct {
	ID        string    `json:"event_id"`
	Type      Type      `json:"type"`
	CommentID int64     `json:"comment_id"`
	Thread    string    `json:"thread"`
	Parent    int64     `json:"parent"`
	Resource  int64     `json:"resource"`
	Actor     int64     `json:"actor"`
	At        time.Time `json:"at"`
}

func NewEvent(t Type, commentID int64, thread string, parent, resource, actor int64, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		CommentID: commentID,
		Thread:    thread,
		Parent:    parent,
		Resource:  resource,
		Actor:     actor,
		At:        at.UTC(),
	}
}

type Publisher struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *zap.Logger
}

// New connects to NATS and ensures the COMMENTS stream exists. An empty URL
// yields a stub publisher that only logs.
func New(natsURL string, log *zap.Logger) (*Publisher, error) {
	log = log.Named("events")
	if natsURL == "" {
		log.Warn("NATS url not set, comment events will not be published (stub mode)")
		return &Publisher{log: log}, nil
	}

	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"comments.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		log.Warn("Failed to create NATS stream (may already exist)", zap.Error(err))
	}

	log.Info("NATS publisher initialised", zap.String("stream", streamName))
	return &Publisher{nc: nc, js: js, log: log}, nil
}

// Publish is best effort: failures are logged and never reach the caller.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p.js == nil {
		p.log.Debug("Event dropped (stub mode)", zap.String("type", string(ev.Type)), zap.Int64("comment_id", ev.CommentID))
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("Failed to marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	if _, err := p.js.Publish(string(ev.Type), data, nats.Context(ctx), nats.MsgId(ev.ID)); err != nil {
		p.log.Error("Failed to publish event", zap.String("type", string(ev.Type)), zap.Int64("comment_id", ev.CommentID), zap.Error(err))
		return
	}
	p.log.Debug("Event published", zap.String("type", string(ev.Type)), zap.Int64("comment_id", ev.CommentID))
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
