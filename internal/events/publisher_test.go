package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	ev := NewEvent(CommentApproved, 5, "t1", 2, 9, 1, at)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, at.UTC(), ev.At)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "comments.approved", decoded["type"])
	assert.Equal(t, float64(5), decoded["comment_id"])
}

func TestStubPublisher(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p, err := New("", zap.New(core))
	require.NoError(t, err)
	defer p.Close()

	p.Publish(context.Background(), NewEvent(CommentCreated, 1, "t1", 0, 0, 0, time.Now()))

	assert.Equal(t, 1, logs.FilterMessage("Event dropped (stub mode)").Len())
}
