package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	args := m.Called(ctx, channel, message)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(int64(args.Int(0)))
	}
	return cmd
}

type failing struct{ err error }

func (f failing) AddStatusEventAndBroadcast(context.Context, Event) error { return f.err }

type counting struct{ calls int }

func (c *counting) AddStatusEventAndBroadcast(context.Context, Event) error {
	c.calls++
	return nil
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestEvent_JSON(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  map[string]any
	}{
		{
			name:  "processing omits empty optionals",
			event: Processing("imp", "note", "parse_html", "Parsing"),
			want:  map[string]any{"importId": "imp", "noteId": "note", "status": "PROCESSING", "context": "parse_html", "message": "Parsing"},
		},
		{
			name:  "zero counts are kept",
			event: Progress("imp", "note", "ingredient_processing", 0, 0),
			want: map[string]any{
				"importId": "imp", "noteId": "note", "status": "PROCESSING", "context": "ingredient_processing",
				"message": "0/0", "currentCount": float64(0), "totalCount": float64(0),
			},
		},
		{
			name:  "zero indent is kept",
			event: Completed("imp", "", "note_completion", "done").WithIndent(0),
			want:  map[string]any{"importId": "imp", "status": "COMPLETED", "context": "note_completion", "message": "done", "indentLevel": float64(0)},
		},
		{
			name:  "failed carries error text",
			event: Failed("imp", "note", "save_note", errors.New("disk full")),
			want:  map[string]any{"importId": "imp", "noteId": "note", "status": "FAILED", "context": "save_note", "message": "disk full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.event)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvent_WithMetadataCopies(t *testing.T) {
	base := Pending("imp", "note", "import", "queued").WithMetadata("a", 1)
	derived := base.WithMetadata("b", 2)

	assert.Equal(t, map[string]any{"a": 1}, base.Metadata)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, derived.Metadata)
	assert.False(t, base.IsTerminal())
	assert.True(t, Failed("imp", "", "x", nil).IsTerminal())
}

func TestRedisBroadcaster_Publishes(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, "note-status:imp-1", mock.MatchedBy(func(msg interface{}) bool {
		var e Event
		return json.Unmarshal(msg.([]byte), &e) == nil && e.Status == StatusCompleted && e.NoteID == "n1"
	})).Return(2, nil).Once()

	b := NewRedisBroadcaster(pub, time.Second, discardLogger())
	err := b.AddStatusEventAndBroadcast(context.Background(), Completed("imp-1", "n1", "note_completion", "done"))

	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestRedisBroadcaster_Errors(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(0, errors.New("connection refused"))

	b := NewRedisBroadcaster(pub, 0, discardLogger())

	err := b.AddStatusEventAndBroadcast(context.Background(), Processing("imp", "n", "x", "y"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	err = b.AddStatusEventAndBroadcast(context.Background(), Processing("", "n", "x", "y"))
	require.Error(t, err)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestMulti_AttemptsAll(t *testing.T) {
	c1, c2 := &counting{}, &counting{}
	m := Multi{c1, failing{errors.New("first")}, c2, failing{errors.New("second")}}

	err := m.AddStatusEventAndBroadcast(context.Background(), Processing("imp", "n", "x", "y"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
	assert.Equal(t, 1, c1.calls)
	assert.Equal(t, 1, c2.calls)
}

func TestLogBroadcaster(t *testing.T) {
	b := NewLogBroadcaster(discardLogger())
	assert.NoError(t, b.AddStatusEventAndBroadcast(context.Background(), Progress("imp", "n", "x", 1, 2)))
}
