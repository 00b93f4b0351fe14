package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/cuongbtq/recipe-pipeline/internal/completion"
	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
	"github.com/cuongbtq/recipe-pipeline/internal/status/statustest"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/actions"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/storage"
	"github.com/cuongbtq/recipe-pipeline/shared/database"
	"github.com/cuongbtq/recipe-pipeline/shared/logger"
)

const recipeNote = `<html><head><title>Tomato Soup</title></head><body>
<h2>Ingredients</h2>
<ul><li>4 tomatoes</li><li>1 cup broth</li><li>1 tsp salt</li></ul>
<h2>Instructions</h2>
<ol><li>Simmer everything.</li><li>Blend until smooth.</li></ol>
<img src="https://example.com/soup.png">
</body></html>`

type closer struct {
	err    error
	hang   bool
	closed *atomic.Bool
}

func newCloser(err error) *closer {
	return &closer{err: err, closed: atomic.NewBool(false)}
}

func (c *closer) Close() error {
	if c.hang {
		select {}
	}
	c.closed.Store(true)
	return c.err
}

// brokenQueue is a Memory queue whose Close fails or never returns
type brokenQueue struct {
	*queue.Memory
	c *closer
}

func (q brokenQueue) Close() error {
	_ = q.Memory.Close()
	return q.c.Close()
}

func TestContainer_ProcessesNoteToCompletion(t *testing.T) {
	ctx := context.Background()
	log := logger.NewDiscard()

	db, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "recipes.db"),
	}, log)
	require.NoError(t, err)

	require.NoError(t, storage.Migrate(ctx, db.GetDB()))
	store := completion.NewSQLStore(db.GetDB())
	require.NoError(t, store.Migrate(ctx))

	recorder := &statustest.Recorder{}
	repo := storage.NewStorage(db.GetDB(), log)

	queues := make(map[string]queue.Queue)
	for _, name := range recipe.Queues {
		queues[name] = queue.NewMemory(name, 64)
	}

	c, err := NewContainer(ContainerConfig{
		Logger: log,
		Deps: actions.Deps{
			Storage:     repo,
			Tracker:     completion.NewTracker(store, recorder, log),
			Broadcaster: recorder,
			Parsers:     recipe.DefaultParsers(),
		},
		Queues:      queues,
		Concurrency: func(string) int { return 3 },
		Retry:       pipeline.RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond, MaxBackoff: time.Millisecond},
		Backoff:     pipeline.RetryPolicy{Backoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
		Database:    db,
	})
	require.NoError(t, err)
	assert.Len(t, c.Workers(), len(recipe.Queues))

	require.NoError(t, c.Start(ctx))
	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		assert.NoError(t, c.Close(closeCtx))
	}()

	_, err = queues[recipe.QueueNote].Add(ctx, recipe.JobProcessNote, recipe.NoteJob{
		JobMeta: recipe.JobMeta{ImportID: "import-1"},
		Content: recipeNote,
	}, queue.Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return recorder.Count(status.StatusCompleted, completion.EventContext) == 1
	}, 10*time.Second, 20*time.Millisecond)

	events := recorder.Events()
	var noteID string
	for _, e := range events {
		if e.Context == completion.EventContext {
			noteID = e.NoteID
			require.NotNil(t, e.TotalCount)
			// 3 ingredients, 2 instructions, 1 image, 1 categorization
			assert.Equal(t, 7, *e.TotalCount)
		}
	}
	require.NotEmpty(t, noteID)

	require.Eventually(t, func() bool {
		note, err := repo.GetNote(ctx, noteID)
		return err == nil && note.Status == recipe.NoteStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	note, err := repo.GetNote(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, "Tomato Soup", note.Title)
	assert.Equal(t, "Soups", note.Category)

	// nothing fires twice once the note is complete
	assert.Equal(t, 1, recorder.Count(status.StatusCompleted, completion.EventContext))
	assert.Zero(t, recorder.Count(status.StatusFailed, ""))
}

func TestNewContainer_UnknownQueue(t *testing.T) {
	_, err := NewContainer(ContainerConfig{
		Queues: map[string]queue.Queue{"mystery": queue.NewMemory("mystery", 1)},
	})
	assert.ErrorContains(t, err, "mystery")
}

func TestContainer_CloseIsBestEffort(t *testing.T) {
	failing := newCloser(errors.New("channel already closed"))
	hanging := &closer{hang: true, closed: atomic.NewBool(false)}
	db := newCloser(nil)
	redis := newCloser(errors.New("redis gone"))

	c, err := NewContainer(ContainerConfig{
		Logger: logger.NewDiscard(),
		Queues: map[string]queue.Queue{
			recipe.QueueNote:       brokenQueue{Memory: queue.NewMemory("note", 1), c: failing},
			recipe.QueueIngredient: brokenQueue{Memory: queue.NewMemory("ingredient", 1), c: hanging},
			recipe.QueueImage:      queue.NewMemory("image", 1),
		},
		Database: db,
		Redis:    redis,
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = c.Close(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "channel already closed")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorContains(t, err, "redis gone")

	assert.True(t, failing.closed.Load())
	assert.True(t, db.closed.Load(), "database is closed even when queues fail")
	assert.True(t, redis.closed.Load())

	assert.NoError(t, c.Close(context.Background()), "second close is a no-op")
}

func TestWorker_InvalidUnitJobStillCompletesNote(t *testing.T) {
	ctx := context.Background()
	log := logger.NewDiscard()

	db, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "recipes.db"),
	}, log)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, storage.Migrate(ctx, db.GetDB()))

	repo := storage.NewStorage(db.GetDB(), log)
	require.NoError(t, repo.SaveNote(ctx, &recipe.Note{ID: "note-1", ImportID: "import-1", Title: "Toast"}))

	recorder := &statustest.Recorder{}
	tracker := completion.NewTracker(completion.NewMemoryStore(), recorder, log)
	_, err = tracker.CreateCounter(ctx, "note-1", "import-1", 1)
	require.NoError(t, err)

	def := actions.Image()
	q := queue.NewMemory(recipe.QueueImage, 4)
	w, err := New(Config[recipe.ImageJob, actions.Deps]{
		Queue:   q,
		Builder: def.Builder,
		Deps: actions.Deps{
			Logger:      log,
			Storage:     repo,
			Tracker:     tracker,
			Broadcaster: recorder,
			Parsers:     recipe.DefaultParsers(),
		},
		Tracking:    def.Tracking,
		Broadcaster: recorder,
		Logger:      log,
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_ = w.Close(closeCtx)
		_ = q.Close()
	}()

	// no image url: the job cannot be processed but is still one unit of the note
	_, err = q.Add(ctx, recipe.JobProcessImage, recipe.ImageJob{
		JobMeta: recipe.JobMeta{NoteID: "note-1", ImportID: "import-1"},
	}, queue.Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(q.Failed()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	progress, err := tracker.Progress(ctx, "note-1")
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Completed)
	assert.True(t, progress.IsComplete)
	assert.Equal(t, 1, recorder.Count(status.StatusCompleted, completion.EventContext))
	assert.Equal(t, 1, recorder.Count(status.StatusFailed, recipe.JobProcessImage))

	note, err := repo.GetNote(ctx, "note-1")
	require.NoError(t, err)
	assert.Equal(t, recipe.NoteStatusCompleted, note.Status)
}
