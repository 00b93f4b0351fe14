package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recipe-pipeline/internal/api/dto"
	"github.com/cuongbtq/recipe-pipeline/internal/api/handler"
	apistorage "github.com/cuongbtq/recipe-pipeline/internal/api/storage"
	"github.com/cuongbtq/recipe-pipeline/internal/completion"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
	"github.com/cuongbtq/recipe-pipeline/internal/status/statustest"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/actions"
	workerstorage "github.com/cuongbtq/recipe-pipeline/internal/worker/storage"
	"github.com/cuongbtq/recipe-pipeline/shared/database"
	"github.com/cuongbtq/recipe-pipeline/shared/logger"
)

type fakeEvents struct {
	events []status.Event
	err    error
}

func (f fakeEvents) Subscribe(context.Context, string) (<-chan status.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan status.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

type testEnv struct {
	router   *gin.Engine
	deps     *handler.Dependencies
	db       *database.Client
	notes    *queue.Memory
	tracker  *completion.Tracker
	recorder *statustest.Recorder
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := logger.NewDiscard()

	db, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "api.db"),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, workerstorage.Migrate(ctx, db.GetDB()))
	store := completion.NewSQLStore(db.GetDB())
	require.NoError(t, store.Migrate(ctx))

	env := &testEnv{
		db:       db,
		notes:    queue.NewMemory(recipe.QueueNote, 16),
		tracker:  completion.NewTracker(store, nil, log),
		recorder: &statustest.Recorder{},
	}
	env.deps = &handler.Dependencies{
		Logger:      log,
		Storage:     apistorage.NewStorage(db),
		Progress:    env.tracker,
		NoteQueue:   env.notes,
		Broadcaster: env.recorder,
		Catalog:     actions.Catalog,
	}
	env.router = SetupRouter(env.deps)
	return env
}

func (e *testEnv) seedNote(t *testing.T, importID, createdAt string) string {
	t.Helper()
	id := uuid.New().String()
	db := e.db.GetDB()
	_, err := db.Exec(db.Rebind(`
		INSERT INTO notes (id, import_id, title, source, content, category, status, created_at, updated_at)
		VALUES (?, ?, ?, '', '', '', ?, ?, ?)`),
		id, importID, "Note "+createdAt, recipe.NoteStatusProcessing, createdAt, createdAt,
	)
	require.NoError(t, err)
	return id
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	env := setup(t)

	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ServiceName)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestID_IsEchoed(t *testing.T) {
	env := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestCreateImport(t *testing.T) {
	env := setup(t)

	w := env.do(http.MethodPost, "/api/v1/imports", dto.CreateImportRequest{
		Notes: []dto.NoteInput{
			{Content: "<h1>Soup</h1>", Source: "soup.html"},
			{Content: "<h1>Salad</h1>"},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	resp := decode[dto.CreateImportResponse](t, w)
	assert.NotEmpty(t, resp.ImportID)
	require.Len(t, resp.Notes, 2)
	assert.Equal(t, "soup.html", resp.Notes[0].Source)
	assert.Equal(t, 2, env.notes.Len())
	assert.Equal(t, 2, env.recorder.Count(status.StatusPending, handler.ImportContext))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	messages, err := env.notes.Consume(ctx)
	require.NoError(t, err)

	msg := <-messages
	require.NotNil(t, msg)
	envelope := msg.Envelope()
	assert.Equal(t, recipe.JobProcessNote, envelope.Name)
	assert.Equal(t, resp.Notes[0].JobID, envelope.ID)

	var job recipe.NoteJob
	require.NoError(t, json.Unmarshal(envelope.Data, &job))
	assert.Equal(t, resp.ImportID, job.ImportID)
	assert.Equal(t, resp.Notes[0].NoteID, job.NoteID)
	assert.Equal(t, "<h1>Soup</h1>", job.Content)
	assert.NoError(t, job.Validate())
}

// watchingQueue notes how many PENDING events were out when each job was added
type watchingQueue struct {
	*queue.Memory
	recorder *statustest.Recorder
	seen     []int
}

func (q *watchingQueue) Add(ctx context.Context, name string, data any, opts queue.Options) (string, error) {
	q.seen = append(q.seen, q.recorder.Count(status.StatusPending, handler.ImportContext))
	return q.Memory.Add(ctx, name, data, opts)
}

func TestCreateImport_PendingBeforeQueued(t *testing.T) {
	env := setup(t)
	watched := &watchingQueue{Memory: env.notes, recorder: env.recorder}
	env.deps.NoteQueue = watched
	env.router = SetupRouter(env.deps)

	w := env.do(http.MethodPost, "/api/v1/imports", dto.CreateImportRequest{
		Notes: []dto.NoteInput{{Content: "<p>a</p>"}, {Content: "<p>b</p>"}},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []int{1, 2}, watched.seen)
}

func TestCreateImport_KeepsImportID(t *testing.T) {
	env := setup(t)

	w := env.do(http.MethodPost, "/api/v1/imports", dto.CreateImportRequest{
		ImportID: "batch-7",
		Notes:    []dto.NoteInput{{Content: "<p>x</p>"}},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "batch-7", decode[dto.CreateImportResponse](t, w).ImportID)
}

func TestCreateImport_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        any
		close       bool
		wantCode    int
		wantPending int
		wantFailed  int
	}{
		{name: "no notes", body: map[string]any{"notes": []any{}}, wantCode: http.StatusBadRequest},
		{name: "missing notes", body: map[string]any{}, wantCode: http.StatusBadRequest},
		{name: "note without content", body: map[string]any{"notes": []any{map[string]any{"source": "a.html"}}}, wantCode: http.StatusBadRequest},
		{
			name:        "queue unavailable",
			body:        dto.CreateImportRequest{Notes: []dto.NoteInput{{Content: "x"}}},
			close:       true,
			wantCode:    http.StatusInternalServerError,
			wantPending: 1,
			wantFailed:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			if tt.close {
				require.NoError(t, env.notes.Close())
			}

			w := env.do(http.MethodPost, "/api/v1/imports", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantPending, env.recorder.Count(status.StatusPending, handler.ImportContext))
			assert.Equal(t, tt.wantFailed, env.recorder.Count(status.StatusFailed, handler.ImportContext))
		})
	}
}

func TestGetNote(t *testing.T) {
	env := setup(t)
	noteID := env.seedNote(t, "imp-1", "2026-01-01T00:00:00Z")

	db := env.db.GetDB()
	for i, ref := range []string{"2 cups flour", "1 egg"} {
		_, err := db.Exec(db.Rebind(`
			INSERT INTO ingredient_lines (id, note_id, block_index, line_index, reference, quantity, unit, name, pattern, updated_at)
			VALUES (?, ?, 0, ?, ?, '', '', ?, '', '2026-01-01T00:00:00Z')`),
			uuid.New().String(), noteID, i, ref, fmt.Sprintf("name-%d", i),
		)
		require.NoError(t, err)
	}
	_, err := db.Exec(db.Rebind(`
		INSERT INTO instruction_lines (id, note_id, line_index, original_text, normalized_text, updated_at)
		VALUES (?, ?, 0, 'mix  it', 'Mix it.', '2026-01-01T00:00:00Z')`),
		uuid.New().String(), noteID,
	)
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/notes/"+noteID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.NoteDetailResponse](t, w)
		assert.Equal(t, noteID, resp.NoteID)
		assert.Equal(t, "imp-1", resp.ImportID)
		require.Len(t, resp.Ingredients, 2)
		assert.Equal(t, "2 cups flour", resp.Ingredients[0].Reference)
		require.Len(t, resp.Instructions, 1)
		assert.Equal(t, "Mix it.", resp.Instructions[0].Text)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/notes/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/notes/"+uuid.New().String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListNotes_Pagination(t *testing.T) {
	env := setup(t)
	oldest := env.seedNote(t, "imp-1", "2026-01-01T00:00:00Z")
	middle := env.seedNote(t, "imp-1", "2026-01-02T00:00:00Z")
	newest := env.seedNote(t, "imp-2", "2026-01-03T00:00:00Z")

	w := env.do(http.MethodGet, "/api/v1/notes?page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode[dto.ListNotesResponse](t, w)
	require.Len(t, first.Notes, 2)
	assert.Equal(t, newest, first.Notes[0].NoteID)
	assert.Equal(t, middle, first.Notes[1].NoteID)
	require.NotEmpty(t, first.NextCursor)

	w = env.do(http.MethodGet, "/api/v1/notes?page_size=2&cursor="+first.NextCursor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[dto.ListNotesResponse](t, w)
	require.Len(t, second.Notes, 1)
	assert.Equal(t, oldest, second.Notes[0].NoteID)
	assert.Empty(t, second.NextCursor)

	w = env.do(http.MethodGet, "/api/v1/notes?import_id=imp-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	filtered := decode[dto.ListNotesResponse](t, w)
	require.Len(t, filtered.Notes, 1)
	assert.Equal(t, newest, filtered.Notes[0].NoteID)

	w = env.do(http.MethodGet, "/api/v1/notes?cursor=!!!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProgress(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	noteID := uuid.New().String()

	_, err := env.tracker.CreateCounter(ctx, noteID, "imp-1", 2)
	require.NoError(t, err)
	_, err = env.tracker.RecordUnit(ctx, noteID, "ingredient:0:0")
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/notes/"+noteID+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.ProgressResponse](t, w)
	assert.Equal(t, dto.ProgressResponse{NoteID: noteID, ImportID: "imp-1", CompletedUnits: 1, TotalUnits: 2}, resp)

	w = env.do(http.MethodGet, "/api/v1/notes/"+uuid.New().String()+"/progress", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListActions(t *testing.T) {
	env := setup(t)

	w := env.do(http.MethodGet, "/api/v1/actions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[struct {
		Queues map[string][]string `json:"queues"`
	}](t, w)
	assert.Len(t, resp.Queues, len(recipe.Queues))
	assert.Contains(t, resp.Queues[recipe.QueueNote], actions.ActionParseHTML)
}

func TestListPatterns(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	repo := workerstorage.NewStorage(env.db.GetDB(), logger.NewDiscard())

	for range 3 {
		_, err := repo.TrackPattern(ctx, "quantity unit name", "2 cups flour")
		require.NoError(t, err)
	}
	_, err := repo.TrackPattern(ctx, "name", "salt")
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/patterns?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[struct {
		Patterns []dto.PatternDTO `json:"patterns"`
	}](t, w)
	require.Len(t, resp.Patterns, 2)
	assert.Equal(t, "quantity unit name", resp.Patterns[0].Pattern)
	assert.Equal(t, 3, resp.Patterns[0].Occurrences)
	assert.Equal(t, "name", resp.Patterns[1].Pattern)
}

func TestStreamEvents(t *testing.T) {
	t.Run("relays events", func(t *testing.T) {
		env := setup(t)
		env.deps.Events = fakeEvents{events: []status.Event{
			status.Processing("imp-1", "n1", "note_parsing", "Parsing note"),
			status.Completed("imp-1", "n1", completion.EventContext, "Note completed"),
		}}
		env.router = SetupRouter(env.deps)

		w := env.do(http.MethodGet, "/api/v1/imports/imp-1/events", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
		assert.Contains(t, w.Body.String(), "event:PROCESSING")
		assert.Contains(t, w.Body.String(), "event:COMPLETED")
		assert.Contains(t, w.Body.String(), `"context":"note_completion"`)
	})

	t.Run("subscription failure", func(t *testing.T) {
		env := setup(t)
		env.deps.Events = fakeEvents{err: fmt.Errorf("redis down")}
		env.router = SetupRouter(env.deps)

		w := env.do(http.MethodGet, "/api/v1/imports/imp-1/events", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		env := setup(t)

		w := env.do(http.MethodGet, "/api/v1/imports/imp-1/events", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
