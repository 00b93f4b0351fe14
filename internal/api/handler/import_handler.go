package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/recipe-pipeline/internal/api/dto"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
)

// ImportContext is the status context of queued notes
const ImportContext = "import"

// CreateImport handles POST /api/v1/imports
// Queues one note job per submitted note
func (h *ImportHandler) CreateImport(c *gin.Context) {
	h.logger.Info("CreateImport called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	var req dto.CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	importID := req.ImportID
	if importID == "" {
		importID = uuid.New().String()
	}

	ctx := c.Request.Context()
	resp := dto.CreateImportResponse{
		ImportID: importID,
		Notes:    make([]dto.QueuedNote, 0, len(req.Notes)),
	}

	for _, n := range req.Notes {
		// the note id is fixed up front so clients can poll progress right away
		job := recipe.NoteJob{
			JobMeta: recipe.JobMeta{NoteID: uuid.New().String(), ImportID: importID},
			Content: n.Content,
			Source:  n.Source,
		}

		// PENDING goes out first so it never lands after the worker's own events
		h.broadcast(ctx, status.Pending(importID, job.NoteID, ImportContext, "Note queued"))

		jobID, err := h.noteQueue.Add(ctx, recipe.JobProcessNote, job, queue.Options{})
		if err != nil {
			h.logger.Error("Failed to queue note",
				slog.String("import_id", importID),
				slog.String("error", err.Error()),
			)
			h.broadcast(ctx, status.Failed(importID, job.NoteID, ImportContext, err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "Failed to queue note",
				"queued": resp.Notes,
			})
			return
		}

		resp.Notes = append(resp.Notes, dto.QueuedNote{
			NoteID: job.NoteID,
			JobID:  jobID,
			Source: n.Source,
		})
	}

	c.JSON(http.StatusAccepted, resp)
}

// broadcast sends a status event best effort
func (h *ImportHandler) broadcast(ctx context.Context, event status.Event) {
	if h.broadcaster == nil {
		return
	}
	if err := h.broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
		h.logger.Warn("Failed to broadcast status event",
			slog.String("note_id", event.NoteID),
			slog.String("status", string(event.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// StreamEvents handles GET /api/v1/imports/:import_id/events
// Relays the status events of an import as server-sent events
func (h *ImportHandler) StreamEvents(c *gin.Context) {
	importID := c.Param("import_id")

	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Status events are not enabled",
		})
		return
	}

	events, err := h.events.Subscribe(c.Request.Context(), importID)
	if err != nil {
		h.logger.Error("Failed to subscribe to status events",
			slog.String("import_id", importID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to subscribe to status events",
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(event.Status), event)
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}
