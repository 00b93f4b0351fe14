package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/recipe-pipeline/internal/api/domain"
	"github.com/cuongbtq/recipe-pipeline/internal/api/dto"
	"github.com/cuongbtq/recipe-pipeline/internal/api/model"
	"github.com/cuongbtq/recipe-pipeline/internal/api/storage"
	"github.com/cuongbtq/recipe-pipeline/internal/completion"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func toNoteDTO(n model.Note) dto.NoteDTO {
	return dto.NoteDTO{
		NoteID:    n.ID,
		ImportID:  n.ImportID,
		Title:     n.Title,
		Source:    n.Source,
		Category:  n.Category,
		Status:    n.Status,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

// noteID reads and validates the :note_id parameter, answering 400 itself
func (h *NoteHandler) noteID(c *gin.Context) (string, bool) {
	noteID := c.Param("note_id")
	if _, err := uuid.Parse(noteID); err != nil {
		h.logger.Error("Invalid note_id format", slog.String("note_id", noteID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "note_id must be a valid UUID",
		})
		return "", false
	}
	return noteID, true
}

// GetNote handles GET /api/v1/notes/:note_id
// Returns a note with its parsed lines
func (h *NoteHandler) GetNote(c *gin.Context) {
	noteID, ok := h.noteID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	note, err := h.storage.GetNote(ctx, noteID)
	if err != nil {
		if errors.Is(err, domain.ErrNoteNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Note not found",
			})
			return
		}
		h.logger.Error("Failed to get note", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get note",
		})
		return
	}

	ingredients, err := h.storage.ListIngredientLines(ctx, noteID)
	if err != nil {
		h.logger.Error("Failed to list ingredient lines", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get note",
		})
		return
	}

	instructions, err := h.storage.ListInstructionLines(ctx, noteID)
	if err != nil {
		h.logger.Error("Failed to list instruction lines", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get note",
		})
		return
	}

	resp := dto.NoteDetailResponse{
		NoteDTO:      toNoteDTO(*note),
		Ingredients:  make([]dto.IngredientDTO, len(ingredients)),
		Instructions: make([]dto.InstructionDTO, len(instructions)),
	}
	for i, line := range ingredients {
		resp.Ingredients[i] = dto.IngredientDTO{
			Reference: line.Reference,
			Quantity:  line.Quantity,
			Unit:      line.Unit,
			Name:      line.Name,
		}
	}
	for i, line := range instructions {
		text := line.NormalizedText
		if text == "" {
			text = line.OriginalText
		}
		resp.Instructions[i] = dto.InstructionDTO{Text: text}
	}

	c.JSON(http.StatusOK, resp)
}

// ListNotes handles GET /api/v1/notes
// Lists notes, newest first, with optional filtering and cursor pagination
func (h *NoteHandler) ListNotes(c *gin.Context) {
	var req dto.ListNotesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeNoteCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	notes, err := h.storage.ListNotes(c.Request.Context(), storage.NoteFilter{
		ImportID: req.ImportID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list notes", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list notes",
		})
		return
	}

	hasMore := len(notes) > req.PageSize
	if hasMore {
		notes = notes[:req.PageSize]
	}

	resp := dto.ListNotesResponse{Notes: make([]dto.NoteDTO, len(notes))}
	for i, n := range notes {
		resp.Notes[i] = toNoteDTO(n)
	}

	if hasMore {
		last := notes[len(notes)-1]
		resp.NextCursor = EncodeNoteCursor(&storage.NoteCursor{
			CreatedAt: last.CreatedAt,
			NoteID:    last.ID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// GetProgress handles GET /api/v1/notes/:note_id/progress
// Reports how many units of the note have completed
func (h *NoteHandler) GetProgress(c *gin.Context) {
	noteID, ok := h.noteID(c)
	if !ok {
		return
	}

	progress, err := h.progress.Progress(c.Request.Context(), noteID)
	if err != nil {
		if errors.Is(err, completion.ErrCounterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No progress recorded for note",
			})
			return
		}
		h.logger.Error("Failed to get progress", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get progress",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ProgressResponse{
		NoteID:         progress.NoteID,
		ImportID:       progress.ImportID,
		CompletedUnits: progress.Completed,
		TotalUnits:     progress.Total,
		IsComplete:     progress.IsComplete,
	})
}
