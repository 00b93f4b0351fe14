package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/recipe-pipeline/internal/api/dto"
)

const defaultPatternLimit = 50

// ListActions handles GET /api/v1/actions
func (h *CatalogHandler) ListActions(c *gin.Context) {
	if h.catalog == nil {
		c.JSON(http.StatusOK, gin.H{"queues": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queues": h.catalog()})
}

// ListPatterns handles GET /api/v1/patterns
// Lists the ingredient line patterns seen most often
func (h *CatalogHandler) ListPatterns(c *gin.Context) {
	var req dto.ListPatternsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Limit <= 0 || req.Limit > maxPageSize {
		req.Limit = defaultPatternLimit
	}

	patterns, err := h.storage.ListPatterns(c.Request.Context(), req.Limit)
	if err != nil {
		h.logger.Error("Failed to list patterns", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list patterns",
		})
		return
	}

	resp := make([]dto.PatternDTO, len(patterns))
	for i, p := range patterns {
		resp[i] = dto.PatternDTO{
			Pattern:     p.Pattern,
			Example:     p.Example,
			Occurrences: p.Occurrences,
			LastSeenAt:  p.LastSeenAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{"patterns": resp})
}
