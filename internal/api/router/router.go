package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/recipe-pipeline/internal/api/handler"
)

// ServiceName is reported by the health check
const ServiceName = "recipe-api-service"

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": ServiceName,
		})
	})

	imports := handler.NewImportHandler(deps)
	notes := handler.NewNoteHandler(deps)
	catalog := handler.NewCatalogHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/imports - Queue the notes of an import
		v1.POST("/imports", imports.CreateImport)
		// GET /api/v1/imports/:import_id/events - Stream status events
		v1.GET("/imports/:import_id/events", imports.StreamEvents)

		// GET /api/v1/notes - List notes with filtering and pagination
		v1.GET("/notes", notes.ListNotes)
		// GET /api/v1/notes/:note_id - Get a note with its parsed lines
		v1.GET("/notes/:note_id", notes.GetNote)
		// GET /api/v1/notes/:note_id/progress - Get completion progress
		v1.GET("/notes/:note_id/progress", notes.GetProgress)

		v1.GET("/actions", catalog.ListActions)
		v1.GET("/patterns", catalog.ListPatterns)
	}

	return r
}
