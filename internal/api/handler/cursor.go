package handler

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cuongbtq/recipe-pipeline/internal/api/domain"
	"github.com/cuongbtq/recipe-pipeline/internal/api/storage"
)

func DecodeNoteCursor(cursorStr string) (*storage.NoteCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}

	createdAt, noteID, ok := strings.Cut(string(decoded), "|")
	if !ok || createdAt == "" || noteID == "" {
		return nil, fmt.Errorf("%w: malformed value", domain.ErrInvalidCursor)
	}

	return &storage.NoteCursor{
		CreatedAt: createdAt,
		NoteID:    noteID,
	}, nil
}

func EncodeNoteCursor(cursor *storage.NoteCursor) string {
	cs := cursor.CreatedAt + "|" + cursor.NoteID
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
