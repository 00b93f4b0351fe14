package domain

import (
	"errors"
)

var (
	ErrNoteNotFound  = errors.New("note not found")
	ErrInvalidCursor = errors.New("invalid cursor")
)
