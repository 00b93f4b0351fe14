package dto

type CreateImportRequest struct {
	ImportID string      `json:"import_id"`
	Notes    []NoteInput `json:"notes" binding:"required,min=1,dive"`
}

type NoteInput struct {
	Content string `json:"content" binding:"required"`
	Source  string `json:"source"`
}

type CreateImportResponse struct {
	ImportID string       `json:"import_id"`
	Notes    []QueuedNote `json:"notes"`
}

type QueuedNote struct {
	NoteID string `json:"note_id"`
	JobID  string `json:"job_id"`
	Source string `json:"source,omitempty"`
}

type ListNotesRequest struct {
	ImportID string `form:"import_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListNotesResponse struct {
	Notes      []NoteDTO `json:"notes"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type NoteDTO struct {
	NoteID    string `json:"note_id"`
	ImportID  string `json:"import_id"`
	Title     string `json:"title"`
	Source    string `json:"source,omitempty"`
	Category  string `json:"category,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type NoteDetailResponse struct {
	NoteDTO
	Ingredients  []IngredientDTO  `json:"ingredients"`
	Instructions []InstructionDTO `json:"instructions"`
}

type IngredientDTO struct {
	Reference string `json:"reference"`
	Quantity  string `json:"quantity,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Name      string `json:"name,omitempty"`
}

type InstructionDTO struct {
	Text string `json:"text"`
}

type ProgressResponse struct {
	NoteID         string `json:"note_id"`
	ImportID       string `json:"import_id"`
	CompletedUnits int    `json:"completed_units"`
	TotalUnits     int    `json:"total_units"`
	IsComplete     bool   `json:"is_complete"`
}

type ListPatternsRequest struct {
	Limit int `form:"limit"`
}

type PatternDTO struct {
	Pattern     string `json:"pattern"`
	Example     string `json:"example"`
	Occurrences int    `json:"occurrences"`
	LastSeenAt  string `json:"last_seen_at"`
}
