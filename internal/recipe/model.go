package recipe

// Note status constants
const (
	NoteStatusPending    = "PENDING"
	NoteStatusProcessing = "PROCESSING"
	NoteStatusCompleted  = "COMPLETED"
	NoteStatusFailed     = "FAILED"
)

// ParsedNote is the structure extracted from a note's HTML
type ParsedNote struct {
	Title        string       `json:"title"`
	Ingredients  []ParsedLine `json:"ingredients"`
	Instructions []ParsedLine `json:"instructions"`
	Images       []string     `json:"images,omitempty"`
}

// ParsedLine is one raw line of a note with its position
type ParsedLine struct {
	Reference  string `json:"reference"`
	BlockIndex int    `json:"blockIndex"`
	LineIndex  int    `json:"lineIndex"`
}

// ParsedIngredient is the structured form of an ingredient line
type ParsedIngredient struct {
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Name     string `json:"name"`
	Note     string `json:"note,omitempty"`
	// Pattern is the token shape of the line, e.g. "AMOUNT UNIT INGREDIENT"
	Pattern string `json:"pattern"`
}

// Note is a stored note
type Note struct {
	ID        string `db:"id" json:"id"`
	ImportID  string `db:"import_id" json:"importId"`
	Title     string `db:"title" json:"title"`
	Source    string `db:"source" json:"source,omitempty"`
	Content   string `db:"content" json:"-"`
	Category  string `db:"category" json:"category,omitempty"`
	Status    string `db:"status" json:"status"`
	UpdatedAt string `db:"updated_at" json:"updatedAt"`
}

// IngredientLine is a stored, parsed ingredient line
type IngredientLine struct {
	ID         string `db:"id" json:"id"`
	NoteID     string `db:"note_id" json:"noteId"`
	BlockIndex int    `db:"block_index" json:"blockIndex"`
	LineIndex  int    `db:"line_index" json:"lineIndex"`
	Reference  string `db:"reference" json:"reference"`
	Quantity   string `db:"quantity" json:"quantity,omitempty"`
	Unit       string `db:"unit" json:"unit,omitempty"`
	Name       string `db:"name" json:"name"`
	Pattern    string `db:"pattern" json:"pattern"`
}

// InstructionLine is a stored, normalized instruction line
type InstructionLine struct {
	ID             string `db:"id" json:"id"`
	NoteID         string `db:"note_id" json:"noteId"`
	LineIndex      int    `db:"line_index" json:"lineIndex"`
	OriginalText   string `db:"original_text" json:"originalText"`
	NormalizedText string `db:"normalized_text" json:"normalizedText"`
}

// Image is an image referenced by a note
type Image struct {
	ID          string `db:"id" json:"id"`
	NoteID      string `db:"note_id" json:"noteId"`
	ImageIndex  int    `db:"image_index" json:"index"`
	URL         string `db:"url" json:"url"`
	ContentType string `db:"content_type" json:"contentType"`
}

// Pattern counts how often an ingredient line shape was seen
type Pattern struct {
	Pattern     string `db:"pattern" json:"pattern"`
	Example     string `db:"example" json:"example"`
	Occurrences int    `db:"occurrences" json:"occurrences"`
}
