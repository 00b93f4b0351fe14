package model

type Note struct {
	ID        string `db:"id"`
	ImportID  string `db:"import_id"`
	Title     string `db:"title"`
	Source    string `db:"source"`
	Category  string `db:"category"`
	Status    string `db:"status"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

type IngredientLine struct {
	BlockIndex int    `db:"block_index"`
	LineIndex  int    `db:"line_index"`
	Reference  string `db:"reference"`
	Quantity   string `db:"quantity"`
	Unit       string `db:"unit"`
	Name       string `db:"name"`
}

type InstructionLine struct {
	LineIndex      int    `db:"line_index"`
	OriginalText   string `db:"original_text"`
	NormalizedText string `db:"normalized_text"`
}

type Pattern struct {
	Pattern     string `db:"pattern"`
	Example     string `db:"example"`
	Occurrences int    `db:"occurrences"`
	LastSeenAt  string `db:"last_seen_at"`
}
