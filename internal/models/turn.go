package models

// Passage is one retrieved context chunk, produced fresh per query and never
// persisted.
type Passage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// TurnResult is the unit returned for one query/answer exchange. Passages are
// ordered by descending relevance, exactly as the similarity search ranked
// them. History is the refreshed session log after the turn was persisted; it
// is nil when the refresh read failed (best effort). Warnings carry persist
// failures that did not overturn the answer.
type TurnResult struct {
	Answer    string    `json:"answer"`
	Passages  []Passage `json:"passages"`
	SessionID string    `json:"session_id"`
	Namespace string    `json:"namespace"`
	History   []Message `json:"history,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
}
