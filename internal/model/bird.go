package model

// Bird is one catalog entry. The ID doubles as the creation time in Unix
// milliseconds and is immutable once assigned; the catalog keeps records in
// reverse chronological order, newest first.
type Bird struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}
