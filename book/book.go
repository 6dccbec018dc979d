package book

// Book carries the display metadata of an audiobook library item.
type Book struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	CoverURL string `json:"cover_url,omitempty"`
	// EpisodeID is set when the item is a podcast episode rather than a book.
	EpisodeID string `json:"episode_id,omitempty"`
}

// String returns the canonical display representation of the book.
func (b Book) String() string {
	if b.Author == "" {
		return b.Title
	}
	return b.Title + " - " + b.Author
}
