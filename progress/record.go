package progress

import (
	"fmt"
	"time"

	"github.com/shelfplay-cli/shelfplay/book"
)

// Record is a single playback position preserved on disk.
type Record struct {
	BookID        string  `json:"book_id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	TrackIndex    int     `json:"track_index"`
	OffsetSeconds float64 `json:"offset_seconds"`
	GlobalSeconds float64 `json:"global_seconds"`

	// TotalSeconds is zero when the book length is not known yet.
	TotalSeconds float64 `json:"total_seconds"`
	Finished     bool    `json:"finished"`
	UpdatedAt    int64   `json:"updated_at"`
}

func NewRecord(b *book.Book) *Record {
	return &Record{
		BookID:    b.ID,
		Title:     b.Title,
		Author:    b.Author,
		UpdatedAt: time.Now().Unix(),
	}
}

// Total reports the persisted book length, tagged.
func (r *Record) Total() book.Duration {
	return book.DurationFromSeconds(r.TotalSeconds)
}

func (r *Record) String() string {
	return fmt.Sprintf("%s : track %d @ %.0fs", r.Title, r.TrackIndex+1, r.OffsetSeconds)
}
