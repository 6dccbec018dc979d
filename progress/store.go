// Package progress persists playback positions, cached chapter lists and the
// last played book between runs.
package progress

import (
	"time"

	"github.com/metafates/gache"
	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/filesystem"
	"github.com/shelfplay-cli/shelfplay/where"
)

// Store is a disk-backed registry for per-book playback state. Build one with
// NewStore and pass it where it is needed.
type Store struct {
	positions *gache.Cache[map[string]*Record]
	chapters  *gache.Cache[map[string][]book.Chapter]
	last      *gache.Cache[string]
}

func NewStore() *Store {
	fs := &filesystem.GacheFs{}

	return &Store{
		positions: gache.New[map[string]*Record](&gache.Options{
			Path:       where.Progress(),
			FileSystem: fs,
		}),
		chapters: gache.New[map[string][]book.Chapter](&gache.Options{
			Path:       where.Chapters(),
			FileSystem: fs,
		}),
		last: gache.New[string](&gache.Options{
			Path:       where.LastPlayed(),
			FileSystem: fs,
		}),
	}
}

// Positions returns every persisted playback record keyed by book id.
func (s *Store) Positions() (map[string]*Record, error) {
	cached, expired, err := s.positions.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]*Record), nil
	}
	return cached, nil
}

// Position returns the persisted record for a book, or nil when none exists.
func (s *Store) Position(bookID string) (*Record, error) {
	saved, err := s.Positions()
	if err != nil {
		return nil, err
	}
	return saved[bookID], nil
}

// SavePosition replaces the persisted record for the record's book.
func (s *Store) SavePosition(record *Record) error {
	saved, err := s.Positions()
	if err != nil {
		return err
	}

	record.UpdatedAt = time.Now().Unix()
	saved[record.BookID] = record

	if err = s.positions.Set(saved); err != nil {
		return err
	}
	return s.SaveLastPlayed(record.BookID)
}

// Remove deletes the persisted record of a book.
func (s *Store) Remove(bookID string) error {
	saved, err := s.Positions()
	if err != nil {
		return err
	}

	delete(saved, bookID)
	return s.positions.Set(saved)
}

// Chapters returns the cached chapter list of a book. A nil slice means the
// book has never been cached.
func (s *Store) Chapters(bookID string) ([]book.Chapter, error) {
	cached, expired, err := s.chapters.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return nil, nil
	}
	return cached[bookID], nil
}

// SaveChapters caches the chapter list of a book for offline reuse.
func (s *Store) SaveChapters(bookID string, chapters []book.Chapter) error {
	cached, expired, err := s.chapters.Get()
	if err != nil {
		return err
	}
	if expired || cached == nil {
		cached = make(map[string][]book.Chapter)
	}

	cached[bookID] = chapters
	return s.chapters.Set(cached)
}

// LastPlayed returns the id of the most recently played book, empty when the
// user has not played anything yet.
func (s *Store) LastPlayed() (string, error) {
	cached, expired, err := s.last.Get()
	if err != nil {
		return "", err
	}
	if expired {
		return "", nil
	}
	return cached, nil
}

func (s *Store) SaveLastPlayed(bookID string) error {
	return s.last.Set(bookID)
}
