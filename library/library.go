// Package library finds locally downloaded audiobook tracks. Tracks found
// here play from disk and never open a streaming session.
package library

import (
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/filesystem"
	"github.com/shelfplay-cli/shelfplay/key"
	"github.com/shelfplay-cli/shelfplay/where"
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".m4b":  {},
	".aac":  {},
	".flac": {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
}

// Root returns the directory scanned for downloaded books, one subdirectory
// per book id.
func Root() string {
	if path := viper.GetString(key.LibraryPath); path != "" {
		return path
	}
	return where.Downloads()
}

// Tracks returns the local tracks of a book in filename order. Durations are
// unknown until the audio engine reports them. Any failure, including a book
// that was simply never downloaded, yields an empty list.
func Tracks(bookID string) []book.Track {
	dir := filepath.Join(Root(), bookID)

	entries, err := filesystem.API().ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := audioExtensions[ext]; ok {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	tracks := make([]book.Track, 0, len(names))
	for i, name := range names {
		tracks = append(tracks, book.Track{
			Index:    i,
			Path:     filepath.Join(dir, name),
			MimeType: mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
			Duration: book.UnknownDuration(),
			Local:    true,
		})
	}
	return tracks
}

// Has reports whether any local tracks exist for a book.
func Has(bookID string) bool {
	return len(Tracks(bookID)) > 0
}
