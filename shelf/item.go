package shelf

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shelfplay-cli/shelfplay/book"
)

// Item is the normalized view of a library item's metadata.
type Item struct {
	ID        string
	MediaType string
	Book      book.Book
	Chapters  []book.Chapter
	// Tracks derived from the item's audio file metadata. They carry indices,
	// durations, and mime types but no playable URLs: playable remote URLs
	// only exist inside an open session.
	Tracks []book.Track
}

// IsAudio reports whether the item can be handed to the audio engine at all.
func (i *Item) IsAudio() bool {
	switch i.MediaType {
	case "", "book", "podcast", "audiobook":
		return true
	default:
		return false
	}
}

// wireItem mirrors the item payload with every field the known server variants use.
type wireItem struct {
	ID        string `json:"id"`
	AltID     string `json:"_id"`
	MediaType string `json:"mediaType"`
	LibraryID string `json:"libraryId"`
	Media     struct {
		Metadata struct {
			Title      string `json:"title"`
			AuthorName string `json:"authorName"`
			Authors    []struct {
				Name string `json:"name"`
			} `json:"authors"`
		} `json:"metadata"`
		CoverPath string `json:"coverPath"`
		Chapters  []struct {
			Title string  `json:"title"`
			Start float64 `json:"start"`
		} `json:"chapters"`
		AudioFiles []struct {
			Index    int     `json:"index"`
			Duration float64 `json:"duration"`
			MimeType string  `json:"mimeType"`
		} `json:"audioFiles"`
	} `json:"media"`
}

// Item fetches and normalizes a library item's metadata.
func (c *Client) Item(ctx context.Context, itemID string) (*Item, error) {
	var wire wireItem
	if err := c.getJSON(ctx, "/api/items/"+url.PathEscape(itemID), &wire); err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", itemID, err)
	}

	id := firstNonEmpty(wire.ID, wire.AltID, itemID)

	author := wire.Media.Metadata.AuthorName
	if author == "" && len(wire.Media.Metadata.Authors) > 0 {
		author = wire.Media.Metadata.Authors[0].Name
	}

	item := &Item{
		ID:        id,
		MediaType: wire.MediaType,
		Book: book.Book{
			ID:       id,
			Title:    wire.Media.Metadata.Title,
			Author:   author,
			CoverURL: c.coverURL(id, wire.Media.CoverPath),
		},
	}

	for _, ch := range wire.Media.Chapters {
		item.Chapters = append(item.Chapters, book.Chapter{
			Title:   ch.Title,
			StartMs: int64(ch.Start * 1000),
		})
	}
	book.SortChapters(item.Chapters)

	for _, af := range wire.Media.AudioFiles {
		item.Tracks = append(item.Tracks, book.Track{
			Index:    af.Index,
			MimeType: af.MimeType,
			Duration: book.DurationFromSeconds(af.Duration),
		})
	}
	book.SortTracks(item.Tracks)

	return item, nil
}

// RemoteTracks returns the server-known track list for an item without opening
// a streaming session. Collaborators that only need track counts or durations
// (download tooling, duration merges) use this to avoid disturbing the active
// local/remote source choice.
func (c *Client) RemoteTracks(ctx context.Context, itemID string) ([]book.Track, error) {
	item, err := c.Item(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return item.Tracks, nil
}

func (c *Client) coverURL(itemID, coverPath string) string {
	if coverPath == "" {
		return ""
	}
	return c.baseURL + "/api/items/" + url.PathEscape(itemID) + "/cover"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
