package shelf

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/key"
	"github.com/spf13/viper"
)

// Search queries the server's library search and returns matching books.
// Results are re-ranked client-side with fuzzy matching against the query,
// since server relevance ordering varies between implementations.
func (c *Client) Search(ctx context.Context, query string) ([]book.Book, error) {
	var wire struct {
		Results []struct {
			ID    string `json:"id"`
			AltID string `json:"_id"`
			Title string `json:"title"`
			Name  string `json:"name"`
			Media struct {
				Metadata struct {
					Title      string `json:"title"`
					AuthorName string `json:"authorName"`
				} `json:"metadata"`
			} `json:"media"`
		} `json:"results"`
	}

	if err := c.getJSON(ctx, "/api/search?q="+url.QueryEscape(query), &wire); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var books []book.Book
	for _, r := range wire.Results {
		title := firstNonEmpty(r.Media.Metadata.Title, r.Title, r.Name)
		id := firstNonEmpty(r.ID, r.AltID)
		if id == "" || title == "" {
			continue
		}
		books = append(books, book.Book{
			ID:     id,
			Title:  title,
			Author: r.Media.Metadata.AuthorName,
		})
	}

	if viper.GetBool(key.SearchFuzzy) {
		titles := make([]string, len(books))
		for i, b := range books {
			titles[i] = b.Title
		}

		ranks := fuzzy.RankFindNormalizedFold(query, titles)
		sort.Sort(ranks)
		if len(ranks) > 0 {
			ranked := make([]book.Book, 0, len(ranks))
			for _, r := range ranks {
				ranked = append(ranked, books[r.OriginalIndex])
			}
			books = ranked
		}
	}

	if limit := viper.GetInt(key.SearchLimit); limit > 0 && len(books) > limit {
		books = books[:limit]
	}

	return books, nil
}
