package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"
)

// Item is one episode descriptor extracted from the podcast feed.
type Item struct {
	Title         string
	Link          string
	Description   string
	GUID          string
	Duration      string
	EpisodeNumber string
	AudioURL      string
	PublishedAt   time.Time
}

// Parser fetches and parses the podcast RSS feed into episode descriptors.
type Parser struct {
	feedURL    string
	feedParser *gofeed.Parser
}

func NewParser(feedURL string) *Parser {
	return &Parser{
		feedURL:    feedURL,
		feedParser: gofeed.NewParser(),
	}
}

// Fetch returns the feed's episodes, newest first. Items without a title,
// publish date or audio enclosure are skipped.
func (p *Parser) Fetch(ctx context.Context) ([]Item, error) {
	feed, err := p.feedParser.ParseURLWithContext(p.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", p.feedURL, err)
	}
	return itemsFromFeed(feed), nil
}

// Parse reads a feed document from r. Used by tests and one-shot tooling.
func (p *Parser) Parse(r io.Reader) ([]Item, error) {
	feed, err := p.feedParser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return itemsFromFeed(feed), nil
}

func itemsFromFeed(feed *gofeed.Feed) []Item {
	items := make([]Item, 0, len(feed.Items))
	for _, raw := range feed.Items {
		item := Item{
			Title:       raw.Title,
			Link:        raw.Link,
			Description: raw.Description,
			GUID:        raw.GUID,
		}

		if raw.PublishedParsed != nil {
			item.PublishedAt = *raw.PublishedParsed
		}

		for _, enc := range raw.Enclosures {
			if enc.Type == "audio/mpeg" || enc.Type == "audio/mp3" {
				item.AudioURL = enc.URL
				break
			}
		}

		if raw.ITunesExt != nil {
			item.Duration = raw.ITunesExt.Duration
			item.EpisodeNumber = raw.ITunesExt.Episode
		}

		if item.Title == "" || item.AudioURL == "" || item.PublishedAt.IsZero() {
			slog.Debug("skipping feed item with missing fields", "title", raw.Title, "link", raw.Link)
			continue
		}

		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	return items
}
