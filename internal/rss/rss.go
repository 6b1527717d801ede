// Package rss reads feed entries.
package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry is one item of a feed. Link identifies the article.
type Entry struct {
	Link  string
	Title string
}

// Source downloads and parses feeds.
type Source struct {
	parser *gofeed.Parser
	log    *slog.Logger
}

func NewSource(timeout time.Duration, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	parser := gofeed.NewParser()
	if timeout > 0 {
		parser.Client = &http.Client{Timeout: timeout}
	}
	parser.UserAgent = "feedcurator/1.0"
	return &Source{parser: parser, log: log}
}

// Entries returns the feed's items in feed order. Items without a link are dropped.
func (s *Source) Entries(ctx context.Context, url string) ([]Entry, error) {
	feed, err := s.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("error parsing RSS %s: %w", url, err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		entries = append(entries, Entry{Link: link, Title: strings.TrimSpace(item.Title)})
	}
	s.log.Info("loaded feed", "url", url, "entries", len(entries))
	return entries, nil
}
