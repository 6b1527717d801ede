package scraper

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultExtractTimeout bounds a single markup-to-text conversion.
const DefaultExtractTimeout = 5 * time.Second

// nonContent lists elements whose text is never part of the article.
const nonContent = "script, style, meta, noscript, template"

// Extractor converts markup to plain text within a hard time limit.
type Extractor struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Extract returns the plain text of raw, or "" when parsing fails or
// takes longer than the timeout. An empty result means "no usable content".
func (e *Extractor) Extract(raw string) string {
	timeout := e.timeout()

	type result struct {
		text string
		err  error
	}
	// buffered so a late parser can still finish after we stop waiting
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		text, err := ExtractText(raw)
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			e.logger().Info("HTML processing error", "error", res.err)
			return ""
		}
		return res.text
	case <-timer.C:
		e.logger().Info("HTML processing took too long, skipping", "timeout", timeout)
		return ""
	}
}

func (e *Extractor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultExtractTimeout
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// ExtractText strips non-content elements, joins every remaining text node
// with a newline, trims each line and drops blank ones.
func ExtractText(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %w", err)
	}
	doc.Find(nonContent).Remove()

	var parts []string
	for _, n := range doc.Nodes {
		collectText(n, &parts)
	}

	joined := strings.Join(parts, "\n")
	lines := strings.Split(joined, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n"), nil
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		*parts = append(*parts, n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
