// Package media finds and validates the lead image of an article page.
package media

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMinWidth  = 300
	DefaultMinHeight = 300
	DefaultTimeout   = 5 * time.Second

	// DefaultParseTimeout bounds the metadata lookup in the page markup.
	DefaultParseTimeout = 5 * time.Second
)

// metaKeys are checked in order; the first absolute http(s) URL wins.
var metaKeys = []string{"og:image", "og:image:url", "og:image:secure_url", "twitter:image"}

// OGImageURL returns the page's declared preview image, or "".
func OGImageURL(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}

	found := make(map[string]string, len(metaKeys))
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("property")
		if !ok || key == "" {
			key, _ = s.Attr("name")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		content, _ := s.Attr("content")
		content = strings.TrimSpace(content)
		if key == "" || content == "" {
			return
		}
		if _, seen := found[key]; !seen {
			found[key] = content
		}
	})

	for _, k := range metaKeys {
		if v, ok := found[k]; ok && isAbsoluteHTTP(v) {
			return v
		}
	}
	return ""
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// FindOGImage runs OGImageURL with a hard time limit. A timeout or panic
// yields "".
func FindOGImage(raw string, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultParseTimeout
	}
	// buffered so a late parser can still finish after we stop waiting
	done := make(chan string, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- ""
			}
		}()
		done <- OGImageURL(raw)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case u := <-done:
		return u
	case <-timer.C:
		return ""
	}
}

// Resolver picks an image for an article. Every failure degrades to "no image".
type Resolver struct {
	Client    *http.Client
	MinWidth  int
	MinHeight int
	Timeout   time.Duration

	// ParseTimeout bounds the markup lookup; zero means DefaultParseTimeout.
	ParseTimeout time.Duration

	Logger *slog.Logger
}

// NewResolver returns a Resolver with the default size floor and timeout.
func NewResolver(log *slog.Logger) *Resolver {
	return &Resolver{
		Client:       &http.Client{},
		MinWidth:     DefaultMinWidth,
		MinHeight:    DefaultMinHeight,
		Timeout:      DefaultTimeout,
		ParseTimeout: DefaultParseTimeout,
		Logger:       log,
	}
}

// Resolve returns the validated image URL for the page markup, or "".
func (r *Resolver) Resolve(ctx context.Context, raw string) string {
	candidate := FindOGImage(raw, r.ParseTimeout)
	if candidate == "" {
		return ""
	}
	if err := r.Validate(ctx, candidate); err != nil {
		r.logger().Info("image rejected", "url", candidate, "reason", err)
		return ""
	}
	return candidate
}

// Validate downloads the image header and checks type and dimensions.
func (r *Resolver) Validate(ctx context.Context, imageURL string) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("content type %q", ct)
	}

	cfg, _, err := image.DecodeConfig(resp.Body)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if cfg.Width < r.minWidth() || cfg.Height < r.minHeight() {
		return fmt.Errorf("too small: %dx%d", cfg.Width, cfg.Height)
	}
	return nil
}

func (r *Resolver) minWidth() int {
	if r.MinWidth > 0 {
		return r.MinWidth
	}
	return DefaultMinWidth
}

func (r *Resolver) minHeight() int {
	if r.MinHeight > 0 {
		return r.MinHeight
	}
	return DefaultMinHeight
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
