package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/feedcurator/internal/logger"
)

func TestExtractTextDropsNonContent(t *testing.T) {
	raw := `<html><head><title>Page</title><style>.a{}</style><script>var x=1;</script></head>
<body>
  <h1>  Headline  </h1>
  <p>First paragraph.</p>
  <noscript>enable js</noscript>
  <template><p>hidden</p></template>
  <div>

     <span>Second</span> line
  </div>
</body></html>`

	text, err := ExtractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "Page\nHeadline\nFirst paragraph.\nSecond\nline", text)
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "enable js")
}

func TestExtractTextEmptyDocument(t *testing.T) {
	text, err := ExtractText("")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractorTimesOut(t *testing.T) {
	e := &Extractor{Timeout: time.Nanosecond, Logger: logger.Discard()}
	raw := strings.Repeat("<div><p>para</p></div>", 200000)

	start := time.Now()
	text := e.Extract(raw)
	assert.Empty(t, text)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExtractorTimeoutDefault(t *testing.T) {
	tests := []struct {
		name string
		set  time.Duration
		want time.Duration
	}{
		{"unset", 0, 5 * time.Second},
		{"negative", -time.Second, DefaultExtractTimeout},
		{"explicit", 2 * time.Second, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Extractor{Timeout: tt.set}
			assert.Equal(t, tt.want, e.timeout())
		})
	}
}

func TestExtractorReturnsText(t *testing.T) {
	e := &Extractor{Logger: logger.Discard()}
	assert.Equal(t, "hello\nworld", e.Extract("<p>hello</p><p>world</p>"))
}

func TestFetcherReturnsBody(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer srv.Close()

	body, err := NewFetcher(nil, 0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>ok</p>", body)
	assert.Contains(t, gotAgent, "Mozilla")
}

func TestFetcherRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher(nil, time.Second).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
}
