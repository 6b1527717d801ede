package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/feedcurator/internal/logger"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Tech</title>
<item><title> X launches Y </title><link>https://a/1</link></item>
<item><title>No link here</title></item>
<item><title>Second</title><link>https://a/2</link></item>
</channel></rss>`

func TestEntriesKeepFeedOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	entries, err := NewSource(time.Second, logger.Discard()).Entries(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Link: "https://a/1", Title: "X launches Y"},
		{Link: "https://a/2", Title: "Second"},
	}, entries)
}

func TestEntriesFeedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSource(time.Second, logger.Discard()).Entries(context.Background(), srv.URL)
	require.Error(t, err)
}
