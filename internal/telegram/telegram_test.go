package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/feedcurator/internal/logger"
)

type fakeSender struct {
	failures int
	sent     []tgbotapi.Chattable
	calls    int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return tgbotapi.Message{}, errors.New("telegram down")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 42}, nil
}

func newTestPublisher(s Sender, channel string, waits *[]time.Duration) *Publisher {
	p := NewPublisher(s, channel, logger.Discard())
	p.SetSleep(func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	})
	return p
}

func TestPublishRetriesThreeTimesWithFixedWait(t *testing.T) {
	var waits []time.Duration
	s := &fakeSender{failures: 10}
	p := newTestPublisher(s, "@news", &waits)

	_, err := p.Publish(context.Background(), "post", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Equal(t, 3, s.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, waits)
}

func TestPublishSucceedsOnThirdAttempt(t *testing.T) {
	var waits []time.Duration
	s := &fakeSender{failures: 2}
	p := newTestPublisher(s, "@news", &waits)

	ref, err := p.Publish(context.Background(), "post", "")
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/news/42", ref)
	assert.Equal(t, 3, s.calls)
	assert.Len(t, waits, 2)
}

func TestPublishPhotoOrText(t *testing.T) {
	var waits []time.Duration

	s := &fakeSender{}
	p := newTestPublisher(s, "-1001234", &waits)
	ref, err := p.Publish(context.Background(), "<b>post</b>", "https://cdn/img.png")
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/c/1234/42", ref)
	require.Len(t, s.sent, 1)
	photo, ok := s.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "<b>post</b>", photo.Caption)
	assert.Equal(t, tgbotapi.ModeHTML, photo.ParseMode)
	assert.Equal(t, int64(-1001234), photo.ChatID)

	s = &fakeSender{}
	p = newTestPublisher(s, "@news", &waits)
	_, err = p.Publish(context.Background(), "post", "")
	require.NoError(t, err)
	msg, ok := s.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "@news", msg.ChannelUsername)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
}

func TestPublishLongCaptionFallsBackToText(t *testing.T) {
	var waits []time.Duration
	s := &fakeSender{}
	p := newTestPublisher(s, "@news", &waits)

	body := strings.Repeat("я", maxCaptionRune+1)
	_, err := p.Publish(context.Background(), body, "https://cdn/img.png")
	require.NoError(t, err)
	msg, ok := s.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, body, msg.Text)
}

func TestPublishInvalidChannel(t *testing.T) {
	var waits []time.Duration
	s := &fakeSender{}
	_, err := newTestPublisher(s, "news", &waits).Publish(context.Background(), "post", "")
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Zero(t, s.calls)
}

func TestPermalink(t *testing.T) {
	assert.Equal(t, "https://t.me/news/7", Permalink("@news", 7))
	assert.Equal(t, "https://t.me/c/1234567/7", Permalink("-1001234567", 7))
	assert.Equal(t, "https://t.me/4567/7", Permalink("-4567", 7))
}

func TestSanitize(t *testing.T) {
	in := `<p>Hello <b>world</b><br><script>alert(1)</script> <a href="https://x.io" onclick="x()">link</a> <a href="javascript:alert(1)">bad</a></p>`
	got := Sanitize(in)
	assert.Contains(t, got, "<b>world</b>")
	assert.Contains(t, got, `<a href="https://x.io"`)
	assert.NotContains(t, got, "<p>")
	assert.NotContains(t, got, "script")
	assert.NotContains(t, got, "onclick")
	assert.NotContains(t, got, "javascript")
}

func TestSanitizeKeepsBlockBreaks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"paragraphs and list",
			"<p>First paragraph.</p><p>Second one &amp; more.</p><ul><li>a</li><li>b</li></ul>",
			"First paragraph.\n\nSecond one &amp; more.\n\n- a\n- b",
		},
		{
			"headings and divs",
			"<h2>Title</h2><div>Body</div><div class=\"x\">Tail</div>",
			"Title\nBody\nTail",
		},
		{
			"blank runs collapse",
			"<p>One</p>\n\n\n<p>Two</p>",
			"One\n\nTwo",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}
