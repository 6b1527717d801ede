package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/feedcurator/internal/logger"
)

type fakeGen struct {
	prompts []string
	reply   string
	err     error
}

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestParseVerdict(t *testing.T) {
	assert.Equal(t, Yes, ParseVerdict("Yes"))
	assert.Equal(t, Yes, ParseVerdict("  yes\n"))
	assert.Equal(t, Yes, ParseVerdict("YES"))
	assert.Equal(t, No, ParseVerdict("No"))
	assert.Equal(t, No, ParseVerdict("Yes."))
	assert.Equal(t, No, ParseVerdict("maybe"))
	assert.Equal(t, No, ParseVerdict(""))
}

func TestRelevanceTruncatesText(t *testing.T) {
	gen := &fakeGen{reply: "yes"}
	r := NewRelevance(gen, "Is this tech? <<{article_text}>>", logger.Discard())

	text := strings.Repeat("ж", relevanceLimit+500)
	assert.Equal(t, Yes, r.IsRelevant(context.Background(), text))

	require.Len(t, gen.prompts, 1)
	want := "Is this tech? <<" + strings.Repeat("ж", relevanceLimit) + ">>"
	assert.Equal(t, want, gen.prompts[0])
}

func TestRelevanceServiceFailureIsUnknown(t *testing.T) {
	r := NewRelevance(&fakeGen{err: errors.New("down")}, "{article_text}", logger.Discard())
	assert.Equal(t, Unknown, r.IsRelevant(context.Background(), "text"))
}

func TestNoveltyWithoutHistorySkipsCall(t *testing.T) {
	gen := &fakeGen{reply: "Yes"}
	n := NewNovelty(gen, logger.Discard())
	assert.Equal(t, No, n.IsDuplicateTopic(context.Background(), "title", nil))
	assert.Empty(t, gen.prompts)
}

func TestNoveltyListsTitles(t *testing.T) {
	gen := &fakeGen{reply: "No"}
	n := NewNovelty(gen, logger.Discard())

	recent := make([]string, 40)
	for i := range recent {
		recent[i] = "t" + string(rune('A'+i%26))
	}
	assert.Equal(t, No, n.IsDuplicateTopic(context.Background(), "X launches Y", recent))

	require.Len(t, gen.prompts, 1)
	p := gen.prompts[0]
	assert.Equal(t, MaxRecentTitles, strings.Count(p, "\n- "))
	assert.Contains(t, p, "New title: X launches Y")
}

func TestNoveltyServiceFailureIsUnknown(t *testing.T) {
	n := NewNovelty(&fakeGen{err: errors.New("down")}, logger.Discard())
	assert.Equal(t, Unknown, n.IsDuplicateTopic(context.Background(), "x", []string{"y"}))
}

func TestSummarize(t *testing.T) {
	gen := &fakeGen{reply: "  <b>Post</b>  "}
	s := NewSummarizer(gen, "Summarize {article_text} see {article_link}")

	got, err := s.Summarize(context.Background(), "body", "https://a/1")
	require.NoError(t, err)
	assert.Equal(t, "<b>Post</b>", got)
	assert.Equal(t, "Summarize body see https://a/1", gen.prompts[0])
}

func TestSummarizeEmpty(t *testing.T) {
	s := NewSummarizer(&fakeGen{reply: "   "}, "{article_text}")
	_, err := s.Summarize(context.Background(), "body", "l")
	assert.ErrorIs(t, err, ErrEmptySummary)

	gen := &fakeGen{reply: "x"}
	s = NewSummarizer(gen, "{article_text}")
	_, err = s.Summarize(context.Background(), " ", "l")
	assert.ErrorIs(t, err, ErrEmptySummary)
	assert.Empty(t, gen.prompts)
}

func TestSummarizeServiceError(t *testing.T) {
	s := NewSummarizer(&fakeGen{err: errors.New("down")}, "{article_text}")
	_, err := s.Summarize(context.Background(), "body", "l")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptySummary)
}

func TestSummarizeStripsDisclaimers(t *testing.T) {
	gen := &fakeGen{reply: "```html\n<b>X launches Y</b> (Note: this is a machine summary) today.\nNote: verify with the source.\n```"}
	s := NewSummarizer(gen, "{article_text}")

	got, err := s.Summarize(context.Background(), "body", "l")
	require.NoError(t, err)
	assert.Equal(t, "<b>X launches Y</b> today.", got)
}

func TestSummarizeOnlyDisclaimerIsEmpty(t *testing.T) {
	s := NewSummarizer(&fakeGen{reply: "Note: I cannot summarize this."}, "{article_text}")
	_, err := s.Summarize(context.Background(), "body", "l")
	assert.ErrorIs(t, err, ErrEmptySummary)
}
