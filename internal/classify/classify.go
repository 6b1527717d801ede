// Package classify asks the judgment service whether an article is on-topic,
// whether it repeats a recent story, and how to summarize it.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/deusflow/feedcurator/internal/llm"
)

// Verdict is a yes/no answer that may also be unknown when the service failed.
type Verdict int

const (
	Unknown Verdict = iota
	Yes
	No
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// ParseVerdict maps a reply to Yes only when it is exactly "yes", ignoring case and
// surrounding whitespace. Anything else is No.
func ParseVerdict(reply string) Verdict {
	if strings.EqualFold(strings.TrimSpace(reply), "yes") {
		return Yes
	}
	return No
}

const (
	// relevanceLimit is how many runes of article text go into the relevance prompt.
	relevanceLimit = 3000
	// MaxRecentTitles caps the titles listed in the novelty prompt.
	MaxRecentTitles = 30

	textPlaceholder = "{article_text}"
	linkPlaceholder = "{article_link}"
)

// ErrEmptySummary is returned when there is nothing to summarize or the reply was blank.
var ErrEmptySummary = errors.New("empty summary")

// Relevance decides whether an article fits the channel.
type Relevance struct {
	gen      llm.Generator
	template string
	log      *slog.Logger
}

func NewRelevance(gen llm.Generator, template string, log *slog.Logger) *Relevance {
	return &Relevance{gen: gen, template: template, log: orDefault(log)}
}

func (r *Relevance) IsRelevant(ctx context.Context, text string) Verdict {
	prompt := strings.ReplaceAll(r.template, textPlaceholder, truncateRunes(text, relevanceLimit))
	reply, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		r.log.Warn("relevance check failed", "error", err)
		return Unknown
	}
	return ParseVerdict(reply)
}

// Novelty decides whether a title repeats a recently published story.
type Novelty struct {
	gen llm.Generator
	log *slog.Logger
}

func NewNovelty(gen llm.Generator, log *slog.Logger) *Novelty {
	return &Novelty{gen: gen, log: orDefault(log)}
}

// IsDuplicateTopic answers Yes when title covers the same story as one of recent.
// With no recent titles the answer is No and the service is not called.
func (n *Novelty) IsDuplicateTopic(ctx context.Context, title string, recent []string) Verdict {
	if len(recent) == 0 {
		return No
	}
	if len(recent) > MaxRecentTitles {
		recent = recent[:MaxRecentTitles]
	}
	reply, err := n.gen.Generate(ctx, noveltyPrompt(title, recent))
	if err != nil {
		n.log.Warn("novelty check failed", "error", err)
		return Unknown
	}
	return ParseVerdict(reply)
}

func noveltyPrompt(title string, recent []string) string {
	var sb strings.Builder
	sb.WriteString("Here are the titles of recently published news:\n")
	for _, t := range recent {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	sb.WriteString("\nIs the following news about the same event as one of the titles above?\n")
	sb.WriteString("New title: ")
	sb.WriteString(title)
	sb.WriteString("\nAnswer with a single word: Yes or No.")
	return sb.String()
}

// Summarizer writes the post for an accepted article.
type Summarizer struct {
	gen      llm.Generator
	template string
}

func NewSummarizer(gen llm.Generator, template string) *Summarizer {
	return &Summarizer{gen: gen, template: template}
}

func (s *Summarizer) Summarize(ctx context.Context, text, link string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptySummary
	}
	prompt := strings.ReplaceAll(s.template, textPlaceholder, text)
	prompt = strings.ReplaceAll(prompt, linkPlaceholder, link)

	reply, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	reply = cleanReply(reply)
	if reply == "" {
		return "", ErrEmptySummary
	}
	return reply, nil
}

var (
	inlineNote = regexp.MustCompile(`(?i)[(\[]\s*note:[^)\]]*[)\]]\s*`)
	codeFence  = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")
)

// cleanReply drops code fences and "Note: ..." disclaimers models like to add.
func cleanReply(reply string) string {
	reply = codeFence.ReplaceAllString(reply, "")
	reply = inlineNote.ReplaceAllString(reply, "")

	lines := strings.Split(reply, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "note:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
