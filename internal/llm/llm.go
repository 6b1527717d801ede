// Package llm talks to the judgment service used for classification and summaries.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/deusflow/feedcurator/internal/ratelimit"
)

// DefaultTimeout bounds a single judgment call.
const DefaultTimeout = 60 * time.Second

// Generator sends one prompt and returns the model's text reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Limited applies the shared request budget and a per-call timeout to a Generator.
type Limited struct {
	next    Generator
	budget  *ratelimit.Budget
	timeout time.Duration
}

// NewLimited wraps next. A nil budget means no cap or pacing.
func NewLimited(next Generator, budget *ratelimit.Budget, timeout time.Duration) *Limited {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Limited{next: next, budget: budget, timeout: timeout}
}

func (l *Limited) Generate(ctx context.Context, prompt string) (string, error) {
	if l.budget != nil {
		if err := l.budget.Acquire(ctx); err != nil {
			return "", err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	reply, err := l.next.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}
	return reply, nil
}
