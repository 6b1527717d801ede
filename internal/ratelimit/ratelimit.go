// Package ratelimit caps and paces calls to the judgment service.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrBudgetExceeded is returned once the daily call cap is used up.
var ErrBudgetExceeded = errors.New("daily LLM request budget exceeded")

const resetPeriod = 24 * time.Hour

// Budget manages a daily call cap and a per-minute pace shared by all LLM calls.
type Budget struct {
	mu        sync.Mutex
	used      int
	refused   int
	maxDaily  int // 0 = unlimited
	resetTime time.Time

	limiter *rate.Limiter // nil = unpaced
	now     func() time.Time
	log     *slog.Logger
}

// NewBudget creates a budget. maxDaily <= 0 disables the cap, perMinute <= 0 disables pacing.
func NewBudget(maxDaily, perMinute int, log *slog.Logger) *Budget {
	if log == nil {
		log = slog.Default()
	}
	b := &Budget{
		maxDaily: maxDaily,
		now:      time.Now,
		log:      log,
	}
	if perMinute > 0 {
		b.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	b.resetTime = b.now().Add(resetPeriod)
	return b
}

// SetClock replaces the time source; used by tests.
func (b *Budget) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	b.resetTime = now().Add(resetPeriod)
}

// Acquire waits for the pacing limiter and then reserves one call from the daily cap.
func (b *Budget) Acquire(ctx context.Context) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()

	if b.maxDaily > 0 && b.used >= b.maxDaily {
		b.refused++
		b.log.Warn("LLM request budget reached", "used", b.used, "limit", b.maxDaily)
		return ErrBudgetExceeded
	}
	b.used++
	b.log.Debug("LLM usage", "used", b.used, "limit", b.maxDaily)
	return nil
}

// Stats is a point-in-time view of the budget.
type Stats struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Refused   int       `json:"refused"`
	ResetTime time.Time `json:"reset_time"`
}

// GetStats returns current statistics
func (b *Budget) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Used: b.used, Limit: b.maxDaily, Refused: b.refused, ResetTime: b.resetTime}
}

// checkReset resets counters if reset time has passed
func (b *Budget) checkReset() {
	now := b.now()
	if now.After(b.resetTime) {
		b.log.Info("resetting LLM request budget", "used", b.used, "refused", b.refused)
		b.used = 0
		b.refused = 0
		b.resetTime = now.Add(resetPeriod)
	}
}
