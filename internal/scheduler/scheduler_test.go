package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/feedcurator/internal/logger"
)

func TestNextHour(t *testing.T) {
	base := time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(time.Hour), NextHour(base))
	assert.Equal(t, base.Add(time.Hour), NextHour(base.Add(59*time.Minute+59*time.Second)))
	assert.Equal(t, base.Add(time.Hour), NextHour(base.Add(time.Nanosecond)))
}

func TestNextHourUsesLocalHour(t *testing.T) {
	for _, zone := range []*time.Location{
		time.FixedZone("IST", 5*3600+30*60),
		time.FixedZone("NPT", 5*3600+45*60),
	} {
		t.Run(zone.String(), func(t *testing.T) {
			now := time.Date(2026, 10, 19, 10, 10, 0, 0, zone)
			want := time.Date(2026, 10, 19, 11, 0, 0, 0, zone)
			assert.True(t, want.Equal(NextHour(now)), "got %s", NextHour(now))
		})
	}
}

// fakeClock advances by the slept duration and cancels after maxSleeps.
type fakeClock struct {
	now       time.Time
	sleeps    []time.Duration
	maxSleeps int
	cancel    context.CancelFunc
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if len(c.sleeps) >= c.maxSleeps {
		c.cancel()
	}
	return ctx.Err()
}

func TestRunAlignsToTopOfHour(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{now: time.Date(2026, 10, 19, 13, 20, 0, 0, time.UTC), maxSleeps: 3, cancel: cancel}

	var cycleTimes []time.Time
	evictions := 0
	s := &Scheduler{
		Cycle: func(context.Context) error {
			cycleTimes = append(cycleTimes, clock.now)
			clock.now = clock.now.Add(7 * time.Minute)
			return nil
		},
		Evict: func(context.Context) (int64, error) {
			evictions++
			return 0, nil
		},
		Now:    clock.Now,
		Sleep:  clock.Sleep,
		Logger: logger.Discard(),
	}

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []time.Duration{40 * time.Minute, 53 * time.Minute, 53 * time.Minute}, clock.sleeps)
	require.Len(t, cycleTimes, 2)
	assert.Equal(t, time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC), cycleTimes[0])
	assert.Equal(t, time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC), cycleTimes[1])
	assert.Equal(t, 2, evictions)
}

func TestRunOnStartAndPanicSurvival(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{now: time.Date(2026, 10, 19, 13, 20, 0, 0, time.UTC), maxSleeps: 2, cancel: cancel}

	runs := 0
	var reported []error
	s := &Scheduler{
		Cycle: func(context.Context) error {
			runs++
			if runs == 1 {
				panic("feed exploded")
			}
			return errors.New("second cycle failed")
		},
		Evict:        func(context.Context) (int64, error) { return 0, errors.New("db locked") },
		RunOnStart:   true,
		Now:          clock.Now,
		Sleep:        clock.Sleep,
		OnCycleError: func(err error) { reported = append(reported, err) },
		Logger:       logger.Discard(),
	}

	_ = s.Run(ctx)
	assert.Equal(t, 2, runs)
	assert.Len(t, reported, 4)
	assert.Contains(t, reported[0].Error(), "feed exploded")
	assert.Equal(t, 40*time.Minute, clock.sleeps[0])
}
