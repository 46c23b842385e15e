package generation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBudget_Remaining(t *testing.T) {
	clock := newFakeClock()
	budget := NewBudget(clock.Now().Add(10*time.Second), 250*time.Millisecond, clock)

	assert.Equal(t, 10*time.Second, budget.Remaining())

	clock.Advance(3 * time.Second)
	assert.Equal(t, 7*time.Second, budget.Remaining())

	// a clock stepping backwards never grows the budget
	clock.Advance(-2 * time.Second)
	assert.Equal(t, 7*time.Second, budget.Remaining())

	clock.Advance(20 * time.Second)
	assert.Equal(t, time.Duration(0), budget.Remaining())
}

func TestBudget_ExpiredIsSticky(t *testing.T) {
	clock := newFakeClock()
	budget := NewBudget(clock.Now().Add(time.Second), 0, clock)

	assert.False(t, budget.Expired())

	clock.Advance(time.Second)
	assert.True(t, budget.Expired())

	clock.Advance(-time.Minute)
	assert.True(t, budget.Expired())
	assert.Equal(t, time.Duration(0), budget.Remaining())
}

func TestBudget_Allocate(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		margin    time.Duration
		ceiling   time.Duration
		floor     time.Duration
		want      time.Duration
	}{
		{"below ceiling", 10 * time.Second, 250 * time.Millisecond, 45 * time.Second, time.Second, 9750 * time.Millisecond},
		{"capped by ceiling", 60 * time.Second, 250 * time.Millisecond, 15 * time.Second, time.Second, 15 * time.Second},
		{"raised to floor", 3 * time.Second, 2 * time.Second, 15 * time.Second, 2 * time.Second, 2 * time.Second},
		{"floor capped by remaining", 500 * time.Millisecond, 250 * time.Millisecond, 15 * time.Second, 2 * time.Second, 500 * time.Millisecond},
		{"floor over ceiling", 30 * time.Second, 0, time.Second, 2 * time.Second, 2 * time.Second},
		{"expired gets nothing", 0, 250 * time.Millisecond, 15 * time.Second, time.Second, 0},
		{"zero ceiling is unbounded", 90 * time.Second, 0, 0, time.Second, 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			budget := NewBudget(clock.Now().Add(tt.remaining), tt.margin, clock)
			assert.Equal(t, tt.want, budget.Allocate(tt.ceiling, tt.floor))
		})
	}
}

func TestBudget_Deadline(t *testing.T) {
	clock := newFakeClock()
	deadline := clock.Now().Add(time.Minute)
	budget := NewBudget(deadline, -time.Second, clock)

	assert.Equal(t, deadline, budget.Deadline())
	assert.Equal(t, time.Minute, budget.Allocate(time.Hour, 0))
}
