package generation

import "time"

// Clock supplies the current time. Tests inject a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }

// Budget tracks one fixed deadline for a single request and derives the
// timeout of every outbound call from it. A Budget belongs to exactly one
// request and is not safe for concurrent use.
type Budget struct {
	clock        Clock
	deadline     time.Time
	safetyMargin time.Duration

	observed bool
	last     time.Duration
	expired  bool
}

// NewBudget creates a budget that ends at deadline. safetyMargin is held back
// from every allocation so the caller can still classify and respond.
func NewBudget(deadline time.Time, safetyMargin time.Duration, clock Clock) *Budget {
	if clock == nil {
		clock = SystemClock()
	}
	if safetyMargin < 0 {
		safetyMargin = 0
	}
	return &Budget{
		clock:        clock,
		deadline:     deadline,
		safetyMargin: safetyMargin,
	}
}

// Deadline returns the fixed deadline
func (b *Budget) Deadline() time.Time {
	return b.deadline
}

// Remaining returns the time left until the deadline, never negative. The
// value never increases between calls even if the clock steps backwards.
func (b *Budget) Remaining() time.Duration {
	if b.expired {
		return 0
	}

	remaining := b.deadline.Sub(b.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	if b.observed && remaining > b.last {
		remaining = b.last
	}

	b.observed = true
	b.last = remaining
	if remaining == 0 {
		b.expired = true
	}
	return remaining
}

// Expired reports whether the deadline has passed. Once true it stays true.
func (b *Budget) Expired() bool {
	return b.Remaining() == 0
}

// Allocate returns clamp(Remaining() - safetyMargin, floor, ceiling), never
// more than Remaining(). The floor wins over the ceiling but not over the
// deadline itself.
func (b *Budget) Allocate(ceiling, floor time.Duration) time.Duration {
	remaining := b.Remaining()
	timeout := remaining - b.safetyMargin
	if ceiling > 0 && timeout > ceiling {
		timeout = ceiling
	}
	if timeout < floor {
		timeout = floor
	}
	if timeout > remaining {
		timeout = remaining
	}
	return timeout
}
