package cache

import "time"

// Expiring pairs a value with a wall-clock deadline. Expiry is evaluated
// lazily by callers; nothing runs in the background.
type Expiring[T any] struct {
	Value     T
	ExpiresAt time.Time
}

// NewExpiring returns v valid for ttl starting at now.
func NewExpiring[T any](v T, ttl time.Duration, now time.Time) Expiring[T] {
	return Expiring[T]{Value: v, ExpiresAt: now.Add(ttl)}
}

// ExpiresAt wraps v with an absolute deadline.
func ExpiresAt[T any](v T, deadline time.Time) Expiring[T] {
	return Expiring[T]{Value: v, ExpiresAt: deadline}
}

// Alive is true while now is strictly before the deadline.
func (e Expiring[T]) Alive(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Get returns the value and true if it has not expired.
func (e Expiring[T]) Get(now time.Time) (T, bool) {
	if !e.Alive(now) {
		var zero T
		return zero, false
	}
	return e.Value, true
}
