package resilience

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oarkflow/log"
)

var ErrBreakerOpen = errors.New("circuit breaker is open")

// Breaker stops calls to a failing sink after threshold consecutive
// failures and lets one through again once resetTimeout has passed.
type Breaker struct {
	threshold    int
	failures     int
	openUntil    time.Time
	resetTimeout time.Duration
	now          func() time.Time
	mu           sync.Mutex
}

func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{threshold: threshold, resetTimeout: resetTimeout, now: time.Now}
}

func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return true
	}
	if b.now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return true
	}
	return false
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold && b.openUntil.IsZero() {
		b.openUntil = b.now().Add(b.resetTimeout)
		log.Printf("circuit breaker opened for %v after %d failures", b.resetTimeout, b.failures)
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}

// Retry runs fn up to attempts times with jittered exponential backoff.
// A nil breaker retries without short-circuiting.
func Retry(ctx context.Context, attempts int, delay time.Duration, b *Breaker, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if b != nil && !b.Allow() {
			if err != nil {
				return errors.Join(ErrBreakerOpen, err)
			}
			return ErrBreakerOpen
		}
		err = fn()
		if err == nil {
			if b != nil {
				b.RecordSuccess()
			}
			return nil
		}
		if b != nil {
			b.RecordFailure()
		}
		log.Printf("retry attempt %d/%d failed: %v", i+1, attempts, err)
		if i == attempts-1 {
			break
		}
		jitter := 0.8 + rand.Float64()*0.4
		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), err)
		case <-time.After(time.Duration(float64(delay) * jitter)):
		}
		delay *= 2
	}
	return err
}
