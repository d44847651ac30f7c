// Package limiter throttles transaction submission per sender with a
// sliding window. It is independent of chain state and nonce order: it
// bounds the rate of submission, not the sequencing.
package limiter

import (
	"errors"
	"sync"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
)

// Defaults for the admission window.
const (
	DefaultLimit  = 60
	DefaultWindow = 60 * time.Second
)

// ErrRateLimitExceeded is returned when a sender submits more transactions
// than the window admits. The client can retry once the window rolls.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Limiter tracks submission timestamps per sender.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[database.AccountID][]time.Time
	now    func() time.Time
}

// New constructs a limiter admitting limit submissions per rolling window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		hits:   make(map[database.AccountID][]time.Time),
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check admits or rejects one submission from the sender. Admission records
// the hit; rejection does not, so a throttled sender doesn't extend its own
// penalty by retrying.
func (l *Limiter) Check(id database.AccountID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	hits := l.hits[id]
	live := hits[:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			live = append(live, hit)
		}
	}

	if len(live) >= l.limit {
		l.hits[id] = live
		return ErrRateLimitExceeded
	}

	l.hits[id] = append(live, now)
	return nil
}

// Purge drops senders whose whole window has expired. Called periodically
// so an idle node doesn't accumulate dead entries.
func (l *Limiter) Purge() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for id, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, id)
		}
	}
}
