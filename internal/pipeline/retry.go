package pipeline

import "sync"

// RetryLedger tracks consecutive delivery failures per message identifier and
// enforces the bounded-retry policy: a message may be redelivered until it has
// failed maxDeliveries times in total, then it is discarded. Entries are
// removed when a message is discarded or finally succeeds, so the ledger only
// holds identifiers currently in the retry window.
type RetryLedger struct {
	mu            sync.Mutex
	maxDeliveries int
	failures      map[string]int
}

// NewRetryLedger creates a ledger allowing maxDeliveries total delivery
// attempts per message. Values below 1 are treated as 1 (no retry at all).
func NewRetryLedger(maxDeliveries int) *RetryLedger {
	if maxDeliveries < 1 {
		maxDeliveries = 1
	}
	return &RetryLedger{
		maxDeliveries: maxDeliveries,
		failures:      make(map[string]int),
	}
}

// Fail records a failed delivery attempt for id and reports whether the
// message should now be discarded (true) or negatively acknowledged for one
// more redelivery (false).
func (l *RetryLedger) Fail(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures[id]++
	if l.failures[id] >= l.maxDeliveries {
		delete(l.failures, id)
		return true
	}
	return false
}

// Resolve clears any failure history for id after a successful delivery.
func (l *RetryLedger) Resolve(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, id)
}

// Pending returns the number of message identifiers currently in the retry
// window. For observability only.
func (l *RetryLedger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}
