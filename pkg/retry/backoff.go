// Package retry computes bounded exponential backoff schedules and runs retry loops.
package retry

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	Name        string
	Base        time.Duration
	Max         time.Duration
	MaxJitter   time.Duration
	MaxAttempts int
}

// DefaultLedgerPolicy is the anchoring budget: five attempts, 2s doubling to at most 1m.
var DefaultLedgerPolicy = Policy{
	Name:        "ledger-anchor",
	Base:        2 * time.Second,
	Max:         time.Minute,
	MaxJitter:   500 * time.Millisecond,
	MaxAttempts: 5,
}

// ComputeBackoff returns the delay before retry number attempt (1-based) for key.
// Jitter is derived from the key, so a given job always waits the same schedule.
func ComputeBackoff(policy Policy, key string, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	exp := attempt - 1
	if exp > 30 {
		exp = 30
	}

	delay := policy.Base * time.Duration(int64(1)<<exp)
	if policy.Max > 0 && (delay > policy.Max || delay < 0) {
		delay = policy.Max
	}
	return delay + deterministicJitter(policy, key, attempt)
}

func deterministicJitter(policy Policy, key string, attempt int) time.Duration {
	if policy.MaxJitter <= 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%s:%d", policy.Name, key, attempt)
	sum := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(sum[:8])
	return time.Duration(basis % uint64(policy.MaxJitter)) //nolint:gosec // MaxJitter is positive here
}
