package sampler

import (
	"context"

	"golang.org/x/sync/semaphore"
)

var (
	globalCounterLock = NewCounterLock()
)

// CounterLock serializes reads of the host's packet counters. iptables keeps
// one table for the whole host, so every monitor in the process shares
// GlobalCounterLock.
type CounterLock struct {
	sem *semaphore.Weighted
}

func NewCounterLock() *CounterLock {
	return &CounterLock{sem: semaphore.NewWeighted(1)}
}

// GlobalCounterLock is the lock network samplers use unless given their own.
func GlobalCounterLock() *CounterLock {
	return globalCounterLock
}

// Lock blocks until the lock is held or ctx is done.
func (l *CounterLock) Lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

func (l *CounterLock) Unlock() {
	l.sem.Release(1)
}
