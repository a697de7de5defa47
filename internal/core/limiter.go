package core

// limiter.go implements concurrency control for import batches.
//
// A semaphore caps the number of batches running at once; callers wait up
// to maxWait for a slot before failing with ErrTooManyImports. On top of
// that, at most one batch per entity runs at a time: a second batch for a
// busy entity fails immediately with ErrBatchInProgress.
//
// WaitForDrain blocks until all active batches complete, for graceful
// shutdown of the server.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTooManyImports is returned when all slots are occupied and the wait
	// timeout expires. Clients should retry after a short delay.
	ErrTooManyImports = errors.New("too many imports in progress, please try again later")

	// ErrBatchInProgress is returned when a batch for the same entity is
	// already running.
	ErrBatchInProgress = errors.New("import already in progress for this entity")
)

// DefaultMaxConcurrentImports is the default limit for parallel batches.
const DefaultMaxConcurrentImports = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// BatchLimiter controls concurrent batch processing.
type BatchLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active map[string]time.Time // entity -> start of its running batch
}

// NewBatchLimiter creates a limiter that allows at most maxConcurrent
// simultaneous batches.
func NewBatchLimiter(maxConcurrent int, maxWait time.Duration) *BatchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &BatchLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		active:    make(map[string]time.Time),
	}
}

// Acquire reserves the entity and a processing slot.
// The caller MUST call the returned release func when the batch completes.
func (l *BatchLimiter) Acquire(ctx context.Context, entity string) (func(), error) {
	l.mu.Lock()
	if _, busy := l.active[entity]; busy {
		l.mu.Unlock()
		return nil, ErrBatchInProgress
	}
	l.active[entity] = time.Now()
	l.mu.Unlock()

	if err := l.waitSlot(ctx); err != nil {
		l.mu.Lock()
		delete(l.active, entity)
		l.mu.Unlock()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, entity)
			l.mu.Unlock()
			<-l.semaphore
		})
	}, nil
}

func (l *BatchLimiter) waitSlot(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		return nil
	case <-waitCtx.Done():
		// Original context cancelled vs timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
}

// ActiveCount returns the number of entities with a batch reserved.
func (l *BatchLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.active)
}

// MaxConcurrent returns the maximum allowed concurrent batches.
func (l *BatchLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free processing slots.
func (l *BatchLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active batches complete or ctx is cancelled.
func (l *BatchLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// BatchLimiterStatus is a snapshot of the limiter's state.
type BatchLimiterStatus struct {
	Active        int      `json:"active"`
	Available     int      `json:"available"`
	MaxConcurrent int      `json:"max_concurrent"`
	Entities      []string `json:"entities"`
}

// Status returns the current limiter state for monitoring.
func (l *BatchLimiter) Status() BatchLimiterStatus {
	l.mu.RLock()
	entities := make([]string, 0, len(l.active))
	for e := range l.active {
		entities = append(entities, e)
	}
	l.mu.RUnlock()
	sort.Strings(entities)

	return BatchLimiterStatus{
		Active:        len(entities),
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
		Entities:      entities,
	}
}
