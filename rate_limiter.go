package sellergo

import (
	"context"
	"sync"
	"time"
)

// rateLimitWindow is the fixed accounting window.
const rateLimitWindow = time.Second

// RateLimiter gates calls to a configured number per one-second window.
// Calls beyond the window allowance join a strict-FIFO wait queue drained by
// a single drain goroutine; waiters receive their slot over a per-waiter
// channel, so service order is structural rather than lock-timing dependent.
type RateLimiter struct {
	requestsPerSecond int
	burst             int
	now               func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	count       int
	queue       []*rateLimitWaiter
	draining    bool
}

type rateLimitWaiter struct {
	ready chan struct{}
	ctx   context.Context
}

// NewRateLimiter creates a limiter allowing burst calls per one-second
// window. Burst defaults to requestsPerSecond when zero or negative.
func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	if burst <= 0 {
		burst = requestsPerSecond
	}
	return &RateLimiter{
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		now:               time.Now,
		windowStart:       time.Now(),
	}
}

// Wait blocks until the caller may send, or until ctx is done. A nil limiter
// is a passthrough with no ordering or delay guarantees. Queued callers are
// served strictly in arrival order.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}

	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.windowStart) >= rateLimitWindow {
		rl.windowStart = now
		rl.count = 0
	}
	// Fast path only when nobody is queued, otherwise this caller would
	// overtake earlier arrivals.
	if len(rl.queue) == 0 && rl.count < rl.burst {
		rl.count++
		rl.mu.Unlock()
		return nil
	}

	w := &rateLimitWaiter{ready: make(chan struct{}), ctx: ctx}
	rl.queue = append(rl.queue, w)
	if !rl.draining {
		rl.draining = true
		go rl.drain()
	}
	rl.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule acquires a slot and then runs task.
func (rl *RateLimiter) Schedule(ctx context.Context, task func() error) error {
	if err := rl.Wait(ctx); err != nil {
		return err
	}
	return task()
}

// drain releases queued waiters in FIFO order, sleeping out the remainder of
// the window whenever the allowance is spent. Exactly one drain goroutine
// runs per limiter; it exits once the queue empties.
func (rl *RateLimiter) drain() {
	for {
		rl.mu.Lock()
		if len(rl.queue) == 0 {
			rl.draining = false
			rl.mu.Unlock()
			return
		}

		now := rl.now()
		elapsed := now.Sub(rl.windowStart)
		if elapsed >= rateLimitWindow {
			rl.windowStart = now
			rl.count = 0
			elapsed = 0
		}
		if rl.count >= rl.burst {
			wait := rateLimitWindow - elapsed
			rl.mu.Unlock()
			time.Sleep(wait)
			continue
		}

		w := rl.queue[0]
		rl.queue = rl.queue[1:]
		if w.ctx.Err() != nil {
			// The waiter gave up; its slot is not consumed.
			rl.mu.Unlock()
			continue
		}
		rl.count++
		close(w.ready)
		rl.mu.Unlock()
	}
}

// QueueDepth returns the number of callers currently waiting for a slot.
func (rl *RateLimiter) QueueDepth() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.queue)
}

// WindowCount returns the number of slots consumed in the current window.
func (rl *RateLimiter) WindowCount() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.count
}

// LimiterRegistry routes calls to per-operation limiters with a shared
// fallback, mirroring upstream APIs that enforce separate quotas per
// endpoint family.
type LimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*RateLimiter
	fallback *RateLimiter
}

// NewLimiterRegistry creates a registry with the given fallback limiter.
// A nil fallback leaves unregistered operations unlimited.
func NewLimiterRegistry(fallback *RateLimiter) *LimiterRegistry {
	return &LimiterRegistry{
		limiters: make(map[string]*RateLimiter),
		fallback: fallback,
	}
}

// Register adds a dedicated limiter for the given operation key.
func (r *LimiterRegistry) Register(operation string, limiter *RateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[operation] = limiter
}

// For returns the limiter serving the given operation key, falling back to
// the default limiter when no dedicated one is registered.
func (r *LimiterRegistry) For(operation string) *RateLimiter {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	limiter, ok := r.limiters[operation]
	r.mu.RUnlock()
	if ok {
		return limiter
	}
	return r.fallback
}
