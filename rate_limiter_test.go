package sellergo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 0)

	if rl == nil {
		t.Fatal("NewRateLimiter() returned nil")
	}

	if rl.requestsPerSecond != 10 {
		t.Errorf("Expected requestsPerSecond=10, got %d", rl.requestsPerSecond)
	}

	if rl.burst != 10 {
		t.Errorf("Expected burst to default to requestsPerSecond, got %d", rl.burst)
	}
}

func TestRateLimiterFastPath(t *testing.T) {
	rl := NewRateLimiter(3, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait() %d returned error: %v", i+1, err)
		}
	}

	if rl.WindowCount() != 3 {
		t.Errorf("Expected window count=3, got %d", rl.WindowCount())
	}
}

func TestRateLimiterBurstThenQueue(t *testing.T) {
	rl := NewRateLimiter(5, 5)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	var done int64
	for i := 0; i < 7; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rl.Wait(ctx); err != nil {
				t.Errorf("Wait() returned error: %v", err)
			}
			atomic.AddInt64(&done, 1)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if done != 7 {
		t.Fatalf("Expected 7 completed waits, got %d", done)
	}

	// 5 calls fit the first window; the remaining 2 must wait for the next.
	if elapsed < 900*time.Millisecond {
		t.Errorf("Expected the overflow calls to wait for the next window, total elapsed %v", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Expected the overflow calls to finish within the second window, total elapsed %v", elapsed)
	}
}

func TestRateLimiterFIFOOrder(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	ctx := context.Background()

	// Consume the window allowance so subsequent waiters queue.
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() returned error: %v", err)
	}

	const waiters = 4
	order := make([]int, 0, waiters)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			if err := rl.Wait(ctx); err != nil {
				t.Errorf("Wait() returned error: %v", err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}()
		// Serialize arrival so queue positions are deterministic.
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("Expected FIFO service order, got %v", order)
		}
	}
}

func TestRateLimiterNilPassthrough(t *testing.T) {
	var rl *RateLimiter

	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("Expected nil limiter to pass through, got %v", err)
	}

	if rl.QueueDepth() != 0 {
		t.Errorf("Expected queue depth 0 on nil limiter, got %d", rl.QueueDepth())
	}
}

func TestRateLimiterContextCanceledWhileQueued(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- rl.Wait(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after cancellation")
	}
}

func TestRateLimiterCanceledWaiterDoesNotConsumeSlot(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	ctx := context.Background()

	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() returned error: %v", err)
	}

	canceled, cancel := context.WithCancel(context.Background())
	go func() {
		_ = rl.Wait(canceled)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	// The live waiter behind the canceled one still gets exactly one slot in
	// the next window.
	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() returned error: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Expected the live waiter to be served in the next window, waited %v", time.Since(start))
	}
}

func TestRateLimiterSchedule(t *testing.T) {
	rl := NewRateLimiter(5, 5)
	ran := false

	err := rl.Schedule(context.Background(), func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule() returned error: %v", err)
	}
	if !ran {
		t.Error("Expected task to run")
	}
}

func TestLimiterRegistry(t *testing.T) {
	fallback := NewRateLimiter(10, 10)
	dedicated := NewRateLimiter(2, 2)

	reg := NewLimiterRegistry(fallback)
	reg.Register("getOrders", dedicated)

	if got := reg.For("getOrders"); got != dedicated {
		t.Error("Expected the dedicated limiter for a registered operation")
	}
	if got := reg.For("listCatalogItems"); got != fallback {
		t.Error("Expected the fallback limiter for an unregistered operation")
	}
}

func TestLimiterRegistryNilFallback(t *testing.T) {
	reg := NewLimiterRegistry(nil)

	if got := reg.For("anything"); got != nil {
		t.Error("Expected nil limiter when no fallback is configured")
	}

	var nilReg *LimiterRegistry
	if got := nilReg.For("anything"); got != nil {
		t.Error("Expected nil limiter from nil registry")
	}
}
