package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond},
		func(ctx context.Context) error {
			calls++
			return nil
		})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond},
		func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return fmt.Errorf("transient failure %d", calls)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsExactlyMaxAttempts(t *testing.T) {
	// An operation that always fails is attempted exactly MaxAttempts
	// times, never more.
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond},
		func(ctx context.Context) error {
			calls++
			return boom
		})
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("terminal error should unwrap to the last failure, got %v", err)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
}

func TestDoTransientErrorIsNotExhausted(t *testing.T) {
	err := Do(context.Background(), Config{MaxAttempts: 2, Delay: time.Millisecond},
		func(ctx context.Context) error {
			return errors.New("fails")
		})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected terminal error, got %v", err)
	}

	// A plain transient error must not look terminal.
	if errors.Is(errors.New("fails"), ErrExhausted) {
		t.Error("transient error matched ErrExhausted")
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, Config{MaxAttempts: 5, Delay: time.Minute},
			func(ctx context.Context) error {
				calls++
				return errors.New("fail")
			})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDoConcurrentCountersAreIndependent(t *testing.T) {
	// Concurrent calls carry independent attempt counters.
	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			calls := 0
			_ = Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Millisecond},
				func(ctx context.Context) error {
					calls++
					return errors.New("fail")
				})
			results[i] = calls
		}(i)
	}
	wg.Wait()

	for i, calls := range results {
		if calls != 3 {
			t.Errorf("goroutine %d made %d attempts, want 3", i, calls)
		}
	}
}

func TestDoZeroAttemptsTreatedAsOne(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 0, Delay: 0},
		func(ctx context.Context) error {
			calls++
			return errors.New("fail")
		})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}
