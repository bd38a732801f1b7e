package lockset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockExcludesSamePath(t *testing.T) {
	s := New()
	unlock, err := s.Lock(context.Background(), "projects/a.md")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Lock(ctx, "projects/a.md"); !errors.Is(err, ErrLockTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Lock err = %v, want timeout", err)
	}

	unlock()
	unlock2, err := s.Lock(context.Background(), "projects/a.md")
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	unlock2()
	if s.Held() != 0 {
		t.Errorf("Held = %d, want 0", s.Held())
	}
}

func TestUnrelatedPathsDoNotBlock(t *testing.T) {
	s := New()
	unlock, _ := s.Lock(context.Background(), "projects/a.md")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock2, err := s.Lock(ctx, "projects/b.md")
	if err != nil {
		t.Fatalf("unrelated Lock: %v", err)
	}
	unlock2()
}

func TestTimeoutReleasesPartialAcquisition(t *testing.T) {
	s := New()
	unlockB, _ := s.Lock(context.Background(), "b")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Lock(ctx, "a", "b"); err == nil {
		t.Fatal("expected timeout")
	}

	// "a" must have been released by the failed call.
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	unlockA, err := s.Lock(ctx2, "a")
	if err != nil {
		t.Fatalf("a still held after failed acquisition: %v", err)
	}
	unlockA()
	unlockB()
	if s.Held() != 0 {
		t.Errorf("Held = %d, want 0", s.Held())
	}
}

func TestOpposingOrderDoesNotDeadlock(t *testing.T) {
	s := New()
	var counter int64
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths := []string{"x", "y", "z"}
			if i%2 == 1 {
				paths = []string{"z", "y", "x", "x"}
			}
			unlock, err := s.Lock(context.Background(), paths...)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			if n := atomic.AddInt64(&counter, 1); n != 1 {
				t.Errorf("critical section entered concurrently (%d)", n)
			}
			atomic.AddInt64(&counter, -1)
			unlock()
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock")
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	s := New()
	unlock, _ := s.Lock(context.Background(), "p")
	unlock()
	unlock()
	if s.Held() != 0 {
		t.Errorf("Held = %d, want 0", s.Held())
	}
}
