package rendezvous

import (
	"testing"
	"time"

	"github.com/queelius/zeroipc/internal/backoff"
)

func TestLatchCountDownToZero(t *testing.T) {
	mem := newTestMemory(t)
	l, err := NewLatch(mem, "countdown", 3)
	if err != nil {
		t.Fatalf("NewLatch: %v", err)
	}
	if l.TryWait() {
		t.Fatal("TryWait should be false before the count reaches zero")
	}
	l.CountDown(1)
	l.CountDown(1)
	if l.TryWait() {
		t.Fatal("TryWait should still be false with count remaining")
	}
	l.CountDown(1)
	if !l.TryWait() {
		t.Fatal("TryWait should be true once count reaches zero")
	}
	if got := l.Count(); got != 0 {
		t.Fatalf("Count() = %d, want 0", got)
	}
}

func TestLatchCountDownSaturatesAtZero(t *testing.T) {
	mem := newTestMemory(t)
	l, err := NewLatch(mem, "saturate", 2)
	if err != nil {
		t.Fatalf("NewLatch: %v", err)
	}
	l.CountDown(10)
	if got := l.Count(); got != 0 {
		t.Fatalf("Count() = %d, want 0 (saturated, never negative)", got)
	}
	// Further count-downs on an already-zero latch must not reset it.
	l.CountDown(1)
	if got := l.Count(); got != 0 {
		t.Fatalf("Count() after extra CountDown = %d, want 0", got)
	}
}

func TestLatchWaitBlocksThenReleases(t *testing.T) {
	mem := newTestMemory(t)
	l, err := NewLatch(mem, "waiters", 1)
	if err != nil {
		t.Fatalf("NewLatch: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		done <- l.Wait(backoff.NewDeadline(500 * time.Millisecond))
	}()

	time.Sleep(10 * time.Millisecond)
	l.CountDown(1)

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("Wait should succeed once the latch reaches zero")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe the count-down in time")
	}
}

func TestLatchInitialCountIsStable(t *testing.T) {
	mem := newTestMemory(t)
	l, err := NewLatch(mem, "stable", 5)
	if err != nil {
		t.Fatalf("NewLatch: %v", err)
	}
	l.CountDown(3)
	if got := l.InitialCount(); got != 5 {
		t.Fatalf("InitialCount() = %d, want 5 (unaffected by CountDown)", got)
	}
}
