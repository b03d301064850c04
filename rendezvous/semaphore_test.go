package rendezvous

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/queelius/zeroipc/internal/backoff"
	"github.com/queelius/zeroipc/memory"
)

func newTestMemory(t *testing.T) *memory.Memory {
	t.Helper()
	name := fmt.Sprintf("/zeroipc-test-rdz-%s-%d", t.Name(), os.Getpid())
	mem, err := memory.Create(name, 8192, 8)
	if err != nil {
		t.Fatalf("memory.Create: %v", err)
	}
	t.Cleanup(func() {
		mem.Close()
		memory.Unlink(name)
	})
	return mem
}

func TestSemaphoreAcquireReleaseRoundTrip(t *testing.T) {
	mem := newTestMemory(t)
	s, err := NewSemaphore(mem, "sem", 2, 2)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	if !s.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if !s.TryAcquire() {
		t.Fatal("second TryAcquire should succeed")
	}
	if s.TryAcquire() {
		t.Fatal("third TryAcquire should fail, count is exhausted")
	}
	if got := s.Count(); got != 0 {
		t.Fatalf("Count() = %d, want 0", got)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := s.Count(); got != 1 {
		t.Fatalf("Count() after Release = %d, want 1", got)
	}
}

func TestSemaphoreReleaseRejectsOverflow(t *testing.T) {
	mem := newTestMemory(t)
	s, err := NewSemaphore(mem, "bounded", 1, 1)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	if err := s.Release(); err == nil {
		t.Fatal("Release should reject exceeding max_count")
	}
}

func TestSemaphoreUnboundedAllowsRepeatedRelease(t *testing.T) {
	mem := newTestMemory(t)
	s, err := NewSemaphore(mem, "unbounded", 0, 0)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Release(); err != nil {
			t.Fatalf("Release %d: %v", i, err)
		}
	}
	if got := s.Count(); got != 5 {
		t.Fatalf("Count() = %d, want 5", got)
	}
}

func TestSemaphoreAcquireBlocksThenSucceedsOnRelease(t *testing.T) {
	mem := newTestMemory(t)
	s, err := NewSemaphore(mem, "blocking", 0, 1)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		done <- s.Acquire(backoff.NewDeadline(500 * time.Millisecond))
	}()

	time.Sleep(10 * time.Millisecond)
	if err := s.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("Acquire should succeed once a permit is released")
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not observe the release in time")
	}
}

func TestSemaphoreAcquireTimesOut(t *testing.T) {
	mem := newTestMemory(t)
	s, err := NewSemaphore(mem, "timeout", 0, 1)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	if s.Acquire(backoff.NewDeadline(10 * time.Millisecond)) {
		t.Fatal("Acquire should time out when no permit ever becomes available")
	}
}
