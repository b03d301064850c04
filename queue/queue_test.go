package queue

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/queelius/zeroipc/internal/backoff"
	"github.com/queelius/zeroipc/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestMemory(t *testing.T) *memory.Memory {
	t.Helper()
	name := fmt.Sprintf("/zeroipc-test-q-%s-%d", t.Name(), os.Getpid())
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

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestPushPopFIFOOrder(t *testing.T) {
	mem := newTestMemory(t)
	q, err := New(mem, "fifo", 8, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := uint32(0); i < 5; i++ {
		if !q.Push(u32(i)) {
			t.Fatalf("Push(%d) failed unexpectedly", i)
		}
	}
	dst := make([]byte, 4)
	for i := uint32(0); i < 5; i++ {
		if !q.Pop(dst) {
			t.Fatalf("Pop failed unexpectedly at %d", i)
		}
		if got := binary.LittleEndian.Uint32(dst); got != i {
			t.Fatalf("Pop order = %d, want %d", got, i)
		}
	}
	if q.Pop(dst) {
		t.Fatal("Pop on empty queue should fail")
	}
}

func TestQueueFullReservesOneSlot(t *testing.T) {
	mem := newTestMemory(t)
	q, err := New(mem, "full", 4, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Usable capacity is capacity-1 = 3.
	for i := 0; i < 3; i++ {
		if !q.Push(u32(uint32(i))) {
			t.Fatalf("Push %d should succeed", i)
		}
	}
	if q.Push(u32(99)) {
		t.Fatal("Push should fail once usable capacity is exhausted")
	}
	if !q.Full() {
		t.Fatal("Full() should report true")
	}
}

func TestPushRejectsWrongElementSize(t *testing.T) {
	mem := newTestMemory(t)
	q, err := New(mem, "wrongsize", 4, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if q.Push([]byte{1, 2}) {
		t.Fatal("Push should reject a value whose length doesn't match elem_size")
	}
}

// TestConcurrentPushPopConservation exercises the S1-style property:
// multiple producers and consumers, no element duplicated or lost.
func TestConcurrentPushPopConservation(t *testing.T) {
	mem := newTestMemory(t)
	q, err := New(mem, "mpmc", 64, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const producers, perProducer = 4, 2000
	const total = producers * perProducer

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				v := u32(uint32(base*perProducer + i))
				for !q.Push(v) {
					runtime.Gosched()
				}
			}
		}(p)
	}

	results := make(chan uint32, total)
	const consumers = 4
	var cwg sync.WaitGroup
	var popped atomic.Int64
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			dst := make([]byte, 4)
			for {
				if q.Pop(dst) {
					results <- binary.LittleEndian.Uint32(dst)
					if popped.Add(1) >= total {
						return
					}
					continue
				}
				if popped.Load() >= total {
					return
				}
				runtime.Gosched()
			}
		}()
	}

	wg.Wait()
	cwg.Wait()
	close(results)

	seen := make(map[uint32]bool, total)
	count := 0
	for v := range results {
		if seen[v] {
			t.Fatalf("value %d delivered more than once", v)
		}
		seen[v] = true
		count++
	}
	if count != total {
		t.Fatalf("delivered %d elements, want %d", count, total)
	}
}

func TestPushWaitPopWaitWithDeadline(t *testing.T) {
	mem := newTestMemory(t)
	q, err := New(mem, "wait", 2, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !q.PushWait(u32(1), backoff.NewDeadline(50*time.Millisecond)) {
		t.Fatal("PushWait should succeed when the queue has room")
	}
	// Usable capacity is 1, so the queue is now full.
	if q.PushWait(u32(2), backoff.NewDeadline(5*time.Millisecond)) {
		t.Fatal("PushWait should not report success on a full queue before its deadline expires")
	}

	dst := make([]byte, 4)
	if !q.PopWait(dst, backoff.NewDeadline(50*time.Millisecond)) {
		t.Fatal("PopWait should succeed when an element is available")
	}
}
