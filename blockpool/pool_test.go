package blockpool

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queelius/zeroipc/memory"
)

func newTestMemory(t *testing.T) *memory.Memory {
	t.Helper()
	name := fmt.Sprintf("/zeroipc-test-pool-%s-%d", t.Name(), os.Getpid())
	mem, err := memory.Create(name, 1<<20, 8)
	require.NoError(t, err)
	t.Cleanup(func() {
		mem.Close()
		memory.Unlink(name)
	})
	return mem
}

// TestExhaustionAndReuse implements the concrete scenario: block_count=3,
// block_size=256. Allocate three blocks (all succeed), a fourth fails,
// deallocating one frees capacity for a subsequent allocation.
func TestExhaustionAndReuse(t *testing.T) {
	mem := newTestMemory(t)
	p, err := New(mem, "blocks", 3, 256)
	require.NoError(t, err)

	var idx [3]uint32
	for i := 0; i < 3; i++ {
		got, ok := p.Allocate()
		require.True(t, ok, "Allocate %d should succeed", i)
		idx[i] = got
	}
	_, ok := p.Allocate()
	assert.False(t, ok, "Allocate should fail once the pool is exhausted")
	assert.Equal(t, uint32(0), p.Available())

	require.True(t, p.Deallocate(idx[1]))
	assert.Equal(t, uint32(1), p.Available())

	_, ok = p.Allocate()
	assert.True(t, ok, "Allocate should succeed again after a Deallocate freed a block")
}

func TestBlockViewIsElemSizeWide(t *testing.T) {
	mem := newTestMemory(t)
	p, err := New(mem, "view", 2, 64)
	require.NoError(t, err)

	idx, ok := p.Allocate()
	require.True(t, ok)
	block, err := p.Block(idx)
	require.NoError(t, err)
	require.Len(t, block, 64)

	block[0] = 0xAB
	reread, _ := p.Block(idx)
	assert.Equal(t, byte(0xAB), reread[0], "Block should alias the pool's backing storage")
}

func TestBlockRejectsOutOfRangeIndex(t *testing.T) {
	mem := newTestMemory(t)
	p, err := New(mem, "bounds", 2, 32)
	require.NoError(t, err)
	_, err = p.Block(99)
	assert.Error(t, err, "Block should reject an out-of-range index")
}

// TestConcurrentAllocateDeallocateNoLeak hammers the pool with concurrent
// allocate/deallocate pairs; the free list must never lose or duplicate
// an index (spec's Pool leak-freedom contract).
func TestConcurrentAllocateDeallocateNoLeak(t *testing.T) {
	mem := newTestMemory(t)
	const capacity = 16
	p, err := New(mem, "stress", capacity, 32)
	require.NoError(t, err)

	const workers, rounds = 8, 2000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				idx, ok := p.Allocate()
				if !ok {
					runtime.Gosched()
					continue
				}
				runtime.Gosched()
				if !p.Deallocate(idx) {
					t.Errorf("Deallocate(%d) unexpectedly failed", idx)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(0), p.Allocated())

	seen := make(map[uint32]bool)
	for {
		idx, ok := p.Allocate()
		if !ok {
			break
		}
		if seen[idx] {
			t.Fatalf("index %d allocated twice while draining the free list", idx)
		}
		seen[idx] = true
	}
	assert.Len(t, seen, capacity, "drained index count should equal pool capacity")
}
