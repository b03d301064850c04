// Package channel implements the optional Channel component (spec
// §2 row 14, §9): CSP-style message passing layered on queue.Queue plus
// a small rendezvous-state block of per-side waiting counters. The
// cross-process synchronization itself is entirely atomic-based (the
// underlying Queue's CAS protocol); eapache/queue is used only for
// process-local fairness diagnostics — FIFO bookkeeping of which local
// goroutines are currently parked on Send/Recv, never for the
// shared-memory rendezvous itself.
//
// Spec §9 flags this protocol's simultaneous-double-timeout race window
// as not formally analyzed; this implementation reproduces the
// documented footgun rather than inventing a stronger protocol the
// spec does not define.
// Author: momentics <momentics@gmail.com>
package channel

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/queelius/zeroipc/internal/atomic"
	"github.com/queelius/zeroipc/internal/backoff"
	"github.com/queelius/zeroipc/internal/zlog"
	"github.com/queelius/zeroipc/memory"
	zqueue "github.com/queelius/zeroipc/queue"
	"go.uber.org/zap"
)

const (
	stateHeaderSize = 16 // senders_waiting i32, receivers_waiting i32, closed u32, _pad u32

	offSendersWaiting   = 0
	offReceiversWaiting = 4
	offClosed           = 8
)

// Channel is a non-owning view over a bounded CSP-style channel: a
// queue.Queue for the payload plus a rendezvous-state block tracking
// how many local callers are currently blocked on each side.
type Channel struct {
	data *zqueue.Queue
	buf  []byte

	mu      sync.Mutex
	waiters *queue.Queue // process-local fairness diagnostics only
}

// New allocates and initializes a new Channel with the given element
// capacity and elemSize byte width. The underlying queue.Queue is built
// with capacity+1 slots, so the usable depth is exactly capacity.
// capacity==1 is the closest to an unbuffered channel: at most one sent
// value can be waiting for a receiver.
func New(mem *memory.Memory, name string, capacity, elemSize uint32) (*Channel, error) {
	q, err := zqueue.New(mem, name+".data", capacity+1, elemSize)
	if err != nil {
		return nil, err
	}
	offset, err := mem.Allocate(name+".state", stateHeaderSize)
	if err != nil {
		return nil, err
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	atomic.StoreInt32(buf, offSendersWaiting, 0)
	atomic.StoreInt32(buf, offReceiversWaiting, 0)
	atomic.StoreUint32(buf, offClosed, 0)
	return &Channel{data: q, buf: buf, waiters: queue.New()}, nil
}

// Open attaches to an existing Channel by name.
func Open(mem *memory.Memory, name string) (*Channel, error) {
	q, err := zqueue.Open(mem, name+".data")
	if err != nil {
		return nil, err
	}
	offset, _, ok := mem.Find(name + ".state")
	if !ok {
		return nil, memory.ErrNotFound.WithContext("name", name+".state")
	}
	buf, err := mem.At(offset)
	if err != nil {
		return nil, err
	}
	return &Channel{data: q, buf: buf, waiters: queue.New()}, nil
}

// Closed reports whether the channel has been closed.
func (c *Channel) Closed() bool {
	return atomic.LoadUint32(c.buf, offClosed) != 0
}

// Close marks the channel closed. Idempotent.
func (c *Channel) Close() {
	atomic.StoreUint32(c.buf, offClosed, 1)
}

func (c *Channel) trackWaiter(token string) func() {
	c.mu.Lock()
	c.waiters.Add(token)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		if c.waiters.Length() > 0 {
			c.waiters.Remove()
		}
		c.mu.Unlock()
	}
}

// Send blocks until value is accepted by the queue, retrying under the
// §5 backoff schedule, or until d expires. Returns false if the channel
// is closed or d expires.
func (c *Channel) Send(value []byte, d *backoff.Deadline) bool {
	if c.Closed() {
		return false
	}
	untrack := c.trackWaiter("send")
	defer untrack()

	atomic.FetchAddInt32(c.buf, offSendersWaiting, 1)
	defer atomic.FetchAddInt32(c.buf, offSendersWaiting, -1)

	for {
		if c.data.Push(value) {
			return true
		}
		if c.Closed() {
			return false
		}
		if d.Expired() {
			zlog.L().Debug("channel send timed out",
				zap.Int32("senders_waiting", atomic.LoadInt32(c.buf, offSendersWaiting)))
			return false
		}
		d.Spin()
	}
}

// Recv blocks until a value is available or the channel is closed and
// drained, retrying under the §5 backoff schedule, or until d expires.
func (c *Channel) Recv(dst []byte, d *backoff.Deadline) bool {
	untrack := c.trackWaiter("recv")
	defer untrack()

	atomic.FetchAddInt32(c.buf, offReceiversWaiting, 1)
	defer atomic.FetchAddInt32(c.buf, offReceiversWaiting, -1)

	for {
		if c.data.Pop(dst) {
			return true
		}
		if c.Closed() && c.data.Empty() {
			return false
		}
		if d.Expired() {
			return false
		}
		d.Spin()
	}
}

// SendersWaiting and ReceiversWaiting return snapshots of the
// per-side rendezvous counters, useful for fairness diagnostics.
func (c *Channel) SendersWaiting() int32   { return atomic.LoadInt32(c.buf, offSendersWaiting) }
func (c *Channel) ReceiversWaiting() int32 { return atomic.LoadInt32(c.buf, offReceiversWaiting) }
