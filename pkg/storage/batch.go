package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/vjranagit/promdash/pkg/types"
)

// batchFlushInterval bounds how long a buffered write can wait.
const batchFlushInterval = 100 * time.Millisecond

// batcher buffers write requests and flushes them to the sink in merged
// per-tenant batches, either when the buffer fills or on a timer.
type batcher struct {
	sink       func(*types.WriteRequest) error
	buffer     []*types.WriteRequest
	size       int
	mu         sync.Mutex
	flushTimer *time.Timer
	closed     bool
}

func newBatcher(sink func(*types.WriteRequest) error, size int) *batcher {
	b := &batcher{
		sink:   sink,
		buffer: make([]*types.WriteRequest, 0, size),
		size:   size,
	}
	b.flushTimer = time.AfterFunc(batchFlushInterval, b.autoFlush)
	return b
}

// Add buffers a write request, flushing when the buffer is full.
func (b *batcher) Add(req *types.WriteRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("batcher closed")
	}

	b.buffer = append(b.buffer, req)
	if len(b.buffer) >= b.size {
		return b.flushLocked()
	}
	return nil
}

// Flush drains the buffer.
func (b *batcher) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *batcher) flushLocked() error {
	if len(b.buffer) == 0 {
		return nil
	}

	tenantBatches := make(map[string][]types.Series)
	for _, req := range b.buffer {
		tenantBatches[req.TenantID] = append(tenantBatches[req.TenantID], req.Series...)
	}
	b.buffer = b.buffer[:0]

	for tenantID, series := range tenantBatches {
		req := &types.WriteRequest{TenantID: tenantID, Series: series}
		if err := b.sink(req); err != nil {
			return fmt.Errorf("batch write: %w", err)
		}
	}
	return nil
}

func (b *batcher) autoFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked()
	b.flushTimer.Reset(batchFlushInterval)
}

// Close stops the timer and drains remaining writes.
func (b *batcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.flushTimer != nil {
		b.flushTimer.Stop()
	}
	return b.flushLocked()
}
