package leaselock

import (
	"context"
	"sync"
)

// Holder binds a lock key to an acquire/release pair so a long-running
// component can take and give back the same lease repeatedly. Acquiring a
// held lease is a no-op.
type Holder struct {
	client *Client
	key    string
	opts   Options

	mu    sync.Mutex
	lease *Lease
}

// Holder returns a Holder for key. The lease outlives the context passed to
// Acquire; it ends on Release or when renewal fails.
func (c *Client) Holder(key string, opts Options) *Holder {
	opts.Detach = true
	return &Holder{client: c, key: key, opts: opts}
}

func (h *Holder) Acquire(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.lease != nil && h.lease.Context.Err() == nil {
		return nil
	}
	lease, err := h.client.Acquire(ctx, h.key, h.opts)
	if err != nil {
		return err
	}
	h.lease = lease
	return nil
}

func (h *Holder) Release(ctx context.Context) error {
	h.mu.Lock()
	lease := h.lease
	h.lease = nil
	h.mu.Unlock()

	if lease == nil {
		return nil
	}
	return lease.Release(ctx)
}

// Lost is closed when the current lease ends for any reason. It returns nil
// when no lease is held.
func (h *Holder) Lost() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lease == nil {
		return nil
	}
	return h.lease.Context.Done()
}

// Err reports why the current lease ended, or nil.
func (h *Holder) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lease == nil {
		return nil
	}
	return h.lease.Err()
}
