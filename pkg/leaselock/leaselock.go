// Package leaselock implements expiring, renewable leases on a PostgreSQL
// table. The scheduler holds one so that only one process writes a graph
// snapshot at a time.
package leaselock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease is held by another process")
	ErrLost = errors.New("lease was lost")
)

const (
	defaultTTL      = 5 * time.Minute
	defaultPoll     = 250 * time.Millisecond
	renewAttempts   = 3
	renewTimeout    = 15 * time.Second
	renewRetryPause = 200 * time.Millisecond
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Client struct {
	db querier
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{db: pool}
}

type Options struct {
	// TTL is how long a lease lives without renewal (default: 5m).
	TTL time.Duration
	// RenewEvery must be shorter than TTL (default: TTL/2, at least 1s).
	RenewEvery time.Duration

	// Wait polls until the lease is free instead of failing with ErrBusy.
	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	// Detach keeps the lease alive after the context passed to Acquire ends.
	// Only Release or a failed renewal end it then.
	Detach bool

	TokenPrefix string
}

func (o Options) withDefaults() Options {
	if o.TTL < time.Millisecond {
		o.TTL = defaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = defaultPoll
	}
	o.WaitJitter = max(o.WaitJitter, 0)
	return o
}

// Lease is a held lease. Context ends when the lease is released or lost.
type Lease struct {
	Key     string
	Token   string
	Context context.Context

	client *Client
	ttl    time.Duration
	cancel context.CancelCauseFunc
	once   sync.Once
	done   chan struct{}
}

// Acquire takes the lease on key. Without opts.Wait a lease held by someone
// else fails with ErrBusy.
func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease key is empty")
	}
	opts = opts.withDefaults()

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generating lease token: %w", err)
	}
	token := opts.TokenPrefix + id

	for waited := false; ; waited = true {
		ok, err := c.tryAcquire(ctx, key, token, opts.TTL)
		if err != nil {
			return nil, fmt.Errorf("acquiring lease %q: %w", key, err)
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrBusy
		}
		if !waited {
			logger.Debug("[Lease] Waiting for lease", "key", key)
		}
		if err := pause(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	parent := ctx
	if opts.Detach {
		parent = context.WithoutCancel(ctx)
	}
	leaseCtx, cancel := context.WithCancelCause(parent)
	l := &Lease{
		Key:     key,
		Token:   token,
		Context: leaseCtx,
		client:  c,
		ttl:     opts.TTL,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	logger.Debug("[Lease] Acquired", "key", key, "ttl", opts.TTL)

	go l.keepAlive(opts.RenewEvery)
	return l, nil
}

func (c *Client) tryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	var got string
	err := c.db.QueryRow(ctx, acquireSQL, key, token, ttl.Milliseconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got != "", nil
}

// Release stops renewal and deletes the row if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	l.stop(context.Canceled)
	if _, err := l.client.db.Exec(ctx, releaseSQL, l.Key, l.Token); err != nil {
		return fmt.Errorf("releasing lease %q: %w", l.Key, err)
	}
	logger.Debug("[Lease] Released", "key", l.Key)
	return nil
}

// Err returns why the lease ended early, or nil while it is held or after
// a normal Release.
func (l *Lease) Err() error {
	cause := context.Cause(l.Context)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

func (l *Lease) stop(cause error) {
	l.once.Do(func() {
		close(l.done)
		l.cancel(cause)
	})
}

func (l *Lease) keepAlive(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-l.Context.Done():
			return
		case <-ticker.C:
		}

		err := l.renew()
		switch {
		case err == nil:
			continue
		case l.Context.Err() != nil:
			// released or cancelled while renewing
			return
		case errors.Is(err, ErrLost):
			logger.Error("[Lease] Lease taken over by another holder", "key", l.Key)
		default:
			logger.Error("[Lease] Giving up on renewal", "key", l.Key, "err", err)
			err = fmt.Errorf("%w: %w", ErrLost, err)
		}
		l.stop(err)
		return
	}
}

// renew extends the lease. A missing row means someone else owns it now;
// other errors are retried a few times before giving up.
func (l *Lease) renew() error {
	var err error
	for attempt := 1; attempt <= renewAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(l.Context, renewTimeout)
		var got string
		err = l.client.db.QueryRow(ctx, renewSQL, l.Key, l.Token, l.ttl.Milliseconds()).Scan(&got)
		cancel()

		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
		logger.Warn("[Lease] Renewal attempt failed", "key", l.Key, "attempt", attempt, "err", err)
		if attempt < renewAttempts {
			if perr := pause(l.Context, renewRetryPause, 0); perr != nil {
				return perr
			}
		}
	}
	return err
}

func pause(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += rand.N(jitter + 1)
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// An expired row is taken over; a row with our own token is refreshed.
const acquireSQL = `
INSERT INTO graph_leases (lease_key, holder, expires_at)
VALUES ($1, $2, now() + make_interval(secs => $3::bigint / 1000.0))
ON CONFLICT (lease_key) DO UPDATE
SET holder     = EXCLUDED.holder,
    expires_at = EXCLUDED.expires_at
WHERE graph_leases.expires_at < now()
   OR graph_leases.holder = EXCLUDED.holder
RETURNING lease_key;
`

const renewSQL = `
UPDATE graph_leases
SET expires_at = now() + make_interval(secs => $3::bigint / 1000.0)
WHERE lease_key = $1 AND holder = $2
RETURNING lease_key;
`

const releaseSQL = `
DELETE FROM graph_leases
WHERE lease_key = $1 AND holder = $2;
`
