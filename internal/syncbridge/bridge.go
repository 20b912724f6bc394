// Package syncbridge replicates a Store to the remote store. Local commits
// are the durability boundary; everything here is best effort layered on
// top and never rolls local state back.
package syncbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bar-pos/internal/apperr"
	"bar-pos/internal/logger"
	"bar-pos/internal/models"
	"bar-pos/internal/store"
)

// Remote is what the bridge needs from the remote store.
type Remote interface {
	FetchBundle(ctx context.Context) (models.Bundle, error)
	ReplaceProducts(ctx context.Context, businessID string, products []models.Product) error
	AppendSale(ctx context.Context, businessID string, s models.Sale) error
	AppendAuditLog(ctx context.Context, businessID string, l models.AuditLog) error
	SaveUser(ctx context.Context, u models.User) (models.User, error)
	DeleteUser(ctx context.Context, id string) error
	SaveBusiness(ctx context.Context, b models.Business) (models.Business, error)
	Ping(ctx context.Context) error
}

type State string

const (
	Online  State = "ONLINE"
	Offline State = "OFFLINE"
)

type Config struct {
	Timeout       time.Duration // per remote call
	MaxAttempts   int
	Backoff       time.Duration // first retry delay, doubled each time
	ProbeInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 15 * time.Second
	}
	return c
}

// Status is the non-blocking indicator shown to the operator.
type Status struct {
	State     State     `json:"state"`
	Connected bool      `json:"connected"`
	Pending   int       `json:"pending"`
	Rejected  int       `json:"rejected"`
	LastSync  time.Time `json:"lastSync"`
	LastError string    `json:"lastError,omitempty"`
}

type Bridge struct {
	store  *store.Store
	remote Remote
	tenant string
	cfg    Config

	mu         sync.Mutex
	state      State
	connected  bool
	lastSync   time.Time
	lastErr    error
	rejected   int
	cancelPush context.CancelFunc
	stop       context.CancelFunc

	pushMu  sync.Mutex
	trigger chan struct{}
	done    chan struct{}
}

// New returns a bridge pushing s to remote for tenant. It starts ONLINE
// and idle; Start runs the background worker.
func New(s *store.Store, remote Remote, tenant string, cfg Config) *Bridge {
	b := &Bridge{
		store:     s,
		remote:    remote,
		tenant:    tenant,
		cfg:       cfg.withDefaults(),
		state:     Online,
		connected: true,
		trigger:   make(chan struct{}, 1),
	}
	s.Subscribe(func(c store.Change) {
		if !c.Remote {
			b.Trigger()
		}
	})
	return b
}

// Start launches the worker and queues a push for anything already pending.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.stop != nil {
		b.mu.Unlock()
		return
	}
	ctx, b.stop = context.WithCancel(ctx)
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.run(ctx)
	b.Trigger()
}

// Stop ends the worker and waits for it. Pending ops stay queued.
func (b *Bridge) Stop() {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop = nil
	b.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.done)
	probe := time.NewTicker(b.cfg.ProbeInterval)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.trigger:
			b.push(ctx)
		case <-probe.C:
			b.probe(ctx)
		}
	}
}

// Trigger asks for a push. A push already running is abandoned so the
// next one reads the latest state.
func (b *Bridge) Trigger() {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	if b.cancelPush != nil {
		b.cancelPush()
	}
	b.mu.Unlock()

	select {
	case b.trigger <- struct{}{}:
	default:
	}
}

// SetOnline records a connectivity change. Going online pushes whatever
// queued up meanwhile.
func (b *Bridge) SetOnline(online bool) {
	b.mu.Lock()
	b.connected = online
	prev := b.state
	if online {
		b.state = Online
	} else {
		b.state = Offline
		if b.cancelPush != nil {
			b.cancelPush()
		}
	}
	cur := b.state
	b.mu.Unlock()

	if prev != cur {
		logger.LogInfo("sync %s -> %s", prev, cur)
	}
	if online {
		b.Trigger()
	}
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	st := Status{
		State:     b.state,
		Connected: b.connected,
		Rejected:  b.rejected,
		LastSync:  b.lastSync,
	}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	b.mu.Unlock()
	st.Pending = len(b.store.Pending())
	return st
}

// Flush pushes every pending op now and reports the outcome.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return apperr.RemoteUnavailable(errors.New("terminal is offline"))
	}

	b.pushMu.Lock()
	defer b.pushMu.Unlock()
	return b.pushPending(ctx)
}

// Reconcile brings the store in line with the remote store at login. Local
// changes still queued are pushed first; if that fails the local state is
// kept as is and bundle is not applied.
func (b *Bridge) Reconcile(ctx context.Context, bundle models.Bundle) error {
	if len(b.store.Pending()) > 0 {
		if err := b.Flush(ctx); err != nil {
			return fmt.Errorf("push local changes before pull: %w", err)
		}
		fresh, err := call(b, ctx, func(cctx context.Context) (models.Bundle, error) {
			return b.remote.FetchBundle(cctx)
		})
		if err != nil {
			b.fail(err)
			return err
		}
		bundle = fresh
	}
	if err := b.store.ApplyRemote(ctx, bundle); err != nil {
		return err
	}
	b.mu.Lock()
	b.lastSync = time.Now()
	b.mu.Unlock()
	return nil
}

// push is one worker attempt, cancellable by Trigger.
func (b *Bridge) push(ctx context.Context) {
	b.mu.Lock()
	if !b.connected || b.state == Offline {
		b.mu.Unlock()
		return
	}
	pctx, cancel := context.WithCancel(ctx)
	b.cancelPush = cancel
	b.mu.Unlock()

	b.pushMu.Lock()
	err := b.pushPending(pctx)
	b.pushMu.Unlock()

	b.mu.Lock()
	b.cancelPush = nil
	b.mu.Unlock()
	cancel()

	if err != nil && pctx.Err() == nil {
		logger.LogWarn("sync push: %v", err)
	}
}

func (b *Bridge) probe(ctx context.Context) {
	b.mu.Lock()
	idle := b.state == Online || !b.connected
	b.mu.Unlock()
	if idle {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	err := b.remote.Ping(cctx)
	cancel()
	if err != nil {
		return
	}

	b.mu.Lock()
	b.state = Online
	b.mu.Unlock()
	logger.LogInfo("sync %s -> %s", Offline, Online)
	b.Trigger()
}

// fail records err; unreachable remote moves the bridge OFFLINE.
func (b *Bridge) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastErr = err
	if errors.Is(err, apperr.ErrRemoteUnavailable) && b.state == Online {
		b.state = Offline
		logger.LogWarn("sync %s -> %s: %v", Online, Offline, err)
	}
}

// rejectable errors mean the remote store will never accept the op.
func rejectable(err error) bool {
	return errors.Is(err, apperr.ErrValidation) ||
		errors.Is(err, apperr.ErrForbidden) ||
		errors.Is(err, apperr.ErrConflict) ||
		errors.Is(err, apperr.ErrNotFound)
}

func (b *Bridge) pushPending(ctx context.Context) error {
	for _, op := range b.store.Pending() {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := call(b, ctx, func(cctx context.Context) (struct{}, error) {
			return struct{}{}, b.pushOp(cctx, op)
		})
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case rejectable(err):
			logger.LogError("sync dropped %s %s/%s: %v", op.Op, op.Kind, op.ID, err)
			b.mu.Lock()
			b.rejected++
			b.lastErr = err
			b.mu.Unlock()
		default:
			b.fail(err)
			return err
		}

		// local bookkeeping; not subject to push cancellation
		if err := b.store.Acknowledge(context.Background(), op); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.lastSync = time.Now()
	b.lastErr = nil
	b.mu.Unlock()
	return nil
}

// call runs fn with a per-call timeout, retrying with exponential backoff
// while the remote is unreachable.
func call[T any](b *Bridge, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	delay := b.cfg.Backoff
	for attempt := 1; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
		v, err = fn(cctx)
		cancel()
		if err == nil || !errors.Is(err, apperr.ErrRemoteUnavailable) || attempt >= b.cfg.MaxAttempts {
			return v, err
		}

		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (b *Bridge) pushOp(ctx context.Context, op store.PendingOp) error {
	switch op.Kind {
	case store.KindProducts:
		all := b.store.Products()
		mine := make([]models.Product, 0, len(all))
		for _, p := range all {
			if p.BusinessID == "" || p.BusinessID == b.tenant {
				mine = append(mine, p)
			}
		}
		if len(mine) == 0 && len(all) > 0 {
			// only other tenants' products are loaded; pushing would wipe ours
			return nil
		}
		return b.remote.ReplaceProducts(ctx, b.tenant, mine)

	case store.KindSales:
		s, ok := b.store.Sale(op.ID)
		if !ok {
			return nil
		}
		return b.remote.AppendSale(ctx, b.scope(s.BusinessID), s)

	case store.KindAuditLogs:
		l, ok := b.store.AuditLog(op.ID)
		if !ok {
			return nil
		}
		return b.remote.AppendAuditLog(ctx, b.scope(l.BusinessID), l)

	case store.KindUsers:
		if op.Op == store.OpDelete {
			err := b.remote.DeleteUser(ctx, op.ID)
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			return err
		}
		u, ok := b.store.User(op.ID)
		if !ok {
			return nil
		}
		_, err := b.remote.SaveUser(ctx, u)
		return err

	case store.KindBusinesses:
		if op.Op == store.OpDelete {
			return apperr.Validation("business %s cannot be deleted remotely", op.ID)
		}
		biz, ok := b.store.Business(op.ID)
		if !ok {
			return nil
		}
		_, err := b.remote.SaveBusiness(ctx, biz)
		return err
	}
	return fmt.Errorf("unknown pending op kind %q", op.Kind)
}

func (b *Bridge) scope(businessID string) string {
	if businessID == "" {
		return b.tenant
	}
	return businessID
}
