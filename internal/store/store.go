// Package store is the session's single source of truth: the five entity
// collections, their durable local copy, and the queue of changes that
// still have to reach the remote store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bar-pos/internal/models"
)

// Change describes one committed transaction.
type Change struct {
	Kinds  []Kind
	Remote bool // applied from the remote store, nothing to push
}

// Store guards all collections with one lock, since stock, cart and sales
// have to move together.
type Store struct {
	mu      sync.RWMutex
	db      Persister
	st      state
	pending map[Key]PendingOp
	seq     int64
	now     func() time.Time
	newID   func() string

	subsMu sync.Mutex
	subs   []func(Change)
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Open loads every record and pending op from db.
func Open(ctx context.Context, db Persister, opts ...Option) (*Store, error) {
	s := &Store{
		db:      db,
		st:      newState(),
		pending: map[Key]PendingOp{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	recs, ops, err := db.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load local state: %w", err)
	}
	for _, r := range recs {
		if err := s.decode(r); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", r.Kind, r.ID, err)
		}
	}
	for _, op := range ops {
		s.pending[op.key()] = op
		if op.Seq > s.seq {
			s.seq = op.Seq
		}
	}
	return s, nil
}

func (s *Store) decode(r Record) error {
	switch r.Kind {
	case KindProducts:
		var v models.Product
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return err
		}
		s.st.products.put(v.ID, v)
	case KindSales:
		var v models.Sale
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return err
		}
		s.st.sales.put(v.ID, v)
	case KindUsers:
		var v models.User
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return err
		}
		s.st.users.put(v.ID, v)
	case KindBusinesses:
		var v models.Business
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return err
		}
		s.st.businesses.put(v.ID, v)
	case KindAuditLogs:
		var v models.AuditLog
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return err
		}
		s.st.auditLogs.put(v.ID, v)
	default:
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	return nil
}

func (s *Store) encode(k Key) (Record, bool, error) {
	var (
		v  any
		ok bool
	)
	switch k.Kind {
	case KindProducts:
		v, ok = s.st.products.get(k.ID)
	case KindSales:
		v, ok = s.st.sales.get(k.ID)
	case KindUsers:
		v, ok = s.st.users.get(k.ID)
	case KindBusinesses:
		v, ok = s.st.businesses.get(k.ID)
	case KindAuditLogs:
		v, ok = s.st.auditLogs.get(k.ID)
	}
	if !ok {
		return Record{}, false, nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return Record{}, false, err
	}
	return Record{Kind: k.Kind, ID: k.ID, Body: body}, true, nil
}

// Subscribe registers fn to run after every commit, outside the lock.
func (s *Store) Subscribe(fn func(Change)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify(c Change) {
	s.subsMu.Lock()
	subs := append([]func(Change){}, s.subs...)
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
}

// Tx runs fn with exclusive access to every collection. Nothing fn did is
// kept unless fn returns nil and the change reaches durable storage.
func (s *Store) Tx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, false, fn)
}

// RemoteTx is Tx for changes that came from the remote store; they are
// persisted but not queued for pushing back.
func (s *Store) RemoteTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, remote bool, fn func(tx *Tx) error) error {
	change, err := s.apply(ctx, remote, fn)
	if err != nil {
		return err
	}
	if len(change.Kinds) > 0 {
		s.notify(change)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, remote bool, fn func(tx *Tx) error) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{ctx: ctx, s: s, remote: remote, touched: map[Key]bool{}}
	defer func() {
		if r := recover(); r != nil {
			tx.backup.restore(&s.st)
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		tx.backup.restore(&s.st)
		return Change{}, err
	}
	change, err := s.commit(tx)
	if err != nil {
		tx.backup.restore(&s.st)
		return Change{}, err
	}
	return change, nil
}

func (s *Store) commit(tx *Tx) (Change, error) {
	var b Batch
	b.Reset = tx.reset

	// Records keep first-touch order so a reload lists them as we do.
	keys := tx.keys

	kinds := map[Kind]bool{}
	for _, k := range tx.reset {
		kinds[k] = true
	}
	for _, k := range keys {
		kinds[k.Kind] = true
		rec, ok, err := s.encode(k)
		if err != nil {
			return Change{}, fmt.Errorf("encode %s/%s: %w", k.Kind, k.ID, err)
		}
		if ok {
			b.Put = append(b.Put, rec)
		} else {
			b.Delete = append(b.Delete, k)
		}
	}

	seq := s.seq
	var queued []PendingOp
	if !tx.remote && len(keys) > 0 {
		seq++
		queued = pendingFor(keys, b, seq)
		b.Pending = queued
	}
	if b.empty() {
		return Change{}, nil
	}

	if err := s.db.Save(tx.ctx, b); err != nil {
		return Change{}, fmt.Errorf("persist local state: %w", err)
	}

	s.seq = seq
	for _, op := range queued {
		s.pending[op.key()] = op
	}

	c := Change{Remote: tx.remote}
	for k := range kinds {
		c.Kinds = append(c.Kinds, k)
	}
	sort.Slice(c.Kinds, func(i, j int) bool { return kindOrder[c.Kinds[i]] < kindOrder[c.Kinds[j]] })
	return c, nil
}

// pendingFor turns the keys a commit touched into queued remote ops.
func pendingFor(keys []Key, b Batch, seq int64) []PendingOp {
	deleted := map[Key]bool{}
	for _, k := range b.Delete {
		deleted[k] = true
	}

	var ops []PendingOp
	productsQueued := false
	for _, k := range keys {
		switch k.Kind {
		case KindProducts:
			if !productsQueued {
				ops = append(ops, PendingOp{Kind: KindProducts, ID: AllProducts, Op: OpReplace, Seq: seq})
				productsQueued = true
			}
		case KindSales, KindAuditLogs:
			ops = append(ops, PendingOp{Kind: k.Kind, ID: k.ID, Op: OpAppend, Seq: seq})
		case KindUsers, KindBusinesses:
			op := OpPut
			if deleted[k] {
				op = OpDelete
			}
			ops = append(ops, PendingOp{Kind: k.Kind, ID: k.ID, Op: op, Seq: seq})
		}
	}
	return ops
}

// View gives fn a read-only transaction.
func (s *Store) View(fn func(tx *Tx)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&Tx{s: s, readOnly: true})
}

// Pending lists the queued remote ops, oldest commit first.
func (s *Store) Pending() []PendingOp {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := make([]PendingOp, 0, len(s.pending))
	for _, op := range s.pending {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Seq != ops[j].Seq {
			return ops[i].Seq < ops[j].Seq
		}
		if ops[i].Kind != ops[j].Kind {
			return kindOrder[ops[i].Kind] < kindOrder[ops[j].Kind]
		}
		return ops[i].ID < ops[j].ID
	})
	return ops
}

// Acknowledge drops op from the queue unless a newer commit replaced it.
func (s *Store) Acknowledge(ctx context.Context, op PendingOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.pending[op.key()]
	if !ok || cur.Seq != op.Seq {
		return nil
	}
	if err := s.db.Save(ctx, Batch{Resolved: []PendingOp{op}}); err != nil {
		return fmt.Errorf("persist sync acknowledgement: %w", err)
	}
	delete(s.pending, op.key())
	return nil
}

// ApplyRemote replaces every collection with bundle (last write wins).
func (s *Store) ApplyRemote(ctx context.Context, bundle models.Bundle) error {
	return s.RemoteTx(ctx, func(tx *Tx) error {
		tx.resetKinds(KindProducts, KindSales, KindAuditLogs, KindUsers, KindBusinesses)
		for _, p := range bundle.Snapshot.Products {
			tx.putProduct(p)
		}
		for _, sale := range bundle.Snapshot.Sales {
			tx.putSale(sale)
		}
		for _, l := range bundle.Snapshot.AuditLogs {
			tx.putAuditLog(l)
		}
		for _, u := range bundle.Users {
			tx.putUser(u)
		}
		for _, b := range bundle.Businesses {
			tx.putBusiness(b)
		}
		return nil
	})
}

// Reads. Each returns copies; callers can't reach into the store.

func (s *Store) Products() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.products.list()
}

func (s *Store) Product(id string) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.products.get(id)
}

func (s *Store) Sales() []models.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.sales.list()
}

func (s *Store) Sale(id string) (models.Sale, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.sales.get(id)
}

func (s *Store) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.users.list()
}

func (s *Store) User(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.users.get(id)
}

func (s *Store) Businesses() []models.Business {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.businesses.list()
}

func (s *Store) Business(id string) (models.Business, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.businesses.get(id)
}

func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.auditLogs.list()
}

func (s *Store) AuditLog(id string) (models.AuditLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.auditLogs.get(id)
}

// Convenience single-operation transactions.

func (s *Store) AddProduct(ctx context.Context, p models.Product) (models.Product, error) {
	var out models.Product
	err := s.Tx(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.AddProduct(p)
		return err
	})
	return out, err
}

func (s *Store) UpdateProduct(ctx context.Context, p models.Product) error {
	return s.Tx(ctx, func(tx *Tx) error { _, err := tx.UpdateProduct(p); return err })
}

func (s *Store) RemoveProduct(ctx context.Context, id string) error {
	return s.Tx(ctx, func(tx *Tx) error { return tx.RemoveProduct(id) })
}

func (s *Store) AddUser(ctx context.Context, u models.User) (models.User, error) {
	var out models.User
	err := s.Tx(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.AddUser(u)
		return err
	})
	return out, err
}

func (s *Store) UpdateUser(ctx context.Context, u models.User) error {
	return s.Tx(ctx, func(tx *Tx) error { _, err := tx.UpdateUser(u); return err })
}

func (s *Store) RemoveUser(ctx context.Context, id string) error {
	return s.Tx(ctx, func(tx *Tx) error { return tx.RemoveUser(id) })
}

func (s *Store) AddBusiness(ctx context.Context, b models.Business) (models.Business, error) {
	var out models.Business
	err := s.Tx(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.AddBusiness(b)
		return err
	})
	return out, err
}

func (s *Store) UpdateBusiness(ctx context.Context, b models.Business) error {
	return s.Tx(ctx, func(tx *Tx) error { _, err := tx.UpdateBusiness(b); return err })
}

func (s *Store) RemoveBusiness(ctx context.Context, id string) error {
	return s.Tx(ctx, func(tx *Tx) error { return tx.RemoveBusiness(id) })
}
