package store

import (
	"context"
	"sync"
)

// Kind names one of the five collections.
type Kind string

const (
	KindProducts   Kind = "products"
	KindSales      Kind = "sales"
	KindUsers      Kind = "users"
	KindBusinesses Kind = "businesses"
	KindAuditLogs  Kind = "auditLogs"
)

// kindOrder is the order pending ops of one commit are pushed in.
var kindOrder = map[Kind]int{
	KindBusinesses: 0,
	KindUsers:      1,
	KindProducts:   2,
	KindSales:      3,
	KindAuditLogs:  4,
}

// OpType is what the sync bridge has to do remotely for a pending op.
type OpType string

const (
	OpReplace OpType = "replace" // whole product list
	OpAppend  OpType = "append"
	OpPut     OpType = "put"
	OpDelete  OpType = "delete"
)

// AllProducts is the id of the single pending op covering the product list.
const AllProducts = "*"

type Key struct {
	Kind Kind
	ID   string
}

type Record struct {
	Kind Kind
	ID   string
	Body []byte
}

// PendingOp is one local change not yet acknowledged by the remote store.
// Seq is the commit that produced it.
type PendingOp struct {
	Kind Kind
	ID   string
	Op   OpType
	Seq  int64
}

func (op PendingOp) key() Key { return Key{Kind: op.Kind, ID: op.ID} }

// Batch is everything one commit writes to durable storage.
type Batch struct {
	Reset    []Kind // drop every record of these kinds first
	Put      []Record
	Delete   []Key
	Pending  []PendingOp // upsert by (kind, id)
	Resolved []PendingOp // remove only while (kind, id, seq) still matches
}

func (b Batch) empty() bool {
	return len(b.Reset) == 0 && len(b.Put) == 0 && len(b.Delete) == 0 &&
		len(b.Pending) == 0 && len(b.Resolved) == 0
}

// Persister is the durable local storage behind a Store.
type Persister interface {
	Load(ctx context.Context) ([]Record, []PendingOp, error)
	Save(ctx context.Context, b Batch) error
}

// MemoryPersister keeps records in process memory. It is used for
// throwaway sessions and tests; Fail makes the next saves return an error.
type MemoryPersister struct {
	mu      sync.Mutex
	records map[Key]Record
	order   []Key
	pending map[Key]PendingOp
	Fail    error
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{
		records: map[Key]Record{},
		pending: map[Key]PendingOp{},
	}
}

func (m *MemoryPersister) Load(ctx context.Context) ([]Record, []PendingOp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := make([]Record, 0, len(m.order))
	for _, k := range m.order {
		recs = append(recs, m.records[k])
	}
	ops := make([]PendingOp, 0, len(m.pending))
	for _, op := range m.pending {
		ops = append(ops, op)
	}
	return recs, ops, nil
}

func (m *MemoryPersister) Save(ctx context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return m.Fail
	}
	for _, kind := range b.Reset {
		for k := range m.records {
			if k.Kind == kind {
				m.deleteLocked(k)
			}
		}
	}
	for _, r := range b.Put {
		k := Key{Kind: r.Kind, ID: r.ID}
		if _, ok := m.records[k]; !ok {
			m.order = append(m.order, k)
		}
		m.records[k] = r
	}
	for _, k := range b.Delete {
		m.deleteLocked(k)
	}
	for _, op := range b.Pending {
		m.pending[op.key()] = op
	}
	for _, op := range b.Resolved {
		if cur, ok := m.pending[op.key()]; ok && cur.Seq == op.Seq {
			delete(m.pending, op.key())
		}
	}
	return nil
}

func (m *MemoryPersister) deleteLocked(k Key) {
	if _, ok := m.records[k]; !ok {
		return
	}
	delete(m.records, k)
	for i, o := range m.order {
		if o == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
