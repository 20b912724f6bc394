package remotestore

import (
	"context"
	"strings"
	"sync"
	"time"

	"bar-pos/internal/apperr"
	"bar-pos/internal/auth"
	"bar-pos/internal/models"
)

// Repository is the durable side of the remote store. Lookups of a missing
// record return an error wrapping apperr.ErrNotFound.
type Repository interface {
	// CreateTenant stores a new business, its owner and an empty snapshot.
	// A business with the same name (case-insensitive) is apperr.ErrConflict.
	CreateTenant(ctx context.Context, b models.Business, owner auth.Account) error

	Business(ctx context.Context, id string) (models.Business, error)
	BusinessByName(ctx context.Context, name string) (models.Business, error)
	Businesses(ctx context.Context) ([]models.Business, error)
	SaveBusiness(ctx context.Context, b models.Business) error

	User(ctx context.Context, id string) (auth.Account, error)
	// UsersByName matches case-insensitively across every tenant.
	UsersByName(ctx context.Context, name string) ([]auth.Account, error)
	// Users lists one tenant's users, or everybody when businessID is empty.
	Users(ctx context.Context, businessID string) ([]auth.Account, error)
	SaveUser(ctx context.Context, a auth.Account) error
	DeleteUser(ctx context.Context, id string) error

	// Snapshot returns an empty snapshot for a tenant that has none yet.
	Snapshot(ctx context.Context, businessID string) (models.Snapshot, error)
	ReplaceProducts(ctx context.Context, businessID string, products []models.Product, at time.Time) error
	// AppendSale and AppendAuditLog report false when the id is already stored.
	AppendSale(ctx context.Context, businessID string, s models.Sale, at time.Time) (bool, error)
	AppendAuditLog(ctx context.Context, businessID string, l models.AuditLog, at time.Time) (bool, error)
}

// NameKey is the normalised form names are compared by.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MemoryRepository keeps everything in process memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	businesses map[string]models.Business
	bizOrder   []string
	users      map[string]auth.Account
	userOrder  []string
	snapshots  map[string]*models.Snapshot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		businesses: map[string]models.Business{},
		users:      map[string]auth.Account{},
		snapshots:  map[string]*models.Snapshot{},
	}
}

func (m *MemoryRepository) CreateTenant(ctx context.Context, b models.Business, owner auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cur := range m.businesses {
		if NameKey(cur.Name) == NameKey(b.Name) {
			return apperr.Conflict("business %q already exists", b.Name)
		}
	}
	m.putBusinessLocked(b)
	m.putUserLocked(owner)
	m.snapshots[b.ID] = &models.Snapshot{BusinessID: b.ID, LastSync: b.CreatedAt}
	return nil
}

func (m *MemoryRepository) putBusinessLocked(b models.Business) {
	if _, ok := m.businesses[b.ID]; !ok {
		m.bizOrder = append(m.bizOrder, b.ID)
	}
	m.businesses[b.ID] = cloneBusiness(b)
}

func (m *MemoryRepository) putUserLocked(a auth.Account) {
	if _, ok := m.users[a.ID]; !ok {
		m.userOrder = append(m.userOrder, a.ID)
	}
	m.users[a.ID] = a
}

func (m *MemoryRepository) Business(ctx context.Context, id string) (models.Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.businesses[id]
	if !ok {
		return models.Business{}, apperr.NotFound("business %s", id)
	}
	return cloneBusiness(b), nil
}

func (m *MemoryRepository) BusinessByName(ctx context.Context, name string) (models.Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.bizOrder {
		if b := m.businesses[id]; NameKey(b.Name) == NameKey(name) {
			return cloneBusiness(b), nil
		}
	}
	return models.Business{}, apperr.NotFound("business %q", name)
}

func (m *MemoryRepository) Businesses(ctx context.Context) ([]models.Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Business, 0, len(m.bizOrder))
	for _, id := range m.bizOrder {
		out = append(out, cloneBusiness(m.businesses[id]))
	}
	return out, nil
}

func (m *MemoryRepository) SaveBusiness(ctx context.Context, b models.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cur := range m.businesses {
		if id != b.ID && NameKey(cur.Name) == NameKey(b.Name) {
			return apperr.Conflict("business %q already exists", b.Name)
		}
	}
	m.putBusinessLocked(b)
	return nil
}

func (m *MemoryRepository) User(ctx context.Context, id string) (auth.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.users[id]
	if !ok {
		return auth.Account{}, apperr.NotFound("user %s", id)
	}
	return a, nil
}

func (m *MemoryRepository) UsersByName(ctx context.Context, name string) ([]auth.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []auth.Account
	for _, id := range m.userOrder {
		if a := m.users[id]; NameKey(a.Name) == NameKey(name) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) Users(ctx context.Context, businessID string) ([]auth.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []auth.Account
	for _, id := range m.userOrder {
		if a := m.users[id]; businessID == "" || a.BusinessID == businessID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) SaveUser(ctx context.Context, a auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putUserLocked(a)
	return nil
}

func (m *MemoryRepository) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return apperr.NotFound("user %s", id)
	}
	delete(m.users, id)
	for i, o := range m.userOrder {
		if o == id {
			m.userOrder = append(m.userOrder[:i], m.userOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryRepository) snapshotLocked(businessID string) *models.Snapshot {
	s, ok := m.snapshots[businessID]
	if !ok {
		s = &models.Snapshot{BusinessID: businessID}
		m.snapshots[businessID] = s
	}
	return s
}

func (m *MemoryRepository) Snapshot(ctx context.Context, businessID string) (models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[businessID]
	if !ok {
		return models.Snapshot{BusinessID: businessID}, nil
	}
	out := *s
	out.Products = append([]models.Product(nil), s.Products...)
	out.Sales = make([]models.Sale, len(s.Sales))
	for i, sale := range s.Sales {
		sale.Items = append([]models.CartItem(nil), sale.Items...)
		out.Sales[i] = sale
	}
	out.AuditLogs = append([]models.AuditLog(nil), s.AuditLogs...)
	return out, nil
}

func (m *MemoryRepository) ReplaceProducts(ctx context.Context, businessID string, products []models.Product, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snapshotLocked(businessID)
	s.Products = append([]models.Product(nil), products...)
	s.LastSync = at
	return nil
}

func (m *MemoryRepository) AppendSale(ctx context.Context, businessID string, sale models.Sale, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snapshotLocked(businessID)
	for _, cur := range s.Sales {
		if cur.ID == sale.ID {
			return false, nil
		}
	}
	sale.Items = append([]models.CartItem(nil), sale.Items...)
	s.Sales = append(s.Sales, sale)
	s.LastSync = at
	return true, nil
}

func (m *MemoryRepository) AppendAuditLog(ctx context.Context, businessID string, l models.AuditLog, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snapshotLocked(businessID)
	for _, cur := range s.AuditLogs {
		if cur.ID == l.ID {
			return false, nil
		}
	}
	s.AuditLogs = append(s.AuditLogs, l)
	s.LastSync = at
	return true, nil
}

func cloneBusiness(b models.Business) models.Business {
	if b.RemoteEndpoints != nil {
		m := make(map[string]string, len(b.RemoteEndpoints))
		for k, v := range b.RemoteEndpoints {
			m[k] = v
		}
		b.RemoteEndpoints = m
	}
	return b
}
