package store

import (
	"context"
	"strings"
	"time"

	"bar-pos/internal/apperr"
	"bar-pos/internal/models"
)

// Tx is the handle a Store gives to transaction bodies. It must not be used
// after the body returns.
type Tx struct {
	ctx      context.Context
	s        *Store
	remote   bool
	readOnly bool
	touched  map[Key]bool
	keys     []Key // touched, in first-touch order
	reset    []Kind
	backup   state
}

// Now is the store clock.
func (tx *Tx) Now() time.Time { return tx.s.now() }

// NewID returns a fresh unique id.
func (tx *Tx) NewID() string { return tx.s.newID() }

func (tx *Tx) touch(kind Kind, id string) {
	if tx.readOnly {
		panic("store: write inside a read-only transaction")
	}
	tx.backup.backup(tx.s.st, kind)
	k := Key{Kind: kind, ID: id}
	if !tx.touched[k] {
		tx.touched[k] = true
		tx.keys = append(tx.keys, k)
	}
}

func (tx *Tx) resetKinds(kinds ...Kind) {
	for _, k := range kinds {
		tx.backup.backup(tx.s.st, k)
		switch k {
		case KindProducts:
			tx.s.st.products = newTable[models.Product](nil)
		case KindSales:
			tx.s.st.sales = newTable(copySale)
		case KindUsers:
			tx.s.st.users = newTable[models.User](nil)
		case KindBusinesses:
			tx.s.st.businesses = newTable(copyBusiness)
		case KindAuditLogs:
			tx.s.st.auditLogs = newTable[models.AuditLog](nil)
		}
		tx.reset = append(tx.reset, k)
	}
}

func (tx *Tx) putProduct(p models.Product) {
	tx.touch(KindProducts, p.ID)
	tx.s.st.products.put(p.ID, p)
}

func (tx *Tx) putSale(s models.Sale) {
	tx.touch(KindSales, s.ID)
	tx.s.st.sales.put(s.ID, s)
}

func (tx *Tx) putAuditLog(l models.AuditLog) {
	tx.touch(KindAuditLogs, l.ID)
	tx.s.st.auditLogs.put(l.ID, l)
}

func (tx *Tx) putUser(u models.User) {
	tx.touch(KindUsers, u.ID)
	tx.s.st.users.put(u.ID, u.Sanitized())
}

func (tx *Tx) putBusiness(b models.Business) {
	tx.touch(KindBusinesses, b.ID)
	tx.s.st.businesses.put(b.ID, b)
}

// Reads inside a transaction.

func (tx *Tx) Product(id string) (models.Product, bool) { return tx.s.st.products.get(id) }
func (tx *Tx) Products() []models.Product               { return tx.s.st.products.list() }
func (tx *Tx) Sale(id string) (models.Sale, bool)       { return tx.s.st.sales.get(id) }
func (tx *Tx) Sales() []models.Sale                     { return tx.s.st.sales.list() }
func (tx *Tx) User(id string) (models.User, bool)       { return tx.s.st.users.get(id) }
func (tx *Tx) Users() []models.User                     { return tx.s.st.users.list() }
func (tx *Tx) Business(id string) (models.Business, bool) {
	return tx.s.st.businesses.get(id)
}
func (tx *Tx) Businesses() []models.Business { return tx.s.st.businesses.list() }
func (tx *Tx) AuditLogs() []models.AuditLog  { return tx.s.st.auditLogs.list() }

// Products

func validateProduct(p models.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("product name is required")
	}
	if p.Price < 0 || p.BuyingPrice < 0 {
		return apperr.Validation("product %q has a negative price", p.Name)
	}
	if p.Stock < 0 {
		return apperr.Validation("product %q has negative stock", p.Name)
	}
	return nil
}

// AddProduct assigns a new id and records the opening stock.
func (tx *Tx) AddProduct(p models.Product) (models.Product, error) {
	if err := validateProduct(p); err != nil {
		return models.Product{}, err
	}
	now := tx.Now()
	p.ID = tx.NewID()
	p.OpeningStock = p.Stock
	p.Additions = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	tx.putProduct(p)
	return p, nil
}

// UpdateProduct replaces the product with the same id. OpeningStock and
// CreatedAt can't be changed.
func (tx *Tx) UpdateProduct(p models.Product) (models.Product, error) {
	cur, ok := tx.Product(p.ID)
	if !ok {
		return models.Product{}, apperr.NotFound("product %s", p.ID)
	}
	if err := validateProduct(p); err != nil {
		return models.Product{}, err
	}
	p.OpeningStock = cur.OpeningStock
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = tx.Now()
	tx.putProduct(p)
	return p, nil
}

// AddStock adds delta (possibly negative) to a product's stock without any
// floor check; callers decide whether the move is allowed.
func (tx *Tx) AddStock(id string, delta int) (models.Product, error) {
	p, ok := tx.Product(id)
	if !ok {
		return models.Product{}, apperr.NotFound("product %s", id)
	}
	if delta == 0 {
		return p, nil
	}
	p.Stock += delta
	p.UpdatedAt = tx.Now()
	tx.putProduct(p)
	return p, nil
}

func (tx *Tx) RemoveProduct(id string) error {
	if !tx.s.st.products.has(id) {
		return apperr.NotFound("product %s", id)
	}
	tx.touch(KindProducts, id)
	tx.s.st.products.del(id)
	return nil
}

// Sales and audit logs are insert-only.

func (tx *Tx) AppendSale(s models.Sale) (models.Sale, error) {
	if len(s.Items) == 0 {
		return models.Sale{}, apperr.Validation("sale has no items")
	}
	if s.ID == "" {
		s.ID = tx.NewID()
	}
	if tx.s.st.sales.has(s.ID) {
		return models.Sale{}, apperr.Conflict("sale %s already recorded", s.ID)
	}
	if s.Date.IsZero() {
		s.Date = tx.Now()
	}
	tx.putSale(s)
	return s, nil
}

func (tx *Tx) AppendAuditLog(l models.AuditLog) (models.AuditLog, error) {
	if strings.TrimSpace(l.Action) == "" {
		return models.AuditLog{}, apperr.Validation("audit action is required")
	}
	if l.ID == "" {
		l.ID = tx.NewID()
	}
	if tx.s.st.auditLogs.has(l.ID) {
		return models.AuditLog{}, apperr.Conflict("audit entry %s already recorded", l.ID)
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = tx.Now()
	}
	tx.putAuditLog(l)
	return l, nil
}

// Users

func validateUser(u models.User) error {
	if strings.TrimSpace(u.Name) == "" {
		return apperr.Validation("user name is required")
	}
	if !u.Role.Valid() {
		return apperr.Validation("unknown role %q", u.Role)
	}
	if u.Role.RequiresBusiness() && u.BusinessID == "" {
		return apperr.Validation("%s users must belong to a business", u.Role)
	}
	if u.Status != models.UserActive && u.Status != models.UserInactive {
		return apperr.Validation("unknown status %q", u.Status)
	}
	return nil
}

// AddUser stores u under a new id. Credentials are never kept locally.
func (tx *Tx) AddUser(u models.User) (models.User, error) {
	if u.Status == "" {
		u.Status = models.UserActive
	}
	if err := validateUser(u); err != nil {
		return models.User{}, err
	}
	u.ID = tx.NewID()
	u.UpdatedAt = tx.Now()
	u = u.Sanitized()
	tx.putUser(u)
	return u, nil
}

func (tx *Tx) UpdateUser(u models.User) (models.User, error) {
	if !tx.s.st.users.has(u.ID) {
		return models.User{}, apperr.NotFound("user %s", u.ID)
	}
	if err := validateUser(u); err != nil {
		return models.User{}, err
	}
	u.UpdatedAt = tx.Now()
	u = u.Sanitized()
	tx.putUser(u)
	return u, nil
}

// SaveRemoteUser upserts a user exactly as the remote store returned it.
func (tx *Tx) SaveRemoteUser(u models.User) {
	tx.putUser(u)
}

func (tx *Tx) RemoveUser(id string) error {
	if !tx.s.st.users.has(id) {
		return apperr.NotFound("user %s", id)
	}
	tx.touch(KindUsers, id)
	tx.s.st.users.del(id)
	return nil
}

// Businesses

func validateBusiness(b models.Business) error {
	if strings.TrimSpace(b.Name) == "" {
		return apperr.Validation("business name is required")
	}
	if !b.Subscription.Status.Valid() {
		return apperr.Validation("unknown subscription status %q", b.Subscription.Status)
	}
	return nil
}

func (tx *Tx) AddBusiness(b models.Business) (models.Business, error) {
	if b.Subscription.Status == "" {
		b.Subscription.Status = models.SubscriptionTrial
	}
	if err := validateBusiness(b); err != nil {
		return models.Business{}, err
	}
	now := tx.Now()
	b.ID = tx.NewID()
	b.CreatedAt = now
	b.UpdatedAt = now
	tx.putBusiness(b)
	return b, nil
}

func (tx *Tx) UpdateBusiness(b models.Business) (models.Business, error) {
	cur, ok := tx.Business(b.ID)
	if !ok {
		return models.Business{}, apperr.NotFound("business %s", b.ID)
	}
	if err := validateBusiness(b); err != nil {
		return models.Business{}, err
	}
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = tx.Now()
	tx.putBusiness(b)
	return b, nil
}

func (tx *Tx) RemoveBusiness(id string) error {
	if !tx.s.st.businesses.has(id) {
		return apperr.NotFound("business %s", id)
	}
	tx.touch(KindBusinesses, id)
	tx.s.st.businesses.del(id)
	return nil
}
