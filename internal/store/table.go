package store

import "bar-pos/internal/models"

// table is one id-keyed collection that remembers insertion order.
type table[T any] struct {
	rows  map[string]T
	order []string
	copy  func(T) T
}

func newTable[T any](copyFn func(T) T) *table[T] {
	if copyFn == nil {
		copyFn = func(v T) T { return v }
	}
	return &table[T]{rows: map[string]T{}, copy: copyFn}
}

func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	if !ok {
		return v, false
	}
	return t.copy(v), true
}

func (t *table[T]) has(id string) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table[T]) put(id string, v T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = t.copy(v)
}

func (t *table[T]) del(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (t *table[T]) list() []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.copy(t.rows[id]))
	}
	return out
}

func (t *table[T]) clone() *table[T] {
	c := &table[T]{rows: make(map[string]T, len(t.rows)), order: append([]string(nil), t.order...), copy: t.copy}
	for k, v := range t.rows {
		c.rows[k] = v
	}
	return c
}

func copySale(s models.Sale) models.Sale {
	s.Items = append([]models.CartItem(nil), s.Items...)
	return s
}

func copyBusiness(b models.Business) models.Business {
	if b.RemoteEndpoints != nil {
		m := make(map[string]string, len(b.RemoteEndpoints))
		for k, v := range b.RemoteEndpoints {
			m[k] = v
		}
		b.RemoteEndpoints = m
	}
	return b
}

// state is the full set of collections held by a Store.
type state struct {
	products   *table[models.Product]
	sales      *table[models.Sale]
	users      *table[models.User]
	businesses *table[models.Business]
	auditLogs  *table[models.AuditLog]
}

func newState() state {
	return state{
		products:   newTable[models.Product](nil),
		sales:      newTable(copySale),
		users:      newTable[models.User](nil),
		businesses: newTable(copyBusiness),
		auditLogs:  newTable[models.AuditLog](nil),
	}
}

// backup saves kind from src into st unless it is already saved.
func (st *state) backup(src state, kind Kind) {
	switch kind {
	case KindProducts:
		if st.products == nil {
			st.products = src.products.clone()
		}
	case KindSales:
		if st.sales == nil {
			st.sales = src.sales.clone()
		}
	case KindUsers:
		if st.users == nil {
			st.users = src.users.clone()
		}
	case KindBusinesses:
		if st.businesses == nil {
			st.businesses = src.businesses.clone()
		}
	case KindAuditLogs:
		if st.auditLogs == nil {
			st.auditLogs = src.auditLogs.clone()
		}
	}
}

// restore puts every saved table back into dst.
func (st state) restore(dst *state) {
	if st.products != nil {
		dst.products = st.products
	}
	if st.sales != nil {
		dst.sales = st.sales
	}
	if st.users != nil {
		dst.users = st.users
	}
	if st.businesses != nil {
		dst.businesses = st.businesses
	}
	if st.auditLogs != nil {
		dst.auditLogs = st.auditLogs
	}
}
