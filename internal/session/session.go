// Package session is the narrow surface UI collaborators drive: read the
// current State, Dispatch an action, get the new State back.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bar-pos/internal/apperr"
	"bar-pos/internal/audit"
	"bar-pos/internal/cart"
	"bar-pos/internal/checkout"
	"bar-pos/internal/inventory"
	"bar-pos/internal/logger"
	"bar-pos/internal/models"
	"bar-pos/internal/store"
	"bar-pos/internal/syncbridge"
)

// Remote is the remote store as a session sees it.
type Remote interface {
	syncbridge.Remote
	Login(ctx context.Context, business, username, password string) (models.User, models.Bundle, error)
}

type Credentials struct {
	Business string // empty or "platform" for a cross-tenant login
	Username string
	Password string
}

// Session owns every component of one login. It is created by Login and
// unusable after Logout.
type Session struct {
	store     *store.Store
	remote    Remote
	cfg       syncbridge.Config
	user      models.User
	cart      *cart.Cart
	checkout  *checkout.Processor
	audit     *audit.Recorder
	inventory *inventory.Service
	bridge    *syncbridge.Bridge

	mu       sync.Mutex
	lastSale *models.Sale
	closed   bool
}

// Login authenticates against the remote store, reconciles s with the
// tenant snapshot and starts background sync. A failed reconcile leaves
// the local state as it was and the session starts OFFLINE.
func Login(ctx context.Context, s *store.Store, remote Remote, cfg syncbridge.Config, creds Credentials) (*Session, error) {
	// 1. Remote login
	user, bundle, err := remote.Login(ctx, creds.Business, creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}

	// 2. Pull (after pushing anything left from an earlier session)
	bridge := syncbridge.New(s, remote, user.Tenant(), cfg)
	if err := bridge.Reconcile(ctx, bundle); err != nil {
		logger.LogWarn("login sync for %s failed, continuing on local data: %v", user.Name, err)
	}

	c := cart.New(s)
	sess := &Session{
		store:     s,
		remote:    remote,
		cfg:       cfg,
		user:      user,
		cart:      c,
		checkout:  checkout.New(c),
		audit:     audit.NewRecorder(s),
		inventory: inventory.NewService(s),
		bridge:    bridge,
	}

	// 3. Trail, then background sync
	if _, err := sess.audit.Record(ctx, audit.ActionLogin, fmt.Sprintf("%s logged in", user.Name), &sess.user); err != nil {
		return nil, err
	}
	bridge.Start(context.WithoutCancel(ctx))
	logger.LogInfo("%s (%s) signed in to %s", user.Name, user.Role, user.Tenant())
	return sess, nil
}

// Logout records LOGOUT, pushes what it can and stops syncing. Anything
// left in the cart stays reserved.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_, err := s.audit.Record(ctx, audit.ActionLogout, fmt.Sprintf("%s logged out", s.user.Name), &s.user)
	if err := s.bridge.Flush(ctx); err != nil {
		logger.LogWarn("logout sync: %v", err)
	}
	s.bridge.Stop()
	return err
}

func (s *Session) User() models.User { return s.user }

// State is a consistent read of everything the UI shows.
type State struct {
	User       models.User       `json:"user"`
	Business   *models.Business  `json:"business,omitempty"`
	Products   []models.Product  `json:"products"`
	Cart       []models.CartItem `json:"cart"`
	CartTotal  float64           `json:"cartTotal"`
	Sales      []models.Sale     `json:"sales"`
	AuditLogs  []models.AuditLog `json:"auditLogs"`
	Users      []models.User     `json:"users"`
	Businesses []models.Business `json:"businesses"`
	Sync       syncbridge.Status `json:"sync"`
	LastSale   *models.Sale      `json:"lastSale,omitempty"`
}

func (s *Session) sees(businessID string) bool {
	return s.user.Role.SeesAllTenants() || businessID == "" || businessID == s.user.BusinessID
}

func (s *Session) State() State {
	st := State{
		User:      s.user,
		Cart:      s.cart.Items(),
		CartTotal: s.cart.Total(),
		Sync:      s.bridge.Status(),
	}

	s.store.View(func(tx *store.Tx) {
		for _, p := range tx.Products() {
			if s.sees(p.BusinessID) {
				st.Products = append(st.Products, p)
			}
		}
		for _, sale := range tx.Sales() {
			if s.user.Role.SeesAllTenants() || sale.BusinessID == s.user.Tenant() {
				st.Sales = append(st.Sales, sale)
			}
		}
		st.AuditLogs = audit.Filter(tx.AuditLogs(), &s.user)
		for _, u := range tx.Users() {
			if s.user.Role.SeesAllTenants() || u.BusinessID == s.user.BusinessID {
				st.Users = append(st.Users, u)
			}
		}
		for _, b := range tx.Businesses() {
			if s.user.Role.SeesAllTenants() || b.ID == s.user.BusinessID {
				st.Businesses = append(st.Businesses, b)
			}
			if b.ID == s.user.BusinessID {
				st.Business = &b
			}
		}
	})

	s.mu.Lock()
	if s.lastSale != nil {
		sale := *s.lastSale
		st.LastSale = &sale
	}
	s.mu.Unlock()
	return st
}

// Action is one user intent. The concrete types are in actions.go.
type Action interface {
	apply(ctx context.Context, s *Session) error
}

// Dispatch runs a and returns the state after it, also when a failed.
func (s *Session) Dispatch(ctx context.Context, a Action) (State, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return State{}, apperr.InvalidState("session has ended")
	}

	err := a.apply(ctx, s)
	return s.State(), err
}

// remoteCtx bounds a direct remote call the way the bridge does.
func (s *Session) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
