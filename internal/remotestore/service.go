// Package remotestore is the server-side authority terminals sync with:
// tenant snapshots, the user directory and login.
package remotestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"bar-pos/internal/apperr"
	"bar-pos/internal/auth"
	"bar-pos/internal/logger"
	"bar-pos/internal/models"
)

// Event types handed to the Publisher.
const (
	EventSaleRecorded     = "SaleRecorded"
	EventAuditLogged      = "AuditLogged"
	EventTenantRegistered = "TenantRegistered"
)

// Deduper is an optional fast path in front of the idempotent appends.
type Deduper interface {
	Seen(ctx context.Context, kind, id string) (bool, error)
	Mark(ctx context.Context, kind, id string) error
}

// Publisher receives domain events after they are stored.
type Publisher interface {
	Publish(eventType, key string, payload any)
}

// Caller is the authenticated principal behind a request.
type Caller struct {
	UserID     string
	Name       string
	BusinessID string
	Role       models.Role
}

func (c Caller) Tenant() string {
	if c.BusinessID == "" {
		return models.PlatformTenant
	}
	return c.BusinessID
}

type Service struct {
	repo   Repository
	dedup  Deduper
	events Publisher
	now    func() time.Time
	newID  func() string
	trial  time.Duration
}

type Option func(*Service)

func WithDeduper(d Deduper) Option     { return func(s *Service) { s.dedup = d } }
func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTrialPeriod(d time.Duration) Option {
	return func(s *Service) { s.trial = d }
}

func New(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
		trial: 14 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(eventType, key string, payload any) {
	if s.events != nil {
		s.events.Publish(eventType, key, payload)
	}
}

func authorizeTenant(c Caller, businessID string) error {
	if c.Role.SeesAllTenants() || c.Tenant() == businessID {
		return nil
	}
	return apperr.Forbidden("no access to business %s", businessID)
}

// Login checks credentials and returns the user without its credential.
func (s *Service) Login(ctx context.Context, business, username, password string) (models.User, error) {
	name := strings.TrimSpace(username)
	if name == "" || password == "" {
		return models.User{}, apperr.Validation("username and password are required")
	}

	// 1. Find the account
	acct, err := s.resolve(ctx, business, name)
	if err != nil {
		return models.User{}, err
	}

	// 2. Verify Password (Bcrypt)
	if acct.PasswordHash == "" || auth.VerifyPassword(acct.PasswordHash, password) != nil {
		return models.User{}, apperr.ErrCredentialMismatch
	}

	// 3. Account and tenant must be allowed in
	if acct.Status == models.UserInactive {
		return models.User{}, apperr.InvalidState("account is inactive")
	}
	if acct.BusinessID != "" {
		b, err := s.repo.Business(ctx, acct.BusinessID)
		if err != nil {
			return models.User{}, err
		}
		if !b.Subscription.Status.AllowsLogin() {
			return models.User{}, apperr.InvalidState("subscription is %s", b.Subscription.Status)
		}
	}
	return acct.User.Sanitized(), nil
}

func (s *Service) resolve(ctx context.Context, business, name string) (auth.Account, error) {
	candidates, err := s.repo.UsersByName(ctx, name)
	if err != nil {
		return auth.Account{}, err
	}
	if auth.IsPlatformLogin(business) {
		return auth.ResolvePlatformLogin(candidates)
	}

	b, err := s.repo.BusinessByName(ctx, business)
	if errors.Is(err, apperr.ErrNotFound) {
		return auth.Account{}, apperr.ErrCredentialMismatch
	}
	if err != nil {
		return auth.Account{}, err
	}
	for _, a := range candidates {
		if a.BusinessID == b.ID {
			return a, nil
		}
	}
	return auth.Account{}, apperr.ErrCredentialMismatch
}

// RegisterRequest opens a new tenant.
type RegisterRequest struct {
	BusinessName string `json:"businessName"`
	OwnerName    string `json:"ownerName"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Phone        string `json:"phone,omitempty"`
}

// Register creates a business on trial plus its OWNER account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (models.User, models.Business, error) {
	bizName := strings.TrimSpace(req.BusinessName)
	username := strings.TrimSpace(req.Username)
	switch {
	case bizName == "" || username == "":
		return models.User{}, models.Business{}, apperr.Validation("business name and username are required")
	case auth.IsPlatformLogin(bizName):
		return models.User{}, models.Business{}, apperr.Validation("%q is a reserved name", bizName)
	case len(req.Password) < 4:
		return models.User{}, models.Business{}, apperr.Validation("password must be at least 4 characters")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return models.User{}, models.Business{}, err
	}

	now := s.now()
	owner := strings.TrimSpace(req.OwnerName)
	if owner == "" {
		owner = username
	}
	b := models.Business{
		ID:           s.newID(),
		Name:         bizName,
		OwnerName:    owner,
		Subscription: models.Subscription{Status: models.SubscriptionTrial, Plan: "Trial"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	u := models.User{
		ID:         s.newID(),
		Name:       username,
		Role:       models.RoleOwner,
		BusinessID: b.ID,
		Phone:      req.Phone,
		Status:     models.UserActive,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateTenant(ctx, b, auth.Account{User: u, PasswordHash: hash}); err != nil {
		return models.User{}, models.Business{}, err
	}
	s.publish(EventTenantRegistered, b.ID, b)
	logger.LogInfo("registered business %q (%s)", b.Name, b.ID)
	return u, b, nil
}

// Bundle is everything the caller's terminal holds locally. The platform
// role gets the audit entries of every tenant on top of its own snapshot.
func (s *Service) Bundle(ctx context.Context, c Caller) (models.Bundle, error) {
	snap, err := s.repo.Snapshot(ctx, c.Tenant())
	if err != nil {
		return models.Bundle{}, err
	}

	scope := c.BusinessID
	if c.Role.SeesAllTenants() {
		scope = ""
	}
	accts, err := s.repo.Users(ctx, scope)
	if err != nil {
		return models.Bundle{}, err
	}
	users := make([]models.User, 0, len(accts))
	for _, a := range accts {
		users = append(users, a.User.Sanitized())
	}

	var businesses []models.Business
	if c.Role.SeesAllTenants() {
		if businesses, err = s.repo.Businesses(ctx); err != nil {
			return models.Bundle{}, err
		}
		// the platform trail is the union of every tenant's
		for _, b := range businesses {
			other, err := s.repo.Snapshot(ctx, b.ID)
			if err != nil {
				return models.Bundle{}, err
			}
			snap.AuditLogs = append(snap.AuditLogs, other.AuditLogs...)
		}
		sort.SliceStable(snap.AuditLogs, func(i, j int) bool {
			return snap.AuditLogs[i].Timestamp.Before(snap.AuditLogs[j].Timestamp)
		})
	} else {
		b, err := s.repo.Business(ctx, c.BusinessID)
		if err != nil {
			return models.Bundle{}, err
		}
		businesses = []models.Business{b}
	}
	return models.Bundle{Snapshot: snap, Users: users, Businesses: businesses}, nil
}

// ReplaceProducts overwrites a tenant's product list (last write wins).
func (s *Service) ReplaceProducts(ctx context.Context, c Caller, businessID string, products []models.Product) error {
	if err := authorizeTenant(c, businessID); err != nil {
		return err
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if p.ID == "" || strings.TrimSpace(p.Name) == "" {
			return apperr.Validation("every product needs an id and a name")
		}
		p.BusinessID = businessID
		out = append(out, p)
	}
	return s.repo.ReplaceProducts(ctx, businessID, out, s.now())
}

// AppendSale stores sale once; a repeated id is accepted and ignored.
func (s *Service) AppendSale(ctx context.Context, c Caller, businessID string, sale models.Sale) (bool, error) {
	if err := authorizeTenant(c, businessID); err != nil {
		return false, err
	}
	if sale.ID == "" || len(sale.Items) == 0 {
		return false, apperr.Validation("sale needs an id and at least one item")
	}
	if s.seen(ctx, "sale", sale.ID) {
		return false, nil
	}

	sale.BusinessID = businessID
	added, err := s.repo.AppendSale(ctx, businessID, sale, s.now())
	if err != nil {
		return false, err
	}
	s.mark(ctx, "sale", sale.ID)
	if added {
		s.publish(EventSaleRecorded, businessID, sale)
	}
	return added, nil
}

// AppendAuditLog stores l once; a repeated id is accepted and ignored.
func (s *Service) AppendAuditLog(ctx context.Context, c Caller, businessID string, l models.AuditLog) (bool, error) {
	if err := authorizeTenant(c, businessID); err != nil {
		return false, err
	}
	if l.ID == "" || strings.TrimSpace(l.Action) == "" {
		return false, apperr.Validation("audit entry needs an id and an action")
	}
	if s.seen(ctx, "audit", l.ID) {
		return false, nil
	}

	l.BusinessID = businessID
	added, err := s.repo.AppendAuditLog(ctx, businessID, l, s.now())
	if err != nil {
		return false, err
	}
	s.mark(ctx, "audit", l.ID)
	if added {
		s.publish(EventAuditLogged, businessID, l)
	}
	return added, nil
}

// seen is advisory only; the repository stays the source of truth.
func (s *Service) seen(ctx context.Context, kind, id string) bool {
	if s.dedup == nil {
		return false
	}
	ok, err := s.dedup.Seen(ctx, kind, id)
	if err != nil {
		logger.LogWarn("dedup lookup %s/%s: %v", kind, id, err)
		return false
	}
	return ok
}

func (s *Service) mark(ctx context.Context, kind, id string) {
	if s.dedup == nil {
		return
	}
	if err := s.dedup.Mark(ctx, kind, id); err != nil {
		logger.LogWarn("dedup mark %s/%s: %v", kind, id, err)
	}
}

// SaveUser creates or updates a user. A new user needs a password; an
// update without one keeps the stored credential.
func (s *Service) SaveUser(ctx context.Context, c Caller, u models.User) (models.User, error) {
	if u.ID == "" {
		return models.User{}, apperr.Validation("user id is required")
	}
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return models.User{}, apperr.Validation("user name is required")
	}
	if !u.Role.Valid() {
		return models.User{}, apperr.Validation("unknown role %q", u.Role)
	}
	if u.Status == "" {
		u.Status = models.UserActive
	}
	if u.BusinessID == "" && u.Role.RequiresBusiness() {
		u.BusinessID = c.BusinessID
	}
	if u.Role.RequiresBusiness() && u.BusinessID == "" {
		return models.User{}, apperr.Validation("%s users must belong to a business", u.Role)
	}

	existing, err := s.repo.User(ctx, u.ID)
	isNew := errors.Is(err, apperr.ErrNotFound)
	if err != nil && !isNew {
		return models.User{}, err
	}

	// 1. Who may touch this account
	self := !isNew && c.UserID == u.ID
	switch {
	case self:
		if u.Role != existing.Role || u.BusinessID != existing.BusinessID {
			return models.User{}, apperr.Forbidden("you cannot change your own role or business")
		}
	default:
		if !c.Role.CanManageStaff() || !c.Role.CanAssign(u.Role) {
			return models.User{}, apperr.Forbidden("%s cannot manage %s accounts", c.Role, u.Role)
		}
		if err := authorizeTenant(c, u.Tenant()); err != nil {
			return models.User{}, err
		}
		if !isNew {
			if !c.Role.CanAssign(existing.Role) {
				return models.User{}, apperr.Forbidden("%s cannot manage %s accounts", c.Role, existing.Role)
			}
			if err := authorizeTenant(c, existing.Tenant()); err != nil {
				return models.User{}, err
			}
		}
	}

	// 2. Names are unique inside a tenant
	same, err := s.repo.UsersByName(ctx, u.Name)
	if err != nil {
		return models.User{}, err
	}
	for _, other := range same {
		if other.ID != u.ID && other.BusinessID == u.BusinessID {
			return models.User{}, apperr.Conflict("a user named %q already exists", u.Name)
		}
	}

	// 3. Credentials
	acct := auth.Account{User: u.Sanitized(), PasswordHash: existing.PasswordHash}
	switch {
	case u.Password != "":
		if acct.PasswordHash, err = auth.HashPassword(u.Password); err != nil {
			return models.User{}, err
		}
	case isNew:
		return models.User{}, apperr.Validation("a password is required for new users")
	}

	acct.UpdatedAt = s.now()
	if err := s.repo.SaveUser(ctx, acct); err != nil {
		return models.User{}, err
	}
	return acct.User, nil
}

func (s *Service) DeleteUser(ctx context.Context, c Caller, id string) error {
	existing, err := s.repo.User(ctx, id)
	if err != nil {
		return err
	}
	if c.UserID == id {
		return apperr.InvalidState("you cannot delete your own account")
	}
	if !c.Role.CanManageStaff() || !c.Role.CanAssign(existing.Role) {
		return apperr.Forbidden("%s cannot manage %s accounts", c.Role, existing.Role)
	}
	if err := authorizeTenant(c, existing.Tenant()); err != nil {
		return err
	}
	return s.repo.DeleteUser(ctx, id)
}

// SaveBusiness updates a tenant. Owners edit their own profile; only the
// platform role may change the subscription or create a tenant this way.
func (s *Service) SaveBusiness(ctx context.Context, c Caller, b models.Business) (models.Business, error) {
	if !c.Role.CanManageBusiness() {
		return models.Business{}, apperr.Forbidden("%s cannot manage businesses", c.Role)
	}
	if b.ID == "" || strings.TrimSpace(b.Name) == "" {
		return models.Business{}, apperr.Validation("business id and name are required")
	}
	if err := authorizeTenant(c, b.ID); err != nil {
		return models.Business{}, err
	}

	now := s.now()
	cur, err := s.repo.Business(ctx, b.ID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if !c.Role.SeesAllTenants() {
			return models.Business{}, err
		}
		b.CreatedAt = now
		if b.Subscription.Status == "" {
			b.Subscription.Status = models.SubscriptionTrial
		}
	case err != nil:
		return models.Business{}, err
	default:
		b.CreatedAt = cur.CreatedAt
		if !c.Role.SeesAllTenants() {
			b.Subscription = cur.Subscription
		}
	}
	if !b.Subscription.Status.Valid() {
		return models.Business{}, apperr.Validation("unknown subscription status %q", b.Subscription.Status)
	}

	b.UpdatedAt = now
	if err := s.repo.SaveBusiness(ctx, b); err != nil {
		return models.Business{}, err
	}
	return b, nil
}

// ExpireTrials moves every trial older than the trial period to Expired.
func (s *Service) ExpireTrials(ctx context.Context) (int, error) {
	list, err := s.repo.Businesses(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, b := range list {
		if b.Subscription.Status != models.SubscriptionTrial || now.Sub(b.CreatedAt) < s.trial {
			continue
		}
		b.Subscription.Status = models.SubscriptionExpired
		b.UpdatedAt = now
		if err := s.repo.SaveBusiness(ctx, b); err != nil {
			return n, err
		}
		n++
		logger.LogInfo("trial expired for business %q (%s)", b.Name, b.ID)
	}
	return n, nil
}
