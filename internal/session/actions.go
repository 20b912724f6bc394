package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bar-pos/internal/apperr"
	"bar-pos/internal/audit"
	"bar-pos/internal/checkout"
	"bar-pos/internal/models"
	"bar-pos/internal/remotestore"
	"bar-pos/internal/store"
)

// Cart

type AddToCart struct{ ProductID string }

func (a AddToCart) apply(ctx context.Context, s *Session) error {
	_, err := s.cart.AddItem(ctx, a.ProductID)
	return err
}

// AdjustQuantity moves a cart line by Delta; the line never drops below one.
type AdjustQuantity struct {
	ProductID string
	Delta     int
}

func (a AdjustQuantity) apply(ctx context.Context, s *Session) error {
	_, err := s.cart.SetQuantity(ctx, a.ProductID, a.Delta)
	return err
}

type RemoveFromCart struct{ ProductID string }

func (a RemoveFromCart) apply(ctx context.Context, s *Session) error {
	return s.cart.RemoveItem(ctx, a.ProductID)
}

type ClearCart struct{}

func (ClearCart) apply(ctx context.Context, s *Session) error {
	return s.cart.Clear(ctx)
}

type Checkout struct {
	PaymentMethod models.PaymentMethod
	CustomerPhone string
}

func (a Checkout) apply(ctx context.Context, s *Session) error {
	sale, err := s.checkout.Checkout(ctx, &s.user, checkout.Request{
		PaymentMethod: a.PaymentMethod,
		CustomerPhone: a.CustomerPhone,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastSale = &sale
	s.mu.Unlock()
	return nil
}

// Inventory

type CreateProduct struct{ Product models.Product }

func (a CreateProduct) apply(ctx context.Context, s *Session) error {
	_, err := s.inventory.Create(ctx, &s.user, a.Product)
	return err
}

type UpdateProduct struct{ Product models.Product }

func (a UpdateProduct) apply(ctx context.Context, s *Session) error {
	_, err := s.inventory.Update(ctx, &s.user, a.Product)
	return err
}

type DeleteProduct struct{ ProductID string }

func (a DeleteProduct) apply(ctx context.Context, s *Session) error {
	return s.inventory.Delete(ctx, &s.user, a.ProductID)
}

type Restock struct {
	ProductID string
	Units     int
}

func (a Restock) apply(ctx context.Context, s *Session) error {
	_, err := s.inventory.Restock(ctx, &s.user, a.ProductID, a.Units)
	return err
}

// Staff and tenant admin

// SaveUser creates a user (empty ID) or updates one. Anything carrying a
// password goes to the remote store first, since credentials are never
// kept on the terminal; other updates are local and sync later.
type SaveUser struct{ User models.User }

func (a SaveUser) apply(ctx context.Context, s *Session) error {
	u := a.User
	u.Name = strings.TrimSpace(u.Name)
	if u.Status == "" {
		u.Status = models.UserActive
	}
	if u.BusinessID == "" && u.Role.RequiresBusiness() {
		u.BusinessID = s.user.BusinessID
	}

	isNew := u.ID == ""
	var existing models.User
	if !isNew {
		var ok bool
		if existing, ok = s.store.User(u.ID); !ok {
			return apperr.NotFound("user %s", u.ID)
		}
	}
	if err := s.authorizeUser(u, existing, isNew); err != nil {
		return err
	}
	if err := s.uniqueName(u); err != nil {
		return err
	}

	action := audit.ActionUpdateUser
	if isNew {
		action = audit.ActionCreateUser
		if u.Password == "" {
			return apperr.Validation("a password is required for new users")
		}
		u.ID = uuid.NewString()
	}
	details := fmt.Sprintf("%s %s (%s)", strings.ToLower(strings.ReplaceAll(action, "_", " ")), u.Name, u.Role)

	if u.Password == "" {
		return s.store.Tx(ctx, func(tx *store.Tx) error {
			if _, err := tx.UpdateUser(u); err != nil {
				return err
			}
			_, err := audit.RecordTx(tx, action, details, &s.user)
			return err
		})
	}

	// 1. Remote first; offline this fails with ErrRemoteUnavailable
	if !s.bridge.Status().Connected {
		return apperr.RemoteUnavailable(errors.New("saving credentials needs a connection"))
	}
	rctx, cancel := s.remoteCtx(ctx)
	saved, err := s.remote.SaveUser(rctx, u)
	cancel()
	if err != nil {
		return err
	}

	// 2. Mirror what the remote store kept, without queueing it again
	if err := s.store.RemoteTx(ctx, func(tx *store.Tx) error {
		tx.SaveRemoteUser(saved.Sanitized())
		return nil
	}); err != nil {
		return err
	}
	_, err = s.audit.Record(ctx, action, details, &s.user)
	return err
}

// authorizeUser applies the same rules as the remote store so an action
// refused there is refused here first.
func (s *Session) authorizeUser(u, existing models.User, isNew bool) error {
	if !u.Role.Valid() {
		return apperr.Validation("unknown role %q", u.Role)
	}
	actor := s.user
	if !isNew && actor.ID == u.ID {
		if u.Role != existing.Role || u.BusinessID != existing.BusinessID {
			return apperr.Forbidden("you cannot change your own role or business")
		}
		return nil
	}
	if !actor.Role.CanManageStaff() || !actor.Role.CanAssign(u.Role) {
		return apperr.Forbidden("%s cannot manage %s accounts", actor.Role, u.Role)
	}
	if !isNew && !actor.Role.CanAssign(existing.Role) {
		return apperr.Forbidden("%s cannot manage %s accounts", actor.Role, existing.Role)
	}
	if !actor.Role.SeesAllTenants() {
		if u.BusinessID != actor.BusinessID || (!isNew && existing.BusinessID != actor.BusinessID) {
			return apperr.Forbidden("no access to business %s", u.BusinessID)
		}
	}
	return nil
}

func (s *Session) uniqueName(u models.User) error {
	key := remotestore.NameKey(u.Name)
	if key == "" {
		return apperr.Validation("user name is required")
	}
	for _, other := range s.store.Users() {
		if other.ID != u.ID && other.BusinessID == u.BusinessID && remotestore.NameKey(other.Name) == key {
			return apperr.Conflict("a user named %q already exists", u.Name)
		}
	}
	return nil
}

type DeleteUser struct{ UserID string }

func (a DeleteUser) apply(ctx context.Context, s *Session) error {
	if a.UserID == s.user.ID {
		return apperr.InvalidState("you cannot delete your own account")
	}
	target, ok := s.store.User(a.UserID)
	if !ok {
		return apperr.NotFound("user %s", a.UserID)
	}
	actor := s.user
	if !actor.Role.CanManageStaff() || !actor.Role.CanAssign(target.Role) {
		return apperr.Forbidden("%s cannot manage %s accounts", actor.Role, target.Role)
	}
	if !actor.Role.SeesAllTenants() && target.BusinessID != actor.BusinessID {
		return apperr.Forbidden("no access to business %s", target.BusinessID)
	}

	return s.store.Tx(ctx, func(tx *store.Tx) error {
		if err := tx.RemoveUser(a.UserID); err != nil {
			return err
		}
		_, err := audit.RecordTx(tx, audit.ActionDeleteUser, fmt.Sprintf("deleted user %s (%s)", target.Name, target.Role), &actor)
		return err
	})
}

// SaveBusiness edits a tenant profile. Owners keep their subscription as
// is; only the platform role may change it or open a tenant (empty ID).
type SaveBusiness struct{ Business models.Business }

func (a SaveBusiness) apply(ctx context.Context, s *Session) error {
	actor := s.user
	b := a.Business
	if !actor.Role.CanManageBusiness() {
		return apperr.Forbidden("%s cannot manage businesses", actor.Role)
	}
	if b.ID == "" && !actor.Role.SeesAllTenants() {
		return apperr.Forbidden("%s cannot open businesses", actor.Role)
	}
	if b.ID != "" && !actor.Role.SeesAllTenants() && b.ID != actor.BusinessID {
		return apperr.Forbidden("no access to business %s", b.ID)
	}

	return s.store.Tx(ctx, func(tx *store.Tx) error {
		action := audit.ActionUpdateBusiness
		if b.ID == "" {
			action = audit.ActionCreateBusiness
			var err error
			if b, err = tx.AddBusiness(b); err != nil {
				return err
			}
		} else {
			cur, ok := tx.Business(b.ID)
			if !ok {
				return apperr.NotFound("business %s", b.ID)
			}
			if !actor.Role.SeesAllTenants() {
				b.Subscription = cur.Subscription
			}
			var err error
			if b, err = tx.UpdateBusiness(b); err != nil {
				return err
			}
		}
		_, err := audit.RecordTx(tx, action, fmt.Sprintf("%s %s", strings.ToLower(strings.ReplaceAll(action, "_", " ")), b.Name), &actor)
		return err
	})
}

// Connectivity

type SetConnectivity struct{ Online bool }

func (a SetConnectivity) apply(_ context.Context, s *Session) error {
	s.bridge.SetOnline(a.Online)
	return nil
}
