// Package inventory is product management for back-office roles.
package inventory

import (
	"context"
	"fmt"

	"bar-pos/internal/apperr"
	"bar-pos/internal/audit"
	"bar-pos/internal/models"
	"bar-pos/internal/store"
)

type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

func authorize(actor *models.User) error {
	if actor == nil {
		return apperr.InvalidState("no signed-in user")
	}
	if !actor.Role.CanManageInventory() {
		return apperr.Forbidden("%s cannot manage inventory", actor.Role)
	}
	return nil
}

// Create adds p to the actor's tenant.
func (s *Service) Create(ctx context.Context, actor *models.User, p models.Product) (models.Product, error) {
	if err := authorize(actor); err != nil {
		return models.Product{}, err
	}
	if p.BusinessID == "" {
		p.BusinessID = actor.BusinessID
	}

	var out models.Product
	err := s.store.Tx(ctx, func(tx *store.Tx) error {
		var err error
		if out, err = tx.AddProduct(p); err != nil {
			return err
		}
		_, err = audit.RecordTx(tx, audit.ActionCreateProduct,
			fmt.Sprintf("Added %s (%s) at %.2f, stock %d", out.Name, out.Category, out.Price, out.Stock), actor)
		return err
	})
	return out, err
}

// Update edits a product. Additions only move through Restock.
func (s *Service) Update(ctx context.Context, actor *models.User, p models.Product) (models.Product, error) {
	if err := authorize(actor); err != nil {
		return models.Product{}, err
	}

	var out models.Product
	err := s.store.Tx(ctx, func(tx *store.Tx) error {
		cur, ok := tx.Product(p.ID)
		if !ok {
			return apperr.NotFound("product %s", p.ID)
		}
		p.Additions = cur.Additions
		if p.BusinessID == "" {
			p.BusinessID = cur.BusinessID
		}
		var err error
		if out, err = tx.UpdateProduct(p); err != nil {
			return err
		}
		_, err = audit.RecordTx(tx, audit.ActionUpdateProduct, fmt.Sprintf("Updated %s", out.Name), actor)
		return err
	})
	return out, err
}

func (s *Service) Delete(ctx context.Context, actor *models.User, id string) error {
	if err := authorize(actor); err != nil {
		return err
	}
	return s.store.Tx(ctx, func(tx *store.Tx) error {
		p, ok := tx.Product(id)
		if !ok {
			return apperr.NotFound("product %s", id)
		}
		if err := tx.RemoveProduct(id); err != nil {
			return err
		}
		_, err := audit.RecordTx(tx, audit.ActionDeleteProduct, fmt.Sprintf("Deleted %s", p.Name), actor)
		return err
	})
}

// Restock receives units of new stock for a product.
func (s *Service) Restock(ctx context.Context, actor *models.User, id string, units int) (models.Product, error) {
	if err := authorize(actor); err != nil {
		return models.Product{}, err
	}
	if units <= 0 {
		return models.Product{}, apperr.Validation("restock quantity must be positive")
	}

	var out models.Product
	err := s.store.Tx(ctx, func(tx *store.Tx) error {
		p, ok := tx.Product(id)
		if !ok {
			return apperr.NotFound("product %s", id)
		}
		p.Stock += units
		p.Additions += units
		var err error
		if out, err = tx.UpdateProduct(p); err != nil {
			return err
		}
		_, err = audit.RecordTx(tx, audit.ActionRestock,
			fmt.Sprintf("Restocked %s +%d (now %d)", out.Name, units, out.Stock), actor)
		return err
	})
	return out, err
}
