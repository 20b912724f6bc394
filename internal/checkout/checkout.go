// Package checkout turns the active cart into a permanent sale.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"bar-pos/internal/apperr"
	"bar-pos/internal/audit"
	"bar-pos/internal/cart"
	"bar-pos/internal/models"
	"bar-pos/internal/store"
)

type Processor struct {
	cart *cart.Cart
}

func New(c *cart.Cart) *Processor {
	return &Processor{cart: c}
}

// Request is what the cashier enters at settlement.
type Request struct {
	PaymentMethod models.PaymentMethod
	CustomerPhone string
}

// Checkout records the cart as a sale by actor. Stock was reserved while
// items were added, so nothing is deducted here and nothing is returned.
// The sale, its audit entry and the emptied cart commit together.
func (p *Processor) Checkout(ctx context.Context, actor *models.User, req Request) (models.Sale, error) {
	if actor == nil {
		return models.Sale{}, apperr.InvalidState("no signed-in user")
	}
	if !req.PaymentMethod.Valid() {
		return models.Sale{}, apperr.Validation("unknown payment method %q", req.PaymentMethod)
	}

	var sale models.Sale
	err := p.cart.Settle(ctx, func(tx *store.Tx, items []models.CartItem) error {
		// 1. Freeze the items; the sale must not share memory with the cart
		frozen := make([]models.CartItem, len(items))
		copy(frozen, items)

		// 2. Build the sale header
		var err error
		sale, err = tx.AppendSale(models.Sale{
			BusinessID:    actor.Tenant(),
			Items:         frozen,
			TotalAmount:   cart.Sum(frozen),
			PaymentMethod: req.PaymentMethod,
			SalesPerson:   actor.Name,
			CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		})
		if err != nil {
			return err
		}

		// 3. Audit in the same commit
		details := fmt.Sprintf("Sale of %.2f (ID: %s)", sale.TotalAmount, sale.ID)
		_, err = audit.RecordTx(tx, audit.ActionSale, details, actor)
		return err
	})
	if err != nil {
		return models.Sale{}, err
	}
	return sale, nil
}
