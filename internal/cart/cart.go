// Package cart holds the in-progress transaction. Stock is reserved the
// moment an item enters the cart, so every operation moves product stock
// and cart quantities together inside one store transaction.
package cart

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"bar-pos/internal/apperr"
	"bar-pos/internal/models"
	"bar-pos/internal/store"
)

type Cart struct {
	mu    sync.Mutex
	store *store.Store
	items []models.CartItem
}

func New(s *store.Store) *Cart {
	return &Cart{store: s}
}

// Items returns a copy of the line items in the order they were added.
func (c *Cart) Items() []models.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.CartItem(nil), c.items...)
}

func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0
}

// Total is the sum of price x quantity using the prices captured when each
// item entered the cart.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Sum(c.items)
}

// Sum adds up price x quantity for items.
func Sum(items []models.CartItem) float64 {
	total := decimal.Zero
	for _, it := range items {
		line := decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(line)
	}
	return total.Round(2).InexactFloat64()
}

func (c *Cart) index(productID string) int {
	for i, it := range c.items {
		if it.ID == productID {
			return i
		}
	}
	return -1
}

// AddItem reserves one unit of productID.
func (c *Cart) AddItem(ctx context.Context, productID string) (models.CartItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var item models.CartItem
	err := c.store.Tx(ctx, func(tx *store.Tx) error {
		// 1. Check stock against the store, not a caller's copy
		p, ok := tx.Product(productID)
		if !ok {
			return apperr.NotFound("product %s", productID)
		}
		if p.Stock <= 0 {
			return apperr.InvalidState("%s is out of stock", p.Name)
		}

		// 2. Reserve
		if _, err := tx.AddStock(productID, -1); err != nil {
			return err
		}

		// 3. New line or one more on the existing line
		if i := c.index(productID); i >= 0 {
			item = c.items[i]
			item.Quantity++
		} else {
			item = models.CartItem{Product: p, Quantity: 1}
		}
		return nil
	})
	if err != nil {
		return models.CartItem{}, err
	}

	if i := c.index(productID); i >= 0 {
		c.items[i] = item
	} else {
		c.items = append(c.items, item)
	}
	return item, nil
}

// SetQuantity moves a line's quantity by delta, never below 1. Stock moves
// by the change actually applied, so a clamped request reserves or returns
// only what the line really changed by. Growing a line past the available
// stock is refused.
func (c *Cart) SetQuantity(ctx context.Context, productID string, delta int) (models.CartItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(productID)
	if i < 0 {
		return models.CartItem{}, apperr.NotFound("product %s is not in the cart", productID)
	}
	item := c.items[i]
	// compared against the floor rather than summed, so a huge delta cannot wrap
	effective := delta
	if delta < 0 {
		effective = max(delta, 1-item.Quantity)
	}
	if effective == 0 {
		return item, nil
	}

	err := c.store.Tx(ctx, func(tx *store.Tx) error {
		p, ok := tx.Product(productID)
		if !ok {
			// product was deleted meanwhile; only shrinking the line is allowed
			if effective > 0 {
				return apperr.NotFound("product %s", productID)
			}
			return nil
		}
		if effective > 0 && p.Stock < effective {
			return apperr.InvalidState("%s is out of stock", p.Name)
		}
		_, err := tx.AddStock(productID, -effective)
		return err
	})
	if err != nil {
		return models.CartItem{}, err
	}

	item.Quantity += effective
	c.items[i] = item
	return item, nil
}

// RemoveItem drops a line and gives its whole quantity back to stock.
func (c *Cart) RemoveItem(ctx context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(productID)
	if i < 0 {
		return apperr.NotFound("product %s is not in the cart", productID)
	}
	err := c.store.Tx(ctx, func(tx *store.Tx) error {
		return release(tx, c.items[i])
	})
	if err != nil {
		return err
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return nil
}

// Clear empties the cart and returns every reserved unit to stock.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) == 0 {
		return nil
	}
	err := c.store.Tx(ctx, func(tx *store.Tx) error {
		for _, it := range c.items {
			if err := release(tx, it); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.items = nil
	return nil
}

func release(tx *store.Tx, it models.CartItem) error {
	if _, ok := tx.Product(it.ID); !ok {
		return nil
	}
	_, err := tx.AddStock(it.ID, it.Quantity)
	return err
}

// Settle runs fn with the current items inside one store transaction and
// empties the cart, without returning stock, once the transaction commits.
// An empty cart is refused before fn runs.
func (c *Cart) Settle(ctx context.Context, fn func(tx *store.Tx, items []models.CartItem) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) == 0 {
		return apperr.InvalidState("cart is empty")
	}
	items := append([]models.CartItem(nil), c.items...)
	if err := c.store.Tx(ctx, func(tx *store.Tx) error { return fn(tx, items) }); err != nil {
		return err
	}
	c.items = nil
	return nil
}
