package cart_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"bar-pos/internal/apperr"
	"bar-pos/internal/cart"
	"bar-pos/internal/models"
	"bar-pos/internal/store"
)

func setup(t *testing.T, stock int, price float64) (*store.Store, *cart.Cart, models.Product) {
	t.Helper()
	s, err := store.Open(context.Background(), store.NewMemoryPersister())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	p, err := s.AddProduct(context.Background(), models.Product{Name: "Tusker", Category: "Beer", Price: price, Stock: stock})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
	return s, cart.New(s), p
}

func stockOf(t *testing.T, s *store.Store, id string) int {
	t.Helper()
	p, ok := s.Product(id)
	if !ok {
		t.Fatalf("product %s missing", id)
	}
	return p.Stock
}

func reserved(c *cart.Cart, id string) int {
	for _, it := range c.Items() {
		if it.ID == id {
			return it.Quantity
		}
	}
	return 0
}

func TestAddItemTwice(t *testing.T) {
	ctx := context.Background()
	s, c, p := setup(t, 5, 100)

	for i := 0; i < 2; i++ {
		if _, err := c.AddItem(ctx, p.ID); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	items := c.Items()
	if len(items) != 1 || items[0].ID != p.ID || items[0].Quantity != 2 {
		t.Fatalf("unexpected cart %+v", items)
	}
	if got := stockOf(t, s, p.ID); got != 3 {
		t.Errorf("stock = %d, want 3", got)
	}
	if c.Total() != 200 {
		t.Errorf("total = %v, want 200", c.Total())
	}
}

func TestAddItemOutOfStock(t *testing.T) {
	ctx := context.Background()
	s, c, p := setup(t, 1, 100)

	if _, err := c.AddItem(ctx, p.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := c.AddItem(ctx, p.ID)
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected out of stock, got %v", err)
	}
	if reserved(c, p.ID) != 1 || stockOf(t, s, p.ID) != 0 {
		t.Errorf("failed add changed state")
	}
	if _, err := c.AddItem(ctx, "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAddThenRemoveRestoresStock(t *testing.T) {
	ctx := context.Background()
	s, c, p := setup(t, 5, 100)

	if _, err := c.AddItem(ctx, p.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := c.RemoveItem(ctx, p.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !c.Empty() {
		t.Errorf("cart not empty")
	}
	if got := stockOf(t, s, p.ID); got != 5 {
		t.Errorf("stock = %d, want 5", got)
	}
}

func TestSetQuantityUsesEffectiveDelta(t *testing.T) {
	tests := []struct {
		name      string
		adds      int
		delta     int
		wantQty   int
		wantStock int
		wantErr   error
	}{
		{name: "clamped to one", adds: 1, delta: -5, wantQty: 1, wantStock: 9},
		{name: "partly clamped", adds: 3, delta: -5, wantQty: 1, wantStock: 9},
		{name: "decrease", adds: 3, delta: -1, wantQty: 2, wantStock: 8},
		{name: "increase", adds: 1, delta: 4, wantQty: 5, wantStock: 5},
		{name: "increase past stock", adds: 2, delta: 9, wantQty: 2, wantStock: 8, wantErr: apperr.ErrInvalidState},
		{name: "zero", adds: 2, delta: 0, wantQty: 2, wantStock: 8},
		{name: "huge increase", adds: 3, delta: math.MaxInt, wantQty: 3, wantStock: 7, wantErr: apperr.ErrInvalidState},
		{name: "huge decrease", adds: 3, delta: math.MinInt, wantQty: 1, wantStock: 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, c, p := setup(t, 10, 50)
			for i := 0; i < tt.adds; i++ {
				if _, err := c.AddItem(ctx, p.ID); err != nil {
					t.Fatalf("add: %v", err)
				}
			}

			_, err := c.SetQuantity(ctx, p.ID, tt.delta)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("set quantity: %v", err)
			}
			if got := reserved(c, p.ID); got != tt.wantQty {
				t.Errorf("quantity = %d, want %d", got, tt.wantQty)
			}
			if got := stockOf(t, s, p.ID); got != tt.wantStock {
				t.Errorf("stock = %d, want %d", got, tt.wantStock)
			}
		})
	}
}

// stock + reserved stays equal to the stock seen before the first add.
func TestReservationInvariant(t *testing.T) {
	ctx := context.Background()
	s, c, p := setup(t, 6, 80)
	const initial = 6

	steps := []func() error{
		func() error { _, err := c.AddItem(ctx, p.ID); return err },
		func() error { _, err := c.AddItem(ctx, p.ID); return err },
		func() error { _, err := c.SetQuantity(ctx, p.ID, 3); return err },
		func() error { _, err := c.SetQuantity(ctx, p.ID, -10); return err },
		func() error { _, err := c.SetQuantity(ctx, p.ID, 20); return err },
		func() error { _, err := c.AddItem(ctx, p.ID); return err },
		func() error { return c.RemoveItem(ctx, p.ID) },
		func() error { _, err := c.AddItem(ctx, p.ID); return err },
		func() error { _, err := c.SetQuantity(ctx, p.ID, 5); return err },
		func() error { _, err := c.AddItem(ctx, p.ID); return err },
	}
	for i, step := range steps {
		_ = step() // some steps are refused on purpose
		if got := stockOf(t, s, p.ID) + reserved(c, p.ID); got != initial {
			t.Fatalf("after step %d: stock+reserved = %d, want %d", i, got, initial)
		}
		if stockOf(t, s, p.ID) < 0 {
			t.Fatalf("after step %d: negative stock", i)
		}
	}
}

func TestClearReturnsEverything(t *testing.T) {
	ctx := context.Background()
	s, c, p := setup(t, 5, 100)
	q, err := s.AddProduct(ctx, models.Product{Name: "Guinness", Price: 300, Stock: 3})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}

	_, _ = c.AddItem(ctx, p.ID)
	_, _ = c.AddItem(ctx, p.ID)
	_, _ = c.AddItem(ctx, q.ID)
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !c.Empty() {
		t.Errorf("cart not empty")
	}
	if stockOf(t, s, p.ID) != 5 || stockOf(t, s, q.ID) != 3 {
		t.Errorf("stock not returned")
	}
}

func TestPersistFailureLeavesCartUnchanged(t *testing.T) {
	ctx := context.Background()
	db := store.NewMemoryPersister()
	s, err := store.Open(ctx, db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	p, _ := s.AddProduct(ctx, models.Product{Name: "Tusker", Price: 250, Stock: 4})
	c := cart.New(s)

	db.Fail = errors.New("quota exceeded")
	if _, err := c.AddItem(ctx, p.ID); err == nil {
		t.Fatal("expected persist error")
	}
	if !c.Empty() || stockOf(t, s, p.ID) != 4 {
		t.Errorf("failed commit changed cart or stock")
	}
}

func TestRemoveItemAfterProductDeleted(t *testing.T) {
	ctx := context.Background()
	s, c, p := setup(t, 5, 100)
	_, _ = c.AddItem(ctx, p.ID)

	if err := s.RemoveProduct(ctx, p.ID); err != nil {
		t.Fatalf("remove product: %v", err)
	}
	if err := c.RemoveItem(ctx, p.ID); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if !c.Empty() {
		t.Errorf("cart not empty")
	}
}
