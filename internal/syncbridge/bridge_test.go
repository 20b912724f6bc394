package syncbridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"bar-pos/internal/apperr"
	"bar-pos/internal/logger"
	"bar-pos/internal/models"
	"bar-pos/internal/store"
)

type fakeRemote struct {
	mu       sync.Mutex
	calls    []string
	products []models.Product
	sales    []models.Sale
	bundle   models.Bundle
	errFor   func(method string) error
}

func (f *fakeRemote) setErr(fn func(method string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errFor = fn
}

func (f *fakeRemote) record(call, method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.errFor != nil {
		return f.errFor(method)
	}
	return nil
}

func (f *fakeRemote) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(method) && c[:len(method)] == method {
			n++
		}
	}
	return n
}

func (f *fakeRemote) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) FetchBundle(ctx context.Context) (models.Bundle, error) {
	if err := f.record("FetchBundle", "FetchBundle"); err != nil {
		return models.Bundle{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bundle, nil
}

func (f *fakeRemote) ReplaceProducts(ctx context.Context, businessID string, products []models.Product) error {
	if err := f.record("ReplaceProducts:"+businessID, "ReplaceProducts"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = products
	return nil
}

func (f *fakeRemote) AppendSale(ctx context.Context, businessID string, s models.Sale) error {
	if err := f.record("AppendSale:"+businessID, "AppendSale"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sales = append(f.sales, s)
	return nil
}

func (f *fakeRemote) AppendAuditLog(ctx context.Context, businessID string, l models.AuditLog) error {
	return f.record("AppendAuditLog:"+businessID, "AppendAuditLog")
}

func (f *fakeRemote) SaveUser(ctx context.Context, u models.User) (models.User, error) {
	return u, f.record("SaveUser:"+u.ID, "SaveUser")
}

func (f *fakeRemote) DeleteUser(ctx context.Context, id string) error {
	return f.record("DeleteUser:"+id, "DeleteUser")
}

func (f *fakeRemote) SaveBusiness(ctx context.Context, b models.Business) (models.Business, error) {
	return b, f.record("SaveBusiness:"+b.ID, "SaveBusiness")
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	return f.record("Ping", "Ping")
}

var fast = Config{Timeout: time.Second, MaxAttempts: 3, Backoff: time.Millisecond, ProbeInterval: time.Hour}

func setup(t *testing.T, cfg Config) (*store.Store, *fakeRemote, *Bridge) {
	t.Helper()
	logger.SetOutput(io.Discard)
	s, err := store.Open(context.Background(), store.NewMemoryPersister())
	if err != nil {
		t.Fatal(err)
	}
	r := &fakeRemote{}
	return s, r, New(s, r, "b1", cfg)
}

func unavailable(string) error { return apperr.RemoteUnavailable(errors.New("connection refused")) }

func recordSale(t *testing.T, s *store.Store, p models.Product) {
	t.Helper()
	err := s.Tx(context.Background(), func(tx *store.Tx) error {
		sale, err := tx.AppendSale(models.Sale{BusinessID: "b1", Items: []models.CartItem{{Product: p, Quantity: 1}}, TotalAmount: p.Price})
		if err != nil {
			return err
		}
		_, err = tx.AppendAuditLog(models.AuditLog{BusinessID: "b1", Action: "SALE", Details: sale.ID})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFlushPushesInCommitOrder(t *testing.T) {
	ctx := context.Background()
	s, r, b := setup(t, fast)

	p, err := s.AddProduct(ctx, models.Product{BusinessID: "b1", Name: "Tusker", Price: 100, Stock: 5})
	if err != nil {
		t.Fatal(err)
	}
	recordSale(t, s, p)
	u, err := s.AddUser(ctx, models.User{Name: "kamau", Role: models.RoleBartender, BusinessID: "b1"})
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	want := []string{"ReplaceProducts:b1", "AppendSale:b1", "AppendAuditLog:b1", "SaveUser:" + u.ID}
	got := r.callList()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
	st := b.Status()
	if st.Pending != 0 || st.State != Online || st.LastSync.IsZero() {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestUnavailableRetriesThenGoesOffline(t *testing.T) {
	ctx := context.Background()
	s, r, b := setup(t, fast)
	if _, err := s.AddProduct(ctx, models.Product{Name: "Tusker", Price: 100, Stock: 5}); err != nil {
		t.Fatal(err)
	}

	r.setErr(unavailable)
	if err := b.Flush(ctx); !errors.Is(err, apperr.ErrRemoteUnavailable) {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
	if n := r.count("ReplaceProducts"); n != fast.MaxAttempts {
		t.Errorf("attempts = %d, want %d", n, fast.MaxAttempts)
	}
	st := b.Status()
	if st.State != Offline || st.Pending != 1 || st.LastError == "" {
		t.Errorf("unexpected status %+v", st)
	}
	// local state is untouched
	if len(s.Products()) != 1 {
		t.Errorf("local products lost")
	}

	r.setErr(nil)
	b.SetOnline(true)
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("flush after recovery: %v", err)
	}
	if st := b.Status(); st.State != Online || st.Pending != 0 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestRejectedOpIsDropped(t *testing.T) {
	ctx := context.Background()
	s, r, b := setup(t, fast)
	recordSale(t, s, models.Product{ID: "p1", Name: "Tusker", Price: 100})

	r.setErr(func(method string) error {
		if method == "AppendSale" {
			return apperr.Validation("sale needs an id and at least one item")
		}
		return nil
	})
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	st := b.Status()
	if st.Pending != 0 || st.Rejected != 1 {
		t.Errorf("unexpected status %+v", st)
	}
	if r.count("AppendSale") != 1 || r.count("AppendAuditLog") != 1 {
		t.Errorf("calls = %v", r.callList())
	}
}

func TestDeleteOfMissingUserSucceeds(t *testing.T) {
	ctx := context.Background()
	s, r, b := setup(t, fast)
	u, err := s.AddUser(ctx, models.User{Name: "kamau", Role: models.RoleBartender, BusinessID: "b1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveUser(ctx, u.ID); err != nil {
		t.Fatal(err)
	}

	r.setErr(func(method string) error {
		if method == "DeleteUser" {
			return apperr.NotFound("user %s", u.ID)
		}
		return nil
	})
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if st := b.Status(); st.Pending != 0 || st.Rejected != 0 {
		t.Errorf("unexpected status %+v", st)
	}
	// the put was superseded by the delete in the same key
	if r.count("SaveUser") != 0 {
		t.Errorf("calls = %v", r.callList())
	}
}

func TestCredentialFailureKeepsQueue(t *testing.T) {
	ctx := context.Background()
	s, r, b := setup(t, fast)
	if _, err := s.AddProduct(ctx, models.Product{Name: "Tusker", Price: 100, Stock: 5}); err != nil {
		t.Fatal(err)
	}
	r.setErr(func(string) error { return apperr.ErrCredentialMismatch })

	if err := b.Flush(ctx); !errors.Is(err, apperr.ErrCredentialMismatch) {
		t.Fatalf("got %v", err)
	}
	if r.count("ReplaceProducts") != 1 {
		t.Errorf("credential errors must not be retried")
	}
	if st := b.Status(); st.Pending != 1 || st.State != Online {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestDisconnectedFlushDoesNothing(t *testing.T) {
	ctx := context.Background()
	s, r, b := setup(t, fast)
	b.SetOnline(false)
	if _, err := s.AddProduct(ctx, models.Product{Name: "Tusker", Price: 100, Stock: 5}); err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(ctx); !errors.Is(err, apperr.ErrRemoteUnavailable) {
		t.Errorf("got %v", err)
	}
	if len(r.callList()) != 0 {
		t.Errorf("calls = %v", r.callList())
	}
	if st := b.Status(); st.State != Offline || st.Connected || st.Pending != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestOtherTenantProductsAreNotPushed(t *testing.T) {
	ctx := context.Background()
	s, r, b := setup(t, fast)
	if _, err := s.AddProduct(ctx, models.Product{BusinessID: "b2", Name: "Guinness", Price: 250, Stock: 4}); err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if r.count("ReplaceProducts") != 0 || b.Status().Pending != 0 {
		t.Errorf("calls = %v", r.callList())
	}

	if _, err := s.AddProduct(ctx, models.Product{BusinessID: "b1", Name: "Tusker", Price: 100, Stock: 5}); err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if len(r.products) != 1 || r.products[0].Name != "Tusker" {
		t.Errorf("pushed %+v", r.products)
	}
}

func TestWorkerPushesAfterCommit(t *testing.T) {
	ctx := context.Background()
	s, r, b := setup(t, fast)
	b.Start(ctx)
	defer b.Stop()

	if _, err := s.AddProduct(ctx, models.Product{Name: "Tusker", Price: 100, Stock: 5}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "push", func() bool { return r.count("ReplaceProducts") > 0 && len(s.Pending()) == 0 })
}

func TestProbeBringsBridgeBackOnline(t *testing.T) {
	ctx := context.Background()
	cfg := fast
	cfg.ProbeInterval = 10 * time.Millisecond
	s, r, b := setup(t, cfg)
	r.setErr(unavailable)
	b.Start(ctx)
	defer b.Stop()

	if _, err := s.AddProduct(ctx, models.Product{Name: "Tusker", Price: 100, Stock: 5}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "offline", func() bool { return b.Status().State == Offline })
	if len(s.Products()) != 1 {
		t.Fatalf("local commit lost")
	}

	r.setErr(nil)
	waitFor(t, "online and drained", func() bool {
		st := b.Status()
		return st.State == Online && st.Pending == 0
	})
	if r.count("Ping") == 0 {
		t.Errorf("no probe was sent")
	}
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	remoteProduct := models.Product{ID: "rp", BusinessID: "b1", Name: "Remote Beer", Price: 150, Stock: 9}

	t.Run("applies bundle when nothing is pending", func(t *testing.T) {
		s, r, b := setup(t, fast)
		bundle := models.Bundle{Snapshot: models.Snapshot{BusinessID: "b1", Products: []models.Product{remoteProduct}}}
		if err := b.Reconcile(ctx, bundle); err != nil {
			t.Fatal(err)
		}
		if got := s.Products(); len(got) != 1 || got[0].ID != "rp" {
			t.Errorf("products = %+v", got)
		}
		if len(s.Pending()) != 0 || len(r.callList()) != 0 {
			t.Errorf("apply must not queue or call: %v", r.callList())
		}
	})

	t.Run("pushes pending first then pulls", func(t *testing.T) {
		s, r, b := setup(t, fast)
		if _, err := s.AddProduct(ctx, models.Product{BusinessID: "b1", Name: "Tusker", Price: 100, Stock: 5}); err != nil {
			t.Fatal(err)
		}
		r.bundle = models.Bundle{Snapshot: models.Snapshot{BusinessID: "b1", Products: []models.Product{remoteProduct}}}
		if err := b.Reconcile(ctx, models.Bundle{}); err != nil {
			t.Fatal(err)
		}
		calls := r.callList()
		if len(calls) != 2 || calls[0] != "ReplaceProducts:b1" || calls[1] != "FetchBundle" {
			t.Errorf("calls = %v", calls)
		}
		if got := s.Products(); len(got) != 1 || got[0].ID != "rp" {
			t.Errorf("products = %+v", got)
		}
	})

	t.Run("keeps local state when push fails", func(t *testing.T) {
		s, r, b := setup(t, fast)
		p, err := s.AddProduct(ctx, models.Product{BusinessID: "b1", Name: "Tusker", Price: 100, Stock: 5})
		if err != nil {
			t.Fatal(err)
		}
		r.setErr(unavailable)
		err = b.Reconcile(ctx, models.Bundle{Snapshot: models.Snapshot{Products: []models.Product{remoteProduct}}})
		if !errors.Is(err, apperr.ErrRemoteUnavailable) {
			t.Fatalf("got %v", err)
		}
		if got := s.Products(); len(got) != 1 || got[0].ID != p.ID {
			t.Errorf("products = %+v", got)
		}
	})
}
