package session

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bar-pos/internal/apperr"
	"bar-pos/internal/auth"
	"bar-pos/internal/handlers"
	"bar-pos/internal/logger"
	"bar-pos/internal/models"
	"bar-pos/internal/remote"
	"bar-pos/internal/remotestore"
	"bar-pos/internal/store"
	"bar-pos/internal/syncbridge"
)

var testCfg = syncbridge.Config{
	Timeout:       2 * time.Second,
	MaxAttempts:   2,
	Backoff:       time.Millisecond,
	ProbeInterval: 20 * time.Millisecond,
}

type fixture struct {
	t     *testing.T
	url   string
	admin *remote.Client // owner's own client, for checking the server side
	biz   models.Business
	owner models.User
	repo  *remotestore.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)
	repo := remotestore.NewMemoryRepository()
	h := handlers.New(remotestore.New(repo), auth.NewTokens("k", time.Hour), handlers.Options{
		UploadDir:         t.TempDir(),
		AllowRegistration: true,
	})
	srv := httptest.NewServer(handlers.NewRouter(h, nil))
	t.Cleanup(srv.Close)

	admin := remote.New(srv.URL, time.Second)
	owner, biz, err := admin.Register(context.Background(), remote.RegisterRequest{
		BusinessName: "Tipsy Goat", Username: "wanjiru", Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return &fixture{t: t, url: srv.URL, admin: admin, biz: biz, owner: owner, repo: repo}
}

func (f *fixture) login(username, password string) (*Session, *store.Store) {
	f.t.Helper()
	return f.loginTo("Tipsy Goat", username, password)
}

func (f *fixture) loginTo(business, username, password string) (*Session, *store.Store) {
	f.t.Helper()
	s, err := store.Open(context.Background(), store.NewMemoryPersister())
	if err != nil {
		f.t.Fatal(err)
	}
	sess, err := Login(context.Background(), s, remote.New(f.url, time.Second), testCfg, Credentials{
		Business: business, Username: username, Password: password,
	})
	if err != nil {
		f.t.Fatalf("login %s: %v", username, err)
	}
	f.t.Cleanup(func() { sess.Logout(context.Background()) })
	return sess, s
}

func (f *fixture) serverBundle() models.Bundle {
	f.t.Helper()
	b, err := f.admin.FetchBundle(context.Background())
	if err != nil {
		f.t.Fatal(err)
	}
	return b
}

func dispatch(t *testing.T, sess *Session, a Action) State {
	t.Helper()
	st, err := sess.Dispatch(context.Background(), a)
	if err != nil {
		t.Fatalf("%T: %v", a, err)
	}
	return st
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func actions(logs []models.AuditLog) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}

func TestSellAndSync(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.login("wanjiru", "pass1234")

	st := dispatch(t, sess, CreateProduct{Product: models.Product{Name: "Tusker", Category: "Beer", Price: 100, Stock: 5}})
	if len(st.Products) != 1 {
		t.Fatalf("products = %+v", st.Products)
	}
	id := st.Products[0].ID

	dispatch(t, sess, AddToCart{ProductID: id})
	st = dispatch(t, sess, AddToCart{ProductID: id})
	if len(st.Cart) != 1 || st.Cart[0].Quantity != 2 || st.Products[0].Stock != 3 || st.CartTotal != 200 {
		t.Fatalf("after adds: cart %+v products %+v", st.Cart, st.Products)
	}

	st = dispatch(t, sess, Checkout{PaymentMethod: models.PaymentCash})
	if st.LastSale == nil || st.LastSale.TotalAmount != 200 || len(st.Cart) != 0 || st.Products[0].Stock != 3 {
		t.Fatalf("after checkout: %+v", st)
	}
	if got := actions(st.AuditLogs); got[len(got)-1] != "SALE" {
		t.Errorf("audit trail = %v", got)
	}

	if err := sess.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := f.serverBundle().Snapshot
	if len(snap.Sales) != 1 || snap.Sales[0].TotalAmount != 200 {
		t.Errorf("server sales = %+v", snap.Sales)
	}
	if len(snap.Products) != 1 || snap.Products[0].Stock != 3 {
		t.Errorf("server products = %+v", snap.Products)
	}
	want := []string{"LOGIN", "CREATE_PRODUCT", "SALE", "LOGOUT"}
	got := actions(snap.AuditLogs)
	if len(got) != len(want) {
		t.Fatalf("server audit = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("server audit = %v, want %v", got, want)
			break
		}
	}

	if _, err := sess.Dispatch(context.Background(), ClearCart{}); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("dispatch after logout: got %v", err)
	}
}

func TestOfflineSalesReachServerLater(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.login("wanjiru", "pass1234")

	st := dispatch(t, sess, CreateProduct{Product: models.Product{Name: "Tusker", Price: 100, Stock: 5}})
	id := st.Products[0].ID
	waitFor(t, "product push", func() bool { return sess.State().Sync.Pending == 0 })

	dispatch(t, sess, SetConnectivity{Online: false})
	dispatch(t, sess, AddToCart{ProductID: id})
	st = dispatch(t, sess, Checkout{PaymentMethod: models.PaymentMpesa, CustomerPhone: "0712345678"})
	if st.Sync.State != syncbridge.Offline || st.Sync.Pending == 0 {
		t.Fatalf("sync = %+v", st.Sync)
	}
	if n := len(f.serverBundle().Snapshot.Sales); n != 0 {
		t.Fatalf("server got %d sales while offline", n)
	}

	dispatch(t, sess, SetConnectivity{Online: true})
	waitFor(t, "drain", func() bool { return sess.State().Sync.Pending == 0 })
	sales := f.serverBundle().Snapshot.Sales
	if len(sales) != 1 || sales[0].CustomerPhone != "0712345678" || sales[0].PaymentMethod != models.PaymentMpesa {
		t.Errorf("server sales = %+v", sales)
	}
}

func TestStaffAdmin(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.login("wanjiru", "pass1234")

	st := dispatch(t, sess, SaveUser{User: models.User{Name: "kamau", Role: models.RoleBartender, Password: "pass1234"}})
	var kamau models.User
	for _, u := range st.Users {
		if u.Name == "kamau" {
			kamau = u
		}
	}
	if kamau.ID == "" || kamau.BusinessID != f.biz.ID || kamau.Password != "" {
		t.Fatalf("users = %+v", st.Users)
	}

	// duplicate names inside a tenant are refused locally
	if _, err := sess.Dispatch(context.Background(), SaveUser{User: models.User{Name: "Kamau", Role: models.RoleAdmin, Password: "x1234"}}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate name: got %v", err)
	}
	if _, err := sess.Dispatch(context.Background(), DeleteUser{UserID: f.owner.ID}); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("self delete: got %v", err)
	}

	// a rename without a password is local and synced later
	kamau.Name = "kamau njoroge"
	dispatch(t, sess, SaveUser{User: kamau})
	waitFor(t, "rename push", func() bool { return sess.State().Sync.Pending == 0 })
	found := false
	for _, u := range f.serverBundle().Users {
		if u.ID == kamau.ID && u.Name == "kamau njoroge" {
			found = true
		}
	}
	if !found {
		t.Errorf("rename did not reach the server")
	}

	// the bartender can sell but not manage stock
	bartender, _ := f.login("kamau njoroge", "pass1234")
	if _, err := bartender.Dispatch(context.Background(), CreateProduct{Product: models.Product{Name: "Gin", Price: 10}}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("bartender create product: got %v", err)
	}
	if _, err := bartender.Dispatch(context.Background(), SaveBusiness{Business: models.Business{ID: f.biz.ID, Name: "Mine"}}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("bartender edit business: got %v", err)
	}

	// credentials need the remote store
	dispatch(t, sess, SetConnectivity{Online: false})
	if _, err := sess.Dispatch(context.Background(), SaveUser{User: models.User{Name: "achieng", Role: models.RoleBartender, Password: "pass1234"}}); !errors.Is(err, apperr.ErrRemoteUnavailable) {
		t.Errorf("offline create user: got %v", err)
	}
}

func TestOwnerEditsBusinessButNotSubscription(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.login("wanjiru", "pass1234")

	b := *sess.State().Business
	b.Name = "Tipsy Goat Lounge"
	b.Subscription.Status = models.SubscriptionActive
	st := dispatch(t, sess, SaveBusiness{Business: b})
	if st.Business.Name != "Tipsy Goat Lounge" || st.Business.Subscription.Status != models.SubscriptionTrial {
		t.Errorf("business = %+v", st.Business)
	}
	if _, err := sess.Dispatch(context.Background(), SaveBusiness{Business: models.Business{Name: "Second Bar"}}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("owner open business: got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	s, _ := store.Open(context.Background(), store.NewMemoryPersister())
	_, err := Login(context.Background(), s, remote.New(f.url, time.Second), testCfg, Credentials{
		Business: "Tipsy Goat", Username: "wanjiru", Password: "nope",
	})
	if !errors.Is(err, apperr.ErrCredentialMismatch) {
		t.Errorf("bad password: got %v", err)
	}
	if len(s.AuditLogs()) != 0 {
		t.Errorf("failed login must not be recorded locally")
	}
}

func TestPlatformSeesEveryTenantsTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("rootpass")
	if err != nil {
		t.Fatal(err)
	}
	root := models.User{ID: "root", Name: "root", Role: models.RoleSuperAdmin, Status: models.UserActive}
	if err := f.repo.SaveUser(ctx, auth.Account{User: root, PasswordHash: hash}); err != nil {
		t.Fatal(err)
	}
	_, blue, err := remote.New(f.url, time.Second).Register(ctx, remote.RegisterRequest{
		BusinessName: "Blue Bar", Username: "baraka", Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// each tenant leaves LOGIN and LOGOUT on the server
	goatSess, _ := f.login("wanjiru", "pass1234")
	if err := goatSess.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	blueSess, _ := f.loginTo("Blue Bar", "baraka", "pass1234")
	if err := blueSess.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}

	platform, _ := f.loginTo("platform", "root", "rootpass")
	tenants := map[string]int{}
	for _, l := range platform.State().AuditLogs {
		tenants[l.BusinessID]++
	}
	if tenants[f.biz.ID] < 2 || tenants[blue.ID] < 2 || tenants[models.PlatformTenant] < 1 {
		t.Errorf("platform trail by tenant = %v", tenants)
	}

	owner, _ := f.login("wanjiru", "pass1234")
	for _, l := range owner.State().AuditLogs {
		if l.BusinessID != f.biz.ID {
			t.Errorf("owner sees %s entry from %s", l.Action, l.BusinessID)
		}
	}
}
