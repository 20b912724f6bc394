package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"bar-pos/internal/apperr"
	"bar-pos/internal/config"
	"bar-pos/internal/localdb"
	"bar-pos/internal/logger"
	"bar-pos/internal/models"
	"bar-pos/internal/remote"
	"bar-pos/internal/session"
	"bar-pos/internal/store"
	"bar-pos/internal/syncbridge"
	"bar-pos/internal/utils"
)

const help = `commands:
  login <business|platform> <username> <password>
  products
  add <productId>
  qty <productId> <+n|-n>
  remove <productId>
  clear
  checkout <Cash|Mpesa> [phone]
  online | offline
  status
  logout
  quit`

type terminal struct {
	store  *store.Store
	remote *remote.Client
	cfg    syncbridge.Config
	sess   *session.Session
}

func main() {
	config.LoadEnv()
	cfg := config.LoadTerminal()
	if err := logger.Setup(logger.Config{Directory: cfg.LogDir, FileFormat: "terminal-%s.log"}); err != nil {
		logger.LogFatal("logger setup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Local database
	db, err := localdb.Open(cfg.LocalDBPath)
	if err != nil {
		logger.LogFatal("open local database: %v", err)
	}
	defer db.Close()

	s, err := store.Open(ctx, db)
	if err != nil {
		logger.LogFatal("load local state: %v", err)
	}
	logger.LogInfo("terminal %s ready, %d operations waiting to sync", utils.GetDeviceID(), len(s.Pending()))

	t := &terminal{
		store:  s,
		remote: remote.New(cfg.RemoteURL, cfg.SyncTimeout),
		cfg: syncbridge.Config{
			Timeout:       cfg.SyncTimeout,
			MaxAttempts:   cfg.SyncAttempts,
			ProbeInterval: cfg.ProbeInterval,
		},
	}

	// 2. REPL
	fmt.Println(help)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			t.logout(context.Background())
			return
		case l, ok := <-lines:
			if !ok {
				t.logout(context.Background())
				return
			}
			line = l
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			t.logout(context.Background())
			return
		}
		if err := t.exec(ctx, args); err != nil {
			fmt.Println("error:", apperr.Message(err))
		}
	}
}

func (t *terminal) exec(ctx context.Context, args []string) error {
	if args[0] == "help" {
		fmt.Println(help)
		return nil
	}
	if args[0] == "login" {
		return t.login(ctx, args[1:])
	}
	if t.sess == nil {
		return apperr.InvalidState("not logged in")
	}

	var action session.Action
	switch args[0] {
	case "products":
		printProducts(t.sess.State())
		return nil
	case "status":
		printStatus(t.sess.State())
		return nil
	case "logout":
		t.logout(ctx)
		return nil
	case "add":
		if len(args) != 2 {
			return apperr.Validation("usage: add <productId>")
		}
		action = session.AddToCart{ProductID: args[1]}
	case "qty":
		if len(args) != 3 {
			return apperr.Validation("usage: qty <productId> <+n|-n>")
		}
		delta, err := strconv.Atoi(args[2])
		if err != nil {
			return apperr.Validation("quantity change must be a number")
		}
		action = session.AdjustQuantity{ProductID: args[1], Delta: delta}
	case "remove":
		if len(args) != 2 {
			return apperr.Validation("usage: remove <productId>")
		}
		action = session.RemoveFromCart{ProductID: args[1]}
	case "clear":
		action = session.ClearCart{}
	case "checkout":
		if len(args) < 2 {
			return apperr.Validation("usage: checkout <Cash|Mpesa> [phone]")
		}
		co := session.Checkout{PaymentMethod: models.PaymentMethod(args[1])}
		if len(args) > 2 {
			co.CustomerPhone = args[2]
		}
		action = co
	case "online":
		action = session.SetConnectivity{Online: true}
	case "offline":
		action = session.SetConnectivity{Online: false}
	default:
		return apperr.Validation("unknown command %q, type help", args[0])
	}

	st, err := t.sess.Dispatch(ctx, action)
	if err != nil {
		return err
	}
	if _, ok := action.(session.Checkout); ok && st.LastSale != nil {
		printReceipt(*st.LastSale)
		return nil
	}
	printCart(st)
	return nil
}

func (t *terminal) login(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return apperr.Validation("usage: login <business|platform> <username> <password>")
	}
	if t.sess != nil {
		t.logout(ctx)
	}
	sess, err := session.Login(ctx, t.store, t.remote, t.cfg, session.Credentials{
		Business: args[0],
		Username: args[1],
		Password: args[2],
	})
	if err != nil {
		return err
	}
	t.sess = sess
	u := sess.User()
	fmt.Printf("welcome %s (%s)\n", u.Name, u.Role)
	return nil
}

func (t *terminal) logout(ctx context.Context) {
	if t.sess == nil {
		return
	}
	if err := t.sess.Logout(ctx); err != nil {
		logger.LogWarn("logout: %v", err)
	}
	t.sess = nil
	t.remote.SetToken("")
	fmt.Println("logged out")
}

func printProducts(st session.State) {
	for _, p := range st.Products {
		fmt.Printf("  %-36s %-24s %8.2f  stock %d\n", p.ID, p.Name, p.Price, p.Stock)
	}
	if len(st.Products) == 0 {
		fmt.Println("  no products")
	}
}

func printCart(st session.State) {
	for _, it := range st.Cart {
		fmt.Printf("  %-24s x%-3d %8.2f\n", it.Name, it.Quantity, it.Price*float64(it.Quantity))
	}
	fmt.Printf("  total %.2f\n", st.CartTotal)
}

func printReceipt(s models.Sale) {
	fmt.Printf("sale %s  %s\n", s.ID, s.Date.Format("2006-01-02 15:04"))
	for _, it := range s.Items {
		fmt.Printf("  %-24s x%-3d %8.2f\n", it.Name, it.Quantity, it.Price*float64(it.Quantity))
	}
	fmt.Printf("  total %.2f (%s)\n", s.TotalAmount, s.PaymentMethod)
}

func printStatus(st session.State) {
	fmt.Printf("user      %s (%s)\n", st.User.Name, st.User.Role)
	if st.Business != nil {
		fmt.Printf("business  %s [%s]\n", st.Business.Name, st.Business.Subscription.Status)
	}
	fmt.Printf("sync      %s connected=%t pending=%d rejected=%d\n",
		st.Sync.State, st.Sync.Connected, st.Sync.Pending, st.Sync.Rejected)
	if !st.Sync.LastSync.IsZero() {
		fmt.Printf("last sync %s\n", st.Sync.LastSync.Format("2006-01-02 15:04:05"))
	}
	if st.Sync.LastError != "" {
		fmt.Printf("error     %s\n", st.Sync.LastError)
	}
}
