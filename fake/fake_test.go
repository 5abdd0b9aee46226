package fake_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chimerakang/changedesk"
	"github.com/chimerakang/changedesk/api"
	"github.com/chimerakang/changedesk/fake"
	"github.com/chimerakang/changedesk/token"
)

func setup(t *testing.T, opts ...fake.Option) (*fake.Server, *api.Client) {
	t.Helper()
	opts = append([]fake.Option{
		fake.WithUser(1, "admin", "admin123", changedesk.RoleAdmin, "Administrateur"),
		fake.WithUser(2, "bob", "bobpw", changedesk.RoleSupervisor, ""),
		fake.WithUser(3, "alice", "secret", changedesk.RoleCashier, "Alice A."),
		fake.WithCurrency("EUR", "Euro", "€", 655.957, 655.957, true),
		fake.WithCurrency("USD", "Dollar", "$", 600, 610, false),
	}, opts...)
	srv := fake.New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := api.New(api.Config{BaseURL: ts.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return srv, c
}

func loginAs(t *testing.T, c *api.Client, user, pass string) *api.LoginResult {
	t.Helper()
	res, err := c.Auth.Login(context.Background(), user, pass)
	if err != nil {
		t.Fatalf("Login(%s): %v", user, err)
	}
	c.SetToken(res.Token)
	return res
}

// --- auth ---

func TestLogin_IssuesDecodableToken(t *testing.T) {
	_, c := setup(t)

	res := loginAs(t, c, "alice", "secret")
	if res.User.ID != 3 || res.User.Role != changedesk.RoleCashier || res.User.FullName != "Alice A." {
		t.Errorf("user = %+v", res.User)
	}

	claims, err := token.NewDecoder().Decode(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.UserID != 3 || claims.Username != "alice" || claims.ID == "" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	_, c := setup(t)

	_, err := c.Auth.Login(context.Background(), "alice", "wrong")
	if !api.IsUnauthorized(err) || api.MessageOf(err, "") != "Invalid credentials" {
		t.Fatalf("err = %v", err)
	}
}

func TestAuth_MissingAndRevokedToken(t *testing.T) {
	srv, c := setup(t)
	ctx := context.Background()

	if _, err := c.Currencies.List(ctx); !api.IsUnauthorized(err) {
		t.Fatalf("no token: err = %v", err)
	}

	res := loginAs(t, c, "alice", "secret")
	if _, err := c.Currencies.List(ctx); err != nil {
		t.Fatalf("with token: %v", err)
	}

	srv.Revoke(res.Token)
	if _, err := c.Currencies.List(ctx); !api.IsUnauthorized(err) {
		t.Fatalf("revoked: err = %v", err)
	}
}

func TestAuth_ExpiredToken(t *testing.T) {
	srv, c := setup(t)

	tok, err := srv.IssueToken(3, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	c.SetToken(tok)
	if _, err := c.Currencies.List(context.Background()); !api.IsUnauthorized(err) {
		t.Fatalf("expired: err = %v", err)
	}
	if _, err := srv.IssueToken(42, time.Now()); err == nil {
		t.Error("IssueToken for unknown user should fail")
	}
}

// --- roles ---

func TestAdminOnlyEndpoints(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()

	loginAs(t, c, "alice", "secret")
	if _, err := c.Users.List(ctx); api.StatusOf(err) != 403 {
		t.Errorf("cashier listing users: %v", err)
	}
	if _, err := c.Reports.Get(ctx, api.ReportFilter{}); api.StatusOf(err) != 403 {
		t.Errorf("cashier reading reports: %v", err)
	}

	loginAs(t, c, "bob", "bobpw")
	if _, err := c.Reports.Get(ctx, api.ReportFilter{Type: api.ReportSupplies}); err != nil {
		t.Errorf("supervisor reading reports: %v", err)
	}

	loginAs(t, c, "admin", "admin123")
	users, err := c.Users.List(ctx)
	if err != nil || len(users) != 3 {
		t.Fatalf("admin listing users: %v, %v", users, err)
	}
	if users[0].FullName != "Administrateur" {
		t.Errorf("first user = %+v", users[0])
	}
}

func TestUsersLifecycle(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()
	loginAs(t, c, "admin", "admin123")

	if err := c.Users.Create(ctx, api.UserInput{Username: "carol", Password: "pw", FullName: "Carol", Role: "cashier"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Users.Create(ctx, api.UserInput{Username: "carol", Password: "pw", Role: "cashier"}); api.StatusOf(err) != 409 {
		t.Errorf("duplicate user: %v", err)
	}
	if err := c.Users.Create(ctx, api.UserInput{Username: "dave", Password: "pw", Role: "auditor"}); api.StatusOf(err) != 400 {
		t.Errorf("unknown role: %v", err)
	}
	users, err := c.Users.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var carol int64
	for _, u := range users {
		if u.Username == "carol" {
			carol = u.ID
		}
	}
	if carol == 0 {
		t.Fatalf("carol not listed: %+v", users)
	}
	if err := c.Users.Update(ctx, carol, api.UserInput{Role: "supervisor"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Users.Delete(ctx, 1); api.StatusOf(err) != 400 {
		t.Errorf("self delete: %v", err)
	}
	if err := c.Users.Delete(ctx, carol); err != nil {
		t.Fatal(err)
	}
	if err := c.Users.Delete(ctx, carol); api.StatusOf(err) != 404 {
		t.Errorf("second delete: %v", err)
	}
}

// --- currencies ---

func TestCurrencies(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()
	loginAs(t, c, "admin", "admin123")

	active, err := c.Currencies.Active(ctx)
	if err != nil || len(active) != 1 || active[0].Code != "EUR" {
		t.Fatalf("Active = %+v, %v", active, err)
	}
	if err := c.Currencies.SetActive(ctx, active[0].ID, false); err != nil {
		t.Fatal(err)
	}
	if err := c.Currencies.Create(ctx, api.CurrencyInput{Code: "GBP", Name: "Livre", Symbol: "£", BuyRate: 760, SellRate: 770}); err != nil {
		t.Fatal(err)
	}
	active, _ = c.Currencies.Active(ctx)
	if len(active) != 1 || active[0].Code != "GBP" || active[0].SellRate != 770 {
		t.Errorf("Active after changes = %+v", active)
	}
}

// --- cash register flow ---

func TestCashRegisterFlow(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()
	res := loginAs(t, c, "alice", "secret")

	none, err := c.CashRegisters.OpenFor(ctx, res.User.ID)
	if err != nil || none != nil {
		t.Fatalf("OpenFor before open = %+v, %v", none, err)
	}

	reg, err := c.CashRegisters.Open(ctx, []api.BalanceInput{{CurrencyCode: "XOF", Amount: 100000}, {CurrencyCode: "EUR", Amount: 500}})
	if err != nil {
		t.Fatal(err)
	}
	if reg.CashierID != 3 || reg.CashierName != "Alice A." || len(reg.InitialBalances) != 2 {
		t.Errorf("register = %+v", reg)
	}
	if _, err := c.CashRegisters.Open(ctx, []api.BalanceInput{{CurrencyCode: "XOF", Amount: 1}}); api.StatusOf(err) != 409 {
		t.Errorf("second open: %v", err)
	}

	open, err := c.CashRegisters.OpenFor(ctx, res.User.ID)
	if err != nil || open == nil || open.ID != reg.ID {
		t.Fatalf("OpenFor = %+v, %v", open, err)
	}

	tx, err := c.Transactions.Create(ctx, api.NewTransaction{
		Type: api.TransactionBuy, CashRegisterID: reg.ID, CurrencyCode: "EUR",
		Amount: 100, Rate: 655.957, LocalAmount: 65595.7,
		ClientInfo: api.ClientInfo{Name: "Client"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx.ReceiptNumber == "" || tx.LocalAmount != 65595.70 {
		t.Errorf("transaction = %+v", tx)
	}
	txs, err := c.Transactions.List(ctx, api.TransactionFilter{CashRegisterID: reg.ID, Limit: 10})
	if err != nil || len(txs) != 1 {
		t.Fatalf("List = %+v, %v", txs, err)
	}

	sp, err := c.Supplies.Create(ctx, api.NewSupply{CashRegisterID: reg.ID, CurrencyCode: "XOF", Amount: 5000, Source: api.SupplyInternal})
	if err != nil || sp.SupplyNumber == "" {
		t.Fatalf("supply = %+v, %v", sp, err)
	}

	closed, err := c.CashRegisters.Close(ctx, reg.ID, []api.BalanceInput{{CurrencyCode: "XOF", Amount: 100000}, {CurrencyCode: "EUR", Amount: 450}}, "fin de journée")
	if err != nil {
		t.Fatal(err)
	}
	if !closed.HasDifferences() {
		t.Errorf("close result = %+v", closed)
	}
	if _, err := c.CashRegisters.Close(ctx, reg.ID, []api.BalanceInput{{CurrencyCode: "XOF", Amount: 1}}, ""); api.StatusOf(err) != 404 {
		t.Errorf("closing twice: %v", err)
	}
}

func TestRequestsRecorded(t *testing.T) {
	srv, c := setup(t)
	loginAs(t, c, "alice", "secret")
	_, _ = c.Currencies.List(context.Background())

	if srv.CountRequests("POST /api/auth") != 1 || srv.CountRequests("GET /api/currencies") != 1 {
		t.Errorf("requests = %v", srv.Requests())
	}
}
