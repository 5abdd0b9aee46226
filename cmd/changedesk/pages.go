package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chimerakang/changedesk"
	"github.com/chimerakang/changedesk/api"
	"github.com/chimerakang/changedesk/routes"
)

type page func(ctx context.Context, c *console, w io.Writer) error

var pages = map[string]page{
	routes.PathLogin:          loginPage,
	routes.PathDashboard:      dashboardPage,
	routes.PathCashRegister:   cashRegisterPage,
	routes.PathTransactions:   transactionsPage,
	routes.PathNewTransaction: ratesPage,
	routes.PathSupply:         supplyPage,
	routes.PathCurrencies:     currenciesPage,
	routes.PathReports:        reportsPage,
	routes.PathUsers:          usersPage,
}

func renderPage(ctx context.Context, c *console, path string) error {
	p, ok := pages[path]
	if !ok {
		return fmt.Errorf("no page at %s", path)
	}
	if r, ok := c.table.Lookup(path); ok {
		fmt.Fprintf(c.out, "== %s ==\n", r.Title)
	}
	ctx = changedesk.WithLocation(changedesk.WithIdentity(ctx, c.guard.Identity()), path)
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	if err := p(ctx, c, tw); err != nil {
		return pageError(ctx, err)
	}
	return tw.Flush()
}

// pageError keeps the server's message when there is one.
func pageError(ctx context.Context, err error) error {
	return fmt.Errorf("%s: %s", changedesk.LocationFromContext(ctx), api.MessageOf(err, "Erreur de chargement"))
}

func loginPage(_ context.Context, _ *console, w io.Writer) error {
	fmt.Fprintln(w, "changedesk login -u <utilisateur> -p <mot de passe>")
	return nil
}

func dashboardPage(ctx context.Context, c *console, w io.Writer) error {
	id := changedesk.IdentityFromContext(ctx)
	if id == nil {
		return nil
	}
	fmt.Fprintf(w, "Bonjour, %s\n", id.DisplayName)

	register, err := c.api.CashRegisters.OpenFor(ctx, id.ID)
	if err != nil {
		return err
	}
	if register == nil {
		fmt.Fprintln(w, "Caisse\tfermée")
	} else {
		fmt.Fprintf(w, "Caisse\tn°%d ouverte depuis %s\n", register.ID, register.OpenedAt)
	}

	recent, err := c.api.Transactions.List(ctx, api.TransactionFilter{Limit: 5})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Dernières transactions\t%d\n", len(recent))
	return writeTransactions(w, recent)
}

func cashRegisterPage(ctx context.Context, c *console, w io.Writer) error {
	id := changedesk.IdentityFromContext(ctx)
	if id == nil {
		return nil
	}
	register, err := c.api.CashRegisters.OpenFor(ctx, id.ID)
	if err != nil {
		return err
	}
	if register == nil {
		fmt.Fprintln(w, "Aucune caisse ouverte")
		return nil
	}
	fmt.Fprintf(w, "Caisse n°%d\touverte le %s\n", register.ID, register.OpenedAt)
	fmt.Fprintln(w, "DEVISE\tINITIAL\tACTUEL")
	initial := map[string]api.Amount{}
	for _, b := range register.InitialBalances {
		initial[b.CurrencyCode] = b.Amount
	}
	for _, b := range register.CurrentBalances {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", b.CurrencyCode, initial[b.CurrencyCode].Float(), b.Amount.Float())
	}
	return nil
}

func transactionsPage(ctx context.Context, c *console, w io.Writer) error {
	txs, err := c.api.Transactions.List(ctx, api.TransactionFilter{Limit: 50})
	if err != nil {
		return err
	}
	return writeTransactions(w, txs)
}

func writeTransactions(w io.Writer, txs []api.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	fmt.Fprintln(w, "REÇU\tTYPE\tDEVISE\tMONTANT\tTAUX\tCONTREVALEUR\tDATE")
	for _, t := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.4f\t%.2f\t%s\n",
			t.ReceiptNumber, t.Type, t.CurrencyCode,
			t.Amount.Float(), t.Rate.Float(), t.LocalAmount.Float(), t.Timestamp)
	}
	return nil
}

func ratesPage(ctx context.Context, c *console, w io.Writer) error {
	currencies, err := c.api.Currencies.Active(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "DEVISE\tACHAT\tVENTE")
	for _, cur := range currencies {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", cur.Code, cur.BuyRate.Float(), cur.SellRate.Float())
	}
	return nil
}

func supplyPage(ctx context.Context, c *console, w io.Writer) error {
	var registerID int64
	if id := changedesk.IdentityFromContext(ctx); id != nil && !c.guard.IsAdminOrSupervisor() {
		register, err := c.api.CashRegisters.OpenFor(ctx, id.ID)
		if err != nil {
			return err
		}
		if register == nil {
			fmt.Fprintln(w, "Aucune caisse ouverte")
			return nil
		}
		registerID = register.ID
	}
	supplies, err := c.api.Supplies.List(ctx, registerID)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "N°\tDEVISE\tMONTANT\tSOURCE\tRÉFÉRENCE")
	for _, s := range supplies {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", s.SupplyNumber, s.CurrencyCode, s.Amount.Float(), s.Source, s.Reference)
	}
	return nil
}

func currenciesPage(ctx context.Context, c *console, w io.Writer) error {
	currencies, err := c.api.Currencies.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "CODE\tNOM\tACHAT\tVENTE\tACTIVE")
	for _, cur := range currencies {
		active := "non"
		if cur.IsActive {
			active = "oui"
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%s\n", cur.Code, cur.Name, cur.BuyRate.Float(), cur.SellRate.Float(), active)
	}
	return nil
}

func reportsPage(ctx context.Context, c *console, w io.Writer) error {
	report, err := c.api.Reports.Get(ctx, api.ReportFilter{})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func usersPage(ctx context.Context, c *console, w io.Writer) error {
	users, err := c.api.Users.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tUTILISATEUR\tNOM\tRÔLE")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.FullName, u.Role)
	}
	return nil
}
