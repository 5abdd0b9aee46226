package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chimerakang/changedesk"
)

// AuthService exchanges credentials for a session token.
type AuthService struct{ c *Client }

// LoginResult is the body of a successful authentication.
type LoginResult struct {
	Token string          `json:"token"`
	User  changedesk.User `json:"user"`
}

// Login posts the credentials to /api/auth. A 401 from this endpoint is a
// rejected login and is not reported to AuthFailureObservers.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	body := map[string]string{"username": username, "password": password}
	var out LoginResult
	if err := s.c.do(exemptFromAuthFailure(ctx), http.MethodPost, "/api/auth", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("changedesk/api: auth response carried no token")
	}
	return &out, nil
}

// CurrencyService manages currencies and their rates.
type CurrencyService struct{ c *Client }

func (s *CurrencyService) List(ctx context.Context) ([]Currency, error) {
	var out struct {
		Currencies []Currency `json:"currencies"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/api/currencies", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Currencies, nil
}

// Active returns only the currencies open for trading.
func (s *CurrencyService) Active(ctx context.Context) ([]Currency, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, cur := range all {
		if cur.IsActive {
			active = append(active, cur)
		}
	}
	return active, nil
}

func (s *CurrencyService) Create(ctx context.Context, in CurrencyInput) error {
	return s.c.do(ctx, http.MethodPost, "/api/currencies", nil, in, nil)
}

func (s *CurrencyService) Update(ctx context.Context, id int64, in CurrencyInput) error {
	return s.c.do(ctx, http.MethodPut, "/api/currencies/"+strconv.FormatInt(id, 10), nil, in, nil)
}

// SetActive toggles whether a currency can be traded.
func (s *CurrencyService) SetActive(ctx context.Context, id int64, active bool) error {
	return s.Update(ctx, id, CurrencyInput{IsActive: &active})
}

// TransactionService lists and records transactions.
type TransactionService struct{ c *Client }

func (s *TransactionService) List(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	q := url.Values{}
	if f.CashRegisterID > 0 {
		q.Set("cashRegisterId", strconv.FormatInt(f.CashRegisterID, 10))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	setIf(q, "type", f.Type)
	setIf(q, "currencyCode", f.CurrencyCode)
	setIf(q, "startDate", f.StartDate)
	setIf(q, "endDate", f.EndDate)

	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/api/transactions", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

func (s *TransactionService) Create(ctx context.Context, in NewTransaction) (*Transaction, error) {
	var out struct {
		Transaction *Transaction `json:"transaction"`
	}
	if err := s.c.do(ctx, http.MethodPost, "/api/transactions", nil, in, &out); err != nil {
		return nil, err
	}
	return out.Transaction, nil
}

// CashRegisterService opens, inspects and closes cash registers.
type CashRegisterService struct{ c *Client }

// List returns registers, filtered by status when non-empty ("open", "closed").
func (s *CashRegisterService) List(ctx context.Context, status string) ([]CashRegister, error) {
	q := url.Values{}
	setIf(q, "status", status)
	var out struct {
		CashRegisters []CashRegister `json:"cashRegisters"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/api/cash-registers", q, nil, &out); err != nil {
		return nil, err
	}
	return out.CashRegisters, nil
}

// OpenFor returns the open register held by the given cashier, or nil.
func (s *CashRegisterService) OpenFor(ctx context.Context, userID int64) (*CashRegister, error) {
	registers, err := s.List(ctx, "open")
	if err != nil {
		return nil, err
	}
	for i := range registers {
		if registers[i].CashierID == userID {
			return &registers[i], nil
		}
	}
	return nil, nil
}

func (s *CashRegisterService) Open(ctx context.Context, initial []BalanceInput) (*CashRegister, error) {
	body := map[string]any{"initialBalances": initial}
	var out struct {
		CashRegister *CashRegister `json:"cashRegister"`
	}
	if err := s.c.do(ctx, http.MethodPost, "/api/cash-registers", nil, body, &out); err != nil {
		return nil, err
	}
	return out.CashRegister, nil
}

func (s *CashRegisterService) Close(ctx context.Context, id int64, final []BalanceInput, notes string) (*CloseResult, error) {
	body := map[string]any{"finalBalances": final, "notes": notes}
	var out CloseResult
	path := "/api/cash-registers/" + strconv.FormatInt(id, 10) + "/close"
	if err := s.c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SupplyService lists and records cash supplies.
type SupplyService struct{ c *Client }

func (s *SupplyService) List(ctx context.Context, cashRegisterID int64) ([]Supply, error) {
	q := url.Values{}
	if cashRegisterID > 0 {
		q.Set("cashRegisterId", strconv.FormatInt(cashRegisterID, 10))
	}
	var out struct {
		Supplies []Supply `json:"supplies"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/api/supply", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Supplies, nil
}

func (s *SupplyService) Create(ctx context.Context, in NewSupply) (*Supply, error) {
	var out struct {
		Supply *Supply `json:"supply"`
	}
	if err := s.c.do(ctx, http.MethodPost, "/api/supply", nil, in, &out); err != nil {
		return nil, err
	}
	return out.Supply, nil
}

// UserService administers user accounts.
type UserService struct{ c *Client }

func (s *UserService) List(ctx context.Context) ([]changedesk.User, error) {
	var out struct {
		Users []changedesk.User `json:"users"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/api/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (s *UserService) Create(ctx context.Context, in UserInput) error {
	return s.c.do(ctx, http.MethodPost, "/api/users", nil, in, nil)
}

func (s *UserService) Update(ctx context.Context, id int64, in UserInput) error {
	return s.c.do(ctx, http.MethodPut, "/api/users/"+strconv.FormatInt(id, 10), nil, in, nil)
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	return s.c.do(ctx, http.MethodDelete, "/api/users/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// ReportService fetches server computed reports.
type ReportService struct{ c *Client }

func (s *ReportService) Get(ctx context.Context, f ReportFilter) (Report, error) {
	if f.Type == "" {
		f.Type = ReportTransactions
	}
	q := url.Values{}
	q.Set("type", f.Type)
	setIf(q, "startDate", f.StartDate)
	setIf(q, "endDate", f.EndDate)
	setIf(q, "currencyCode", f.CurrencyCode)
	if f.CashierID > 0 {
		q.Set("cashierId", strconv.FormatInt(f.CashierID, 10))
	}
	out := Report{}
	if err := s.c.do(ctx, http.MethodGet, "/api/reports", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
