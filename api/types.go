package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Amount is a decimal quantity. The API sends numeric columns either as JSON
// numbers or as decimal strings; both decode.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("changedesk/api: amount %q: %w", s, err)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// Float returns the amount as a float64.
func (a Amount) Float() float64 { return float64(a) }

// Currency is a tradable currency with its current rates.
type Currency struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	BuyRate  Amount `json:"buy_rate"`
	SellRate Amount `json:"sell_rate"`
	IsActive bool   `json:"is_active"`
}

// CurrencyInput is the create/update payload for a currency.
type CurrencyInput struct {
	Code     string  `json:"code,omitempty"`
	Name     string  `json:"name,omitempty"`
	Symbol   string  `json:"symbol,omitempty"`
	BuyRate  float64 `json:"buyRate,omitempty"`
	SellRate float64 `json:"sellRate,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

// Transaction types.
const (
	TransactionBuy  = "buy"
	TransactionSell = "sell"
)

// ClientInfo identifies the customer of a transaction.
type ClientInfo struct {
	Name     string `json:"name,omitempty"`
	IDNumber string `json:"idNumber,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Transaction is a recorded buy or sell.
type Transaction struct {
	ID             int64           `json:"id"`
	ReceiptNumber  string          `json:"receipt_number"`
	Type           string          `json:"type"`
	CashRegisterID int64           `json:"cash_register_id,omitempty"`
	CurrencyCode   string          `json:"currency_code"`
	Amount         Amount          `json:"amount"`
	Rate           Amount          `json:"rate"`
	LocalAmount    Amount          `json:"local_amount"`
	ClientInfo     json.RawMessage `json:"client_info,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CashierName    string          `json:"cashier_name,omitempty"`
	Timestamp      string          `json:"timestamp"`
}

// NewTransaction is the payload recording a transaction.
type NewTransaction struct {
	Type           string     `json:"type"`
	CashRegisterID int64      `json:"cashRegisterId"`
	CurrencyCode   string     `json:"currencyCode"`
	Amount         float64    `json:"amount"`
	Rate           float64    `json:"rate"`
	LocalAmount    float64    `json:"localAmount"`
	ClientInfo     ClientInfo `json:"clientInfo"`
	Notes          string     `json:"notes,omitempty"`
}

// TransactionFilter narrows a transaction listing. Zero fields are omitted.
type TransactionFilter struct {
	CashRegisterID int64
	Limit          int
	Type           string
	CurrencyCode   string
	StartDate      string
	EndDate        string
}

// Balance is a per-currency amount held in a cash register.
type Balance struct {
	CurrencyCode string `json:"currency_code"`
	Amount       Amount `json:"amount"`
}

// BalanceInput is a per-currency amount declared when opening or closing a register.
type BalanceInput struct {
	CurrencyCode string  `json:"currencyCode"`
	Amount       float64 `json:"amount"`
}

// CashRegister is a cashier's working session at a till.
type CashRegister struct {
	ID              int64     `json:"id"`
	CashierID       int64     `json:"cashier_id"`
	CashierName     string    `json:"cashier_name,omitempty"`
	Status          string    `json:"status,omitempty"`
	OpenedAt        string    `json:"opened_at,omitempty"`
	ClosedAt        string    `json:"closed_at,omitempty"`
	InitialBalances []Balance `json:"initialBalances,omitempty"`
	CurrentBalances []Balance `json:"currentBalances,omitempty"`
}

// BalanceDifference compares the expected and declared closing balance of a currency.
type BalanceDifference struct {
	CurrencyCode string `json:"currencyCode"`
	Expected     Amount `json:"expected"`
	Actual       Amount `json:"actual"`
	Difference   Amount `json:"difference"`
}

// CloseResult is returned when a register is closed.
type CloseResult struct {
	Message     string              `json:"message,omitempty"`
	Differences []BalanceDifference `json:"differences"`
}

// HasDifferences reports whether any declared balance differs from the expected one.
func (r CloseResult) HasDifferences() bool {
	for _, d := range r.Differences {
		if d.Difference != 0 {
			return true
		}
	}
	return false
}

// Supply sources.
const (
	SupplyInternal = "internal"
	SupplyExternal = "external"
)

// Supply is a recorded cash supply to a register.
type Supply struct {
	ID             int64  `json:"id"`
	SupplyNumber   string `json:"supply_number"`
	CashRegisterID int64  `json:"cash_register_id,omitempty"`
	CurrencyCode   string `json:"currency_code"`
	Amount         Amount `json:"amount"`
	Source         string `json:"source"`
	Reference      string `json:"reference,omitempty"`
	Notes          string `json:"notes,omitempty"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// NewSupply is the payload recording a supply.
type NewSupply struct {
	CashRegisterID int64   `json:"cashRegisterId"`
	CurrencyCode   string  `json:"currencyCode"`
	Amount         float64 `json:"amount"`
	Source         string  `json:"source"`
	Reference      string  `json:"reference,omitempty"`
	Notes          string  `json:"notes,omitempty"`
	AttachmentURL  string  `json:"attachmentUrl,omitempty"`
}

// UserInput is the create/update payload for a user. Password is only sent
// when set, so an update without it keeps the current one.
type UserInput struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Report types.
const (
	ReportTransactions = "transactions"
	ReportSupplies     = "supplies"
	ReportCashiers     = "cashiers"
)

// ReportFilter selects a report and narrows its period.
type ReportFilter struct {
	Type         string
	StartDate    string
	EndDate      string
	CurrencyCode string
	CashierID    int64
}

// Report is the server computed report document. Its shape depends on the
// report type and is passed through unchanged.
type Report map[string]any
