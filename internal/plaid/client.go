// Package plaid is a thin HTTP client for the Plaid API. It covers only the
// endpoints the budget tracker uses: link token creation, public token
// exchange, item and institution lookup, accounts, and transactions.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TannerHolle/budget/internal/bankfeed"
)

// Environment base URLs.
var environments = map[string]string{
	"sandbox":    "https://sandbox.plaid.com",
	"production": "https://production.plaid.com",
}

// Config holds the per-request credentials Plaid expects in headers.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // "sandbox" or "production"
}

// Client calls the Plaid API. It is constructed explicitly and injected so
// tests can substitute a fake provider.
type Client struct {
	baseURL string
	cfg     Config
	http    *http.Client
}

// NewClient builds a client for the configured environment, defaulting to
// sandbox for unknown environment names.
func NewClient(cfg Config) *Client {
	base, ok := environments[cfg.Environment]
	if !ok {
		base = environments["sandbox"]
	}
	return &Client{
		baseURL: base,
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements bankfeed.Provider.
func (c *Client) Name() string { return "plaid" }

// Classifier implements bankfeed.Provider using Plaid's sign convention.
func (c *Client) Classifier() bankfeed.Classifier { return bankfeed.PlaidClassifier{} }

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("plaid %s: encoding request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("plaid %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PLAID-CLIENT-ID", c.cfg.ClientID)
	req.Header.Set("PLAID-SECRET", c.cfg.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("plaid %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("plaid %s: status %d: %s", path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("plaid %s: decoding response: %w", path, err)
		}
	}
	return nil
}

// CreateLinkToken starts the Link flow for one budget.
func (c *Client) CreateLinkToken(ctx context.Context, clientUserID string) (string, error) {
	req := map[string]interface{}{
		"user":          map[string]string{"client_user_id": clientUserID},
		"client_name":   "Budget Tracker",
		"products":      []string{"transactions"},
		"country_codes": []string{"US"},
		"language":      "en",
	}
	var resp struct {
		LinkToken string `json:"link_token"`
	}
	if err := c.post(ctx, "/link/token/create", req, &resp); err != nil {
		return "", err
	}
	return resp.LinkToken, nil
}

// ExchangePublicToken trades a Link public token for a long-lived access
// token and its item id.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	if err := c.post(ctx, "/item/public_token/exchange", map[string]string{"public_token": publicToken}, &resp); err != nil {
		return "", "", err
	}
	return resp.AccessToken, resp.ItemID, nil
}

// GetItemInstitutionID returns the institution id behind an item.
func (c *Client) GetItemInstitutionID(ctx context.Context, accessToken string) (string, error) {
	var resp struct {
		Item struct {
			InstitutionID string `json:"institution_id"`
		} `json:"item"`
	}
	if err := c.post(ctx, "/item/get", map[string]string{"access_token": accessToken}, &resp); err != nil {
		return "", err
	}
	return resp.Item.InstitutionID, nil
}

// GetInstitutionName resolves an institution id to its display name.
func (c *Client) GetInstitutionName(ctx context.Context, institutionID string) (string, error) {
	req := map[string]interface{}{
		"institution_id": institutionID,
		"country_codes":  []string{"US"},
	}
	var resp struct {
		Institution struct {
			Name string `json:"name"`
		} `json:"institution"`
	}
	if err := c.post(ctx, "/institutions/get_by_id", req, &resp); err != nil {
		return "", err
	}
	return resp.Institution.Name, nil
}

// RemoveItem disconnects an item on the Plaid side.
func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/item/remove", map[string]string{"access_token": accessToken}, nil)
}

type accountPayload struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Balances  struct {
		Current   decimal.Decimal `json:"current"`
		Available decimal.Decimal `json:"available"`
	} `json:"balances"`
}

// ListAccounts implements bankfeed.Provider.
func (c *Client) ListAccounts(ctx context.Context, accessToken string) ([]bankfeed.RawAccount, error) {
	var resp struct {
		Accounts []accountPayload `json:"accounts"`
	}
	if err := c.post(ctx, "/accounts/get", map[string]string{"access_token": accessToken}, &resp); err != nil {
		return nil, err
	}

	accounts := make([]bankfeed.RawAccount, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		accounts = append(accounts, bankfeed.RawAccount{
			ID:               a.AccountID,
			Name:             a.Name,
			Type:             bankfeed.AccountType(a.Type),
			Subtype:          a.Subtype,
			CurrentBalance:   a.Balances.Current,
			AvailableBalance: a.Balances.Available,
		})
	}
	return accounts, nil
}

type transactionPayload struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Name          string          `json:"name"`
	MerchantName  string          `json:"merchant_name"`
	Category      []string        `json:"category"`
	Pending       bool            `json:"pending"`
}

// ListTransactions implements bankfeed.Provider. Plaid pages transactions;
// the loop follows total_transactions until the window is exhausted.
func (c *Client) ListTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]bankfeed.RawTransaction, error) {
	const pageSize = 500

	var all []bankfeed.RawTransaction
	offset := 0
	for {
		req := map[string]interface{}{
			"access_token": accessToken,
			"start_date":   start.UTC().Format("2006-01-02"),
			"end_date":     end.UTC().Format("2006-01-02"),
			"options": map[string]int{
				"count":  pageSize,
				"offset": offset,
			},
		}
		var resp struct {
			Transactions      []transactionPayload `json:"transactions"`
			TotalTransactions int                  `json:"total_transactions"`
		}
		if err := c.post(ctx, "/transactions/get", req, &resp); err != nil {
			return nil, err
		}

		for _, t := range resp.Transactions {
			all = append(all, bankfeed.RawTransaction{
				ID:             t.TransactionID,
				AccountID:      t.AccountID,
				Amount:         t.Amount,
				Date:           t.Date,
				Description:    t.Name,
				MerchantName:   t.MerchantName,
				CategoryLabels: t.Category,
				Pending:        t.Pending,
			})
		}

		offset += len(resp.Transactions)
		if offset >= resp.TotalTransactions || len(resp.Transactions) == 0 {
			return all, nil
		}
	}
}

var _ bankfeed.Provider = (*Client)(nil)
