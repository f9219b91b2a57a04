// Package teller is a thin HTTP client for the Teller API. Teller
// authenticates requests two ways at once: mutual TLS with a client
// certificate issued per application, and HTTP basic auth carrying the
// enrollment access token as the username with an empty password.
package teller

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TannerHolle/budget/internal/bankfeed"
)

const defaultBaseURL = "https://api.teller.io"

// Config locates the mTLS credentials and application id.
type Config struct {
	AppID    string
	CertFile string
	KeyFile  string
	BaseURL  string
}

// Client calls the Teller API over a mutually authenticated connection.
type Client struct {
	baseURL string
	appID   string
	http    *http.Client
}

// NewClient loads the client certificate and builds the mTLS transport.
func NewClient(cfg Config) (*Client, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("teller: loading client certificate: %w", err)
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}

	return &Client{
		baseURL: base,
		appID:   cfg.AppID,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{cert},
					MinVersion:   tls.VersionTLS12,
				},
			},
		},
	}, nil
}

// Name implements bankfeed.Provider.
func (c *Client) Name() string { return "teller" }

// Classifier implements bankfeed.Provider using Teller's sign convention.
func (c *Client) Classifier() bankfeed.Classifier { return bankfeed.TellerClassifier{} }

// AppID exposes the application id for the Connect flow; the front end
// drives enrollment itself and hands back an access token.
func (c *Client) AppID() string { return c.appID }

func (c *Client) get(ctx context.Context, path, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("teller %s: %w", path, err)
	}
	req.SetBasicAuth(accessToken, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("teller %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("teller %s: status %d: %s", path, resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("teller %s: decoding response: %w", path, err)
	}
	return nil
}

type accountPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Subtype     string `json:"subtype"`
	Institution struct {
		Name string `json:"name"`
	} `json:"institution"`
}

type balancesPayload struct {
	Available *string `json:"available"`
	Current   *string `json:"current"`
	Ledger    *string `json:"ledger"`
}

// ListAccounts implements bankfeed.Provider. Balances live on a separate
// endpoint; a balance fetch failure leaves the account at zero rather than
// dropping it.
func (c *Client) ListAccounts(ctx context.Context, accessToken string) ([]bankfeed.RawAccount, error) {
	var payload []accountPayload
	if err := c.get(ctx, "/accounts", accessToken, &payload); err != nil {
		return nil, err
	}

	accounts := make([]bankfeed.RawAccount, 0, len(payload))
	for _, a := range payload {
		acct := bankfeed.RawAccount{
			ID:              a.ID,
			Name:            a.Name,
			Type:            bankfeed.AccountType(a.Type),
			Subtype:         a.Subtype,
			InstitutionName: a.Institution.Name,
		}
		if acct.Name == "" {
			acct.Name = a.Type
		}
		if acct.Type == "" {
			acct.Type = bankfeed.AccountDepository
		}

		var balances balancesPayload
		if err := c.get(ctx, "/accounts/"+a.ID+"/balances", accessToken, &balances); err == nil {
			if balances.Available != nil {
				if v, err := decimal.NewFromString(*balances.Available); err == nil {
					acct.AvailableBalance = v
				}
			}
			switch {
			case balances.Current != nil:
				if v, err := decimal.NewFromString(*balances.Current); err == nil {
					acct.CurrentBalance = v
				}
			case balances.Ledger != nil:
				if v, err := decimal.NewFromString(*balances.Ledger); err == nil {
					acct.CurrentBalance = v
				}
			default:
				acct.CurrentBalance = acct.AvailableBalance
			}
		}

		accounts = append(accounts, acct)
	}
	return accounts, nil
}

type transactionPayload struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Merchant    struct {
		Name string `json:"name"`
	} `json:"merchant"`
	Category string `json:"category"`
}

// ListTransactions implements bankfeed.Provider. Teller scopes transactions
// per account, so the enrollment's accounts are walked one by one; a failure
// on one account skips that account only.
func (c *Client) ListTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]bankfeed.RawTransaction, error) {
	var accounts []accountPayload
	if err := c.get(ctx, "/accounts", accessToken, &accounts); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("start_date", start.UTC().Format("2006-01-02"))
	query.Set("end_date", end.UTC().Format("2006-01-02"))

	var all []bankfeed.RawTransaction
	for _, acct := range accounts {
		var payload []transactionPayload
		path := fmt.Sprintf("/accounts/%s/transactions?%s", acct.ID, query.Encode())
		if err := c.get(ctx, path, accessToken, &payload); err != nil {
			continue
		}

		for _, t := range payload {
			amount, err := decimal.NewFromString(t.Amount)
			if err != nil {
				amount = decimal.Zero
			}

			accountID := t.AccountID
			if accountID == "" {
				accountID = acct.ID
			}
			var labels []string
			if t.Category != "" {
				labels = []string{t.Category}
			}

			all = append(all, bankfeed.RawTransaction{
				ID:             t.ID,
				AccountID:      accountID,
				Amount:         amount,
				Date:           t.Date,
				Description:    t.Description,
				MerchantName:   t.Merchant.Name,
				CategoryLabels: labels,
				Pending:        t.Status == "pending",
			})
		}
	}
	return all, nil
}

var _ bankfeed.Provider = (*Client)(nil)
