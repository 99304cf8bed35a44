// Package registry is the client for the external clinical system's person
// registry. The portal uses it to match a local patient to at most one
// external record and to pull that record's account balances.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/careportal/portal/pkg/caldate"
)

// Candidate is one possible match returned by a person lookup.
type Candidate struct {
	ExternalID   string `json:"externalId"`
	PersonNumber string `json:"personNumber"`
}

// LookupOptions restrict a person lookup on the registry side.
type LookupOptions struct {
	ExcludeExpired bool
	PatientsOnly   bool
}

// BalancesPayload is the upstream balances record. Every field is optional;
// the upstream omits amounts that are zero or not tracked for an account.
// Callers apply defaulting via Normalize rather than trusting the shape.
type BalancesPayload struct {
	TotalAmountDue     *decimal.Decimal `json:"totalAmountDue,omitempty"`
	BadDebtAmount      *decimal.Decimal `json:"badDebtAmount,omitempty"`
	AmountDueInsurance *decimal.Decimal `json:"amountDueInsurance,omitempty"`
	AvailableCredit    *decimal.Decimal `json:"availableCredit,omitempty"`
	AccountCredit      *decimal.Decimal `json:"accountCredit,omitempty"`
}

// Balances is a fully-populated balances record with absent upstream fields
// defaulted to zero.
type Balances struct {
	TotalAmountDue     decimal.Decimal `json:"total_amount_due"`
	BadDebtAmount      decimal.Decimal `json:"bad_debt_amount"`
	AmountDueInsurance decimal.Decimal `json:"amount_due_insurance"`
	AvailableCredit    decimal.Decimal `json:"available_credit"`
	AccountCredit      decimal.Decimal `json:"account_credit"`
}

// Normalize defaults each missing upstream field to zero. No other
// transformation is applied.
func (p *BalancesPayload) Normalize() Balances {
	return Balances{
		TotalAmountDue:     orZero(p.TotalAmountDue),
		BadDebtAmount:      orZero(p.BadDebtAmount),
		AmountDueInsurance: orZero(p.AmountDueInsurance),
		AvailableCredit:    orZero(p.AvailableCredit),
		AccountCredit:      orZero(p.AccountCredit),
	}
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// StatusError is a transport/protocol failure from the registry, carrying
// the upstream status code so callers can map 5xx and 4xx differently.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry returned status %d: %s", e.StatusCode, e.Message)
}

// Client is the abstract registry contract consumed by the billing resolver.
type Client interface {
	LookupPersons(ctx context.Context, firstName, lastName string, dob caldate.Date, opts LookupOptions) ([]Candidate, error)
	GetBalances(ctx context.Context, externalID string) (*BalancesPayload, error)
}

// HTTPClient is the production Client backed by the registry's JSON API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) { h.httpClient.Timeout = d }
}

// NewHTTPClient creates a registry client for the given base URL. The API
// key is sent as a bearer token on every request.
func NewHTTPClient(baseURL, apiKey string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// LookupPersons queries the registry for persons matching the given
// demographics. The zero/one/many policy is the caller's concern; this
// method only transports.
func (h *HTTPClient) LookupPersons(ctx context.Context, firstName, lastName string, dob caldate.Date, opts LookupOptions) ([]Candidate, error) {
	q := url.Values{}
	q.Set("firstName", firstName)
	q.Set("lastName", lastName)
	q.Set("dateOfBirth", dob.String())
	if opts.ExcludeExpired {
		q.Set("excludeExpired", "true")
	}
	if opts.PatientsOnly {
		q.Set("type", "patient")
	}

	var out struct {
		Persons []Candidate `json:"persons"`
	}
	if err := h.get(ctx, "/persons?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Persons, nil
}

// GetBalances fetches the balances record for one external person id.
func (h *HTTPClient) GetBalances(ctx context.Context, externalID string) (*BalancesPayload, error) {
	var out BalancesPayload
	if err := h.get(ctx, "/persons/"+url.PathEscape(externalID)+"/balances", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return &StatusError{StatusCode: http.StatusBadGateway, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Bounded read: upstream error bodies are short, but never trust that.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &StatusError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode registry response: %v", err)}
	}
	return nil
}
