// Package fetchai is the Agentverse client: payment requests, marketplace
// offers and agent analytics for the finvisor agent.
package fetchai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

const (
	DefaultBaseURL = "https://agentverse.ai/api/v1"

	CheckoutURL = "https://agentverse.ai/pay/"
	ListingURL  = "https://agentverse.ai/services/"
)

type PaymentRequest struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Recipient string  `json:"recipient"`
	Status    string  `json:"status"`
	Service   string  `json:"service"`
}

// Payment is the confirmation view of a payment request.
type Payment struct {
	Confirmed       bool    `json:"confirmed"`
	TransactionHash string  `json:"transaction_hash,omitempty"`
	Amount          float64 `json:"amount"`
}

type Offer struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Price        float64  `json:"price"`
	Duration     int      `json:"duration,omitempty"`
	Deliverables []string `json:"deliverables"`
}

type Transaction struct {
	ID        string  `json:"id"`
	Service   string  `json:"service"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
}

type Analytics struct {
	TotalRevenue       float64       `json:"totalRevenue"`
	CompletedServices  int           `json:"completedServices"`
	ActiveRequests     int           `json:"activeRequests"`
	AverageRating      float64       `json:"averageRating"`
	RecentTransactions []Transaction `json:"recentTransactions"`
}

// Client acts on behalf of one agent address.
type Client struct {
	base  httpjson.Base
	key   *httpjson.Key
	agent string
}

func NewClient(key *httpjson.Key, agentAddress string, opts ...httpjson.Option) *Client {
	return &Client{
		base:  httpjson.NewBase("fetchai", DefaultBaseURL, opts...),
		key:   key,
		agent: agentAddress,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.key.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("fetchai: %w", err)
	}
	return c.base.DoJSON(ctx, method, path, httpjson.Bearer(token), in, out)
}

// RequestPayment asks userID to pay amount USD for service.
func (c *Client) RequestPayment(ctx context.Context, userID, service string, amount float64) (*PaymentRequest, error) {
	body := map[string]any{
		"recipient": c.agent,
		"amount":    amount,
		"currency":  "USD",
		"service":   service,
		"metadata": map[string]any{
			"userId":              userID,
			"service_description": "Finvisor " + strings.Replace(service, "_", " ", 1) + " service",
		},
	}

	var pr PaymentRequest
	if err := c.do(ctx, http.MethodPost, "payments/request", body, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// ConfirmPayment reads a payment request; it is confirmed once completed.
func (c *Client) ConfirmPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var raw struct {
		Status          string  `json:"status"`
		TransactionHash string  `json:"transaction_hash"`
		Amount          float64 `json:"amount"`
	}
	if err := c.do(ctx, http.MethodGet, "payments/"+url.PathEscape(paymentID), nil, &raw); err != nil {
		return nil, err
	}
	return &Payment{
		Confirmed:       raw.Status == "completed",
		TransactionHash: raw.TransactionHash,
		Amount:          raw.Amount,
	}, nil
}

// CreateOffer lists offer on the marketplace and returns the offer id.
func (c *Client) CreateOffer(ctx context.Context, offer Offer) (string, error) {
	body := map[string]any{
		"agent":        c.agent,
		"service":      offer,
		"availability": "always",
		"auto_accept":  true,
	}

	var res struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "marketplace/offers", body, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (c *Client) Analytics(ctx context.Context) (*Analytics, error) {
	var a Analytics
	if err := c.do(ctx, http.MethodGet, "agents/"+url.PathEscape(c.agent)+"/analytics", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
