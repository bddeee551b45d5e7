// Package payment sells appeal packages through a Fetch.ai agent.
package payment

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/provider/fetchai"
)

// Billable services.
const (
	BasicAppeal    = "basic_appeal"
	ProAppeal      = "pro_appeal"
	PremiumAppeal  = "premium_appeal"
	AdvisorSession = "advisor_session"
)

// Prices in USD, used when a request names no amount.
var Prices = map[string]float64{
	BasicAppeal:    9,
	ProAppeal:      29,
	PremiumAppeal:  49,
	AdvisorSession: 15,
}

// Package is one catalog entry.
type Package struct {
	Key          string   `json:"-"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Price        float64  `json:"price"`
	Deliverables []string `json:"deliverables"`
}

var Catalog = []Package{
	{
		Key:         "basic",
		Name:        "Basic Appeal Package",
		Description: "AI-powered intake, document parsing, gap analysis, and basic appeal letter",
		Price:       9,
		Deliverables: []string{
			"Personalized intake conversation",
			"Document parsing and analysis",
			"Gap strategy analysis",
			"Basic appeal letter template",
		},
	},
	{
		Key:         "pro",
		Name:        "Pro Appeal Package",
		Description: "Everything in Basic plus research citations, auto-submission, and advisor session",
		Price:       29,
		Deliverables: []string{
			"Everything in Basic",
			"Research citations and data",
			"Automated submission via Browserbase",
			"15-minute Zoom advisor session",
		},
	},
	{
		Key:         "premium",
		Name:        "Premium Appeal Package",
		Description: "Full-service appeal with counter-offer templates and priority support",
		Price:       49,
		Deliverables: []string{
			"Everything in Pro",
			"Counter-offer negotiation templates",
			"Multi-round strategy support",
			"Priority advisor access",
			"Appeal tracking dashboard",
		},
	},
}

// PackageFor returns the catalog entry for a billable service. Services
// without a package of their own get the basic package.
func PackageFor(service string) Package {
	key := strings.Replace(service, "_appeal", "", 1)
	for _, p := range Catalog {
		if p.Key == key {
			return p
		}
	}
	return Catalog[0]
}

// Agent is the Fetch.ai agent surface the service needs.
type Agent interface {
	RequestPayment(ctx context.Context, userID, service string, amount float64) (*fetchai.PaymentRequest, error)
	ConfirmPayment(ctx context.Context, paymentID string) (*fetchai.Payment, error)
	CreateOffer(ctx context.Context, offer fetchai.Offer) (string, error)
	Analytics(ctx context.Context) (*fetchai.Analytics, error)
}

type Request struct {
	UserID  string  `json:"userId"`
	Service string  `json:"service"`
	Amount  float64 `json:"amount,omitempty"`
}

type ServiceInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Deliverables []string `json:"deliverables"`
}

type Checkout struct {
	PaymentID   string      `json:"paymentId"`
	Amount      float64     `json:"amount"`
	Currency    string      `json:"currency"`
	Status      string      `json:"status"`
	Service     ServiceInfo `json:"service"`
	CheckoutURL string      `json:"checkoutUrl"`
}

type Confirmation struct {
	Confirmed       bool    `json:"confirmed"`
	TransactionHash string  `json:"transactionHash,omitempty"`
	Amount          float64 `json:"amount"`
	Status          string  `json:"status"`
}

type PricedService struct {
	ID string `json:"id"`
	Package
}

type Pricing struct {
	Services []PricedService `json:"services"`
}

type Listing struct {
	OfferID    string `json:"offerId"`
	ListingURL string `json:"listingUrl"`
	Status     string `json:"status"`
}

type Service struct {
	agent  Agent
	logger *zap.Logger
}

func NewService(agent Agent, logger *zap.Logger) *Service {
	return &Service{agent: agent, logger: logger}
}

func (s *Service) ready() error {
	if s.agent == nil {
		return apperr.Unconfigured("Fetch.ai not configured")
	}
	return nil
}

// Request opens a payment request and returns where the user pays it.
func (s *Service) Request(ctx context.Context, req Request) (*Checkout, error) {
	if req.UserID == "" || req.Service == "" {
		return nil, apperr.Invalid("User ID and service required")
	}
	price, ok := Prices[req.Service]
	if !ok {
		return nil, apperr.Invalid("Invalid service type")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	amount := req.Amount
	if amount == 0 {
		amount = price
	}

	pr, err := s.agent.RequestPayment(ctx, req.UserID, req.Service, amount)
	if err != nil {
		return nil, apperr.UpstreamErr("Payment request failed", err)
	}
	s.logger.Info("payment requested",
		zap.String("payment_id", pr.ID),
		zap.String("service", req.Service),
		zap.Float64("amount", pr.Amount),
	)

	pkg := PackageFor(req.Service)
	return &Checkout{
		PaymentID: pr.ID,
		Amount:    pr.Amount,
		Currency:  pr.Currency,
		Status:    pr.Status,
		Service: ServiceInfo{
			Name:         pkg.Name,
			Description:  pkg.Description,
			Deliverables: pkg.Deliverables,
		},
		CheckoutURL: fetchai.CheckoutURL + pr.ID,
	}, nil
}

func (s *Service) Confirm(ctx context.Context, paymentID string) (*Confirmation, error) {
	if paymentID == "" {
		return nil, apperr.Invalid("Payment ID required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	p, err := s.agent.ConfirmPayment(ctx, paymentID)
	if err != nil {
		return nil, apperr.UpstreamErr("Payment confirmation failed", err)
	}

	status := "pending"
	if p.Confirmed {
		status = "completed"
	}
	return &Confirmation{Confirmed: p.Confirmed, TransactionHash: p.TransactionHash, Amount: p.Amount, Status: status}, nil
}

// Pricing lists the catalog. It needs no agent.
func (s *Service) Pricing() *Pricing {
	out := &Pricing{Services: make([]PricedService, 0, len(Catalog))}
	for _, p := range Catalog {
		out.Services = append(out.Services, PricedService{ID: p.Key + "_appeal", Package: p})
	}
	return out
}

func (s *Service) Analytics(ctx context.Context) (*fetchai.Analytics, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	a, err := s.agent.Analytics(ctx)
	if err != nil {
		return nil, apperr.UpstreamErr("Agent analytics failed", err)
	}
	return a, nil
}

// Offer lists a service on the agent marketplace.
func (s *Service) Offer(ctx context.Context, offer fetchai.Offer) (*Listing, error) {
	if offer.Name == "" {
		return nil, apperr.Invalid("Offer name required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	id, err := s.agent.CreateOffer(ctx, offer)
	if err != nil {
		return nil, apperr.UpstreamErr("Offer creation failed", err)
	}
	return &Listing{OfferID: id, ListingURL: fetchai.ListingURL + id, Status: "active"}, nil
}
