package api

import (
	"github.com/finvisor/finvisor/pkg/advisor"
	"github.com/finvisor/finvisor/pkg/analytics"
	"github.com/finvisor/finvisor/pkg/appeal"
	"github.com/finvisor/finvisor/pkg/chat"
	"github.com/finvisor/finvisor/pkg/documents"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/payment"
	"github.com/finvisor/finvisor/pkg/research"
	"github.com/finvisor/finvisor/pkg/strategy"
	"github.com/finvisor/finvisor/pkg/submit"
	"github.com/finvisor/finvisor/pkg/wizard"
)

// Services are the domain services behind the routes. Every field must be
// set; services whose provider is missing answer 503 on their own.
type Services struct {
	Chat      *chat.Service
	Documents *documents.Service
	Strategy  *strategy.Service
	Research  *research.Service
	Appeal    *appeal.Service
	Submit    *submit.Service
	Payment   *payment.Service
	Advisor   advisor.Advisor
	Analytics *analytics.Service

	Ledger   *ledger.Recorder
	Sessions *wizard.Store
	Scripts  *wizard.Scripts
}
