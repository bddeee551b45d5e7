// Package api serves the finvisor HTTP API: the /api endpoints wrapping each
// provider, the wizard, and inspection of the case ledger.
package api

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/appeal"
	"github.com/finvisor/finvisor/pkg/ratelimit"
)

// shutdownGrace bounds how long Run waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// DefaultBodyLimit fits a batch of base64 document scans.
const DefaultBodyLimit = 10 << 20

// Server is the finvisor API. It holds no request state of its own: chat
// history and wizard progress live in the ledger and the session store.
type Server struct {
	config  Config
	svc     Services
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	server  *fiber.App
}

// New creates a Server and registers its routes.
func New(config Config, svc Services, logger *zap.Logger) *Server {
	if config.WordPause == 0 {
		config.WordPause = appeal.WordPause
	}
	if config.BodyLimit <= 0 {
		config.BodyLimit = DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Handlers decode the whole body, so it is buffered and capped here.
		BodyLimit: config.BodyLimit,
	})

	s := &Server{
		config:  config,
		svc:     svc,
		limiter: ratelimit.New(config.RequestsPerSecond, config.Burst),
		logger:  logger,
		server:  app,
	}

	app.Use(correlate, s.accessLog)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	api := app.Group("/api", s.rateLimit)

	api.Post("/chat", s.handleChat)
	api.Get("/chat", s.handleChatHistory)

	api.Post("/documents", s.handleDocuments)
	api.Put("/documents", s.handleDocumentBatch)

	api.Post("/strategy", s.handleStrategy)

	api.Post("/research", s.handleResearch)
	api.Get("/research", s.handleResearchQuery)

	api.Post("/appeal", s.handleAppeal)
	api.Put("/appeal", s.handleAppealStream)

	api.Post("/submit", s.handleSubmit)
	api.Get("/submit", s.handleSubmitStatus)
	api.Put("/submit", s.handlePortalScrape)

	api.Post("/payment", s.handlePayment)
	api.Get("/payment", s.handlePaymentQuery)
	api.Put("/payment", s.handlePaymentOffer)

	api.Post("/zoom", s.handleZoomSchedule)
	api.Get("/zoom", s.handleZoomMeeting)
	api.Put("/zoom", s.handleZoomAnalyze)
	api.Patch("/zoom", s.handleZoomWebhook)

	// Fiber serves HEAD for every GET route, so the explicit HEAD goes first.
	api.Head("/analytics", s.handleAnalyticsHead)
	api.Get("/analytics", s.handleAnalytics)

	api.Get("/wizard/steps", s.handleWizardSteps)
	api.Get("/wizard/steps/:n/play", s.handleWizardPlay)
	api.Post("/wizard/sessions", s.handleWizardStart)
	api.Get("/wizard/sessions/:id", s.handleWizardSession)
	api.Post("/wizard/sessions/:id/next", s.handleWizardNext)

	// Ledger inspection and sync
	nodes := app.Group("/ledger", s.rateLimit, s.ledgerAuth())
	nodes.Get("/stats", s.handleLedgerStats)
	nodes.Get("/node/:hash", s.handleGetNode)
	nodes.Get("/history", s.handleListHistories)
	nodes.Get("/history/:hash", s.handleGetHistory)
	nodes.Post("/nodes", s.handleIngest)

	return s
}

// App exposes the Fiber app, for tests and the Lambda adapter.
func (s *Server) App() *fiber.App {
	return s.server
}

// Limiter exposes the rate limiter so limits can be changed at runtime.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Run starts the server and its housekeeping loops, and blocks until the
// listener stops. Cancelling ctx shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting api server", zap.String("listen", s.config.ListenAddr))
	return s.serve(ctx, func() error { return s.server.Listen(s.config.ListenAddr) })
}

// RunWithListener is Run on an already bound listener.
func (s *Server) RunWithListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting api server", zap.String("listen", ln.Addr().String()))
	return s.serve(ctx, func() error { return s.server.Listener(ln) })
}

func (s *Server) serve(ctx context.Context, listen func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.limiter.Run(ctx, time.Minute, 10*time.Minute)
	go s.svc.Sessions.Run(ctx, time.Minute)
	go func() {
		<-ctx.Done()
		if err := s.server.ShutdownWithTimeout(shutdownGrace); err != nil {
			s.logger.Warn("shutdown", zap.Error(err))
		}
	}()

	return listen()
}

// Close releases the ledger.
func (s *Server) Close() error {
	return s.svc.Ledger.Storer().Close()
}
