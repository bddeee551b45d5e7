package api

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/apperr"
)

const (
	HeaderCorrelationID = "X-Correlation-Id"
	localCorrelationID  = "correlation_id"
)

var errRateLimited = apperr.New(apperr.RateLimited, "Too many requests", nil)

// correlate echoes the caller's correlation id or assigns a new one.
func correlate(c *fiber.Ctx) error {
	id := c.Get(HeaderCorrelationID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Locals(localCorrelationID, id)
	c.Set(HeaderCorrelationID, id)
	return c.Next()
}

func correlationID(c *fiber.Ctx) string {
	id, _ := c.Locals(localCorrelationID).(string)
	return id
}

// accessLog writes one line per request once the handler returns. Streamed
// bodies are still being written at that point.
func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	s.logger.Debug("request",
		zap.String("correlation_id", correlationID(c)),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)
	return err
}

// rateLimit rejects clients over their per-IP budget.
func (s *Server) rateLimit(c *fiber.Ctx) error {
	if !s.limiter.Allow(c.IP()) {
		return s.fail(c, errRateLimited)
	}
	return c.Next()
}

// ledgerAuth requires the bearer token on /ledger when one is configured.
func (s *Server) ledgerAuth() fiber.Handler {
	if s.config.LedgerToken == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	want := []byte(s.config.LedgerToken)
	return keyauth.New(keyauth.Config{
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(key), want) == 1 {
				return true, nil
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: func(c *fiber.Ctx, _ error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized"))
		},
	})
}
