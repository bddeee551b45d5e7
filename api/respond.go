package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/submit"
)

// Envelope wraps every /api response.
type Envelope struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	Metadata any    `json:"metadata,omitempty"`
}

type meta map[string]any

func ok(c *fiber.Ctx, data any, metadata any) error {
	return c.JSON(Envelope{Success: true, Data: data, Metadata: metadata})
}

// fail answers with the status and message err maps to. Server-side
// failures are logged with the correlation id; client errors are not.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	var failed *submit.Failure
	if errors.As(err, &failed) {
		return c.Status(fiber.StatusBadRequest).JSON(Envelope{
			Error: failed.Reason,
			Data:  fiber.Map{"screenshots": failed.Screenshots},
		})
	}

	status := apperr.Status(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("correlation_id", correlationID(c)),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(Envelope{Error: apperr.Message(err)})
}

var errBadBody = apperr.Invalid("Invalid request body")

// parse decodes the JSON body into v.
func parse(c *fiber.Ctx, v any) error {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return errBadBody
	}
	return nil
}
