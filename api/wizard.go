package api

import (
	"bufio"
	"context"
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/wizard"
)

var errUnknownStep = apperr.Invalid("Unknown wizard step")

type stepInfo struct {
	Step  int    `json:"step"`
	Label string `json:"label"`
}

func (s *Server) handleWizardSteps(c *fiber.Ctx) error {
	steps := make([]stepInfo, 0, wizard.NumSteps)
	for i := range wizard.NumSteps {
		steps = append(steps, stepInfo{Step: i, Label: s.svc.Scripts.Label(i)})
	}
	return ok(c, steps, nil)
}

// handleWizardPlay streams a step's script as newline-delimited JSON events.
// With ?session= the step must be that session's current one, and it is
// completed once the last event was written.
func (s *Server) handleWizardPlay(c *fiber.Ctx) error {
	step, err := strconv.Atoi(c.Params("n"))
	if err != nil || step < 0 || step >= wizard.NumSteps {
		return s.fail(c, errUnknownStep)
	}

	sessionID := c.Query("session")
	if sessionID != "" {
		sess, err := s.svc.Sessions.Get(sessionID)
		if err != nil {
			return s.fail(c, err)
		}
		if sess.Controller.Current() != step {
			return s.fail(c, wizard.ErrOutOfOrder)
		}
	}

	player := wizard.NewPlayer(s.svc.Scripts, s.config.Sleeper)
	if doc := c.Query("document"); doc != "" {
		player.Document = doc
	}

	id := correlationID(c)
	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx := context.Background()
		enc := json.NewEncoder(w)

		err := player.Play(ctx, step, func(ev wizard.Event) error {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			s.logger.Debug("wizard stream stopped",
				zap.String("correlation_id", id),
				zap.Int("step", step),
				zap.Error(err),
			)
			return
		}

		if sessionID != "" {
			if err := s.svc.Sessions.Complete(ctx, sessionID, step); err != nil {
				s.logger.Warn("complete wizard step",
					zap.String("correlation_id", id),
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
			}
		}
	}))

	return nil
}

func (s *Server) handleWizardStart(c *fiber.Ctx) error {
	sess := s.svc.Sessions.Start()
	return ok(c, s.svc.Sessions.View(sess), nil)
}

func (s *Server) handleWizardSession(c *fiber.Ctx) error {
	sess, err := s.svc.Sessions.Get(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, s.svc.Sessions.View(sess), nil)
}

func (s *Server) handleWizardNext(c *fiber.Ctx) error {
	view, err := s.svc.Sessions.Next(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, view, nil)
}
