package api

import (
	"bufio"
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/appeal"
	"github.com/finvisor/finvisor/pkg/chat"
	"github.com/finvisor/finvisor/pkg/documents"
	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/logger"
	"github.com/finvisor/finvisor/pkg/provider/perplexity"
	"github.com/finvisor/finvisor/pkg/research"
	"github.com/finvisor/finvisor/pkg/strategy"
)

// handleChat answers with Finnie, through Decagon when asked and possible.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chat.Request
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	s.logger.Debug("received chat request",
		zap.String("correlation_id", correlationID(c)),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("use_decagon", req.UseDecagon),
	)

	reply, err := s.svc.Chat.Chat(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, reply, nil)
}

func (s *Server) handleChatHistory(c *fiber.Ctx) error {
	id := c.Query("conversationId")
	msgs, err := s.svc.Chat.History(c.Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, fiber.Map{"conversationId": id, "messages": msgs}, nil)
}

type documentsRequest struct {
	Documents []documents.Upload `json:"documents"`
}

func (s *Server) handleDocuments(c *fiber.Ctx) error {
	var req documentsRequest
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	results, err := s.svc.Documents.Parse(c.Context(), req.Documents)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, fiber.Map{"documents": results}, meta{"provider": "openai", "count": len(results)})
}

func (s *Server) handleDocumentBatch(c *fiber.Ctx) error {
	var req documentsRequest
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	out, err := s.svc.Documents.Batch(c.Context(), req.Documents)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, fiber.Map{"documents": out}, meta{"provider": "modal"})
}

func (s *Server) handleStrategy(c *fiber.Ctx) error {
	var req strategy.Request
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	res, err := s.svc.Strategy.Analyze(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	provider := "anthropic"
	if strings.HasPrefix(res.Model, "gemini") {
		provider = "gemini"
	}
	return ok(c, res, meta{"provider": provider, "model": res.Model})
}

func (s *Server) handleResearch(c *fiber.Ctx) error {
	var req research.Request
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	res, err := s.svc.Research.Run(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, res, meta{"provider": "perplexity", "model": perplexity.Model})
}

func (s *Server) handleResearchQuery(c *fiber.Ctx) error {
	focus := c.Query("focus", research.Academic)

	ans, err := s.svc.Research.Query(c.Context(), c.Query("query"), focus)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, ans, meta{"provider": "perplexity", "focus": focus})
}

func (s *Server) handleAppeal(c *fiber.Ctx) error {
	var req appeal.Request
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	letter, err := s.svc.Appeal.Generate(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, letter, nil)
}

// handleAppealStream writes the letter a word at a time as chunked plain
// text. The letter is generated before the first byte goes out, so failures
// still get an envelope; a client that hangs up stops the stream at the next
// flush.
func (s *Server) handleAppealStream(c *fiber.Ctx) error {
	var req appeal.Request
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	letter, err := s.svc.Appeal.Draft(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}

	id := correlationID(c)
	c.Set("Content-Type", "text/plain; charset=utf-8")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		err := llm.StreamWords(context.Background(), letter, s.config.WordPause, func(chunk string) error {
			if _, err := w.WriteString(chunk); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			s.logger.Debug("letter stream stopped",
				zap.String("correlation_id", id),
				zap.String("letter_preview", logger.Truncate(letter, 50)),
				zap.Error(err),
			)
		}
	}))

	return nil
}
