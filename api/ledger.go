package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/merkle"
)

// The ledger endpoints answer in plain JSON, without the /api envelope, so
// `finvisor push` and ad-hoc curl sessions can read them directly.

func errorBody(msg string) fiber.Map {
	return fiber.Map{"error": msg}
}

// handleLedgerStats returns node, root and leaf counts.
func (s *Server) handleLedgerStats(c *fiber.Ctx) error {
	stats, err := s.svc.Ledger.Stats(c.Context())
	if err != nil {
		s.logger.Error("ledger stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody("failed to read ledger"))
	}
	return c.JSON(stats)
}

// handleGetNode returns a single node by its hash.
func (s *Server) handleGetNode(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("hash parameter required"))
	}

	node, err := s.svc.Ledger.Storer().Get(c.Context(), hash)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorBody("node not found"))
	}
	return c.JSON(node)
}

// handleListHistories returns one history per leaf node.
func (s *Server) handleListHistories(c *fiber.Ctx) error {
	histories, err := s.svc.Ledger.Histories(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody("failed to get leaves"))
	}
	return c.JSON(fiber.Map{
		"count":     len(histories),
		"histories": histories,
	})
}

// handleGetHistory returns the chronological history leading up to a node.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	history, err := s.svc.Ledger.History(c.Context(), c.Params("hash"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errorBody("node not found"))
	}
	return c.JSON(history)
}

// handleIngest stores nodes pushed from another ledger. Nodes that fail
// verification or arrive without their parent are counted, not stored.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	var nodes []*merkle.Node
	if err := json.Unmarshal(c.Body(), &nodes); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid request body"))
	}

	res, err := s.svc.Ledger.Ingest(c.Context(), nodes)
	if err != nil {
		s.logger.Error("ingest nodes", zap.Int("count", len(nodes)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody("failed to store nodes"))
	}

	s.logger.Info("ingested nodes",
		zap.Int("new", res.New),
		zap.Int("duplicate", res.Duplicate),
		zap.Int("errors", res.Errors),
	)
	return c.JSON(res)
}
