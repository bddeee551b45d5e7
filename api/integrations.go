package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/finvisor/finvisor/pkg/advisor"
	"github.com/finvisor/finvisor/pkg/analytics"
	"github.com/finvisor/finvisor/pkg/payment"
	"github.com/finvisor/finvisor/pkg/provider/fetchai"
	"github.com/finvisor/finvisor/pkg/submit"
)

// Zoom webhook signature headers.
const (
	headerZoomTimestamp = "x-zm-request-timestamp"
	headerZoomSignature = "x-zm-signature"
)

func (s *Server) handleSubmit(c *fiber.Ctx) error {
	var req submit.Request
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	res, err := s.svc.Submit.Submit(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	if _, dry := res.(*submit.DryRun); dry {
		return ok(c, res, nil)
	}
	return ok(c, res, meta{"provider": "browserbase"})
}

func (s *Server) handleSubmitStatus(c *fiber.Ctx) error {
	st, err := s.svc.Submit.Status(c.Context(), c.Query("sessionId"))
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, st, nil)
}

func (s *Server) handlePortalScrape(c *fiber.Ctx) error {
	var req submit.ScrapeRequest
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	info, err := s.svc.Submit.Scrape(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, info, nil)
}

func (s *Server) handlePayment(c *fiber.Ctx) error {
	var req payment.Request
	if err := parse(c, &req); err != nil {
		return s.fail(c, err)
	}

	checkout, err := s.svc.Payment.Request(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, checkout, nil)
}

// handlePaymentQuery serves pricing, agent analytics or a payment
// confirmation depending on the query.
func (s *Server) handlePaymentQuery(c *fiber.Ctx) error {
	switch c.Query("action") {
	case "pricing":
		return ok(c, s.svc.Payment.Pricing(), nil)
	case "analytics":
		stats, err := s.svc.Payment.Analytics(c.Context())
		if err != nil {
			return s.fail(c, err)
		}
		return ok(c, stats, nil)
	}

	conf, err := s.svc.Payment.Confirm(c.Context(), c.Query("paymentId"))
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, conf, nil)
}

func (s *Server) handlePaymentOffer(c *fiber.Ctx) error {
	var offer fetchai.Offer
	if err := parse(c, &offer); err != nil {
		return s.fail(c, err)
	}

	listing, err := s.svc.Payment.Offer(c.Context(), offer)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, listing, nil)
}

// handleZoomSchedule books a session. A malformed body books one with the
// defaults.
func (s *Server) handleZoomSchedule(c *fiber.Ctx) error {
	var req advisor.ScheduleRequest
	if err := parse(c, &req); err != nil {
		req = advisor.ScheduleRequest{}
	}

	session, err := s.svc.Advisor.Schedule(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, session, nil)
}

func (s *Server) handleZoomMeeting(c *fiber.Ctx) error {
	m, err := s.svc.Advisor.Meeting(c.Context(), c.Query("meetingId"))
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, m, nil)
}

// handleZoomAnalyze reads a malformed body as an empty transcript.
func (s *Server) handleZoomAnalyze(c *fiber.Ctx) error {
	var req advisor.AnalyzeRequest
	if err := parse(c, &req); err != nil {
		req = advisor.AnalyzeRequest{}
	}

	insights, err := s.svc.Advisor.Analyze(c.Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return ok(c, insights, nil)
}

// handleZoomWebhook answers Zoom directly; its replies are not enveloped.
func (s *Server) handleZoomWebhook(c *fiber.Ctx) error {
	hook := advisor.Webhook{
		Body:      append([]byte(nil), c.Body()...),
		Timestamp: c.Get(headerZoomTimestamp),
		Signature: c.Get(headerZoomSignature),
	}

	res, err := s.svc.Advisor.Webhook(c.Context(), hook)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

// handleAnalytics always answers 200; sources that fail or are not
// configured come back null.
func (s *Server) handleAnalytics(c *fiber.Ctx) error {
	tr := s.svc.Analytics.Range(c.Query("start"), c.Query("end"))
	report, md := s.svc.Analytics.Report(c.Context(), tr)
	return ok(c, report, md)
}

func (s *Server) handleAnalyticsHead(c *fiber.Ctx) error {
	c.Set("X-Status", "healthy")
	c.Set("X-Version", analytics.Version)
	return c.SendStatus(fiber.StatusOK)
}
