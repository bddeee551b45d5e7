// Package submit files appeals on school aid portals through a remote
// browser, and records every attempt in the ledger with sealed credentials.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/merkle"
	"github.com/finvisor/finvisor/pkg/provider/browserbase"
	"github.com/finvisor/finvisor/pkg/sealed"
)

const ModeDryRun = "dry_run"

var NextSteps = []string{
	"Save your confirmation number for reference",
	"Expect a response within 2-4 weeks",
	"Check your email and portal for updates",
	"Consider sending a follow-up email in 7-10 days",
}

// Sessions creates and inspects remote browser sessions.
type Sessions interface {
	CreateSession(ctx context.Context) (*browserbase.Session, error)
	Session(ctx context.Context, id string) (*browserbase.Session, error)
}

type Document struct {
	Name   string `json:"name"`
	Base64 string `json:"base64"`
}

type AppealData struct {
	LetterContent string            `json:"letterContent"`
	Documents     []Document        `json:"documents"`
	FormFields    map[string]string `json:"formFields"`
}

type Options struct {
	DryRun          bool `json:"dryRun,omitempty"`
	TakeScreenshots bool `json:"takeScreenshots,omitempty"`
}

type Request struct {
	PortalURL   string                   `json:"portalUrl"`
	Credentials *browserbase.Credentials `json:"credentials"`
	AppealData  AppealData               `json:"appealData"`
	Options     Options                  `json:"options"`
}

type DryRun struct {
	Mode           string `json:"mode"`
	PortalType     string `json:"portalType"`
	GeneratedCode  string `json:"generatedCode"`
	EstimatedSteps int    `json:"estimatedSteps"`
}

type Receipt struct {
	ConfirmationNumber string    `json:"confirmationNumber"`
	SubmittedAt        time.Time `json:"submittedAt"`
	Screenshots        []string  `json:"screenshots"`
	NextSteps          []string  `json:"nextSteps"`
	SessionID          string    `json:"sessionId"`
	LedgerHash         string    `json:"ledgerHash,omitempty"`
}

// Failure is a submission that ran but did not complete. It answers 400
// and carries whatever screenshots were captured.
type Failure struct {
	Reason      string
	Screenshots []string
}

func (f *Failure) Error() string { return f.Reason }

type AidPackage struct {
	Grants    float64 `json:"grants"`
	Loans     float64 `json:"loans"`
	WorkStudy float64 `json:"workStudy"`
	Total     float64 `json:"total"`
}

type Deadline struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

type PortalMessage struct {
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Read    bool   `json:"read"`
}

type PortalInfo struct {
	AidPackage AidPackage      `json:"aidPackage"`
	Deadlines  []Deadline      `json:"deadlines"`
	Messages   []PortalMessage `json:"messages"`
}

type Service struct {
	sessions Sessions
	executor browserbase.Executor
	sealer   *sealed.Sealer
	recorder *ledger.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the submitter. A nil sessions means Browserbase is not
// configured; recorder may be nil to skip the ledger.
func NewService(sessions Sessions, executor browserbase.Executor, sealer *sealed.Sealer, recorder *ledger.Recorder, logger *zap.Logger) *Service {
	return &Service{
		sessions: sessions,
		executor: executor,
		sealer:   sealer,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) ready() error {
	if s.sessions == nil || s.executor == nil {
		return apperr.Unconfigured("Browserbase not configured")
	}
	return nil
}

// Submit files the appeal, or with DryRun returns the automation template
// for the detected portal without touching a browser.
func (s *Service) Submit(ctx context.Context, req Request) (any, error) {
	if req.PortalURL == "" || req.Credentials == nil || req.AppealData.LetterContent == "" {
		return nil, apperr.Invalid("Portal URL, credentials, and appeal letter required")
	}

	if req.Options.DryRun {
		return Plan(req.PortalURL), nil
	}
	return s.run(ctx, req)
}

// Plan is the dry run for portalURL.
func Plan(portalURL string) *DryRun {
	typ := browserbase.PortalType(portalURL)
	code := browserbase.AutomationCode(typ)
	return &DryRun{Mode: ModeDryRun, PortalType: typ, GeneratedCode: code, EstimatedSteps: browserbase.EstimateSteps(code)}
}

func (s *Service) run(ctx context.Context, req Request) (*Receipt, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx)
	if err != nil {
		return nil, apperr.UpstreamErr("Failed to create browser session", err)
	}
	log := s.logger.With(zap.String("session_id", session.ID), zap.String("portal", req.PortalURL))

	steps := browserbase.AppealPlan(req.PortalURL, *req.Credentials, req.AppealData.LetterContent, req.AppealData.FormFields)
	result, execErr := s.executor.Execute(ctx, session.ConnectURL, steps)
	if result == nil {
		result = &browserbase.Result{}
	}

	if execErr != nil {
		log.Warn("portal submission failed", zap.Error(execErr))
		s.record(ctx, req, session.ID, "", execErr)
		return nil, &Failure{Reason: execErr.Error(), Screenshots: result.Screenshots()}
	}

	now := s.now()
	receipt := &Receipt{
		ConfirmationNumber: browserbase.ConfirmationNumber(result, now),
		SubmittedAt:        now.UTC(),
		Screenshots:        []string{},
		NextSteps:          NextSteps,
		SessionID:          session.ID,
	}
	if req.Options.TakeScreenshots {
		receipt.Screenshots = result.Screenshots()
	}
	receipt.LedgerHash = s.record(ctx, req, session.ID, receipt.ConfirmationNumber, nil)

	log.Info("appeal submitted", zap.String("confirmation", receipt.ConfirmationNumber))
	return receipt, nil
}

// record appends the attempt to the ledger. The password never leaves the
// process in the clear: the credentials are sealed into the event.
func (s *Service) record(ctx context.Context, req Request, sessionID, confirmation string, failure error) string {
	if s.recorder == nil || s.sealer == nil {
		return ""
	}

	raw, err := json.Marshal(req.Credentials)
	if err != nil {
		s.logger.Error("encode credentials", zap.Error(err))
		return ""
	}
	box, err := s.sealer.Seal(raw)
	if err != nil {
		s.logger.Error("seal credentials", zap.Error(err))
		return ""
	}

	status := "submitted"
	data := map[string]any{
		"portalUrl":   req.PortalURL,
		"portalType":  browserbase.PortalType(req.PortalURL),
		"sessionId":   sessionID,
		"username":    req.Credentials.Username,
		"credentials": box,
		"at":          s.now().UTC().Format(time.RFC3339),
	}
	if failure != nil {
		status = "failed"
		data["error"] = failure.Error()
	} else {
		data["confirmationNumber"] = confirmation
	}

	hash, err := s.recorder.Append(ctx, "", merkle.Event{
		Kind:     merkle.KindSubmission,
		Case:     sessionID,
		Text:     status,
		Provider: "browserbase",
		Data:     data,
	})
	if err != nil {
		s.logger.Error("record submission", zap.Error(err))
		return ""
	}
	return hash
}

// Status maps a browser session to submission progress.
func (s *Service) Status(ctx context.Context, sessionID string) (*browserbase.SubmissionStatus, error) {
	if sessionID == "" {
		return nil, apperr.Invalid("Session ID required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	session, err := s.sessions.Session(ctx, sessionID)
	if err != nil {
		return nil, apperr.UpstreamErr("Status check failed", err)
	}
	st := browserbase.StatusOf(session)
	return &st, nil
}

type ScrapeRequest struct {
	PortalURL   string                   `json:"portalUrl"`
	Credentials *browserbase.Credentials `json:"credentials"`
}

// Scrape logs into the portal and reads the account page. Amounts are not
// parsed from portal markup yet, so the package is reported as zeros.
func (s *Service) Scrape(ctx context.Context, req ScrapeRequest) (*PortalInfo, error) {
	if req.PortalURL == "" || req.Credentials == nil {
		return nil, apperr.Invalid("Portal URL and credentials required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx)
	if err != nil {
		return nil, apperr.UpstreamErr("Portal scrape failed", err)
	}
	if _, err := s.executor.Execute(ctx, session.ConnectURL, browserbase.LoginPlan(req.PortalURL, *req.Credentials)); err != nil {
		return nil, apperr.UpstreamErr("Portal scrape failed", err)
	}

	return &PortalInfo{Deadlines: []Deadline{}, Messages: []PortalMessage{}}, nil
}

// OpenCredentials recovers the credentials sealed into a submission event.
func (s *Service) OpenCredentials(ev merkle.Event) (*browserbase.Credentials, error) {
	if ev.Kind != merkle.KindSubmission {
		return nil, fmt.Errorf("event kind %q is not a submission", ev.Kind)
	}
	if s.sealer == nil {
		return nil, errors.New("no sealer configured")
	}

	raw, err := json.Marshal(ev.Data["credentials"])
	if err != nil {
		return nil, fmt.Errorf("encode sealed box: %w", err)
	}
	var box sealed.Box
	if err := json.Unmarshal(raw, &box); err != nil {
		return nil, fmt.Errorf("decode sealed box: %w", err)
	}

	plain, err := s.sealer.Open(&box)
	if err != nil {
		return nil, err
	}
	var creds browserbase.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &creds, nil
}
