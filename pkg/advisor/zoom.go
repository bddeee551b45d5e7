package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/zoom"
)

const advisorPrompt = `You are an AI assistant helping a human financial aid advisor during a live session.
Provide real-time suggestions, insights, and action items based on the conversation.
Be concise but helpful. Focus on practical next steps for the student.`

// recentLines is how much of a transcript the summariser sees.
const recentLines = 10

const urlValidation = "endpoint.url_validation"

// Meetings is the Zoom API surface the advisor uses.
type Meetings interface {
	CreateMeeting(ctx context.Context, req zoom.MeetingRequest) (*zoom.Meeting, error)
	Meeting(ctx context.Context, id string) (*zoom.Meeting, error)
}

// Zoom is the live advisor. The summariser may be nil, in which case
// transcripts cannot be analysed.
type Zoom struct {
	meetings      Meetings
	summariser    llm.Completer
	webhookSecret string
	logger        *zap.Logger
}

func NewZoom(meetings Meetings, summariser llm.Completer, webhookSecret string, logger *zap.Logger) *Zoom {
	return &Zoom{meetings: meetings, summariser: summariser, webhookSecret: webhookSecret, logger: logger}
}

func (z *Zoom) Schedule(ctx context.Context, req ScheduleRequest) (*Session, error) {
	topic := req.Topic
	if topic == "" {
		topic = "Finvisor Advisory Session"
	}
	duration := req.Duration
	if duration == 0 {
		duration = DefaultDuration
	}

	m, err := z.meetings.CreateMeeting(ctx, zoom.NewMeetingRequest(topic, req.ScheduledTime, duration))
	if err != nil {
		return nil, apperr.UpstreamErr("Failed to create meeting", err)
	}
	z.logger.Info("advisor meeting created", zap.Int64("meeting_id", m.ID))

	scheduled := m.StartTime
	if scheduled == "" {
		scheduled = Instant
	}
	return &Session{
		MeetingID:     strconv.FormatInt(m.ID, 10),
		JoinURL:       m.JoinURL,
		StartURL:      m.StartURL,
		Password:      m.Password,
		ScheduledTime: scheduled,
		Topic:         m.Topic,
		Duration:      m.Duration,
		Instructions: []string{
			"Share the join link with the student.",
			"The session is recorded to the cloud for the case file.",
		},
	}, nil
}

func (z *Zoom) Meeting(ctx context.Context, id string) (*Meeting, error) {
	if id == "" {
		return nil, apperr.Invalid("Meeting ID required")
	}
	m, err := z.meetings.Meeting(ctx, id)
	if err != nil {
		return nil, apperr.UpstreamErr("Failed to get meeting", err)
	}
	return &Meeting{
		ID:       strconv.FormatInt(m.ID, 10),
		Topic:    m.Topic,
		Status:   m.Status,
		JoinURL:  m.JoinURL,
		StartURL: m.StartURL,
		Password: m.Password,
	}, nil
}

// Analyze asks the summariser for advisor suggestions on the last lines of
// the transcript. A reply that is not JSON becomes the suggestion.
func (z *Zoom) Analyze(ctx context.Context, req AnalyzeRequest) (*Insights, error) {
	if req.Transcript == "" {
		return nil, apperr.Invalid("Transcript required")
	}
	if z.summariser == nil {
		return nil, apperr.Unconfigured("No provider configured for transcript analysis")
	}

	lines := strings.Split(strings.TrimSpace(req.Transcript), "\n")
	if len(lines) > recentLines {
		lines = lines[len(lines)-recentLines:]
	}
	prompt := fmt.Sprintf(`Student Context:
%s

Recent Conversation:
%s

Provide a suggestion for the advisor, an insight for the student record, and any action items.
Return as JSON with keys: suggestion, insight, actionItems (array)`, req.StudentContext, strings.Join(lines, "\n"))

	res, err := z.summariser.Complete(ctx, llm.Request{
		System:   advisorPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Options:  llm.Options{MaxTokens: 1000},
	})
	if err != nil {
		return nil, apperr.UpstreamErr("Transcript analysis failed", err)
	}

	var parsed struct {
		Suggestion  string   `json:"suggestion"`
		Insight     string   `json:"insight"`
		ActionItems []string `json:"actionItems"`
	}
	if err := llm.ExtractJSON(res.Content, &parsed); err != nil {
		parsed.Suggestion = res.Content
	}

	out := &Insights{
		Insights:         []string{},
		Suggestion:       parsed.Suggestion,
		ActionItems:      parsed.ActionItems,
		TranscriptLength: transcriptLength(req.Transcript),
	}
	if parsed.Insight != "" {
		out.Insights = append(out.Insights, parsed.Insight)
	}
	if out.ActionItems == nil {
		out.ActionItems = []string{}
	}
	return out, nil
}

type event struct {
	Event   string `json:"event"`
	Payload struct {
		PlainToken string `json:"plainToken"`
	} `json:"payload"`
}

// ValidationResponse answers Zoom's endpoint.url_validation challenge.
type ValidationResponse struct {
	PlainToken     string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}

// Webhook verifies and acknowledges a delivery. Signatures are checked only
// when a webhook secret is configured.
func (z *Zoom) Webhook(_ context.Context, hook Webhook) (any, error) {
	var ev event
	if err := json.Unmarshal(hook.Body, &ev); err != nil {
		return nil, apperr.Invalid("Invalid webhook payload")
	}

	if ev.Event == urlValidation {
		if z.webhookSecret == "" {
			return nil, apperr.Unconfigured("Zoom webhook secret not configured")
		}
		return ValidationResponse{
			PlainToken:     ev.Payload.PlainToken,
			EncryptedToken: zoom.EncryptToken(z.webhookSecret, ev.Payload.PlainToken),
		}, nil
	}

	if z.webhookSecret != "" && !zoom.VerifySignature(z.webhookSecret, hook.Timestamp, hook.Body, hook.Signature) {
		return nil, apperr.Invalid("Invalid webhook signature")
	}

	z.logger.Info("zoom webhook received", zap.String("event", ev.Event))
	return WebhookAck{Success: true, Received: ev.Event}, nil
}
