// Package advisor schedules live advisor sessions and turns their transcripts
// into insights. The demo advisor answers with fixed data and needs no
// credentials; the Zoom advisor talks to the real Zoom API.
package advisor

import (
	"context"

	"github.com/finvisor/finvisor/pkg/llm"
)

type ScheduleRequest struct {
	Topic         string `json:"topic,omitempty"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
	Duration      int    `json:"duration,omitempty"`
}

type Session struct {
	MeetingID     string   `json:"meetingId"`
	JoinURL       string   `json:"joinUrl"`
	StartURL      string   `json:"startUrl"`
	Password      string   `json:"password"`
	ScheduledTime string   `json:"scheduledTime"`
	Topic         string   `json:"topic"`
	Duration      int      `json:"duration"`
	Instructions  []string `json:"instructions"`
}

// Meeting uses Zoom's own field names.
type Meeting struct {
	ID       string `json:"id"`
	Topic    string `json:"topic"`
	Status   string `json:"status"`
	JoinURL  string `json:"join_url"`
	StartURL string `json:"start_url"`
	Password string `json:"password"`
}

type AnalyzeRequest struct {
	Transcript     string `json:"transcript,omitempty"`
	StudentContext string `json:"studentContext,omitempty"`
}

type Insights struct {
	Insights         []string `json:"insights"`
	Suggestion       string   `json:"suggestion,omitempty"`
	ActionItems      []string `json:"actionItems,omitempty"`
	TranscriptLength int      `json:"transcriptLength"`
}

// Webhook is one raw delivery with its signature headers.
type Webhook struct {
	Body      []byte
	Timestamp string
	Signature string
}

// Advisor backs the /api/zoom endpoints. Webhook results are written to the
// client as they are, without the response envelope.
type Advisor interface {
	Schedule(ctx context.Context, req ScheduleRequest) (*Session, error)
	Meeting(ctx context.Context, id string) (*Meeting, error)
	Analyze(ctx context.Context, req AnalyzeRequest) (*Insights, error)
	Webhook(ctx context.Context, hook Webhook) (any, error)
}

const (
	DefaultTopic    = "Demo Advisory Session"
	DefaultDuration = 30
	Instant         = "instant"
)

// transcriptLength is measured in UTF-16 code units, like the wizard's.
func transcriptLength(s string) int {
	return llm.UTF16Len(s)
}
