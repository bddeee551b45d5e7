package advisor

import "context"

const (
	demoMeetingID = "demo-12345"
	demoJoinURL   = "https://zoom.us/j/DEMO_MEETING"
	demoStartURL  = "https://zoom.us/s/DEMO_START"
	demoPassword  = "123456"
)

// Demo simulates Zoom with fixed answers.
type Demo struct{}

func (Demo) Schedule(_ context.Context, req ScheduleRequest) (*Session, error) {
	s := &Session{
		MeetingID:     demoMeetingID,
		JoinURL:       demoJoinURL,
		StartURL:      demoStartURL,
		Password:      demoPassword,
		ScheduledTime: req.ScheduledTime,
		Topic:         req.Topic,
		Duration:      req.Duration,
		Instructions: []string{
			"Demo mode: no real Zoom meeting was created.",
			"Use this mock URL for presentation purposes.",
		},
	}
	if s.ScheduledTime == "" {
		s.ScheduledTime = Instant
	}
	if s.Topic == "" {
		s.Topic = DefaultTopic
	}
	if s.Duration == 0 {
		s.Duration = DefaultDuration
	}
	return s, nil
}

func (Demo) Meeting(context.Context, string) (*Meeting, error) {
	return &Meeting{
		ID:       demoMeetingID,
		Topic:    DefaultTopic,
		Status:   "waiting",
		JoinURL:  demoJoinURL,
		StartURL: demoStartURL,
		Password: demoPassword,
	}, nil
}

func (Demo) Analyze(_ context.Context, req AnalyzeRequest) (*Insights, error) {
	return &Insights{
		Insights: []string{
			"Demo insight: recommend follow-up email within 7 days.",
			"Demo insight: gather additional financial documentation.",
		},
		TranscriptLength: transcriptLength(req.Transcript),
	}, nil
}

type WebhookAck struct {
	Success  bool   `json:"success"`
	Received string `json:"received"`
}

func (Demo) Webhook(context.Context, Webhook) (any, error) {
	return WebhookAck{Success: true, Received: "demo.webhook"}, nil
}
