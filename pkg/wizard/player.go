package wizard

import (
	"context"
	"time"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/llm"
)

// Event kinds.
const (
	KindTyping  = "typing"
	KindMessage = "message"
	KindPhase   = "phase"
	KindItem    = "item"
	KindLine    = "line"
	KindInsight = "insight"
	KindPlan    = "plan"
	KindResult  = "result"
	KindDone    = "done"
)

// Script timings.
const (
	botTypingBase  = 1200 * time.Millisecond
	botTypingPerCU = 4 * time.Millisecond
	userReveal     = 800 * time.Millisecond
	chatPause      = 400 * time.Millisecond

	parseDelay = 2800 * time.Millisecond

	thinkDelay    = 1200 * time.Millisecond
	thinkSettle   = 300 * time.Millisecond
	searchDelay   = 1800 * time.Millisecond
	searchSettle  = 200 * time.Millisecond
	actionDelay   = 1600 * time.Millisecond
	actionSettle  = 200 * time.Millisecond
	blankLine     = 80 * time.Millisecond
	lineBase      = 150 * time.Millisecond
	linePerCU     = 2 * time.Millisecond
	connectDelay  = 2500 * time.Millisecond
	transcriptGap = 3000 * time.Millisecond
	insightDelay  = 600 * time.Millisecond
	hangupDelay   = 1500 * time.Millisecond
)

// Event is one reveal in a step's script. Items that change phase
// (thinking then done, searching then found) are emitted once per phase
// with the same Index.
type Event struct {
	Step    int    `json:"step"`
	Kind    string `json:"kind"`
	Index   int    `json:"index"`
	Phase   string `json:"phase,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper sleeps in real time.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep plays scripts instantly.
var NoSleep = SleeperFunc(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })

// Upload documents in the demo.
const (
	DocW2    = "w2"
	DocFAFSA = "fafsa"
)

// Player emits the scripted events of a step.
type Player struct {
	scripts *Scripts
	sleeper Sleeper

	// Document picks the upload step's demo document.
	Document string
}

func NewPlayer(scripts *Scripts, sleeper Sleeper) *Player {
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	return &Player{scripts: scripts, sleeper: sleeper, Document: DocW2}
}

func (p *Player) Scripts() *Scripts { return p.scripts }

// Play emits step's events in order and finishes with a done event. It
// returns ctx.Err() if cancelled and the first error from emit.
func (p *Player) Play(ctx context.Context, step int, emit func(Event) error) error {
	if step < 0 || step >= NumSteps {
		return apperr.Invalid("Unknown wizard step")
	}

	r := &run{ctx: ctx, step: step, sleeper: p.sleeper, emit: emit}
	var n int
	switch step {
	case Finnie:
		n = r.finnie(p.scripts.Finnie)
	case Upload:
		n = r.upload(p.scripts.Upload[p.document()])
	case Strategy:
		n = r.strategy(p.scripts)
	case Research:
		n = r.research(p.scripts.Research)
	case Appeal:
		n = r.appeal(p.scripts.Appeal)
	case Submit:
		n = r.submit(p.scripts)
	case Zoom:
		n = r.zoom(p.scripts)
	case Dashboard:
		n = r.dashboard(p.scripts)
	}
	if r.err != nil {
		return r.err
	}
	return emit(Event{Step: step, Kind: KindDone, Index: n})
}

// PlayCurrent plays c's current step and marks it complete once every event
// was emitted.
func (p *Player) PlayCurrent(ctx context.Context, c *Controller, emit func(Event) error) error {
	step := c.Current()
	if err := p.Play(ctx, step, emit); err != nil {
		return err
	}
	return c.Complete(step)
}

func (p *Player) document() string {
	if _, ok := p.scripts.Upload[p.Document]; ok {
		return p.Document
	}
	return DocW2
}

// run carries the first error; once set every later call is a no-op.
type run struct {
	ctx     context.Context
	step    int
	sleeper Sleeper
	emit    func(Event) error
	err     error
}

func (r *run) sleep(d time.Duration) {
	if r.err == nil {
		r.err = r.sleeper.Sleep(r.ctx, d)
	}
}

func (r *run) send(kind string, index int, phase string, payload any) {
	if r.err == nil {
		r.err = r.emit(Event{Step: r.step, Kind: kind, Index: index, Phase: phase, Payload: payload})
	}
}

func (r *run) finnie(lines []ChatLine) int {
	for i, line := range lines {
		if line.Bot != "" {
			r.send(KindTyping, i, "", nil)
			r.sleep(botTypingBase + time.Duration(llm.UTF16Len(line.Bot))*botTypingPerCU)
			r.send(KindMessage, i, "", map[string]string{"role": "bot", "text": line.Bot})
		} else {
			r.sleep(userReveal)
			r.send(KindMessage, i, "", map[string]string{"role": "user", "text": line.User})
		}
		r.sleep(chatPause)
	}
	return len(lines)
}

func (r *run) upload(doc ParsedDocument) int {
	r.send(KindPhase, 0, "parsing", nil)
	r.sleep(parseDelay)
	r.send(KindResult, 0, "parsed", doc)
	return 1
}

func (r *run) strategy(s *Scripts) int {
	for i, item := range s.Strategy.Reasoning {
		r.send(KindItem, i, "thinking", item)
		r.sleep(thinkDelay)
		r.send(KindItem, i, "done", item)
		r.sleep(thinkSettle)
	}
	r.send(KindPlan, 0, "", s.Strategy.Plan)
	return len(s.Strategy.Reasoning)
}

func (r *run) research(items []ResearchItem) int {
	for i, item := range items {
		r.send(KindItem, i, "searching", item)
		r.sleep(searchDelay)
		r.send(KindItem, i, "found", item)
		r.sleep(searchSettle)
	}
	return len(items)
}

func (r *run) appeal(lines []string) int {
	for i, line := range lines {
		r.send(KindLine, i, "", line)
		if line == "" {
			r.sleep(blankLine)
		} else {
			r.sleep(lineBase + time.Duration(llm.UTF16Len(line))*linePerCU)
		}
	}
	return len(lines)
}

// SubmitResult is the closing event of the auto-submit step.
type SubmitResult struct {
	Confirmation string `json:"confirmation"`
	Estimate     string `json:"estimate"`
}

func (r *run) submit(s *Scripts) int {
	for i, a := range s.Submit.Actions {
		r.send(KindItem, i, "running", a)
		r.sleep(actionDelay)
		r.send(KindItem, i, "done", a)
		r.sleep(actionSettle)
	}
	r.send(KindResult, 0, "submitted", SubmitResult{Confirmation: s.Submit.Confirmation, Estimate: s.Submit.Estimate})
	return len(s.Submit.Actions)
}

// zoom replays the call on its original clock: a line every transcriptGap
// once live, each line after the first followed by an insight, and the
// hang-up one empty tick plus hangupDelay after the last line.
func (r *run) zoom(s *Scripts) int {
	lines, insights := s.Zoom.Transcript, s.Zoom.Insights

	r.send(KindPhase, 0, "connecting", nil)
	r.sleep(connectDelay)
	r.send(KindPhase, 1, "live", nil)

	var spent time.Duration
	for idx, line := range lines {
		r.sleep(transcriptGap - spent)
		spent = 0
		r.send(KindLine, idx, "", line)
		if idx > 0 && idx-1 < len(insights) {
			r.sleep(insightDelay)
			spent = insightDelay
			r.send(KindInsight, idx-1, "", insights[idx-1])
		}
	}
	r.sleep(transcriptGap - spent)
	r.sleep(hangupDelay)
	r.send(KindPhase, 2, "ended", nil)
	return len(lines)
}

// DashboardView is the dashboard step's single result.
type DashboardView struct {
	Stats    []Stat    `json:"stats"`
	Tiers    []Tier    `json:"tiers"`
	Sponsors []Sponsor `json:"sponsors"`
}

func (r *run) dashboard(s *Scripts) int {
	r.send(KindResult, 0, "", DashboardView{Stats: s.Dashboard.Stats, Tiers: s.Dashboard.Tiers, Sponsors: s.Dashboard.Sponsors})
	return 1
}
