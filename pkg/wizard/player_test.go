package wizard_test

import (
	"context"
	"errors"
	"time"
	"unicode/utf16"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finvisor/finvisor/pkg/wizard"
)

// recorder collects emitted events and requested sleeps.
type recorder struct {
	events []wizard.Event
	sleeps []time.Duration
}

func (r *recorder) emit(ev wizard.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) total() time.Duration {
	var sum time.Duration
	for _, d := range r.sleeps {
		sum += d
	}
	return sum
}

var _ = Describe("Player", func() {
	var (
		scripts *wizard.Scripts
		rec     *recorder
		player  *wizard.Player
		ctx     context.Context
	)

	BeforeEach(func() {
		scripts = wizard.MustLoad()
		rec = &recorder{}
		player = wizard.NewPlayer(scripts, rec)
		ctx = context.Background()
	})

	play := func(step int) {
		Expect(player.Play(ctx, step, rec.emit)).To(Succeed())
		last := rec.events[len(rec.events)-1]
		Expect(last.Kind).To(Equal(wizard.KindDone))
		Expect(last.Step).To(Equal(step))
	}

	It("rejects an unknown step", func() {
		Expect(player.Play(ctx, wizard.NumSteps, rec.emit)).To(MatchError("Unknown wizard step"))
		Expect(rec.events).To(BeEmpty())
	})

	It("types out every Finnie message", func() {
		play(wizard.Finnie)

		Expect(rec.count(wizard.KindMessage)).To(Equal(9))
		Expect(rec.count(wizard.KindTyping)).To(Equal(5))
		Expect(rec.events[0].Kind).To(Equal(wizard.KindTyping))
		Expect(rec.events[1].Payload).To(HaveKeyWithValue("role", "bot"))

		first := scripts.Finnie[0].Bot
		cu := len(utf16.Encode([]rune(first)))
		Expect(rec.sleeps[0]).To(Equal(1200*time.Millisecond + time.Duration(cu)*4*time.Millisecond))
		Expect(rec.sleeps[1]).To(Equal(400 * time.Millisecond))
		Expect(rec.sleeps[2]).To(Equal(800 * time.Millisecond))
	})

	It("parses the chosen upload document", func() {
		player.Document = wizard.DocFAFSA
		play(wizard.Upload)

		Expect(rec.events[0].Phase).To(Equal("parsing"))
		Expect(rec.events[1].Kind).To(Equal(wizard.KindResult))
		Expect(rec.events[1].Payload).To(Equal(scripts.Upload[wizard.DocFAFSA]))
		Expect(rec.sleeps).To(Equal([]time.Duration{2800 * time.Millisecond}))
	})

	It("falls back to the W-2 for an unknown document", func() {
		player.Document = "paystub"
		play(wizard.Upload)
		Expect(rec.events[1].Payload).To(Equal(scripts.Upload[wizard.DocW2]))
	})

	It("reasons through the strategy before the plan", func() {
		play(wizard.Strategy)

		Expect(rec.count(wizard.KindItem)).To(Equal(14))
		Expect(rec.events[0].Phase).To(Equal("thinking"))
		Expect(rec.events[1].Phase).To(Equal("done"))
		Expect(rec.events[1].Index).To(Equal(0))

		plan := rec.events[len(rec.events)-2]
		Expect(plan.Kind).To(Equal(wizard.KindPlan))
		Expect(plan.Payload).To(HaveLen(4))
		Expect(rec.total()).To(Equal(7 * 1500 * time.Millisecond))
	})

	It("searches then finds each research item", func() {
		play(wizard.Research)

		Expect(rec.count(wizard.KindItem)).To(Equal(10))
		Expect(rec.total()).To(Equal(5 * 2 * time.Second))
	})

	It("writes the appeal line by line", func() {
		play(wizard.Appeal)

		Expect(rec.count(wizard.KindLine)).To(Equal(19))
		Expect(rec.sleeps).To(ContainElement(80 * time.Millisecond))
	})

	It("runs every submission action and reports the confirmation", func() {
		play(wizard.Submit)

		Expect(rec.count(wizard.KindItem)).To(Equal(14))
		res := rec.events[len(rec.events)-2]
		Expect(res.Kind).To(Equal(wizard.KindResult))
		Expect(res.Payload).To(Equal(wizard.SubmitResult{Confirmation: "SFA-2026-04821", Estimate: "2-3 weeks"}))
	})

	It("replays the advisor call on its own clock", func() {
		play(wizard.Zoom)

		Expect(rec.count(wizard.KindLine)).To(Equal(5))
		Expect(rec.count(wizard.KindInsight)).To(Equal(4))
		Expect(rec.count(wizard.KindPhase)).To(Equal(3))

		Expect(rec.events[0].Phase).To(Equal("connecting"))
		Expect(rec.events[1].Phase).To(Equal("live"))
		Expect(rec.events[len(rec.events)-2].Phase).To(Equal("ended"))

		// connect + six 3s ticks + hang-up
		Expect(rec.total()).To(Equal(2500*time.Millisecond + 6*3*time.Second + 1500*time.Millisecond))
	})

	It("shows the dashboard at once", func() {
		play(wizard.Dashboard)

		Expect(rec.sleeps).To(BeEmpty())
		view, ok := rec.events[0].Payload.(wizard.DashboardView)
		Expect(ok).To(BeTrue())
		Expect(view.Tiers).To(HaveLen(3))
		Expect(view.Sponsors).To(HaveLen(10))
	})

	It("stops on cancellation without completing the step", func() {
		cctx, cancel := context.WithCancel(ctx)
		c := wizard.NewController()

		err := player.PlayCurrent(cctx, c, func(ev wizard.Event) error {
			if ev.Kind == wizard.KindMessage {
				cancel()
			}
			return nil
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(c.Done(wizard.Finnie)).To(BeFalse())
	})

	It("stops on the first emit error", func() {
		boom := errors.New("client gone")
		calls := 0
		err := player.Play(ctx, wizard.Research, func(wizard.Event) error {
			calls++
			return boom
		})
		Expect(err).To(MatchError(boom))
		Expect(calls).To(Equal(1))
	})

	It("completes the current step once fully played", func() {
		c := wizard.NewController()
		Expect(player.PlayCurrent(ctx, c, rec.emit)).To(Succeed())
		Expect(c.Done(wizard.Finnie)).To(BeTrue())
	})

	It("sleeps in real time with the timer sleeper", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		Expect(wizard.TimerSleeper{}.Sleep(cctx, time.Hour)).To(MatchError(context.Canceled))
		Expect(wizard.TimerSleeper{}.Sleep(ctx, time.Millisecond)).To(Succeed())
	})
})
