package democmder

import (
	"bytes"
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finvisor/finvisor/pkg/wizard"
)

var _ = Describe("Demo Command", func() {
	It("plays every step as text when output is not a terminal", func() {
		var out bytes.Buffer
		cmd := NewDemoCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--instant"})
		Expect(cmd.ExecuteContext(context.Background())).To(Succeed())

		text := out.String()
		for _, label := range []string{"Finnie Chat", "Upload Docs", "Generate Appeal", "Dashboard"} {
			Expect(text).To(ContainSubstring(label))
		}
		Expect(text).To(ContainSubstring("You: Stanford University"))
		Expect(text).To(ContainSubstring("Parsed W-2 Form"))
		Expect(text).To(ContainSubstring("Terminated Oct 2025 flagged"))
		Expect(text).To(ContainSubstring("Dear Stanford University Office of Financial Aid,"))
		Expect(text).To(ContainSubstring("Walkthrough complete"))
		Expect(text).NotTo(ContainSubstring("typing"))
	})

	It("parses the chosen document", func() {
		var out bytes.Buffer
		cmd := NewDemoCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--instant", "--plain", "--document", "fafsa"})
		Expect(cmd.ExecuteContext(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Parsed FAFSA / Aid Letter"))
	})

	It("stops when cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cmd := NewDemoCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--instant"})
		Expect(cmd.ExecuteContext(ctx)).To(MatchError(context.Canceled))
	})
})

var _ = Describe("describe", func() {
	It("labels chat messages by speaker", func() {
		bot := describe(wizard.Event{Kind: wizard.KindMessage, Payload: map[string]string{"role": "bot", "text": "Hi"}})
		user := describe(wizard.Event{Kind: wizard.KindMessage, Payload: map[string]string{"role": "user", "text": "Hello"}})
		Expect(bot).To(Equal([]string{"Finnie: Hi"}))
		Expect(user).To(Equal([]string{"You: Hello"}))
	})

	It("shows a research item's result only once found", func() {
		item := wizard.ResearchItem{Query: "Stanford appeal policy", Result: "Appeals reviewed", Source: "stanford.edu"}
		searching := describe(wizard.Event{Kind: wizard.KindItem, Phase: "searching", Payload: item})
		found := describe(wizard.Event{Kind: wizard.KindItem, Phase: "found", Payload: item})

		Expect(searching[0]).NotTo(ContainSubstring("Appeals reviewed"))
		Expect(found[0]).To(ContainSubstring("Appeals reviewed"))
		Expect(found[0]).To(ContainSubstring("(stanford.edu)"))
	})

	It("numbers the plan", func() {
		lines := describe(wizard.Event{Kind: wizard.KindPlan, Payload: []string{"Request review", "Attach COBRA bills"}})
		Expect(lines).To(ContainElement("  2. Attach COBRA bills"))
	})

	It("has nothing for done", func() {
		Expect(describe(wizard.Event{Kind: wizard.KindDone})).To(BeEmpty())
	})
})

var _ = Describe("model", func() {
	var m *model

	BeforeEach(func() {
		m = newModel(context.Background(), wizard.NewPlayer(wizard.MustLoad(), wizard.NoSleep))
		DeferCleanup(m.cancel)
	})

	// drain feeds playback messages back into Update until the step is done.
	drain := func(cmd tea.Cmd) {
		for cmd != nil {
			msg := cmd()
			if msg == nil {
				return
			}
			_, cmd = m.Update(msg)
			if _, ok := msg.(stepDoneMsg); ok {
				return
			}
		}
	}

	enter := tea.KeyMsg{Type: tea.KeyEnter}

	It("plays a step and waits for enter", func() {
		_, cmd := m.Update(enter)
		Expect(cmd).To(BeNil())

		drain(m.play())
		Expect(m.playing).To(BeFalse())
		Expect(m.err).NotTo(HaveOccurred())
		Expect(m.ctrl.Done(wizard.Finnie)).To(BeTrue())
		Expect(m.lines).To(HaveLen(9))
		Expect(strings.Join(m.lines, "\n")).NotTo(ContainSubstring("typing"))
		Expect(m.View()).To(ContainSubstring("enter next step"))

		_, cmd = m.Update(enter)
		Expect(cmd).NotTo(BeNil())
		Expect(m.ctrl.Current()).To(Equal(wizard.Upload))
		drain(cmd)
		Expect(m.View()).To(ContainSubstring("Step 2/8  Upload Docs"))
	})

	It("walks to the dashboard", func() {
		drain(m.play())
		for range wizard.NumSteps - 1 {
			_, cmd := m.Update(enter)
			drain(cmd)
		}
		Expect(m.ctrl.Finished()).To(BeTrue())
		Expect(m.letter).NotTo(BeEmpty())
		Expect(m.View()).To(ContainSubstring("Walkthrough complete."))
	})

	It("replaces pending items when they settle", func() {
		item := wizard.Action{Icon: ">", Text: "Open portal"}
		m.apply(wizard.Event{Kind: wizard.KindItem, Phase: "running", Payload: item})
		m.apply(wizard.Event{Kind: wizard.KindItem, Phase: "done", Payload: item})
		Expect(m.lines).To(HaveLen(1))
		Expect(m.lines[0]).To(ContainSubstring("✓"))
	})

	It("quits on q", func() {
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		Expect(cmd).NotTo(BeNil())
		Expect(m.ctx.Err()).To(HaveOccurred())
	})
})
