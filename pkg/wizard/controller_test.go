package wizard_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/wizard"
)

var _ = Describe("Controller", func() {
	var c *wizard.Controller

	BeforeEach(func() {
		c = wizard.NewController()
	})

	It("starts at the first step with nothing done", func() {
		Expect(c.Current()).To(Equal(wizard.Finnie))
		Expect(c.Progress()).To(HaveLen(wizard.NumSteps))
		Expect(c.Progress()).NotTo(ContainElement(true))
		Expect(c.Finished()).To(BeFalse())
	})

	It("refuses to advance past an unfinished step", func() {
		step, err := c.Next()
		Expect(err).To(MatchError(wizard.ErrStepIncomplete))
		Expect(step).To(Equal(wizard.Finnie))
		Expect(apperr.Status(err)).To(Equal(http.StatusConflict))
	})

	It("only completes the current step", func() {
		Expect(c.Complete(wizard.Research)).To(MatchError(wizard.ErrOutOfOrder))
		Expect(c.Done(wizard.Research)).To(BeFalse())
	})

	It("walks every step in order and stays on the last", func() {
		for i := range wizard.NumSteps {
			Expect(c.Current()).To(Equal(i))
			Expect(c.Complete(i)).To(Succeed())

			next, err := c.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(next).To(Equal(min(i+1, wizard.NumSteps-1)))
		}
		Expect(c.Current()).To(Equal(wizard.Dashboard))
		Expect(c.Finished()).To(BeTrue())
		Expect(c.Progress()).NotTo(ContainElement(false))
	})

	It("hands out a copy of the progress", func() {
		p := c.Progress()
		p[0] = true
		Expect(c.Done(wizard.Finnie)).To(BeFalse())
	})

	It("reports out-of-range steps as not done", func() {
		Expect(c.Done(-1)).To(BeFalse())
		Expect(c.Done(wizard.NumSteps)).To(BeFalse())
	})
})

var _ = Describe("Scripts", func() {
	It("loads the embedded demo case", func() {
		s, err := wizard.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Labels).To(HaveLen(wizard.NumSteps))
		Expect(s.Label(wizard.Submit)).To(Equal("Auto-Submit"))
		Expect(s.Label(99)).To(BeEmpty())
		Expect(s.Upload).To(HaveKey(wizard.DocW2))
		Expect(s.Upload).To(HaveKey(wizard.DocFAFSA))
		Expect(s.Submit.Confirmation).To(Equal("SFA-2026-04821"))
	})

	It("rejects a label list of the wrong length", func() {
		_, err := wizard.Parse([]byte("labels: [a, b]\n"))
		Expect(err).To(MatchError(ContainSubstring("step labels")))
	})

	It("rejects a chat line with both speakers", func() {
		data := "labels: [a, b, c, d, e, f, g, h]\nfinnie:\n  - bot: hi\n    user: hello\n"
		_, err := wizard.Parse([]byte(data))
		Expect(err).To(MatchError(ContainSubstring("exactly one of bot or user")))
	})
})
