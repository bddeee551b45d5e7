package wizard_test

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/merkle"
	"github.com/finvisor/finvisor/pkg/wizard"
)

var _ = Describe("Store", func() {
	var (
		store    *wizard.Store
		recorder *ledger.Recorder
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		recorder = ledger.NewRecorder(merkle.NewMemoryStorer(), zap.NewNop())
		store = wizard.NewStore(wizard.MustLoad(), recorder, time.Hour, zap.NewNop())
	})

	It("starts sessions with distinct ids", func() {
		a, b := store.Start(), store.Start()
		Expect(a.ID).NotTo(Equal(b.ID))
		Expect(store.Len()).To(Equal(2))
	})

	It("reports unknown sessions as not found", func() {
		_, err := store.Get("nope")
		Expect(err).To(MatchError(wizard.ErrUnknownSession))
		Expect(apperr.Status(err)).To(Equal(http.StatusNotFound))
	})

	It("records each completed step on the session's chain", func() {
		sess := store.Start()

		Expect(store.Complete(ctx, sess.ID, wizard.Finnie)).To(Succeed())
		view, err := store.Next(sess.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Current).To(Equal(wizard.Upload))
		Expect(view.Label).To(Equal("Upload Docs"))
		Expect(view.Done[0]).To(BeTrue())

		Expect(store.Complete(ctx, sess.ID, wizard.Upload)).To(Succeed())
		head := store.View(sess).LedgerHead
		Expect(head).NotTo(BeEmpty())

		path, err := recorder.Storer().Descendants(ctx, head)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(HaveLen(2))

		first, ok := merkle.EventOf(path[0])
		Expect(ok).To(BeTrue())
		Expect(first.Kind).To(Equal(merkle.KindWizardStep))
		Expect(first.Case).To(Equal(sess.ID))
		Expect(first.Text).To(Equal("Finnie Chat"))
	})

	It("refuses to move on before the step played", func() {
		sess := store.Start()
		_, err := store.Next(sess.ID)
		Expect(err).To(MatchError(wizard.ErrStepIncomplete))
	})

	It("works without a ledger", func() {
		bare := wizard.NewStore(wizard.MustLoad(), nil, 0, zap.NewNop())
		sess := bare.Start()
		Expect(bare.Complete(ctx, sess.ID, wizard.Finnie)).To(Succeed())
		Expect(bare.View(sess).LedgerHead).To(BeEmpty())
	})

	It("sweeps idle sessions", func() {
		sess := store.Start()
		store.Start()

		time.Sleep(5 * time.Millisecond)
		_, err := store.Get(sess.ID)
		Expect(err).NotTo(HaveOccurred())

		short := wizard.NewStore(wizard.MustLoad(), nil, time.Millisecond, zap.NewNop())
		short.Start()
		time.Sleep(5 * time.Millisecond)
		Expect(short.Sweep()).To(Equal(1))
		Expect(short.Len()).To(BeZero())

		Expect(store.Sweep()).To(BeZero())
	})

	It("stops the sweeper with its context", func() {
		cctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			store.Run(cctx, time.Millisecond)
			close(done)
		}()
		cancel()
		Eventually(done).Should(BeClosed())
	})
})
