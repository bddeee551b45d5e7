package ledgercmder

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/merkle"
)

var _ = Describe("Ledger Command", func() {
	var (
		ctx    context.Context
		dbPath string
		root   *merkle.Node
		reply  *merkle.Node
	)

	BeforeEach(func() {
		ctx = context.Background()
		dbPath = filepath.Join(GinkgoT().TempDir(), "ledger.db")

		root = merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Role: "user", Text: "Stanford University"}, nil)
		reply = merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Role: "assistant", Text: strings.Repeat("Great choice! ", 20)}, root)

		s, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Put(ctx, root)).To(Succeed())
		Expect(s.Put(ctx, reply)).To(Succeed())
		Expect(s.Close()).To(Succeed())
	})

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewLedgerCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(append(args, "--sqlite", dbPath))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	It("prints stats", func() {
		out, err := run("stats")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("nodes:  2"))
		Expect(out).To(ContainSubstring("leaves: 1"))
	})

	It("prints stats as JSON", func() {
		out, err := run("stats", "--json")
		Expect(err).NotTo(HaveOccurred())

		var stats ledger.Stats
		Expect(json.Unmarshal([]byte(out), &stats)).To(Succeed())
		Expect(stats).To(Equal(ledger.Stats{TotalNodes: 2, RootCount: 1, LeafCount: 1}))
	})

	It("prints every history with truncated lines", func() {
		out, err := run("history")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("(2 events)"))
		Expect(out).To(ContainSubstring("Stanford University"))
		Expect(out).To(ContainSubstring("…"))
	})

	It("prints one history as JSON", func() {
		out, err := run("history", reply.Hash, "--json")
		Expect(err).NotTo(HaveOccurred())

		var histories []ledger.History
		Expect(json.Unmarshal([]byte(out), &histories)).To(Succeed())
		Expect(histories).To(HaveLen(1))
		Expect(histories[0].Entries[0].Text).To(Equal("Stanford University"))
	})

	It("reports unknown hashes", func() {
		_, err := run("history", "nope")
		Expect(err).To(MatchError(ContainSubstring("no node with hash nope")))
	})
})
