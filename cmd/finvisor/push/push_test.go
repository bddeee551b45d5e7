package pushcmder

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/api"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/merkle"
	"github.com/finvisor/finvisor/pkg/wizard"
)

var _ = Describe("Push Command", func() {
	var (
		ctx       context.Context
		tmpDir    string
		localPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "finvisor-push-test-*")
		Expect(err).NotTo(HaveOccurred())
		localPath = filepath.Join(tmpDir, "local.db")
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	makeNode := func(role, text string, parent *merkle.Node) *merkle.Node {
		return merkle.NewNode(merkle.Event{
			Kind:     merkle.KindMessage,
			Role:     role,
			Text:     text,
			Model:    "test-model",
			Provider: "test",
		}, parent)
	}

	seed := func(nodes ...*merkle.Node) {
		local, err := merkle.NewSQLiteStorer(localPath)
		Expect(err).NotTo(HaveOccurred())
		for _, n := range nodes {
			Expect(local.Put(ctx, n)).To(Succeed())
		}
		Expect(local.Close()).To(Succeed())
	}

	startServerWith := func(cfg api.Config) (string, merkle.Storer, func()) {
		logger := zap.NewNop()
		storer := merkle.NewMemoryStorer()
		recorder := ledger.NewRecorder(storer, logger)
		scripts := wizard.MustLoad()

		srv := api.New(cfg, api.Services{
			Ledger:   recorder,
			Sessions: wizard.NewStore(scripts, recorder, 0, logger),
			Scripts:  scripts,
		}, logger)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		srvCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = srv.RunWithListener(srvCtx, listener)
		}()

		addr := "http://" + listener.Addr().String()
		cleanup := func() {
			cancel()
			<-done
		}
		return addr, storer, cleanup
	}

	startServer := func() (string, merkle.Storer, func()) {
		return startServerWith(api.Config{ListenAddr: ":0"})
	}

	push := func(addr string, extra ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewPushCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(append(append([]string{"--sqlite", localPath}, extra...), addr))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	It("pushes local nodes to a remote server", func() {
		nodeA := makeNode("user", "hello from push test", nil)
		seed(nodeA, makeNode("assistant", "hi back from push test", nodeA))

		addr, serverStorer, cleanup := startServer()
		defer cleanup()

		out, err := push(addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Pushed 2 new nodes (0 already existed, 0 errors)"))

		nodes, err := serverStorer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(2))
	})

	It("deduplicates on double push", func() {
		seed(makeNode("user", "dedup push test", nil))

		addr, serverStorer, cleanup := startServer()
		defer cleanup()

		_, err := push(addr)
		Expect(err).NotTo(HaveOccurred())

		out, err := push(addr)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Pushed 0 new nodes (1 already existed, 0 errors)"))

		nodes, err := serverStorer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
	})

	It("splits large ledgers into batches", func() {
		parent := makeNode("user", "turn 0", nil)
		nodes := []*merkle.Node{parent}
		for i := 1; i < 5; i++ {
			parent = makeNode("user", "turn", parent)
			nodes = append(nodes, parent)
		}
		seed(nodes...)

		addr, serverStorer, cleanup := startServer()
		defer cleanup()

		_, err := push(addr, "--batch-size", "2")
		Expect(err).NotTo(HaveOccurred())

		got, err := serverStorer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(5))
	})

	It("pushes only one case and the ancestry it hangs from", func() {
		intake := makeNode("user", "shared intake", nil)
		caseEvent := func(id, text string, parent *merkle.Node) *merkle.Node {
			return merkle.NewNode(merkle.Event{Kind: merkle.KindWizardStep, Case: id, Text: text}, parent)
		}
		mine := caseEvent("case-a", "Research", intake)
		seed(intake, mine, caseEvent("case-a", "Appeal", mine), caseEvent("case-b", "Research", intake))

		addr, serverStorer, cleanup := startServer()
		defer cleanup()

		out, err := push(addr, "--case", "case-a")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Pushed 3 new nodes"))

		Expect(serverStorer.Has(ctx, intake.Hash)).To(BeTrue())
		nodes, err := serverStorer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(3))
	})

	It("reports an unknown case as nothing to push", func() {
		seed(makeNode("user", "unrelated", nil))

		out, err := push("http://127.0.0.1:1", "--case", "missing")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("No local nodes to push."))
	})

	It("rejects a non-positive batch size", func() {
		seed(makeNode("user", "anything", nil))

		_, err := push("http://127.0.0.1:1", "--batch-size", "0")
		Expect(err).To(MatchError(ContainSubstring("batch size must be positive")))
	})

	It("sends the ledger token when the server requires one", func() {
		seed(makeNode("user", "guarded push", nil))

		addr, serverStorer, cleanup := startServerWith(api.Config{ListenAddr: ":0", LedgerToken: "s3cret"})
		defer cleanup()

		_, err := push(addr, "--token", "wrong")
		Expect(err).To(MatchError(ContainSubstring("server returned 401")))

		out, err := push(addr, "--token", "s3cret")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Pushed 1 new nodes"))

		nodes, err := serverStorer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
	})

	It("reports an empty ledger", func() {
		seed()

		out, err := push("http://127.0.0.1:1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("No local nodes to push."))
	})

	It("fails when the server is unreachable", func() {
		seed(makeNode("user", "nowhere to go", nil))

		_, err := push("http://127.0.0.1:1")
		Expect(err).To(MatchError(ContainSubstring("push failed")))
	})
})
