package mergecmder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finvisor/finvisor/pkg/merkle"
)

var _ = Describe("Merge Command", func() {
	var (
		ctx     context.Context
		tmpDir  string
		srcPath string
		dstPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "finvisor-merge-test-*")
		Expect(err).NotTo(HaveOccurred())
		srcPath = filepath.Join(tmpDir, "source.db")
		dstPath = filepath.Join(tmpDir, "target.db")
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

	seed := func(path string, nodes ...*merkle.Node) {
		s, err := merkle.NewSQLiteStorer(path)
		Expect(err).NotTo(HaveOccurred())
		for _, n := range nodes {
			Expect(s.Put(ctx, n)).To(Succeed())
		}
		Expect(s.Close()).To(Succeed())
	}

	count := func(path string) int {
		s, err := merkle.NewSQLiteStorer(path)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		nodes, err := s.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		return len(nodes)
	}

	merge := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewMergeCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{"--sqlite", dstPath}, args...))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	It("merges nodes from source into target", func() {
		nodeA := makeNode("user", "hello from source", nil)
		seed(srcPath, nodeA, makeNode("assistant", "hi back", nodeA))
		seed(dstPath, makeNode("user", "hello from target", nil))

		out, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("2 new, 0 already existed"))
		Expect(count(dstPath)).To(Equal(3))
	})

	It("deduplicates when merging the same source twice", func() {
		seed(srcPath, makeNode("user", "dedup test", nil))
		seed(dstPath)

		_, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())

		out, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Merged 0 new nodes from 1 sources (1 already existed)"))
		Expect(count(dstPath)).To(Equal(1))
	})

	It("merges multiple sources", func() {
		src2Path := filepath.Join(tmpDir, "source2.db")
		seed(srcPath, makeNode("user", "from source 1", nil))
		seed(src2Path, makeNode("user", "from source 2", nil))
		seed(dstPath)

		_, err := merge(srcPath, src2Path)
		Expect(err).NotTo(HaveOccurred())
		Expect(count(dstPath)).To(Equal(2))
	})

	It("keeps branches that share a root", func() {
		root := makeNode("user", "Stanford University", nil)
		seed(srcPath, root, makeNode("assistant", "Great choice!", root))
		seed(dstPath, root, makeNode("assistant", "Tell me more.", root))

		_, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(count(dstPath)).To(Equal(3))
	})

	Context("when a source holds a tampered node", func() {
		var forged *merkle.Node

		BeforeEach(func() {
			forged = makeNode("user", "original text", nil)
			forged.Content = merkle.Event{Kind: merkle.KindMessage, Role: "user", Text: "edited text"}
			seed(srcPath, makeNode("user", "honest node", nil), forged)
			seed(dstPath)
		})

		It("skips and reports it by default", func() {
			out, err := merge(srcPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("1 new, 0 already existed, 1 rejected"))
			Expect(out).To(ContainSubstring("Rejected 1 nodes whose hash did not verify"))
			Expect(count(dstPath)).To(Equal(1))
		})

		It("aborts under --strict without writing anything", func() {
			_, err := merge("--strict", srcPath)
			Expect(err).To(MatchError(ContainSubstring("does not match its hash")))
			Expect(count(dstPath)).To(Equal(0))
		})
	})

	It("requires at least one source", func() {
		_, err := merge()
		Expect(err).To(HaveOccurred())
	})
})
