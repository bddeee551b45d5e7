package merkle_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finvisor/finvisor/pkg/merkle"
)

func message(role, text string) merkle.Event {
	return merkle.Event{Kind: merkle.KindMessage, Role: role, Text: text, Provider: "openai"}
}

// storerBehaviour is run against every Storer implementation.
func storerBehaviour(newStorer func() merkle.Storer) {
	var (
		storer merkle.Storer
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		storer = newStorer()
	})

	AfterEach(func() {
		Expect(storer.Close()).To(Succeed())
	})

	put := func(nodes ...*merkle.Node) {
		for _, n := range nodes {
			Expect(storer.Put(ctx, n)).To(Succeed())
		}
	}

	Describe("Put and Get", func() {
		It("stores and retrieves a node with parent", func() {
			root := merkle.NewNode(message("user", "Stanford University"), nil)
			reply := merkle.NewNode(message("assistant", "Great choice!"), root)
			put(root, reply)

			got, err := storer.Get(ctx, reply.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ParentHash).NotTo(BeNil())
			Expect(*got.ParentHash).To(Equal(root.Hash))
			Expect(got.Verify()).To(BeTrue())

			ev, ok := merkle.EventOf(got)
			Expect(ok).To(BeTrue())
			Expect(ev.Text).To(Equal("Great choice!"))
		})

		It("returns ErrNotFound for an unknown hash", func() {
			_, err := storer.Get(ctx, "nonexistent")
			Expect(merkle.IsNotFound(err)).To(BeTrue())
		})

		It("is idempotent for duplicate puts", func() {
			node := merkle.NewNode(message("user", "hello"), nil)
			put(node, node, merkle.NewNode(message("user", "hello"), nil))

			nodes, err := storer.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).To(HaveLen(1))
		})

		It("rejects nil nodes", func() {
			err := storer.Put(ctx, nil)
			Expect(err).To(MatchError(ContainSubstring("nil node")))
		})
	})

	Describe("Has", func() {
		It("reports presence", func() {
			node := merkle.NewNode("present", nil)
			put(node)

			Expect(storer.Has(ctx, node.Hash)).To(BeTrue())
			Expect(storer.Has(ctx, "absent")).To(BeFalse())
		})
	})

	Describe("traversal", func() {
		var root, child, grandchild, sibling *merkle.Node

		BeforeEach(func() {
			root = merkle.NewNode("root", nil)
			child = merkle.NewNode("child", root)
			grandchild = merkle.NewNode("grandchild", child)
			sibling = merkle.NewNode("sibling", root)
			put(root, child, grandchild, sibling, merkle.NewNode("other root", nil))
		})

		It("finds children and roots", func() {
			children, err := storer.GetByParent(ctx, &root.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(children).To(HaveLen(2))

			roots, err := storer.Roots(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(roots).To(HaveLen(2))
		})

		It("finds leaves", func() {
			leaves, err := storer.Leaves(ctx)
			Expect(err).NotTo(HaveOccurred())

			hashes := make([]string, 0, len(leaves))
			for _, l := range leaves {
				hashes = append(hashes, l.Hash)
			}
			Expect(hashes).To(HaveLen(3))
			Expect(hashes).To(ContainElements(grandchild.Hash, sibling.Hash))
		})

		It("walks ancestry newest first and descendants oldest first", func() {
			up, err := storer.Ancestry(ctx, grandchild.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(up).To(HaveLen(3))
			Expect(up[0].Content).To(Equal("grandchild"))
			Expect(up[2].Content).To(Equal("root"))

			down, err := storer.Descendants(ctx, grandchild.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(down[0].Content).To(Equal("root"))
			Expect(down[2].Content).To(Equal("grandchild"))
		})

		It("computes depth", func() {
			Expect(storer.Depth(ctx, root.Hash)).To(Equal(0))
			Expect(storer.Depth(ctx, grandchild.Hash)).To(Equal(2))

			_, err := storer.Depth(ctx, "missing")
			Expect(merkle.IsNotFound(err)).To(BeTrue())
		})
	})

	It("returns an empty list for an empty store", func() {
		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(BeEmpty())
	})
}

var _ = Describe("MemoryStorer", func() {
	storerBehaviour(func() merkle.Storer { return merkle.NewMemoryStorer() })
})

var _ = Describe("SQLiteStorer", func() {
	storerBehaviour(func() merkle.Storer {
		s, err := merkle.NewSQLiteStorer(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return s
	})

	It("creates the database file on disk", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "ledger.db")

		s, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("survives a reopen", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "ledger.db")
		ctx := context.Background()
		node := merkle.NewNode(message("user", "persist me"), nil)

		s, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Put(ctx, node)).To(Succeed())
		Expect(s.Close()).To(Succeed())

		s, err = merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		Expect(s.Has(ctx, node.Hash)).To(BeTrue())
	})
})
