package merkle_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/finvisor/finvisor/pkg/merkle"
)

var _ = Describe("Node", func() {
	Describe("NewNode", func() {
		Context("when creating a root node (no parent)", func() {
			It("keeps the content and leaves ParentHash nil", func() {
				node := merkle.NewNode("Stanford University", nil)

				Expect(node.Content).To(Equal("Stanford University"))
				Expect(node.ParentHash).To(BeNil())
			})

			It("produces consistent hashes for the same content", func() {
				node1 := merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Role: "user", Text: "hi"}, nil)
				node2 := merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Role: "user", Text: "hi"}, nil)

				Expect(node1.Hash).To(Equal(node2.Hash))
			})

			It("produces different hashes for different content", func() {
				node1 := merkle.NewNode("content A", nil)
				node2 := merkle.NewNode("content B", nil)

				Expect(node1.Hash).NotTo(Equal(node2.Hash))
			})
		})

		Context("when creating a child node", func() {
			var parent *merkle.Node

			BeforeEach(func() {
				parent = merkle.NewNode("parent content", nil)
			})

			It("links the child to the parent via ParentHash", func() {
				child := merkle.NewNode("child content", parent)

				Expect(child.ParentHash).NotTo(BeNil())
				Expect(*child.ParentHash).To(Equal(parent.Hash))
			})

			It("does not alias the parent's hash field", func() {
				child := merkle.NewNode("child content", parent)
				parent.Hash = "mutated"

				Expect(*child.ParentHash).NotTo(Equal("mutated"))
			})

			It("produces different hashes for same content with different parents", func() {
				parent2 := merkle.NewNode("different parent", nil)
				child1 := merkle.NewNode("same content", parent)
				child2 := merkle.NewNode("same content", parent2)

				Expect(child1.Hash).NotTo(Equal(child2.Hash))
			})
		})
	})

	Describe("Hash computation", func() {
		It("produces a valid SHA-256 hex string (64 characters)", func() {
			node := merkle.NewNode("test", nil)

			Expect(node.Hash).To(MatchRegexp("^[a-f0-9]{64}$"))
		})

		It("hashes a typed event and its decoded JSON form identically", func() {
			ev := merkle.Event{
				Kind:     merkle.KindMessage,
				Role:     "assistant",
				Text:     "Great choice!",
				Provider: "openai",
				Data:     map[string]any{"tokens": 42},
			}
			node := merkle.NewNode(ev, nil)

			raw, err := json.Marshal(node)
			Expect(err).NotTo(HaveOccurred())

			var decoded merkle.Node
			Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
			Expect(decoded.Verify()).To(BeTrue())
			Expect(decoded.Hash).To(Equal(node.Hash))
		})

		It("detects tampered content", func() {
			node := merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Text: "original"}, nil)
			node.Content = merkle.Event{Kind: merkle.KindMessage, Text: "edited"}

			Expect(node.Verify()).To(BeFalse())
		})
	})

	Describe("EventOf", func() {
		It("decodes generic JSON content into an Event", func() {
			node := &merkle.Node{Content: map[string]any{"kind": "wizard_step", "case": "c1", "text": "Research"}}

			ev, ok := merkle.EventOf(node)
			Expect(ok).To(BeTrue())
			Expect(ev.Kind).To(Equal(merkle.KindWizardStep))
			Expect(ev.Case).To(Equal("c1"))
		})

		It("rejects content without a kind", func() {
			_, ok := merkle.EventOf(merkle.NewNode("plain string", nil))
			Expect(ok).To(BeFalse())
		})
	})
})
