// Package merkle is the content-addressed case ledger: a Merkle DAG of events.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Node represents a single content-addressed node in a Merkle DAG
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous node hash.
	// This will be nil for root nodes.
	ParentHash *string `json:"parent_hash"`

	// Content is the hashable content for the node
	Content any `json:"content"`
}

// input is the canonical hash preimage. Field order is fixed by the struct.
type input struct {
	Parent  string `json:"parent,omitempty"`
	Content any    `json:"content"`
}

// NewNode creates a new node with the computed hash for the provided content
func NewNode(content any, parent *Node) *Node {
	n := &Node{
		Content: content,
	}

	if parent != nil {
		h := parent.Hash
		n.ParentHash = &h
	}

	n.Hash = n.computeHash()
	return n
}

// Verify reports whether the stored hash matches the node's content and parent.
func (n *Node) Verify() bool {
	return n.Hash == n.computeHash()
}

// computeHash hashes the canonical JSON of the node. Content is round-tripped
// through a generic value first so a typed struct and the map decoded from
// storage hash identically (object keys sorted, numbers kept verbatim).
func (n *Node) computeHash() string {
	i := &input{
		Content: canonical(n.Content),
	}

	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func canonical(content any) any {
	raw, err := json.Marshal(content)
	if err != nil {
		panic("failed to marshal node content: " + err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		panic("failed to decode node content: " + err.Error())
	}
	return generic
}
