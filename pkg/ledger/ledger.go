// Package ledger records finvisor activity in the content-addressed case
// ledger and reads it back as conversation histories.
package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/logger"
	"github.com/finvisor/finvisor/pkg/merkle"
)

// Recorder writes events to a merkle.Storer.
type Recorder struct {
	storer merkle.Storer
	logger *zap.Logger
}

func NewRecorder(storer merkle.Storer, logger *zap.Logger) *Recorder {
	return &Recorder{storer: storer, logger: logger}
}

func (r *Recorder) Storer() merkle.Storer {
	return r.storer
}

// RecordTurn stores a request/response pair and returns the head hash.
//
// Each request message becomes a node chained to the previous one, so an
// identical history deduplicates to the same hashes and a different reply
// branches off the shared prefix.
func (r *Recorder) RecordTurn(ctx context.Context, turn llm.Turn) (string, error) {
	var parent *merkle.Node

	for _, msg := range turn.Request.Messages {
		node := merkle.NewNode(merkle.Event{
			Kind:  merkle.KindMessage,
			Role:  msg.Role,
			Text:  msg.Content,
			Model: turn.Request.Model,
		}, parent)
		if err := r.storer.Put(ctx, node); err != nil {
			return "", fmt.Errorf("storing message node: %w", err)
		}

		r.logger.Debug("stored message in ledger",
			zap.String("hash", logger.Truncate(node.Hash, 16)),
			zap.String("role", msg.Role),
		)
		parent = node
	}

	if turn.Response == nil {
		if parent == nil {
			return "", fmt.Errorf("empty turn")
		}
		return parent.Hash, nil
	}

	reply := merkle.NewNode(merkle.Event{
		Kind:     merkle.KindMessage,
		Role:     llm.RoleAssistant,
		Text:     turn.Response.Content,
		Provider: turn.Provider,
		Model:    turn.Response.Model,
		Data: map[string]any{
			"prompt_tokens":     turn.Response.Usage.PromptTokens,
			"completion_tokens": turn.Response.Usage.CompletionTokens,
		},
	}, parent)
	if err := r.storer.Put(ctx, reply); err != nil {
		return "", fmt.Errorf("storing response node: %w", err)
	}

	r.logger.Debug("stored response in ledger",
		zap.String("hash", logger.Truncate(reply.Hash, 16)),
		zap.String("content_preview", logger.Truncate(turn.Response.Content, 50)),
	)
	return reply.Hash, nil
}

// Append chains ev onto the node at parent ("" starts a new root).
func (r *Recorder) Append(ctx context.Context, parent string, ev merkle.Event) (string, error) {
	var p *merkle.Node
	if parent != "" {
		var err error
		p, err = r.storer.Get(ctx, parent)
		if err != nil {
			return "", fmt.Errorf("load parent %s: %w", parent, err)
		}
	}

	node := merkle.NewNode(ev, p)
	if err := r.storer.Put(ctx, node); err != nil {
		return "", fmt.Errorf("storing %s node: %w", ev.Kind, err)
	}
	return node.Hash, nil
}

// Messages returns the chat messages leading to hash, oldest first. Non-message
// events on the path are skipped; an unknown hash yields no messages.
func (r *Recorder) Messages(ctx context.Context, hash string) ([]llm.Message, error) {
	path, err := r.storer.Descendants(ctx, hash)
	if merkle.IsNotFound(err) {
		return []llm.Message{}, nil
	}
	if err != nil {
		return nil, err
	}

	msgs := make([]llm.Message, 0, len(path))
	for _, node := range path {
		ev, ok := merkle.EventOf(node)
		if !ok || ev.Kind != merkle.KindMessage {
			continue
		}
		msgs = append(msgs, llm.Message{Role: ev.Role, Content: ev.Text})
	}
	return msgs, nil
}

// History contains the events leading up to a given node.
type History struct {
	// Entries in chronological order, up to and including the requested node.
	Entries  []Entry `json:"entries"`
	HeadHash string  `json:"head_hash"`
	Depth    int     `json:"depth"`
}

type Entry struct {
	Hash       string         `json:"hash"`
	ParentHash *string        `json:"parent_hash,omitempty"`
	Kind       string         `json:"kind"`
	Case       string         `json:"case,omitempty"`
	Role       string         `json:"role,omitempty"`
	Text       string         `json:"text,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Model      string         `json:"model,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// History builds the chronological history ending at hash.
func (r *Recorder) History(ctx context.Context, hash string) (*History, error) {
	path, err := r.storer.Descendants(ctx, hash)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(path))
	for _, node := range path {
		e := Entry{Hash: node.Hash, ParentHash: node.ParentHash}
		if ev, ok := merkle.EventOf(node); ok {
			e.Kind, e.Case, e.Role, e.Text = ev.Kind, ev.Case, ev.Role, ev.Text
			e.Provider, e.Model, e.Data = ev.Provider, ev.Model, ev.Data
		}
		entries = append(entries, e)
	}

	return &History{Entries: entries, HeadHash: hash, Depth: len(entries)}, nil
}

// Histories returns one history per leaf. Leaves whose history cannot be
// built are logged and skipped.
func (r *Recorder) Histories(ctx context.Context) ([]History, error) {
	leaves, err := r.storer.Leaves(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]History, 0, len(leaves))
	for _, leaf := range leaves {
		h, err := r.History(ctx, leaf.Hash)
		if err != nil {
			r.logger.Warn("failed to build history for leaf", zap.String("hash", leaf.Hash), zap.Error(err))
			continue
		}
		out = append(out, *h)
	}
	return out, nil
}

type Stats struct {
	TotalNodes int `json:"total_nodes"`
	RootCount  int `json:"root_count"`
	LeafCount  int `json:"leaf_count"`
}

func (r *Recorder) Stats(ctx context.Context) (*Stats, error) {
	nodes, err := r.storer.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	roots, err := r.storer.Roots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	leaves, err := r.storer.Leaves(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
	}
	return &Stats{TotalNodes: len(nodes), RootCount: len(roots), LeafCount: len(leaves)}, nil
}

// IngestResult counts the outcome of Ingest.
type IngestResult struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// Ingest stores nodes pushed from another ledger, parents before children.
// Nodes whose hash does not verify, and nodes whose parent is neither stored
// nor earlier in the batch, are counted as errors and skipped.
func (r *Recorder) Ingest(ctx context.Context, nodes []*merkle.Node) (IngestResult, error) {
	var res IngestResult
	for _, n := range nodes {
		if n == nil || !n.Verify() {
			res.Errors++
			continue
		}

		exists, err := r.storer.Has(ctx, n.Hash)
		if err != nil {
			return res, fmt.Errorf("check node %s: %w", n.Hash, err)
		}
		if exists {
			res.Duplicate++
			continue
		}

		if n.ParentHash != nil {
			hasParent, err := r.storer.Has(ctx, *n.ParentHash)
			if err != nil {
				return res, fmt.Errorf("check parent of %s: %w", n.Hash, err)
			}
			if !hasParent {
				r.logger.Warn("rejecting orphan node", zap.String("hash", n.Hash), zap.String("parent", *n.ParentHash))
				res.Errors++
				continue
			}
		}

		if err := r.storer.Put(ctx, n); err != nil {
			r.logger.Warn("failed to ingest node", zap.String("hash", n.Hash), zap.Error(err))
			res.Errors++
			continue
		}
		res.New++
	}
	return res, nil
}
