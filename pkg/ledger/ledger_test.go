package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/merkle"
)

func newRecorder() *Recorder {
	return NewRecorder(merkle.NewMemoryStorer(), zap.NewNop())
}

func turn(reply string, msgs ...string) llm.Turn {
	req := llm.Request{Model: "gpt-4-turbo-preview"}
	for i, m := range msgs {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		req.Messages = append(req.Messages, llm.Message{Role: role, Content: m})
	}
	return llm.Turn{Provider: "openai", Request: req, Response: &llm.Response{Model: "gpt-4-turbo-preview", Content: reply}}
}

func TestRecordTurnAndMessages(t *testing.T) {
	ctx := context.Background()
	r := newRecorder()

	head, err := r.RecordTurn(ctx, turn("Great choice!", "I go to Stanford"))
	require.NoError(t, err)

	msgs, err := r.Messages(ctx, head)
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "I go to Stanford"},
		{Role: llm.RoleAssistant, Content: "Great choice!"},
	}, msgs)
}

func TestRecordTurnDeduplicatesSharedPrefix(t *testing.T) {
	ctx := context.Background()
	r := newRecorder()

	a, err := r.RecordTurn(ctx, turn("reply A", "hello"))
	require.NoError(t, err)
	b, err := r.RecordTurn(ctx, turn("reply B", "hello"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalNodes: 3, RootCount: 1, LeafCount: 2}, *stats)

	histories, err := r.Histories(ctx)
	require.NoError(t, err)
	assert.Len(t, histories, 2)
}

func TestMessagesUnknownHash(t *testing.T) {
	msgs, err := newRecorder().Messages(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	r := newRecorder()

	first, err := r.Append(ctx, "", merkle.Event{Kind: merkle.KindWizardStep, Case: "c1", Text: "Finnie Chat"})
	require.NoError(t, err)
	second, err := r.Append(ctx, first, merkle.Event{Kind: merkle.KindWizardStep, Case: "c1", Text: "Upload Docs"})
	require.NoError(t, err)

	h, err := r.History(ctx, second)
	require.NoError(t, err)
	require.Equal(t, 2, h.Depth)
	assert.Equal(t, "Finnie Chat", h.Entries[0].Text)
	assert.Equal(t, merkle.KindWizardStep, h.Entries[1].Kind)

	_, err = r.Append(ctx, "missing", merkle.Event{Kind: merkle.KindWizardStep})
	assert.True(t, merkle.IsNotFound(err))

	msgs, err := r.Messages(ctx, second)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	r := newRecorder()

	root := merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Text: "root"}, nil)
	child := merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Text: "child"}, root)
	forged := merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Text: "x"}, nil)
	forged.Hash = "deadbeef"

	res, err := r.Ingest(ctx, []*merkle.Node{root, child, forged})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{New: 2, Errors: 1}, res)

	res, err = r.Ingest(ctx, []*merkle.Node{root})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Duplicate: 1}, res)
}

func TestIngestRejectsOrphans(t *testing.T) {
	ctx := context.Background()
	r := newRecorder()

	missing := merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Text: "never pushed"}, nil)
	orphan := merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Text: "orphan"}, missing)
	grandchild := merkle.NewNode(merkle.Event{Kind: merkle.KindMessage, Text: "below the orphan"}, orphan)

	res, err := r.Ingest(ctx, []*merkle.Node{orphan, grandchild})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Errors: 2}, res)

	ok, err := r.Storer().Has(ctx, orphan.Hash)
	require.NoError(t, err)
	assert.False(t, ok)

	// once the parent arrives, the same batch goes through in order
	res, err = r.Ingest(ctx, []*merkle.Node{missing, orphan, grandchild})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{New: 3}, res)
}
