// Package chat runs the Finnie intake conversation on OpenAI or, when asked
// and available, on a Decagon bot.
package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/logger"
	"github.com/finvisor/finvisor/pkg/provider/decagon"
	"github.com/finvisor/finvisor/pkg/provider/openai"
)

const FinniePrompt = `You are Finnie, a warm and empathetic AI financial aid advisor. 
Your goal is to help students build the strongest possible appeal for additional financial aid.
Be supportive, professional, and thorough in gathering information about their circumstances.
Ask follow-up questions to understand their full situation. Use emojis sparingly for warmth.
Focus on: school name, current aid amount, tuition cost, and any changed circumstances 
(job loss, medical expenses, housing changes, family situations).`

// Decagon is the part of the Decagon client the chat needs.
type Decagon interface {
	StartConversation(ctx context.Context, userID string, initial map[string]any) (*decagon.Conversation, error)
	SendMessage(ctx context.Context, conversationID, content string) (*decagon.Reply, error)
}

type Request struct {
	Messages       []llm.Message `json:"messages"`
	UserID         string        `json:"userId,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
	UseDecagon     bool          `json:"useDecagon,omitempty"`
}

type Usage struct {
	Tokens int `json:"tokens"`
}

type Reply struct {
	Content          string                    `json:"content"`
	ConversationID   string                    `json:"conversationId,omitempty"`
	Usage            *Usage                    `json:"usage,omitempty"`
	Intent           *decagon.Intent           `json:"intent,omitempty"`
	SuggestedActions []decagon.SuggestedAction `json:"suggestedActions,omitempty"`
	Provider         string                    `json:"provider"`
}

type Service struct {
	completer llm.Completer
	decagon   Decagon
	ledger    *ledger.Recorder
	logger    *zap.Logger
}

// NewService wires the chat. completer and dec may be nil when their
// providers are not configured; recorder may be nil to skip recording.
func NewService(completer llm.Completer, dec Decagon, recorder *ledger.Recorder, logger *zap.Logger) *Service {
	return &Service{completer: completer, decagon: dec, ledger: recorder, logger: logger}
}

func (s *Service) Chat(ctx context.Context, req Request) (*Reply, error) {
	if len(req.Messages) == 0 {
		return nil, apperr.Invalid("Messages are required")
	}

	if req.UseDecagon && s.decagon != nil {
		reply, ok, err := s.viaDecagon(ctx, req)
		if err != nil {
			return nil, err
		}
		if ok {
			return reply, nil
		}
	}

	return s.viaOpenAI(ctx, req)
}

// viaDecagon reports ok=false when there is neither a conversation nor a
// user to start one for.
func (s *Service) viaDecagon(ctx context.Context, req Request) (*Reply, bool, error) {
	convID := req.ConversationID
	if convID == "" && req.UserID != "" {
		conv, err := s.decagon.StartConversation(ctx, req.UserID, nil)
		if err != nil {
			return nil, false, apperr.UpstreamErr("Failed to start Decagon conversation", err)
		}
		convID = conv.ID
	}
	if convID == "" {
		return nil, false, nil
	}

	res, err := s.decagon.SendMessage(ctx, convID, llm.Last(req.Messages).Content)
	if err != nil {
		return nil, false, apperr.UpstreamErr("Decagon request failed", err)
	}

	intent := res.Intent
	return &Reply{
		Content:          res.Message.Content,
		ConversationID:   convID,
		Intent:           &intent,
		SuggestedActions: res.SuggestedActions,
		Provider:         "decagon",
	}, true, nil
}

func (s *Service) viaOpenAI(ctx context.Context, req Request) (*Reply, error) {
	if s.completer == nil {
		return nil, apperr.Unconfigured("OpenAI not configured")
	}

	llmReq := llm.Request{
		Model:    openai.DefaultModel,
		System:   FinniePrompt,
		Messages: req.Messages,
		Options: llm.Options{
			Temperature: llm.Temperature(0.7),
			MaxTokens:   1000,
		},
	}

	res, err := s.completer.Complete(ctx, llmReq)
	if err != nil {
		return nil, apperr.UpstreamErr("Chat completion failed", err)
	}

	reply := &Reply{
		Content:  res.Content,
		Usage:    &Usage{Tokens: res.Usage.Total()},
		Provider: "openai",
	}

	if s.ledger != nil {
		head, err := s.ledger.RecordTurn(ctx, llm.Turn{Provider: "openai", Request: llmReq, Response: res})
		if err != nil {
			// Storage trouble never fails the chat.
			s.logger.Error("failed to store conversation", zap.Error(err))
		} else {
			reply.ConversationID = head
			s.logger.Info("conversation stored", zap.String("head_hash", logger.Truncate(head, 16)))
		}
	}
	return reply, nil
}

// History returns the recorded messages ending at conversationID.
func (s *Service) History(ctx context.Context, conversationID string) ([]llm.Message, error) {
	if conversationID == "" {
		return nil, apperr.Invalid("Conversation ID required")
	}
	if s.ledger == nil {
		return []llm.Message{}, nil
	}

	msgs, err := s.ledger.Messages(ctx, conversationID)
	if err != nil {
		return nil, apperr.InternalErr("Failed to read conversation", err)
	}
	return msgs, nil
}
