package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/merkle"
)

const DefaultSessionTTL = 2 * time.Hour

var ErrUnknownSession = apperr.New(apperr.NotFound, "Wizard session not found", nil)

// Session is one walkthrough in progress. Head is the latest ledger node
// recorded for it.
type Session struct {
	ID         string
	Controller *Controller

	mu       sync.Mutex
	head     string
	lastSeen time.Time
}

// View is the client-facing state of a session.
type View struct {
	ID         string `json:"id"`
	Current    int    `json:"current"`
	Label      string `json:"label"`
	Done       []bool `json:"done"`
	Finished   bool   `json:"finished"`
	LedgerHead string `json:"ledgerHead,omitempty"`
}

// Store keeps sessions in memory and forgets them after ttl of inactivity.
type Store struct {
	scripts  *Scripts
	recorder *ledger.Recorder
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns a session store. recorder may be nil to skip the ledger.
func NewStore(scripts *Scripts, recorder *ledger.Recorder, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Store{
		scripts:  scripts,
		recorder: recorder,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (s *Store) Start() *Session {
	sess := &Session{ID: uuid.NewString(), Controller: NewController(), lastSeen: s.now()}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Debug("wizard session started", zap.String("session_id", sess.ID))
	return sess
}

func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}

	sess.mu.Lock()
	sess.lastSeen = s.now()
	sess.mu.Unlock()
	return sess, nil
}

// Complete marks step done for the session and records it in the ledger.
func (s *Store) Complete(ctx context.Context, id string, step int) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := sess.Controller.Complete(step); err != nil {
		return err
	}
	if s.recorder == nil {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	head, err := s.recorder.Append(ctx, sess.head, merkle.Event{
		Kind: merkle.KindWizardStep,
		Case: sess.ID,
		Text: s.scripts.Label(step),
		Data: map[string]any{"step": step},
	})
	if err != nil {
		s.logger.Error("record wizard step", zap.String("session_id", id), zap.Int("step", step), zap.Error(err))
		return nil
	}
	sess.head = head
	return nil
}

func (s *Store) Next(id string) (*View, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Controller.Next(); err != nil {
		return nil, err
	}
	return s.View(sess), nil
}

func (s *Store) View(sess *Session) *View {
	cur := sess.Controller.Current()

	sess.mu.Lock()
	head := sess.head
	sess.mu.Unlock()

	return &View{
		ID:         sess.ID,
		Current:    cur,
		Label:      s.scripts.Label(cur),
		Done:       sess.Controller.Progress(),
		Finished:   sess.Controller.Finished(),
		LedgerHead: head,
	}
}

// Sweep drops sessions idle for longer than the ttl and reports how many.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastSeen.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("expired wizard sessions", zap.Int("count", n))
			}
		}
	}
}
