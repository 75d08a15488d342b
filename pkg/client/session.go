package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/support-chat/support-agent/pkg/logger"
)

// Texts shown locally and never stored on the server.
const (
	GreetingText        = "Hello! I am Support Agent. How can I help you today?"
	ConnectionErrorText = "Sorry, I'm having trouble connecting to the server. Sorry for the inconvenience."
)

// MaxMessageLength matches the server's default cap.
const MaxMessageLength = 500

// ErrMessageTooLong is returned by Send for input over MaxMessageLength.
var ErrMessageTooLong = errors.New("message is too long (max 500 chars)")

// State is the session lifecycle state.
type State int

const (
	// StateNoSession means no conversation handle is known yet.
	StateNoSession State = iota
	// StateActive means the session is bound to a conversation.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Session tracks one visitor's conversation. Once active it stays bound to
// the same conversation; there is no reset.
type Session struct {
	transport Transport
	store     SessionStore
	log       *logger.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	sessionID string
	messages  []Message
}

// NewSession creates a session in StateNoSession. Call Start before Send.
func NewSession(transport Transport, store SessionStore, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Global()
	}
	return &Session{
		transport: transport,
		store:     store,
		log:       log,
		now:       time.Now,
		state:     StateNoSession,
	}
}

// Start restores a stored handle and its transcript. Without one, or when the
// stored conversation has no messages, the transcript is the local greeting.
// A failed history fetch is logged and also falls back to the greeting.
func (s *Session) Start(ctx context.Context) error {
	id, err := s.store.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.messages = []Message{s.greeting()}
		return nil
	}

	s.sessionID = id
	s.state = StateActive

	history, err := s.transport.History(ctx, id)
	if err != nil {
		s.log.Warn("failed to load history", zap.String("session_id", id), zap.Error(err))
		s.messages = []Message{s.greeting()}
		return nil
	}
	if len(history) == 0 {
		s.messages = []Message{s.greeting()}
		return nil
	}
	s.messages = history
	return nil
}

// Send submits text and returns the message to show as the reply. Blank
// input is ignored and yields (nil, nil). When the server cannot be reached
// or answers with an error, the reply is the local apology.
func (s *Session) Send(ctx context.Context, text string) (*Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{
		ConversationID: s.sessionID,
		Sender:         SenderUser,
		Content:        text,
		CreatedAt:      s.now(),
		Local:          true,
	})

	resp, err := s.transport.SendMessage(ctx, text, s.sessionID)
	if err != nil {
		s.log.Warn("send message failed", zap.String("session_id", s.sessionID), zap.Error(err))
		reply := Message{
			ConversationID: s.sessionID,
			Sender:         SenderAI,
			Content:        ConnectionErrorText,
			CreatedAt:      s.now(),
			Local:          true,
		}
		s.messages = append(s.messages, reply)
		return &reply, nil
	}

	if resp.SessionID != "" && resp.SessionID != s.sessionID {
		if err := s.store.Save(resp.SessionID); err != nil {
			s.log.Warn("failed to persist session", zap.Error(err))
		}
		s.sessionID = resp.SessionID
	}
	if s.sessionID != "" {
		s.state = StateActive
	}

	reply := Message{
		ConversationID: s.sessionID,
		Sender:         SenderAI,
		Content:        resp.Reply,
		CreatedAt:      s.now(),
	}
	s.messages = append(s.messages, reply)
	return &reply, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the bound conversation id, or "".
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) greeting() Message {
	return Message{
		Sender:    SenderAI,
		Content:   GreetingText,
		CreatedAt: s.now(),
		Local:     true,
	}
}
