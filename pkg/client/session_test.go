package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	mu      sync.Mutex
	history map[string][]Message
	sends   []map[string]any
	fail    bool
	status  int
	nextID  string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{history: map[string][]Message{}, nextID: "conv-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/message", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fs.sends = append(fs.sends, body)

		if fs.status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(fs.status)
			_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
			return
		}

		id, _ := body["sessionId"].(string)
		if id == "" {
			id = fs.nextID
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SendResponse{Reply: "echo: " + body["message"].(string), SessionID: id})
	})
	mux.HandleFunc("/chat/history/", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if fs.fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Failed to fetch chat history"}`))
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/chat/history/")
		msgs := fs.history[id]
		if msgs == nil {
			msgs = []Message{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msgs)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func TestSession_FirstVisit(t *testing.T) {
	fs, srv := newFakeServer(t)
	store := &MemorySessionStore{}
	s := NewSession(NewAPIClient(srv.URL, nil), store, nil)

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, StateNoSession, s.State())
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, GreetingText, msgs[0].Content)
	require.True(t, msgs[0].Local)

	reply, err := s.Send(context.Background(), "What are your hours?")
	require.NoError(t, err)
	require.Equal(t, "echo: What are your hours?", reply.Content)
	require.Equal(t, StateActive, s.State())
	require.Equal(t, "conv-1", s.SessionID())

	saved, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "conv-1", saved)

	require.Len(t, fs.sends, 1)
	require.Contains(t, fs.sends[0], "sessionId")
	require.Nil(t, fs.sends[0]["sessionId"])

	_, err = s.Send(context.Background(), "and on weekends?")
	require.NoError(t, err)
	require.Equal(t, "conv-1", fs.sends[1]["sessionId"])
	require.Len(t, s.Messages(), 5)
}

func TestSession_RestoresHistory(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.history["conv-9"] = []Message{
		{ID: "m1", ConversationID: "conv-9", Sender: SenderUser, Content: "hi"},
		{ID: "m2", ConversationID: "conv-9", Sender: SenderAI, Content: "hello"},
	}
	store := &MemorySessionStore{}
	require.NoError(t, store.Save("conv-9"))

	s := NewSession(NewAPIClient(srv.URL+"/", nil), store, nil)
	require.NoError(t, s.Start(context.Background()))

	require.Equal(t, StateActive, s.State())
	require.Equal(t, "conv-9", s.SessionID())
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "hello", msgs[1].Content)
	require.False(t, msgs[1].Local)
}

func TestSession_StoredHandleWithoutMessages(t *testing.T) {
	_, srv := newFakeServer(t)
	store := &MemorySessionStore{}
	require.NoError(t, store.Save("conv-empty"))

	s := NewSession(NewAPIClient(srv.URL, nil), store, nil)
	require.NoError(t, s.Start(context.Background()))

	require.Equal(t, StateActive, s.State())
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, GreetingText, msgs[0].Content)
}

func TestSession_HistoryFailureShowsGreeting(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.fail = true
	store := &MemorySessionStore{}
	require.NoError(t, store.Save("conv-1"))

	s := NewSession(NewAPIClient(srv.URL, nil), store, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, GreetingText, s.Messages()[0].Content)
	require.Equal(t, "conv-1", s.SessionID())
}

func TestSession_IgnoresBlankInput(t *testing.T) {
	fs, srv := newFakeServer(t)
	s := NewSession(NewAPIClient(srv.URL, nil), &MemorySessionStore{}, nil)
	require.NoError(t, s.Start(context.Background()))

	reply, err := s.Send(context.Background(), "   \n")
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Empty(t, fs.sends)
	require.Len(t, s.Messages(), 1)
	require.Equal(t, StateNoSession, s.State())
}

func TestSession_RejectsLongInput(t *testing.T) {
	fs, srv := newFakeServer(t)
	s := NewSession(NewAPIClient(srv.URL, nil), &MemorySessionStore{}, nil)

	_, err := s.Send(context.Background(), strings.Repeat("a", 501))
	require.ErrorIs(t, err, ErrMessageTooLong)
	require.Empty(t, fs.sends)
}

func TestSession_LengthIgnoresSurroundingWhitespace(t *testing.T) {
	fs, srv := newFakeServer(t)
	s := NewSession(NewAPIClient(srv.URL, nil), &MemorySessionStore{}, nil)

	text := "  " + strings.Repeat("a", 500) + "\n"
	reply, err := s.Send(context.Background(), text)
	require.NoError(t, err)
	require.NotNil(t, reply)
	require.Len(t, fs.sends, 1)
}

func TestSession_TransportFailure(t *testing.T) {
	_, srv := newFakeServer(t)
	srv.Close()

	store := &MemorySessionStore{}
	s := NewSession(NewAPIClient(srv.URL, nil), store, nil)
	require.NoError(t, s.Start(context.Background()))

	reply, err := s.Send(context.Background(), "hello?")
	require.NoError(t, err)
	require.Equal(t, ConnectionErrorText, reply.Content)
	require.True(t, reply.Local)
	require.Equal(t, StateNoSession, s.State())

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "hello?", msgs[1].Content)
	require.Equal(t, ConnectionErrorText, msgs[2].Content)

	saved, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, saved)
}

func TestSession_ServerErrorShowsApology(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.status = http.StatusInternalServerError
	s := NewSession(NewAPIClient(srv.URL, nil), &MemorySessionStore{}, nil)

	reply, err := s.Send(context.Background(), "hello?")
	require.NoError(t, err)
	require.Equal(t, ConnectionErrorText, reply.Content)
}

func TestAPIClient_ErrorBody(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.status = http.StatusInternalServerError

	_, err := NewAPIClient(srv.URL, nil).SendMessage(context.Background(), "hi", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Equal(t, "Internal server error", apiErr.Message)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "no_session", StateNoSession.String())
	require.Equal(t, "active", StateActive.String())
}
