package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/support-chat/support-agent/internal/config"
	"github.com/support-chat/support-agent/internal/llm"
	"github.com/support-chat/support-agent/internal/model"
	"github.com/support-chat/support-agent/internal/service"
	"github.com/support-chat/support-agent/internal/store"
)

type stubChat struct {
	result     *service.SubmitResult
	submitErr  error
	msgs       []model.Message
	historyErr error

	gotMessage string
	gotSession *string
	gotHistory string
}

func (s *stubChat) Submit(_ context.Context, message string, sessionID *string) (*service.SubmitResult, error) {
	s.gotMessage = message
	s.gotSession = sessionID
	return s.result, s.submitErr
}

func (s *stubChat) History(_ context.Context, sessionID string) ([]model.Message, error) {
	s.gotHistory = sessionID
	return s.msgs, s.historyErr
}

func newTestRouter(chat ChatService, checks map[string]Pinger) http.Handler {
	return NewRouter(RouterConfig{
		Chat:           NewChatHandler(chat, nil),
		Health:         NewHealthHandler(checks),
		AllowedOrigins: []string{"*"},
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestSendMessage_OK(t *testing.T) {
	chat := &stubChat{result: &service.SubmitResult{Reply: "Hi there", SessionID: "s1"}}
	h := newTestRouter(chat, nil)

	rec := do(t, h, http.MethodPost, "/chat/message", `{"message":"hello","sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp model.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Hi there", resp.Reply)
	require.Equal(t, "s1", resp.SessionID)

	require.Equal(t, "hello", chat.gotMessage)
	require.NotNil(t, chat.gotSession)
	require.Equal(t, "s1", *chat.gotSession)
}

func TestSendMessage_NullSession(t *testing.T) {
	chat := &stubChat{result: &service.SubmitResult{Reply: "Hi", SessionID: "new"}}
	h := newTestRouter(chat, nil)

	rec := do(t, h, http.MethodPost, "/chat/message", `{"message":"hello","sessionId":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, chat.gotSession)
}

func TestSendMessage_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"malformed json", `{"message":`, nil, http.StatusBadRequest, "invalid request body"},
		{"invalid input", `{"message":""}`, &service.Error{Code: service.ErrorInvalidInput, Reason: "Message is required"}, http.StatusBadRequest, "Message is required"},
		{"internal", `{"message":"hi"}`, &service.Error{Code: service.ErrorInternal, Reason: "store user message", Err: errors.New("pq: connection refused")}, http.StatusInternalServerError, "Internal server error"},
		{"untyped", `{"message":"hi"}`, errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestRouter(&stubChat{submitErr: tc.err}, nil)

			rec := do(t, h, http.MethodPost, "/chat/message", tc.body)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.msg, decodeError(t, rec))
			require.NotContains(t, rec.Body.String(), "pq:")
		})
	}
}

func TestSendMessage_BodyTooLarge(t *testing.T) {
	chat := &stubChat{}
	h := newTestRouter(chat, nil)

	body := `{"message":"` + strings.Repeat("a", 20<<10) + `"}`
	rec := do(t, h, http.MethodPost, "/chat/message", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, chat.gotMessage)
}

func TestHistory_OK(t *testing.T) {
	chat := &stubChat{msgs: []model.Message{
		{ID: "m1", ConversationID: "s1", Sender: model.SenderUser, Content: "hi"},
		{ID: "m2", ConversationID: "s1", Sender: model.SenderAI, Content: "hello"},
	}}
	h := newTestRouter(chat, nil)

	rec := do(t, h, http.MethodGet, "/chat/history/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "s1", chat.gotHistory)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0]["id"])
	require.Equal(t, "s1", got[0]["conversation_id"])
	require.Equal(t, "user", got[0]["sender"])
	require.Equal(t, "ai", got[1]["sender"])
	require.Contains(t, got[0], "created_at")
	require.NotContains(t, got[0], "Conversation")
}

func TestHistory_EmptyIsArray(t *testing.T) {
	h := newTestRouter(&stubChat{}, nil)

	rec := do(t, h, http.MethodGet, "/chat/history/unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistory_Error(t *testing.T) {
	h := newTestRouter(&stubChat{historyErr: errors.New("db down")}, nil)

	rec := do(t, h, http.MethodGet, "/chat/history/s1", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to fetch chat history", decodeError(t, rec))
}

type fixedGenerator struct{}

func (fixedGenerator) Generate(_ context.Context, history []llm.ChatMessage, msg string) llm.Reply {
	if len(history) > 0 {
		return llm.Reply{Text: "welcome back", Outcome: llm.OutcomeGenerated}
	}
	return llm.Reply{Text: "Shipping is free over ₹499.", Outcome: llm.OutcomeGenerated}
}

func TestChatFlow_EndToEnd(t *testing.T) {
	st, err := store.Open(store.Options{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "chat.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	svc := service.NewChatService(st, fixedGenerator{}, nil, nil, service.Options{HistoryWindow: 10, MaxMessageLength: 500})
	h := newTestRouter(svc, map[string]Pinger{"database": st})

	rec := do(t, h, http.MethodPost, "/chat/message", `{"message":"Do you ship free?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var first model.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Equal(t, "Shipping is free over ₹499.", first.Reply)
	require.NotEmpty(t, first.SessionID)

	rec = do(t, h, http.MethodPost, "/chat/message", `{"message":"thanks","sessionId":"`+first.SessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var second model.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Equal(t, first.SessionID, second.SessionID)
	require.Equal(t, "welcome back", second.Reply)

	rec = do(t, h, http.MethodPost, "/chat/message", `{"message":"`+strings.Repeat("x", 501)+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Message is too long (max 500 chars)", decodeError(t, rec))

	rec = do(t, h, http.MethodGet, "/chat/history/"+first.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 4)
	require.Equal(t, "Do you ship free?", msgs[0].Content)
	require.Equal(t, "welcome back", msgs[3].Content)

	rec = do(t, h, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
