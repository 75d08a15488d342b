package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/support-chat/support-agent/internal/middleware"
	"github.com/support-chat/support-agent/internal/model"
	"github.com/support-chat/support-agent/internal/service"
	"github.com/support-chat/support-agent/pkg/logger"
)

// ChatService is the behaviour ChatHandler exposes over HTTP.
type ChatService interface {
	Submit(ctx context.Context, message string, sessionID *string) (*service.SubmitResult, error)
	History(ctx context.Context, sessionID string) ([]model.Message, error)
}

// ChatHandler handles the chat endpoints.
type ChatHandler struct {
	chat   ChatService
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat ChatService, log *logger.Logger) *ChatHandler {
	if log == nil {
		log = logger.Global()
	}
	return &ChatHandler{chat: chat, logger: log}
}

// SendMessage handles POST /chat/message
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.WithCorrelationID(middleware.GetCorrelationID(ctx))

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.chat.Submit(ctx, req.Message, req.SessionID)
	if err != nil {
		var se *service.Error
		if errors.As(err, &se) && se.Code == service.ErrorInvalidInput {
			writeError(w, http.StatusBadRequest, se.Reason)
			return
		}
		log.Error("chat message failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, model.SendMessageResponse{
		Reply:     res.Reply,
		SessionID: res.SessionID,
	})
}

// History handles GET /chat/history/{sessionId}
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionId")

	msgs, err := h.chat.History(ctx, sessionID)
	if err != nil {
		h.logger.WithCorrelationID(middleware.GetCorrelationID(ctx)).
			Error("fetch chat history failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch chat history")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	writeJSON(w, http.StatusOK, msgs)
}
