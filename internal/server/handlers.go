package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"spacechat/internal/auth"
	"spacechat/internal/chat"
	"spacechat/internal/config"
	"spacechat/internal/logger"
	"spacechat/internal/models"
	"spacechat/internal/realtime"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// Handlers bundles the services behind the HTTP API.
type Handlers struct {
	auth     *auth.Service
	chat     *chat.Service
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(authSvc *auth.Service, chatSvc *chat.Service, hub *realtime.Hub, cfg *config.Config) *Handlers {
	allowed := cfg.Server.AllowedOrigin
	return &Handlers{
		auth: authSvc,
		chat: chatSvc,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowed
			},
		},
	}
}

// WithAuth validates the bearer token and stores the caller's user id in
// the request context.
func (h *Handlers) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.auth.ParseToken(bearerToken(r))
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	// Browser websocket clients cannot set headers on the upgrade
	// request and pass the token as a query parameter instead.
	return r.URL.Query().Get("token")
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDContextKey).(string)
	return id
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// HandleRegister creates a new account.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			writeJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeJSONError(w, http.StatusBadRequest, "email and password are required")
		default:
			logger.Errorf("register failed: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin verifies credentials and returns a session token.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
		logger.Errorf("login failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: *user})
}

type openConversationRequest struct {
	OtherUserID string  `json:"other_user_id"`
	ScopeID     *string `json:"scope_id"`
}

type openConversationResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []models.Message `json:"messages"`
}

// HandleOpenConversation resolves the conversation with the other user
// for an optional listing scope and returns its id and history. Live
// updates are delivered over the websocket endpoint.
func (h *Handlers) HandleOpenConversation(w http.ResponseWriter, r *http.Request) {
	var req openConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session := auth.NewSession(callerID(r))
	view, err := h.chat.OpenConversation(r.Context(), session, req.OtherUserID, req.ScopeID)
	if err != nil {
		writeChatError(w, err)
		return
	}
	defer view.Close()

	writeJSON(w, http.StatusOK, openConversationResponse{
		ConversationID: view.ConversationID(),
		Messages:       view.Messages(),
	})
}

// HandleListMessages returns the ordered history of a conversation the
// caller participates in.
func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	session := auth.NewSession(callerID(r))
	msgs, err := h.chat.History(r.Context(), session, r.PathValue("id"))
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// HandleSendMessage appends a message to the conversation.
func (h *Handlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chat.Store().Append(r.Context(), r.PathValue("id"), callerID(r), req.Content)
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleWebSocket upgrades the connection and binds it to a live
// conversation view. Query parameters: other_user_id, scope_id
// (optional), token.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	otherUserID := r.URL.Query().Get("other_user_id")
	var scopeID *string
	if scope := r.URL.Query().Get("scope_id"); scope != "" {
		scopeID = &scope
	}

	session := auth.NewSession(callerID(r))
	view, err := h.chat.OpenConversation(r.Context(), session, otherUserID, scopeID)
	if err != nil {
		writeChatError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warningf("websocket upgrade failed: %v", err)
		view.Close()
		return
	}

	realtime.ServeClient(h.hub, conn, view)
}

func writeChatError(w http.ResponseWriter, err error) {
	var identityErr *chat.IdentityError
	var validationErr *chat.ValidationError
	var authzErr *chat.AuthorizationError
	var storeErr *chat.StoreError
	var transportErr *chat.TransportError

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &identityErr), errors.As(err, &validationErr):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &authzErr):
		writeJSONError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &storeErr), errors.As(err, &transportErr):
		logger.Errorf("backend failure: %v", err)
		writeJSONError(w, http.StatusBadGateway, "service temporarily unavailable")
	default:
		logger.Errorf("unexpected error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warningf("failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
