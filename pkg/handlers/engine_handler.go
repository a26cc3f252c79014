package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/engineerrors"
	"github.com/polyquery/polyquery-engine/pkg/logging"
	"github.com/polyquery/polyquery-engine/pkg/models"
	"github.com/polyquery/polyquery-engine/pkg/services"
)

// EngineHandler exposes the query engine's operations.
type EngineHandler struct {
	engine *services.Engine
	logger *zap.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(engine *services.Engine, logger *zap.Logger) *EngineHandler {
	return &EngineHandler{engine: engine, logger: logger.Named("http")}
}

// RegisterRoutes registers the engine routes on the given mux. Route
// names match the endpoints the UI already calls.
func (h *EngineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /test_connection", h.TestConnection)
	mux.HandleFunc("GET /get_required_credentials", h.RequiredCredentials)
	mux.HandleFunc("POST /connect", h.Connect)
	mux.HandleFunc("POST /disconnect", h.Disconnect)
	mux.HandleFunc("POST /process_query", h.ProcessQuery)
	mux.HandleFunc("POST /get_schema_info", h.SchemaInfo)
	mux.HandleFunc("POST /get_chat_history", h.ChatHistory)
	mux.HandleFunc("GET /get_previous_chats", h.PreviousChats)
	mux.HandleFunc("GET /load_chat/{id}", h.LoadChat)
}

// connectionRequest carries the credential form or connection string.
type connectionRequest struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params"`
	UseURI bool              `json:"use_uri,omitempty"`
	URI    string            `json:"uri,omitempty"`
	Name   string            `json:"name,omitempty"`
}

func (r *connectionRequest) descriptor() *models.ConnectionDescriptor {
	return &models.ConnectionDescriptor{
		Type:   r.Type,
		Params: r.Params,
		UseURI: r.UseURI,
		URI:    r.URI,
	}
}

// TestConnection verifies credentials without opening a session.
func (h *EngineHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.engine.TestConnection(r.Context(), req.descriptor()); err != nil {
		h.writeEngineError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// RequiredCredentials returns the credential form metadata for a
// backend type.
func (h *EngineHandler) RequiredCredentials(w http.ResponseWriter, r *http.Request) {
	dbType := r.URL.Query().Get("db_type")
	if dbType == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "db_type query parameter is required")
		return
	}

	spec, ok := datasource.RequiredCredentials(dbType)
	if !ok {
		_ = ErrorResponse(w, http.StatusNotFound, "unknown_type", "unsupported database type: "+dbType)
		return
	}

	_ = WriteJSON(w, http.StatusOK, spec)
}

// Connect opens a session for validated credentials.
func (h *EngineHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	session, err := h.engine.OpenSession(r.Context(), req.descriptor(), req.Name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"db_type":    session.Descriptor.Type,
		"family":     session.Descriptor.Family,
	})
}

type sessionRequest struct {
	SessionID    uuid.UUID `json:"session_id"`
	Query        string    `json:"query,omitempty"`
	ForceRefresh bool      `json:"force_refresh,omitempty"`
}

// Disconnect closes a session. Closing twice is not an error.
func (h *EngineHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.engine.CloseSession(req.SessionID); err != nil {
		h.writeEngineError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// processQueryResponse is the turn plus the top-level success flag the
// UI branches on.
type processQueryResponse struct {
	Success bool `json:"success"`
	*models.Turn
}

// ProcessQuery runs the full pipeline for one question.
func (h *EngineHandler) ProcessQuery(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Query == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	h.logger.Info("processing query",
		zap.String("session_id", req.SessionID.String()),
		zap.String("query", logging.SanitizeQuery(req.Query)))

	turn, err := h.engine.ProcessQuery(r.Context(), req.SessionID, req.Query, req.ForceRefresh)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, processQueryResponse{Success: !turn.IsError, Turn: turn})
}

// SchemaInfo returns the session's schema snapshot.
func (h *EngineHandler) SchemaInfo(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	snapshot, err := h.engine.GetSchemaInfo(r.Context(), req.SessionID, req.ForceRefresh)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, snapshot)
}

// ChatHistory returns the session's persisted turns.
func (h *EngineHandler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	turns, err := h.engine.GetChatHistory(r.Context(), req.SessionID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"messages": turns})
}

// PreviousChats lists all persisted chats, most recent first.
func (h *EngineHandler) PreviousChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.engine.ListChats(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// LoadChat returns a past chat's turns. When the chat's connection is
// no longer live the response says so; the caller must reconnect before
// asking new questions.
func (h *EngineHandler) LoadChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid chat id")
		return
	}

	chat, turns, err := h.engine.LoadChat(r.Context(), chatID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if chat == nil {
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", "chat not found")
		return
	}

	response := map[string]any{
		"chat":     chat,
		"messages": turns,
	}
	if !h.engine.HasLiveSession(chat.ID) {
		response["warning"] = "connection is no longer active; reconnect to run new queries"
	}

	_ = WriteJSON(w, http.StatusOK, response)
}

// writeEngineError maps engine failures to HTTP responses. Busy and
// unknown-session outcomes are flow control, not taxonomy errors.
func (h *EngineHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSessionBusy):
		_ = ErrorResponse(w, http.StatusConflict, "busy", "a query is already being processed for this session")
		return
	case errors.Is(err, services.ErrSessionNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "no_session", "session not found; connect first")
		return
	}

	classified := engineerrors.Classify(err)
	status := http.StatusInternalServerError
	switch classified.Kind {
	case engineerrors.KindConnection:
		status = http.StatusBadRequest
	case engineerrors.KindTimeout:
		status = http.StatusGatewayTimeout
	case engineerrors.KindSchema, engineerrors.KindExecution:
		status = http.StatusBadGateway
	}

	h.logger.Warn("request failed",
		zap.String("kind", string(classified.Kind)),
		zap.String("error", logging.SanitizeError(err)))

	_ = ErrorResponse(w, status, string(classified.Kind), classified.Message)
}
