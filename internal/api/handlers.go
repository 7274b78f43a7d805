package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rosebeck482/hapa-chat/internal/export"
	"github.com/rosebeck482/hapa-chat/internal/flow"
	"github.com/rosebeck482/hapa-chat/internal/models"
	"github.com/rosebeck482/hapa-chat/internal/store"
)

// webhookRequest is the action call sent by the dialogue engine.
type webhookRequest struct {
	NextAction string  `json:"next_action"`
	SenderID   string  `json:"sender_id"`
	Tracker    tracker `json:"tracker"`
}

type tracker struct {
	SenderID         string         `json:"sender_id"`
	Slots            models.Slots   `json:"slots"`
	LatestMessage    latestMessage  `json:"latest_message"`
	Events           []models.Event `json:"events"`
	LatestActionName string         `json:"latest_action_name"`
}

type latestMessage struct {
	Text     string          `json:"text"`
	Intent   models.Intent   `json:"intent"`
	Entities []models.Entity `json:"entities"`
}

// webhookResponse carries the slot events and messages back to the engine.
type webhookResponse struct {
	Events    []slotEvent      `json:"events"`
	Responses []models.Message `json:"responses"`
}

type slotEvent struct {
	Event string `json:"event"`
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// webhookError is the body the engine expects on a failed action call.
type webhookError struct {
	Error      string `json:"error"`
	ActionName string `json:"action_name,omitempty"`
}

func (req webhookRequest) conversationID() string {
	if req.SenderID != "" {
		return req.SenderID
	}
	return req.Tracker.SenderID
}

func (req webhookRequest) turnInput() models.TurnInput {
	return models.TurnInput{
		ConversationID: req.conversationID(),
		Text:           req.Tracker.LatestMessage.Text,
		Intent:         req.Tracker.LatestMessage.Intent,
		Entities:       req.Tracker.LatestMessage.Entities,
		Slots:          req.Tracker.Slots,
		Events:         req.Tracker.Events,
		LatestAction:   req.Tracker.LatestActionName,
	}
}

func newWebhookResponse(out models.TurnOutput) webhookResponse {
	resp := webhookResponse{
		Events:    make([]slotEvent, 0, len(out.SlotUpdates)),
		Responses: make([]models.Message, 0, len(out.Messages)),
	}
	for _, u := range out.SlotUpdates {
		resp.Events = append(resp.Events, slotEvent{Event: models.EventSlot, Name: u.Key, Value: u.Value})
	}
	resp.Responses = append(resp.Responses, out.Messages...)
	return resp
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.webhookHandler: failed to decode JSON", "error", err, "requestID", RequestID(r.Context()))
		writeJSONResponse(w, http.StatusBadRequest, webhookError{Error: "Invalid JSON format"})
		return
	}
	if strings.TrimSpace(req.NextAction) == "" {
		writeJSONResponse(w, http.StatusBadRequest, webhookError{Error: "next_action is required"})
		return
	}
	if strings.TrimSpace(req.conversationID()) == "" {
		writeJSONResponse(w, http.StatusBadRequest, webhookError{Error: "sender_id is required", ActionName: req.NextAction})
		return
	}

	in := req.turnInput()
	slog.Debug("Server.webhookHandler: action requested", "action", req.NextAction,
		"conversationID", in.ConversationID, "requestID", RequestID(r.Context()))

	out, err := s.registry.Dispatch(r.Context(), req.NextAction, in)
	if errors.Is(err, flow.ErrUnknownAction) {
		writeJSONResponse(w, http.StatusNotFound, webhookError{Error: err.Error(), ActionName: req.NextAction})
		return
	}
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, webhookError{Error: "Action failed", ActionName: req.NextAction})
		return
	}
	writeJSONResponse(w, http.StatusOK, newWebhookResponse(out))
}

func (s *Server) actionsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.registry.Names()))
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]any{
		"status":  "healthy",
		"actions": len(s.registry.Names()),
		"storage": s.conversations != nil,
	}))
}

func (s *Server) listConversationsHandler(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Conversation storage is not configured"))
		return
	}
	ids, err := s.conversations.List(r.Context())
	if err != nil {
		slog.Error("Server.listConversationsHandler: failed to list conversations", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(ids))
}

// loadDocument resolves the {id} path value and writes the error response
// itself when the conversation cannot be served.
func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	if s.conversations == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Conversation storage is not configured"))
		return nil, false
	}
	id := r.PathValue("id")
	doc, err := s.conversations.Document(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrInvalidID):
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid conversation id"))
		return nil, false
	case err != nil:
		slog.Error("Server.loadDocument: failed to read conversation", "conversationID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read conversation"))
		return nil, false
	}
	if len(doc.Messages) == 0 && len(doc.Metadata) == 0 {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return nil, false
	}
	return doc, true
}

func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, doc, format); err != nil {
		slog.Error("Server.getConversationHandler: export failed", "conversationID", doc.ConversationID, "format", format, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to export conversation"))
		return
	}
	writeRaw(w, format.ContentType(), buf.Bytes())
}

func (s *Server) getMetadataHandler(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(doc.Metadata))
}
