// Package flow implements the dialogue actions invoked by the dialogue
// engine: the staged profile-field handlers and the section, intent,
// response and logging actions around them.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rosebeck482/hapa-chat/internal/conversation"
	"github.com/rosebeck482/hapa-chat/internal/extract"
	"github.com/rosebeck482/hapa-chat/internal/genai"
	"github.com/rosebeck482/hapa-chat/internal/metrics"
	"github.com/rosebeck482/hapa-chat/internal/models"
)

// Action names as configured in the dialogue engine's domain.
const (
	ActionCollectName             = "action_collect_name"
	ActionCollectAge              = "action_collect_age"
	ActionCollectGender           = "action_collect_gender"
	ActionCollectGenderPreference = "action_collect_gender_preference"
	ActionCollectAgePreference    = "action_collect_age_preference"
	ActionCollectHeight           = "action_collect_height"
	ActionFallback                = "action_ollama_fallback"
	ActionEndConversation         = "action_end_conversation"
	ActionSwitchToUserInfo        = "action_switch_to_user_info"
	ActionSwitchToUserPreferences = "action_switch_to_user_preferences"
	ActionUpdateMetadata          = "action_update_metadata"
	ActionLogConversation         = "action_log_conversation"
	ActionDetermineUserIntent     = "action_determine_user_intent"
	ActionGenerateUserInfo        = "action_generate_response_user_info"
	ActionGenerateUserPref        = "action_generate_response_user_pref"
	ActionDetermineNextTopic      = "action_determine_next_topic"
	ActionAnalyzeUserInfo         = "action_analyze_user_info"
	ActionAnalyzeUserPreferences  = "action_analyze_user_preferences"
)

// ErrUnknownAction is returned by Dispatch for an unregistered action name.
var ErrUnknownAction = errors.New("unknown action")

// Handler runs one action for one turn.
type Handler interface {
	Handle(ctx context.Context, in models.TurnInput) (models.TurnOutput, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in models.TurnInput) (models.TurnOutput, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, in models.TurnInput) (models.TurnOutput, error) {
	return f(ctx, in)
}

// Registry maps action names to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates an action name with a handler, replacing any previous one.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Get retrieves the handler for an action name.
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered action names in ascending order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch finds and runs the handler registered for name.
func (r *Registry) Dispatch(ctx context.Context, name string, in models.TurnInput) (models.TurnOutput, error) {
	slog.Debug("Registry.Dispatch: invoked", "action", name, "conversationID", in.ConversationID)
	h, ok := r.Get(name)
	if !ok {
		metrics.ActionsTotal.WithLabelValues("unknown", "unknown").Inc()
		slog.Warn("Registry.Dispatch: no handler registered", "action", name, "conversationID", in.ConversationID)
		return models.TurnOutput{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	if in.Slots == nil {
		in.Slots = models.Slots{}
	}
	out, err := h.Handle(ctx, in)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(name, "error").Inc()
		slog.Error("Registry.Dispatch: handler failed", "action", name, "conversationID", in.ConversationID, "error", err)
		return models.TurnOutput{}, err
	}
	metrics.ActionsTotal.WithLabelValues(name, "ok").Inc()
	slog.Debug("Registry.Dispatch: succeeded", "action", name, "conversationID", in.ConversationID,
		"messages", len(out.Messages), "slotUpdates", len(out.SlotUpdates))
	return out, nil
}

// DefaultSlotWindow is how many trailing tracker events LogTurn scans for
// slot changes.
const DefaultSlotWindow = 20

// DefaultAssistantID is recorded in metadata when none is configured.
const DefaultAssistantID = "dating_profile_assistant"

// Deps are the collaborators shared by the handlers.
type Deps struct {
	// Extractor runs field extraction. Nil builds one over LLM.
	Extractor *extract.Pipeline
	// LLM is the language model; nil behaves as unavailable.
	LLM genai.Generator
	// Conversations is the conversation log. Nil disables the logging and
	// history based actions.
	Conversations *conversation.Store
	AssistantID   string
	SlotWindow    int
	Now           func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Extractor == nil {
		d.Extractor = extract.NewPipeline(d.LLM)
	}
	if d.AssistantID == "" {
		d.AssistantID = DefaultAssistantID
	}
	if d.SlotWindow <= 0 {
		d.SlotWindow = DefaultSlotWindow
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// NewDefaultRegistry registers every action.
func NewDefaultRegistry(deps Deps) *Registry {
	deps = deps.withDefaults()
	r := NewRegistry()

	fields := NewFieldHandlers(deps.Extractor)
	for _, h := range fields {
		r.Register(h.spec.action, h)
	}
	r.Register(ActionFallback, NewFallback(fields, deps.LLM))
	r.Register(ActionEndConversation, HandlerFunc(EndConversation))
	r.Register(ActionSwitchToUserInfo, SwitchSection(models.TopicUserInfo))
	r.Register(ActionSwitchToUserPreferences, SwitchSection(models.TopicUserPref))
	r.Register(ActionDetermineUserIntent, NewIntentClassifier(deps.LLM))
	r.Register(ActionGenerateUserInfo, NewResponder(models.TopicUserInfo, deps.LLM, deps.Conversations))
	r.Register(ActionGenerateUserPref, NewResponder(models.TopicUserPref, deps.LLM, deps.Conversations))
	r.Register(ActionDetermineNextTopic, HandlerFunc(DetermineNextTopic))
	r.Register(ActionAnalyzeUserInfo, analyze(models.TopicUserInfo))
	r.Register(ActionAnalyzeUserPreferences, analyze(models.TopicUserPref))
	r.Register(ActionUpdateMetadata, NewMetadataUpdater(deps.Conversations, deps.AssistantID, deps.Now))
	r.Register(ActionLogConversation, NewTurnLogger(deps.Conversations, deps.SlotWindow))

	slog.Debug("flow.NewDefaultRegistry: registered actions", "count", len(r.handlers))
	return r
}

// analyze records the free-text answer for a topic. It sets no slots.
func analyze(topic string) HandlerFunc {
	return func(_ context.Context, in models.TurnInput) (models.TurnOutput, error) {
		slog.Info("flow.analyze: free-text answer received", "topic", topic,
			"conversationID", in.ConversationID, "chars", len(in.Text))
		return models.TurnOutput{}, nil
	}
}
