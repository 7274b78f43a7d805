package flow

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/rosebeck482/hapa-chat/internal/conversation"
	"github.com/rosebeck482/hapa-chat/internal/models"
)

// MetadataUpdater copies the profile slots and bookkeeping values into the
// conversation metadata.
type MetadataUpdater struct {
	conversations *conversation.Store
	assistantID   string
	now           func() time.Time
}

// NewMetadataUpdater creates the metadata action.
func NewMetadataUpdater(conversations *conversation.Store, assistantID string, now func() time.Time) *MetadataUpdater {
	if now == nil {
		now = time.Now
	}
	return &MetadataUpdater{conversations: conversations, assistantID: assistantID, now: now}
}

// Updates builds the metadata map for the given slots. Unset slots map to
// nil and are dropped by the store.
func (m *MetadataUpdater) Updates(slots models.Slots) map[string]any {
	updates := make(map[string]any, len(models.ProfileSlots)+5)
	for _, key := range models.ProfileSlots {
		updates[key] = slotValue(slots, key)
	}
	updates[models.SlotDOB] = slotValue(slots, models.SlotDOB)
	if stage := slots.Stage(); stage != models.StageNone {
		updates[models.SlotStage] = int(stage)
	}
	updates[models.SlotCurrentSection] = slotValue(slots, models.SlotCurrentSection)
	updates[conversation.SectionKey] = string(DetermineSection(slots))
	updates["assistant_id"] = m.assistantID
	updates["last_updated"] = m.now().UTC().Format(time.RFC3339)
	return updates
}

// Handle implements Handler. Store failures are logged and never reach the
// dialogue engine.
func (m *MetadataUpdater) Handle(ctx context.Context, in models.TurnInput) (models.TurnOutput, error) {
	if m.conversations == nil {
		return models.TurnOutput{}, nil
	}
	if err := m.conversations.UpdateMetadata(ctx, in.ConversationID, m.Updates(in.Slots)); err != nil {
		slog.Error("MetadataUpdater.Handle: failed to update metadata", "conversationID", in.ConversationID, "error", err)
	}
	return models.TurnOutput{}, nil
}

func slotValue(slots models.Slots, key string) any {
	if !slots.IsSet(key) {
		return nil
	}
	return slots[key]
}

// TurnLogger appends the latest user message, the latest bot utterance not
// yet logged and the recent slot changes to the conversation log.
type TurnLogger struct {
	conversations *conversation.Store
	window        int
}

// NewTurnLogger creates the logging action. window bounds how many trailing
// tracker events are scanned for slot changes.
func NewTurnLogger(conversations *conversation.Store, window int) *TurnLogger {
	if window <= 0 {
		window = DefaultSlotWindow
	}
	return &TurnLogger{conversations: conversations, window: window}
}

// Turn builds the log unit for one invocation.
func (l *TurnLogger) Turn(in models.TurnInput) conversation.Turn {
	turn := conversation.Turn{Section: DetermineSection(in.Slots)}

	if in.Text != "" {
		turn.User = &models.Entry{
			Content: in.Text,
			Metadata: models.EntryMetadata{
				Intent:     in.Intent.Name,
				Confidence: in.Intent.Confidence,
				Entities:   in.Entities,
			},
		}
	}

	if bot, idx, ok := latestEvent(in.Events, models.EventBot); ok {
		action := in.LatestAction
		for i := idx - 1; i >= 0; i-- {
			if in.Events[i].Event == models.EventAction && in.Events[i].Name != "" {
				action = in.Events[i].Name
				break
			}
		}
		turn.Bot = &models.Entry{
			Timestamp: bot.Time(),
			Content:   bot.Text,
			Metadata:  models.EntryMetadata{Action: action},
		}
		turn.BotEventKey = botEventKey(bot)
	}

	events := in.Events
	if len(events) > l.window {
		events = events[len(events)-l.window:]
	}
	for _, e := range events {
		if e.Event != models.EventSlot || e.Name == "" {
			continue
		}
		if turn.SlotDeltas == nil {
			turn.SlotDeltas = make(map[string]any)
		}
		turn.SlotDeltas[e.Name] = e.Value
	}
	return turn
}

// Handle implements Handler.
func (l *TurnLogger) Handle(ctx context.Context, in models.TurnInput) (models.TurnOutput, error) {
	if l.conversations == nil {
		return models.TurnOutput{}, nil
	}
	if err := l.conversations.AppendTurn(ctx, in.ConversationID, l.Turn(in)); err != nil {
		slog.Error("TurnLogger.Handle: failed to log turn", "conversationID", in.ConversationID, "error", err)
	}
	return models.TurnOutput{}, nil
}

func latestEvent(events []models.Event, kind string) (models.Event, int, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Event == kind {
			return events[i], i, true
		}
	}
	return models.Event{}, -1, false
}

// botEventKey identifies a bot event by timestamp and text.
func botEventKey(e models.Event) string {
	return strconv.FormatFloat(e.Timestamp, 'f', -1, 64) + "|" + e.Text
}
