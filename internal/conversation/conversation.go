// Package conversation maintains the append-only conversation log and the
// metadata map persisted per conversation id.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rosebeck482/hapa-chat/internal/metrics"
	"github.com/rosebeck482/hapa-chat/internal/models"
	"github.com/rosebeck482/hapa-chat/internal/store"
)

// LastLoggedBotEventKey is the metadata bookkeeping key holding the
// identity of the most recent bot event written to the log.
const LastLoggedBotEventKey = "last_logged_bot_event"

// SectionKey is the metadata key holding the derived section label.
const SectionKey = "section"

// Entry counts at which the inferred section moves on when no entry
// carries an explicit section.
const (
	greetingEntries     = 5
	personalDataEntries = 15
	userInfoEntries     = 25
)

// Turn is one logging unit. Every part is optional; present parts are
// appended in the order user, bot, slot deltas.
type Turn struct {
	User *models.Entry
	Bot  *models.Entry
	// BotEventKey identifies the tracker event Bot was taken from. A bot
	// entry whose key matches the last logged one is dropped.
	BotEventKey string
	SlotDeltas  map[string]any
	// Section is applied to entries that do not carry one.
	Section models.Section
	// Action names the action that produced the slot deltas.
	Action string
}

// Store is the conversation log over a document store. All writes are full
// read-modify-write cycles of the whole document, serialized per id by the
// backing store.
type Store struct {
	docs store.DocumentStore
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a conversation store backed by docs.
func NewStore(docs store.DocumentStore, opts ...Option) *Store {
	s := &Store{docs: docs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendTurn appends the parts of one turn and merges the slot deltas into
// the metadata map.
func (s *Store) AppendTurn(ctx context.Context, id string, turn Turn) error {
	return s.mutate(ctx, id, "AppendTurn", func(doc *models.Document, now time.Time) bool {
		changed := false
		if turn.User != nil {
			entry := *turn.User
			entry.Sender = models.SenderUser
			s.appendEntry(doc, entry, turn.Section, now)
			changed = true
		}
		if turn.Bot != nil && !alreadyLogged(doc, turn.BotEventKey) {
			entry := *turn.Bot
			entry.Sender = models.SenderBot
			s.appendEntry(doc, entry, turn.Section, now)
			if turn.BotEventKey != "" {
				doc.Metadata[LastLoggedBotEventKey] = turn.BotEventKey
			}
			changed = true
		}
		deltas := dropNil(turn.SlotDeltas)
		if len(deltas) > 0 {
			content := "Slots updated: " + strings.Join(sortedKeys(deltas), ", ")
			if turn.Action != "" {
				content = fmt.Sprintf("Action executed: %s (%s)", turn.Action, strings.Join(sortedKeys(deltas), ", "))
			}
			s.appendEntry(doc, models.Entry{
				Sender:  models.SenderSystem,
				Content: content,
				Metadata: models.EntryMetadata{
					Action:   turn.Action,
					SlotsSet: deltas,
				},
			}, turn.Section, now)
			for k, v := range deltas {
				doc.Metadata[k] = v
			}
			changed = true
		}
		return changed
	})
}

// AppendEntry appends a single entry. A zero timestamp or empty section is
// filled in.
func (s *Store) AppendEntry(ctx context.Context, id string, entry models.Entry) error {
	if entry.Sender == "" {
		return fmt.Errorf("entry for %q has no sender", id)
	}
	return s.mutate(ctx, id, "AppendEntry", func(doc *models.Document, now time.Time) bool {
		s.appendEntry(doc, entry, "", now)
		return true
	})
}

// UpdateSection records a section change.
func (s *Store) UpdateSection(ctx context.Context, id string, section models.Section) error {
	return s.mutate(ctx, id, "UpdateSection", func(doc *models.Document, now time.Time) bool {
		previous := InferSection(doc.Messages)
		doc.Messages = append(doc.Messages, models.Entry{
			Timestamp: now,
			Section:   section,
			Sender:    models.SenderSystem,
			Content:   "Section changed to: " + string(section),
			Metadata: models.EntryMetadata{
				PreviousSection: previous,
				NewSection:      section,
			},
		})
		return true
	})
}

// UpdateMetadata merges updates into the metadata map, last write wins per
// key. Nil values are dropped before the merge. A system entry listing the
// changed keys is appended.
func (s *Store) UpdateMetadata(ctx context.Context, id string, updates map[string]any) error {
	clean := dropNil(updates)
	if len(clean) == 0 {
		slog.Debug("Store.UpdateMetadata: nothing to merge", "conversationID", id)
		return nil
	}
	keys := sortedKeys(clean)
	return s.mutate(ctx, id, "UpdateMetadata", func(doc *models.Document, now time.Time) bool {
		for k, v := range clean {
			doc.Metadata[k] = v
		}
		section := models.Section(metadataString(doc.Metadata, SectionKey))
		if !knownSection(section) {
			section = models.Section(metadataString(doc.Metadata, models.SlotCurrentSection))
		}
		if !knownSection(section) {
			section = InferSection(doc.Messages)
		}
		doc.Messages = append(doc.Messages, models.Entry{
			Timestamp: now,
			Section:   section,
			Sender:    models.SenderSystem,
			Content:   "Metadata updated: " + strings.Join(keys, ", "),
			Metadata:  models.EntryMetadata{MetadataUpdated: keys},
		})
		return true
	})
}

// Document returns the full conversation record. A missing or corrupt record
// yields an empty skeleton.
func (s *Store) Document(ctx context.Context, id string) (*models.Document, error) {
	raw, err := s.docs.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewDocument(id, s.now().UTC()), nil
	}
	if err != nil {
		slog.Error("Store.Document: read failed", "conversationID", id, "error", err)
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	doc, decodeErr := decode(id, raw, s.now().UTC())
	if decodeErr != nil {
		reportCorrupt(id, decodeErr)
	}
	return doc, nil
}

// History returns the ordered entries of a conversation.
func (s *Store) History(ctx context.Context, id string) ([]models.Entry, error) {
	doc, err := s.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

// Metadata returns the metadata map of a conversation.
func (s *Store) Metadata(ctx context.Context, id string) (map[string]any, error) {
	doc, err := s.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Metadata, nil
}

// List returns the ids of all stored conversations.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return ids, nil
}

// InferSection derives a section from the history: the last entry's
// section when present, otherwise a guess from the number of entries.
func InferSection(entries []models.Entry) models.Section {
	if n := len(entries); n > 0 && entries[n-1].Section != "" {
		return entries[n-1].Section
	}
	switch n := len(entries); {
	case n < greetingEntries:
		return models.SectionGreeting
	case n < personalDataEntries:
		return models.SectionPersonalData
	case n < userInfoEntries:
		return models.SectionUserInfo
	default:
		return models.SectionUserPreferences
	}
}

// mutate runs apply inside one atomic update of the document. apply reports
// whether it changed anything; an unchanged document is not rewritten.
func (s *Store) mutate(ctx context.Context, id, op string, apply func(doc *models.Document, now time.Time) bool) error {
	now := s.now().UTC()
	var corruptErr error
	err := s.docs.Update(ctx, id, func(current []byte) ([]byte, error) {
		corruptErr = nil
		doc := models.NewDocument(id, now)
		if current != nil {
			var derr error
			doc, derr = decode(id, current, now)
			corruptErr = derr
		}
		if !apply(doc, now) {
			return nil, nil
		}
		doc.UpdatedAt = now
		return json.MarshalIndent(doc, "", "  ")
	})
	if corruptErr != nil {
		reportCorrupt(id, corruptErr)
	}
	if err != nil {
		slog.Error("Store."+op+": write failed", "conversationID", id, "error", err)
		return fmt.Errorf("failed to update conversation %s: %w", id, err)
	}
	slog.Debug("Store."+op+": saved", "conversationID", id)
	return nil
}

func (s *Store) appendEntry(doc *models.Document, entry models.Entry, section models.Section, now time.Time) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.Section == "" {
		entry.Section = section
	}
	if entry.Section == "" {
		entry.Section = InferSection(doc.Messages)
	}
	doc.Messages = append(doc.Messages, entry)
}

// decode parses a persisted document. On failure it returns a skeleton
// alongside the error so callers can carry on.
func decode(id string, raw []byte, now time.Time) (*models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.NewDocument(id, now), err
	}
	if doc.ConversationID == "" {
		doc.ConversationID = id
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	if doc.Messages == nil {
		doc.Messages = []models.Entry{}
	}
	return &doc, nil
}

func reportCorrupt(id string, err error) {
	metrics.CorruptDocumentsTotal.Inc()
	slog.Error("Store: corrupt conversation document, starting from an empty record", "conversationID", id, "error", err)
}

func alreadyLogged(doc *models.Document, key string) bool {
	if key == "" {
		return false
	}
	return metadataString(doc.Metadata, LastLoggedBotEventKey) == key
}

func metadataString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func knownSection(s models.Section) bool {
	switch s {
	case models.SectionGreeting, models.SectionPersonalData, models.SectionUserInfo, models.SectionUserPreferences:
		return true
	}
	return false
}

func dropNil(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
