package models

import "time"

// Sender identifies who authored a conversation entry.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

// Document is the persisted record of one conversation. Messages are
// append-only; Metadata holds the latest known value per key.
type Document struct {
	ConversationID string         `json:"conversation_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Metadata       map[string]any `json:"metadata"`
	Messages       []Entry        `json:"messages"`
}

// NewDocument returns an empty skeleton for id.
func NewDocument(id string, now time.Time) *Document {
	return &Document{
		ConversationID: id,
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata:       map[string]any{},
		Messages:       []Entry{},
	}
}

// Entry is one logged message or event.
type Entry struct {
	Timestamp time.Time     `json:"timestamp"`
	Section   Section       `json:"section"`
	Sender    Sender        `json:"sender"`
	Content   string        `json:"content"`
	Metadata  EntryMetadata `json:"metadata"`
}

// EntryMetadata carries the optional annotations of an entry.
type EntryMetadata struct {
	Intent          string         `json:"intent,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	Action          string         `json:"action,omitempty"`
	SlotsSet        map[string]any `json:"slots_set,omitempty"`
	MetadataUpdated []string       `json:"metadata_updated,omitempty"`
	Entities        []Entity       `json:"entities,omitempty"`
	PreviousSection Section        `json:"previous_section,omitempty"`
	NewSection      Section        `json:"new_section,omitempty"`
}
