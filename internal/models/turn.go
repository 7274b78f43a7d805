package models

import "time"

// Entity is a typed token tagged by the dialogue engine's NLU.
type Entity struct {
	Type  string `json:"entity"`
	Value any    `json:"value"`
}

// Intent is the classified intent of the latest user message.
type Intent struct {
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Event is one tracker event as reported by the dialogue engine. Only the
// user, bot and slot events are interpreted.
type Event struct {
	Event     string  `json:"event"`
	Name      string  `json:"name,omitempty"`
	Value     any     `json:"value,omitempty"`
	Text      string  `json:"text,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// Tracker event kinds.
const (
	EventUser   = "user"
	EventBot    = "bot"
	EventSlot   = "slot"
	EventAction = "action"
)

// Time converts the unix timestamp of the event, falling back to zero.
func (e Event) Time() time.Time {
	if e.Timestamp <= 0 {
		return time.Time{}
	}
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// SlotSet is one slot-update instruction returned to the dialogue engine.
type SlotSet struct {
	Key   string `json:"name"`
	Value any    `json:"value"`
}

// Message is one outgoing message: literal text or a named response template.
type Message struct {
	Text     string `json:"text,omitempty"`
	Template string `json:"response,omitempty"`
}

// Text builds a literal message.
func Text(s string) Message { return Message{Text: s} }

// Template builds a named template message.
func Template(name string) Message { return Message{Template: name} }

// TurnInput is everything a handler may look at for one invocation.
type TurnInput struct {
	ConversationID string
	Text           string
	Intent         Intent
	Entities       []Entity
	Slots          Slots
	Events         []Event
	LatestAction   string
}

// TurnOutput is what a handler returns: ordered messages and slot updates.
type TurnOutput struct {
	Messages    []Message
	SlotUpdates []SlotSet
}

// Say appends a literal message.
func (o *TurnOutput) Say(text string) { o.Messages = append(o.Messages, Text(text)) }

// Utter appends a template message.
func (o *TurnOutput) Utter(name string) { o.Messages = append(o.Messages, Template(name)) }

// Set appends a slot update.
func (o *TurnOutput) Set(key string, value any) {
	o.SlotUpdates = append(o.SlotUpdates, SlotSet{Key: key, Value: value})
}

// Update returns the last value set for key in this output.
func (o TurnOutput) Update(key string) (any, bool) {
	for i := len(o.SlotUpdates) - 1; i >= 0; i-- {
		if o.SlotUpdates[i].Key == key {
			return o.SlotUpdates[i].Value, true
		}
	}
	return nil, false
}
