package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rosebeck482/hapa-chat/internal/conversation"
	"github.com/rosebeck482/hapa-chat/internal/genai"
	"github.com/rosebeck482/hapa-chat/internal/models"
)

const (
	responseMaxTokens   = 300
	responseTemperature = 0.7
	historyContextSize  = 10
)

const responsePersona = `Adopt the roleplay persona of an incredibly smart, futuristic AI friend with extraordinary intuition and insight.
Let your language be warm, engaging and slightly whimsical, with an empathetic listening ear.

Before answering, consider the user's profile and the recent conversation, the user's emotional tone and what they seem to be looking for.
Invite the user to share more with a gentle, open-ended question that fits their mood.
Keep the reply concise and natural. Never reveal your reasoning; only the final reply is shown to the user.`

var topicGoals = map[string]string{
	models.TopicUserInfo: "You are helping the user build their dating profile by understanding their interests, personality and preferences.",
	models.TopicUserPref: "You are helping the user describe what they are looking for in a partner: qualities, values, lifestyle and deal breakers.",
}

var topicFallbacks = map[string]string{
	models.TopicUserInfo: "I'd love to hear more about your interests and what makes you unique. Could you share a bit more about yourself?",
	models.TopicUserPref: "Could you elaborate on your ideal partner's qualities?",
}

// profileLines orders the metadata keys summarized for the model.
var profileLines = []struct {
	key, label string
}{
	{models.SlotName, "Name"},
	{models.SlotAge, "Age"},
	{models.SlotGender, "Gender"},
	{models.SlotHeight, "Height"},
	{models.SlotGenderPreference, "Gender Preference"},
	{models.SlotAgePreference, "Age Preference"},
}

// Responder generates a free-text reply for the interests or partner
// preference topics from the stored history and profile, and logs it.
type Responder struct {
	topic         string
	llm           genai.Generator
	conversations *conversation.Store
}

// NewResponder creates a responder for topic (userInfo or userPref).
func NewResponder(topic string, llm genai.Generator, conversations *conversation.Store) *Responder {
	return &Responder{topic: topic, llm: llm, conversations: conversations}
}

// Handle implements Handler.
func (r *Responder) Handle(ctx context.Context, in models.TurnInput) (models.TurnOutput, error) {
	var out models.TurnOutput
	section := DetermineSection(in.Slots)

	var (
		history  []models.Entry
		metadata map[string]any
	)
	if r.conversations != nil {
		doc, err := r.conversations.Document(ctx, in.ConversationID)
		if err != nil {
			slog.Warn("Responder.Handle: history unavailable", "conversationID", in.ConversationID, "error", err)
		} else {
			history, metadata = doc.Messages, doc.Metadata
		}
	}

	user := fmt.Sprintf("USER PROFILE:\n%s\n\nCONVERSATION HISTORY:\n%s\n\nCURRENT SECTION: %s\n\nLATEST MESSAGE: %s\n\n"+
		"Based on this information, generate a thoughtful, personalized response that helps the user share more about themselves.",
		summarizeProfile(metadata, in.Slots), summarizeHistory(history), section, in.Text)
	system := responsePersona + "\n\n" + topicGoals[r.topic]

	reply, err := genai.Call(ctx, r.llm, "response", system, user, responseMaxTokens, responseTemperature)
	if err != nil {
		slog.Warn("Responder.Handle: using static reply", "conversationID", in.ConversationID, "topic", r.topic, "error", err)
		out.Say(topicFallbacks[r.topic])
		return out, nil
	}
	out.Say(reply)

	if r.conversations != nil {
		entry := models.Entry{
			Section:  section,
			Sender:   models.SenderBot,
			Content:  reply,
			Metadata: models.EntryMetadata{Action: r.action()},
		}
		if err := r.conversations.AppendEntry(ctx, in.ConversationID, entry); err != nil {
			slog.Error("Responder.Handle: failed to log reply", "conversationID", in.ConversationID, "error", err)
		}
	}
	return out, nil
}

func (r *Responder) action() string {
	if r.topic == models.TopicUserPref {
		return ActionGenerateUserPref
	}
	return ActionGenerateUserInfo
}

// summarizeHistory renders the trailing entries as "SENDER: content" lines.
func summarizeHistory(entries []models.Entry) string {
	if len(entries) == 0 {
		return "No previous conversation."
	}
	if len(entries) > historyContextSize {
		entries = entries[len(entries)-historyContextSize:]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(e.Sender)), e.Content))
	}
	return strings.Join(lines, "\n")
}

// summarizeProfile lists the known profile fields. Stored metadata wins over
// the live slots; skipped and placeholder values are left out.
func summarizeProfile(metadata map[string]any, slots models.Slots) string {
	merged := slots.Clone()
	for k, v := range metadata {
		if v != nil {
			merged[k] = v
		}
	}
	var lines []string
	for _, p := range profileLines {
		v := merged.String(p.key)
		if v == "" || v == models.SkippedValue || (p.key == models.SlotAge && v == "0") {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", p.label, v))
	}
	if len(lines) == 0 {
		return "No user profile information available."
	}
	return strings.Join(lines, "\n")
}
