package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/rosebeck482/hapa-chat/internal/genai"
	"github.com/rosebeck482/hapa-chat/internal/models"
)

// placeholderSlots are filled when the user jumps past personal data so that
// consumers never see a missing field. Name is never filled.
var placeholderSlots = []struct {
	key   string
	value any
}{
	{models.SlotAge, 0},
	{models.SlotGender, models.SkippedValue},
	{models.SlotGenderPreference, models.SkippedValue},
	{models.SlotAgePreference, models.SkippedValue},
	{models.SlotHeight, models.SkippedValue},
}

// EndConversation marks the profile complete.
func EndConversation(_ context.Context, in models.TurnInput) (models.TurnOutput, error) {
	var out models.TurnOutput
	out.Say("Thanks for sharing your details! Your profile is complete and you're now ready for matches.")
	out.Set(models.SlotMatchReady, true)
	slog.Info("flow.EndConversation: profile complete", "conversationID", in.ConversationID)
	return out, nil
}

// SwitchSection jumps straight to a later topic (userInfo or userPref),
// setting the stage to the free-text stage.
func SwitchSection(topic string) Handler {
	return HandlerFunc(func(_ context.Context, in models.TurnInput) (models.TurnOutput, error) {
		return switchSection(in, topic), nil
	})
}

func switchSection(in models.TurnInput, topic string) models.TurnOutput {
	var out models.TurnOutput
	greeting := ""
	if name := in.Slots.String(models.SlotName); name != "" && name != models.SkippedValue {
		greeting = ", " + name
	}

	flag := models.SlotUserInfoStart
	if topic == models.TopicUserPref {
		flag = models.SlotUserPrefStart
		out.Say(fmt.Sprintf("Alright%s! Let's skip to your preferences. What qualities are you looking for in a partner?", greeting))
	} else {
		out.Say(fmt.Sprintf("Alright%s! Let's skip to your interests. Tell me about yourself.", greeting))
	}

	out.Set(models.SlotCurrentSection, topic)
	out.Set(flag, true)
	out.Set(models.SlotStage, int(models.StageFreeText))
	for _, p := range placeholderSlots {
		if !in.Slots.IsSet(p.key) {
			out.Set(p.key, p.value)
		}
	}
	slog.Info("flow.SwitchSection: jumped to topic", "conversationID", in.ConversationID, "topic", topic)
	return out
}

// DetermineSection derives the section label from the slots. The
// current_section slot and the stage-start flags win over the stage.
func DetermineSection(slots models.Slots) models.Section {
	switch slots.String(models.SlotCurrentSection) {
	case models.TopicUserInfo:
		return models.SectionUserInfo
	case models.TopicUserPref:
		return models.SectionUserPreferences
	}
	switch {
	case slots.Bool(models.SlotUserInfoStart):
		return models.SectionUserInfo
	case slots.Bool(models.SlotUserPrefStart):
		return models.SectionUserPreferences
	}
	stage := slots.Stage()
	switch {
	case stage.Collecting():
		return models.SectionPersonalData
	case stage >= models.StageFreeText:
		return models.SectionUserInfo
	}
	return models.SectionGreeting
}

// DetermineNextTopic clears the topic transition flag.
func DetermineNextTopic(context.Context, models.TurnInput) (models.TurnOutput, error) {
	var out models.TurnOutput
	out.Set(models.SlotTopicTransition, false)
	return out, nil
}

// Intent categories the classifier prompt offers.
const (
	IntentSkipToPreferences = 1
	IntentMoreInformation   = 2
	IntentEndConversation   = 3
	IntentQuestion          = 4
	IntentOther             = 5
)

const (
	intentMaxTokens   = 100
	intentTemperature = 0.2
)

const intentSystemPrompt = "You are a helpful assistant that analyzes user messages to determine their intent. " +
	"Your task is to analyze the provided user message and determine what the user wants. " +
	"Respond with a brief classification of the user's intent."

const intentUserPrompt = `User message: %q

Analyze the user's intent and respond with one of these categories:
1. Wants to skip to user preferences section
2. Wants to provide more information
3. Wants to end the conversation
4. Asking a question
5. Other/unclear

Just provide the category number and a brief explanation.`

var intentCategoryRe = regexp.MustCompile(`\b([1-5])\b`)

// IntentClassifier asks the language model which of the fixed categories the
// latest message falls in and acts on skip and end requests.
type IntentClassifier struct {
	llm genai.Generator
}

// NewIntentClassifier creates the classifier.
func NewIntentClassifier(llm genai.Generator) *IntentClassifier {
	return &IntentClassifier{llm: llm}
}

// Handle implements Handler.
func (c *IntentClassifier) Handle(ctx context.Context, in models.TurnInput) (models.TurnOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return models.TurnOutput{}, nil
	}
	reply, err := genai.Call(ctx, c.llm, "intent", intentSystemPrompt, fmt.Sprintf(intentUserPrompt, in.Text), intentMaxTokens, intentTemperature)
	if err != nil {
		slog.Warn("IntentClassifier.Handle: classification unavailable", "conversationID", in.ConversationID, "error", err)
		return models.TurnOutput{}, nil
	}
	category := ParseIntentCategory(reply)
	lower := strings.ToLower(reply)
	slog.Debug("IntentClassifier.Handle: classified", "conversationID", in.ConversationID, "category", category)

	switch {
	case category == IntentSkipToPreferences && (strings.Contains(lower, "skip") || strings.Contains(lower, "preference")):
		return switchSection(in, models.TopicUserPref), nil
	case category == IntentEndConversation && strings.Contains(lower, "end"):
		var out models.TurnOutput
		out.Set(models.SlotConversationEnded, true)
		return out, nil
	}
	return models.TurnOutput{}, nil
}

// ParseIntentCategory returns the first standalone category number in the
// reply, or IntentOther.
func ParseIntentCategory(reply string) int {
	m := intentCategoryRe.FindStringSubmatch(reply)
	if m == nil {
		return IntentOther
	}
	return int(m[1][0] - '0')
}
