package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rosebeck482/hapa-chat/internal/extract"
	"github.com/rosebeck482/hapa-chat/internal/genai"
	"github.com/rosebeck482/hapa-chat/internal/models"
	"github.com/rosebeck482/hapa-chat/internal/util"
)

const (
	fallbackMaxTokens   = 150
	fallbackTemperature = 0.7
)

const hapaPersona = "You are Hapa, a friendly dating profile assistant with a cat-like personality. " +
	"You help users create their dating profiles by collecting information in a conversational way. " +
	"You use cat puns and playful language. Keep responses brief and engaging."

var stageHints = map[models.Stage]string{
	models.StageName:             " You're currently trying to collect the user's name. If they provide it, acknowledge it and ask for their age next.",
	models.StageAge:              " You're currently trying to collect the user's age. If they provide an age, acknowledge it and ask for their gender next.",
	models.StageGender:           " You're currently trying to collect the user's gender. If they provide their gender, acknowledge it and ask for their gender preference next.",
	models.StageGenderPreference: " You're currently trying to collect the user's gender preference. If they provide their gender preference, acknowledge it and ask for their age preference next.",
	models.StageAgePreference:    " You're currently trying to collect the user's age preference. If they provide an age preference, acknowledge it and ask for their height next.",
	models.StageHeight:           " You're currently trying to collect the user's height. If they provide their height, acknowledge it and ask about their interests next.",
}

// personaPrompt returns the system prompt for the cat persona at stage.
func personaPrompt(stage models.Stage) string {
	if hint, ok := stageHints[stage]; ok {
		return hapaPersona + hint
	}
	return hapaPersona + " You're currently helping the user build their dating profile by learning about their interests and preferences."
}

// Fallback handles utterances the dialogue engine could not map to an
// action. While a field is being collected it retries that field; when the
// field stays unresolved it answers in persona, or re-prompts when the model
// is unavailable.
type Fallback struct {
	fields map[models.Stage]*FieldHandler
	llm    genai.Generator
}

// NewFallback creates the fallback handler over the field handlers.
func NewFallback(fields map[models.Stage]*FieldHandler, llm genai.Generator) *Fallback {
	return &Fallback{fields: fields, llm: llm}
}

// Handle implements Handler.
func (f *Fallback) Handle(ctx context.Context, in models.TurnInput) (models.TurnOutput, error) {
	stage := in.Slots.Stage()
	if stage == models.StageNone {
		stage = models.StageName
	}
	name := util.NameOrDefault(in.Slots.String(models.SlotName))

	if h, ok := f.fields[stage]; ok {
		out, outcome := h.collect(ctx, in)
		if outcome != extract.Unresolved {
			return out, nil
		}
		reply, err := f.persona(ctx, stage, in.Text)
		if err != nil {
			return out, nil
		}
		return models.TurnOutput{Messages: []models.Message{models.Text(reply)}}, nil
	}

	reply, err := f.persona(ctx, stage, in.Text)
	if err != nil {
		slog.Warn("Fallback.Handle: using static reply", "conversationID", in.ConversationID, "stage", int(stage), "error", err)
		reply = fmt.Sprintf("Meow! I'm not quite sure how to respond to that, %s. Let's continue with your profile. What would you like to share next?", name)
	}
	return models.TurnOutput{Messages: []models.Message{models.Text(reply)}}, nil
}

func (f *Fallback) persona(ctx context.Context, stage models.Stage, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: nothing to answer", genai.ErrUnavailable)
	}
	return genai.Call(ctx, f.llm, "fallback", personaPrompt(stage), text, fallbackMaxTokens, fallbackTemperature)
}
