package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rosebeck482/hapa-chat/internal/extract"
	"github.com/rosebeck482/hapa-chat/internal/models"
	"github.com/rosebeck482/hapa-chat/internal/util"
)

// Response templates owned by the dialogue engine's domain.
const (
	TemplateAskAge              = "utter_ask_age"
	TemplateAskGender           = "utter_ask_gender"
	TemplateAskGenderPreference = "utter_ask_gender_preference"
	TemplateAskAgePreference    = "utter_ask_age_preference"
	TemplateAskHeight           = "utter_ask_height"
	TemplateAskInterests        = "utter_ask_interests"
)

// fieldSpec is the per-field wording and position in the sequence.
type fieldSpec struct {
	action string
	field  string
	stage  models.Stage
	label  string
	// next is the template asking for the following field.
	next     string
	ack      func(name, value string) string
	reprompt func(name string) string
}

var fieldSpecs = []fieldSpec{
	{
		action: ActionCollectName, field: models.SlotName, stage: models.StageName, label: "name",
		next: TemplateAskAge,
		ack: func(_, value string) string {
			return fmt.Sprintf("Thank you for providing your name %s!", value)
		},
		reprompt: func(string) string {
			return "I didn't catch your name. Could you tell me what to call you?"
		},
	},
	{
		action: ActionCollectAge, field: models.SlotAge, stage: models.StageAge, label: "age",
		next: TemplateAskGender,
		ack: func(name, value string) string {
			return fmt.Sprintf("Thanks for sharing that you're %s, %s!", value, name)
		},
		reprompt: func(name string) string {
			return fmt.Sprintf("I didn't catch your age, %s. Could you tell me how old you are?", name)
		},
	},
	{
		action: ActionCollectGender, field: models.SlotGender, stage: models.StageGender, label: "gender",
		next: TemplateAskGenderPreference,
		ack: func(name, value string) string {
			return fmt.Sprintf("Thanks for sharing that you identify as %s, %s!", value, name)
		},
		reprompt: func(name string) string {
			return fmt.Sprintf("I didn't catch your gender, %s. Could you please tell me if you identify as male, female, or non-binary?", name)
		},
	},
	{
		action: ActionCollectGenderPreference, field: models.SlotGenderPreference, stage: models.StageGenderPreference, label: "gender preference",
		next: TemplateAskAgePreference,
		ack: func(name, value string) string {
			if value == extract.GenderAny {
				return fmt.Sprintf("Thanks for sharing that you're open to anyone, %s!", name)
			}
			return fmt.Sprintf("Thanks for sharing that you're interested in %ss, %s!", value, name)
		},
		reprompt: func(name string) string {
			return fmt.Sprintf("I didn't catch your gender preference, %s. Could you tell me if you're interested in males, females, non-binary individuals, or anyone?", name)
		},
	},
	{
		action: ActionCollectAgePreference, field: models.SlotAgePreference, stage: models.StageAgePreference, label: "age preference",
		next: TemplateAskHeight,
		ack: func(name, _ string) string {
			return fmt.Sprintf("Thanks for sharing your age preference, %s!", name)
		},
		reprompt: func(name string) string {
			return fmt.Sprintf("I didn't catch your age preference, %s. Could you please tell me what age range you're looking for in a partner? For example, '25-35' or '30s'.", name)
		},
	},
	{
		action: ActionCollectHeight, field: models.SlotHeight, stage: models.StageHeight, label: "height",
		next: TemplateAskInterests,
		ack: func(name, value string) string {
			return fmt.Sprintf("Thanks for sharing that you're %s tall, %s!", value, name)
		},
		reprompt: func(name string) string {
			return fmt.Sprintf("I didn't catch your height, %s. Could you tell me your height in feet/inches (like 5'10\") or centimeters (like 178cm)?", name)
		},
	},
}

func specForField(field string) (fieldSpec, bool) {
	for _, s := range fieldSpecs {
		if s.field == field {
			return s, true
		}
	}
	return fieldSpec{}, false
}

// FieldHandler collects one profile field. Once the field holds a value or
// the skip sentinel it only restates it and advances.
type FieldHandler struct {
	spec      fieldSpec
	extractor *extract.Pipeline
}

// NewFieldHandlers returns the six field handlers keyed by stage.
func NewFieldHandlers(extractor *extract.Pipeline) map[models.Stage]*FieldHandler {
	out := make(map[models.Stage]*FieldHandler, len(fieldSpecs))
	for _, s := range fieldSpecs {
		out[s.stage] = &FieldHandler{spec: s, extractor: extractor}
	}
	return out
}

// Field returns the slot this handler collects.
func (h *FieldHandler) Field() string { return h.spec.field }

// Handle implements Handler.
func (h *FieldHandler) Handle(ctx context.Context, in models.TurnInput) (models.TurnOutput, error) {
	out, _ := h.collect(ctx, in)
	return out, nil
}

// nextStage is one past the current stage slot, or one past the handler's
// own stage when the slot is absent. It never passes StageFreeText.
func (h *FieldHandler) nextStage(in models.TurnInput) int {
	current := in.Slots.Stage()
	if current == models.StageNone {
		current = h.spec.stage
	}
	return int(min(current.Next(), models.StageFreeText))
}

// collect runs the field and reports the extraction outcome. An already set
// field reports Resolved.
func (h *FieldHandler) collect(ctx context.Context, in models.TurnInput) (models.TurnOutput, extract.Outcome) {
	var out models.TurnOutput
	field := h.spec.field
	name := util.NameOrDefault(in.Slots.String(models.SlotName))

	if in.Slots.IsSet(field) {
		current := in.Slots.String(field)
		slog.Debug("FieldHandler.collect: already set", "conversationID", in.ConversationID, "field", field, "value", current)
		// The topic shortcut stores age 0 as its placeholder.
		if current == models.SkippedValue || (field == models.SlotAge && current == "0") {
			out.Say(fmt.Sprintf("We'll leave your %s out for now, %s.", h.spec.label, name))
		} else {
			out.Say(h.spec.ack(name, current))
		}
		if field == models.SlotAge && !in.Slots.IsSet(models.SlotDOB) {
			if age, ok := in.Slots.Int(models.SlotAge); ok && age > 0 {
				h.attachDOB(ctx, in, age, &out)
			}
		}
		out.Utter(h.spec.next)
		out.Set(models.SlotStage, h.nextStage(in))
		return out, extract.Resolved
	}

	res := h.extractor.Extract(ctx, field, in.Text, in.Entities)
	switch res.Outcome {
	case extract.Resolved:
		value := fmt.Sprint(res.Value)
		if res.Redirected(field) {
			slog.Info("FieldHandler.collect: value belongs to another field", "conversationID", in.ConversationID,
				"field", field, "resolvedField", res.Field, "value", value)
			target, ok := specForField(res.Field)
			if !ok {
				break
			}
			out.Say(target.ack(name, value))
			out.Utter(target.next)
			out.Set(res.Field, res.Value)
			out.Set(models.SlotStage, h.nextStage(in))
			return out, extract.Resolved
		}
		if field == models.SlotName {
			name = value
		}
		slog.Info("FieldHandler.collect: field resolved", "conversationID", in.ConversationID, "field", field, "source", res.Source)
		out.Say(h.spec.ack(name, value))
		out.Set(field, res.Value)
		out.Set(models.SlotStage, h.nextStage(in))
		if age, ok := res.Value.(int); ok && field == models.SlotAge {
			h.attachDOB(ctx, in, age, &out)
		}
		out.Utter(h.spec.next)
		return out, extract.Resolved

	case extract.Skipped:
		slog.Info("FieldHandler.collect: field skipped", "conversationID", in.ConversationID, "field", field)
		out.Say(fmt.Sprintf("No problem, %s. Let's skip the %s question.", name, h.spec.label))
		out.Utter(h.spec.next)
		out.Set(field, models.SkippedValue)
		out.Set(models.SlotStage, h.nextStage(in))
		return out, extract.Skipped
	}

	slog.Debug("FieldHandler.collect: unresolved, re-prompting", "conversationID", in.ConversationID, "field", field)
	out.Say(h.spec.reprompt(name))
	return out, extract.Unresolved
}

// attachDOB adds the dob slot when the model can derive it. Failure only
// omits the slot.
func (h *FieldHandler) attachDOB(ctx context.Context, in models.TurnInput, age int, out *models.TurnOutput) {
	dob, err := h.extractor.DeriveDOB(ctx, age)
	if err != nil {
		slog.Debug("FieldHandler.attachDOB: no date of birth derived", "conversationID", in.ConversationID, "age", age, "error", err)
		return
	}
	out.Set(models.SlotDOB, dob)
}
