package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosebeck482/hapa-chat/internal/models"
	"github.com/rosebeck482/hapa-chat/internal/testutil"
)

var fixedNow = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestPipeline(llm *testutil.ScriptedLLM) *Pipeline {
	return NewPipeline(llm, WithClock(func() time.Time { return fixedNow }))
}

func TestExtract_EntityFirst(t *testing.T) {
	llm := testutil.NewScriptedLLM()
	p := newTestPipeline(llm)
	ctx := context.Background()

	res := p.Extract(ctx, models.SlotName, "whatever", []models.Entity{{Type: "name", Value: "josé garcía"}})
	assert.Equal(t, Resolved, res.Outcome)
	assert.Equal(t, SourceEntity, res.Source)
	assert.Equal(t, "José García", res.Value)

	res = p.Extract(ctx, models.SlotAge, "I am twenty eight", []models.Entity{{Type: "age", Value: float64(28)}})
	assert.Equal(t, Resolved, res.Outcome)
	assert.Equal(t, 28, res.Value)

	assert.Empty(t, llm.Calls(), "entity path must not call the model")
}

func TestExtract_PatternBeforeSkip(t *testing.T) {
	p := newTestPipeline(testutil.NewScriptedLLM())
	res := p.Extract(context.Background(), models.SlotHeight, "178", nil)
	assert.Equal(t, Resolved, res.Outcome)
	assert.Equal(t, SourcePattern, res.Source)
	assert.Equal(t, "178cm", res.Value)
}

func TestExtract_SkipAtEveryField(t *testing.T) {
	llm := testutil.NewScriptedLLM()
	p := newTestPipeline(llm)
	for _, field := range models.ProfileSlots {
		for _, phrase := range []string{"skip", "pass", "not telling"} {
			res := p.Extract(context.Background(), field, phrase, nil)
			assert.Equal(t, Skipped, res.Outcome, "%s/%s", field, phrase)
			assert.Equal(t, models.SkippedValue, res.Value)
			assert.Equal(t, field, res.Field)
		}
	}
	assert.Empty(t, llm.Calls())
}

func TestExtract_ModelFallbackRevalidated(t *testing.T) {
	llm := testutil.NewScriptedLLM("Twenty-eight is my guess: 28")
	p := newTestPipeline(llm)

	res := p.Extract(context.Background(), models.SlotAge, "twenty eight years young", nil)
	require.Equal(t, Resolved, res.Outcome)
	assert.Equal(t, SourceLLM, res.Source)
	assert.Equal(t, 28, res.Value)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "twenty eight years young")
	assert.Equal(t, 10, calls[0].MaxTokens)
}

func TestExtract_ModelRefusal(t *testing.T) {
	p := newTestPipeline(testutil.NewScriptedLLM("None"))
	res := p.Extract(context.Background(), models.SlotGender, "hmm what do you mean", nil)
	assert.Equal(t, Unresolved, res.Outcome)
}

func TestExtract_ModelInvalidReply(t *testing.T) {
	p := newTestPipeline(testutil.NewScriptedLLM("tall-ish"))
	res := p.Extract(context.Background(), models.SlotHeight, "pretty tall honestly", nil)
	assert.Equal(t, Unresolved, res.Outcome)
}

func TestExtract_ModelUnavailable(t *testing.T) {
	p := newTestPipeline(testutil.UnavailableLLM())
	res := p.Extract(context.Background(), models.SlotName, "uh what was the question again?", nil)
	assert.Equal(t, Unresolved, res.Outcome)
	assert.Equal(t, SourceNone, res.Source)
}

func TestExtract_NilGenerator(t *testing.T) {
	p := NewPipeline(nil)
	res := p.Extract(context.Background(), models.SlotGender, "what?", nil)
	assert.Equal(t, Unresolved, res.Outcome)
}

func TestExtract_AgePreferenceRedirectsToHeight(t *testing.T) {
	p := newTestPipeline(testutil.NewScriptedLLM())
	res := p.Extract(context.Background(), models.SlotAgePreference, "180", nil)
	assert.Equal(t, Resolved, res.Outcome)
	assert.True(t, res.Redirected(models.SlotAgePreference))
	assert.Equal(t, models.SlotHeight, res.Field)
	assert.Equal(t, "180cm", res.Value)
}

func TestExtract_UnknownField(t *testing.T) {
	p := newTestPipeline(testutil.NewScriptedLLM())
	res := p.Extract(context.Background(), "shoe_size", "42", nil)
	assert.Equal(t, Unresolved, res.Outcome)
}

func TestDeriveDOB(t *testing.T) {
	llm := testutil.NewScriptedLLM("1997-03-15")
	p := newTestPipeline(llm)

	dob, err := p.DeriveDOB(context.Background(), 28)
	require.NoError(t, err)
	assert.Equal(t, "1997-03-15", dob)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "Today is March 15, 2025")
	assert.Contains(t, calls[0].User, "28 years old")
}

func TestDeriveDOB_Failures(t *testing.T) {
	ctx := context.Background()

	_, err := newTestPipeline(testutil.NewScriptedLLM("sometime in 1997")).DeriveDOB(ctx, 28)
	assert.ErrorIs(t, err, ErrInvalidDOB)

	_, err = newTestPipeline(testutil.NewScriptedLLM("1997-02-30")).DeriveDOB(ctx, 28)
	assert.ErrorIs(t, err, ErrInvalidDOB)

	_, err = newTestPipeline(testutil.UnavailableLLM()).DeriveDOB(ctx, 28)
	assert.Error(t, err)

	_, err = newTestPipeline(testutil.NewScriptedLLM("1997-03-15")).DeriveDOB(ctx, 0)
	assert.True(t, errors.Is(err, ErrInvalidDOB))
}

func TestParseDOB(t *testing.T) {
	dob, err := ParseDOB("Their date of birth is 1990-01-31.", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "1990-01-31", dob)

	_, err = ParseDOB("2030-01-01", fixedNow)
	assert.ErrorIs(t, err, ErrInvalidDOB)
}

func TestParsePrompts(t *testing.T) {
	p := DefaultPrompts()
	for _, field := range models.ProfileSlots {
		prompt, ok := p.Fields[field]
		require.True(t, ok, field)
		assert.NotEmpty(t, prompt.System)
		assert.Positive(t, prompt.MaxTokens)
	}

	_, err := ParsePrompts([]byte("fields: {}\n"))
	assert.Error(t, err, "dob prompt is required")

	_, err = ParsePrompts([]byte("dob:\n  system: s\n  user: \"{{.Broken\"\n"))
	assert.Error(t, err)
}
