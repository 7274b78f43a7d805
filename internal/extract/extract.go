// Package extract turns a free-text utterance into a normalized profile
// field value. Every field runs the same chain: structured entity, then
// deterministic patterns, then skip detection, then one language-model call
// whose reply is re-validated.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rosebeck482/hapa-chat/internal/genai"
	"github.com/rosebeck482/hapa-chat/internal/metrics"
	"github.com/rosebeck482/hapa-chat/internal/models"
	"github.com/rosebeck482/hapa-chat/internal/util"
)

// Outcome is the result class of one extraction attempt.
type Outcome int

const (
	Unresolved Outcome = iota
	Resolved
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Skipped:
		return "skipped"
	default:
		return "unresolved"
	}
}

// Source records which step of the chain produced a result.
type Source string

const (
	SourceNone    Source = "none"
	SourceEntity  Source = "entity"
	SourcePattern Source = "pattern"
	SourceSkip    Source = "skip"
	SourceLLM     Source = "llm"
)

// Result is the outcome of Extract. Field is the slot the value belongs to;
// it only differs from the requested field for range-redirected numbers.
type Result struct {
	Outcome Outcome
	Field   string
	Value   any
	Source  Source
}

// Redirected reports whether the value belongs to another field.
func (r Result) Redirected(requested string) bool {
	return r.Outcome == Resolved && r.Field != requested
}

// Descriptor parameterizes the chain for one field.
type Descriptor struct {
	Field     string
	EntityKey string
	// Entity normalizes a structured entity value; nil means use it verbatim.
	Entity func(v any) (any, bool)
	Match  Matcher
	// Validate checks a language model reply; nil means reuse Match and
	// reject redirects.
	Validate Matcher
}

// DefaultDescriptors returns the six profile field descriptors.
func DefaultDescriptors() map[string]Descriptor {
	return map[string]Descriptor{
		models.SlotName: {
			Field: models.SlotName, EntityKey: "name",
			Entity:   nameEntity,
			Match:    MatchName,
			Validate: ValidateNameReply,
		},
		models.SlotAge: {
			Field: models.SlotAge, EntityKey: "age",
			Entity: ageEntity,
			Match:  MatchAge,
		},
		models.SlotGender: {
			Field: models.SlotGender, EntityKey: "gender",
			Entity: entityVia(MatchGender),
			Match:  MatchGender,
		},
		models.SlotGenderPreference: {
			Field: models.SlotGenderPreference, EntityKey: "gender_preference",
			Entity: entityVia(MatchGenderPreference),
			Match:  MatchGenderPreference,
		},
		models.SlotAgePreference: {
			Field: models.SlotAgePreference, EntityKey: "age_preference",
			Match:    MatchAgePreference,
			Validate: ValidateAgePreferenceReply,
		},
		models.SlotHeight: {
			Field: models.SlotHeight, EntityKey: "height",
			Entity: entityVia(MatchHeight),
			Match:  MatchHeight,
		},
	}
}

func nameEntity(v any) (any, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, false
	}
	return util.CapitalizeWords(s), true
}

func ageEntity(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return n, n > 0
	case float64:
		if n > 0 && n == math.Trunc(n) {
			return int(n), true
		}
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil && i > 0 {
			return i, true
		}
	}
	return nil, false
}

// entityVia normalizes an entity by running the field's own matcher on its
// text, so "Woman" or "178 cm" tagged entities land on canonical values.
func entityVia(match Matcher) func(any) (any, bool) {
	return func(v any) (any, bool) {
		m, ok := match(fmt.Sprint(v))
		if !ok {
			return nil, false
		}
		return m.Value, true
	}
}

// Pipeline runs the extraction chain. It holds no per-conversation state.
type Pipeline struct {
	llm         genai.Generator
	prompts     *Prompts
	descriptors map[string]Descriptor
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPrompts replaces the embedded prompt set.
func WithPrompts(p *Prompts) Option {
	return func(pl *Pipeline) { pl.prompts = p }
}

// WithClock sets the clock used for DOB derivation.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// NewPipeline builds a pipeline; llm may be nil, in which case the model
// step always yields Unresolved.
func NewPipeline(llm genai.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		llm:         llm,
		descriptors: DefaultDescriptors(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.prompts == nil {
		p.prompts = DefaultPrompts()
	}
	slog.Debug("extract.NewPipeline: pipeline ready", "fields", sortedKeys(p.descriptors))
	return p
}

// Extract resolves field from the utterance and entities.
func (p *Pipeline) Extract(ctx context.Context, field, text string, entities []models.Entity) Result {
	d, ok := p.descriptors[field]
	if !ok {
		slog.Error("Pipeline.Extract: unknown field", "field", field)
		return Result{Outcome: Unresolved, Field: field, Source: SourceNone}
	}
	res := p.run(ctx, d, text, entities)
	metrics.ExtractionsTotal.WithLabelValues(field, res.Outcome.String(), string(res.Source)).Inc()
	slog.Debug("Pipeline.Extract: extraction finished", "field", field, "outcome", res.Outcome.String(), "source", res.Source, "resolvedField", res.Field, "value", res.Value)
	return res
}

func (p *Pipeline) run(ctx context.Context, d Descriptor, text string, entities []models.Entity) Result {
	for _, e := range entities {
		if e.Type != d.EntityKey || e.Value == nil {
			continue
		}
		v, ok := e.Value, true
		if d.Entity != nil {
			v, ok = d.Entity(e.Value)
		}
		if ok {
			return Result{Outcome: Resolved, Field: d.Field, Value: v, Source: SourceEntity}
		}
	}

	if m, ok := d.Match(text); ok {
		return Result{Outcome: Resolved, Field: m.Field, Value: m.Value, Source: SourcePattern}
	}

	if DetectSkip(text) {
		return Result{Outcome: Skipped, Field: d.Field, Value: models.SkippedValue, Source: SourceSkip}
	}

	if strings.TrimSpace(text) == "" {
		return Result{Outcome: Unresolved, Field: d.Field, Source: SourceNone}
	}
	if m, ok := p.askModel(ctx, d, text); ok {
		return Result{Outcome: Resolved, Field: m.Field, Value: m.Value, Source: SourceLLM}
	}
	return Result{Outcome: Unresolved, Field: d.Field, Source: SourceNone}
}

func (p *Pipeline) askModel(ctx context.Context, d Descriptor, text string) (Match, bool) {
	prompt, ok := p.prompts.Fields[d.Field]
	if !ok {
		return Match{}, false
	}
	user, err := prompt.Render(struct{ Message string }{Message: text})
	if err != nil {
		slog.Error("Pipeline.askModel: failed to render prompt", "field", d.Field, "error", err)
		return Match{}, false
	}
	reply, err := genai.Call(ctx, p.llm, "extract", prompt.System, user, prompt.MaxTokens, 0)
	if err != nil {
		slog.Debug("Pipeline.askModel: model unavailable", "field", d.Field, "error", err)
		return Match{}, false
	}
	if isRefusal(cleanReply(reply)) {
		return Match{}, false
	}
	validate := d.Validate
	if validate == nil {
		validate = d.Match
	}
	m, ok := validate(cleanReply(reply))
	if !ok || m.Field != d.Field {
		slog.Debug("Pipeline.askModel: reply rejected", "field", d.Field, "reply", util.Truncate(reply, 80))
		return Match{}, false
	}
	return m, true
}

// ErrInvalidDOB is returned when the model reply is not a real YYYY-MM-DD date.
var ErrInvalidDOB = errors.New("invalid date of birth reply")

// DeriveDOB asks the language model for the birth date of someone age years
// old today. Any failure is returned; callers treat it as non-fatal.
func (p *Pipeline) DeriveDOB(ctx context.Context, age int) (string, error) {
	if age <= 0 {
		return "", fmt.Errorf("%w: age %d", ErrInvalidDOB, age)
	}
	user, err := p.prompts.DOB.Render(struct {
		Today string
		Age   int
	}{Today: p.now().Format("January 02, 2006"), Age: age})
	if err != nil {
		return "", err
	}
	reply, err := genai.Call(ctx, p.llm, "dob", p.prompts.DOB.System, user, p.prompts.DOB.MaxTokens, 0)
	if err != nil {
		return "", err
	}
	return ParseDOB(reply, p.now())
}

var dobRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

// ParseDOB extracts the first YYYY-MM-DD in reply and checks that it is a
// real calendar date not after today.
func ParseDOB(reply string, today time.Time) (string, error) {
	s := dobRe.FindString(reply)
	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidDOB, reply)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDOB, err)
	}
	if t.After(today) {
		return "", fmt.Errorf("%w: %s is in the future", ErrInvalidDOB, s)
	}
	return s, nil
}
