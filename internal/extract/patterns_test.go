package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rosebeck482/hapa-chat/internal/models"
)

func TestMatchName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"John", "John", true},
		{"josé garcía", "José García", true},
		{"my name is sarah", "Sarah", true},
		{"Hi, I'm Priya!", "Priya", true},
		{"call me Mary Jane", "Mary Jane", true},
		{"i'm good thanks", "", false},
		{"hello", "", false},
		{"skip", "", false},
		{"I'm 28 and loving it", "", false},
		{"I would rather not say it right now", "", false},
		{"I'm skipping this one", "", false},
		{"I'm passing on that", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, ok := MatchName(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, m.Value)
				assert.Equal(t, models.SlotName, m.Field)
			}
		})
	}
}

func TestValidateNameReply(t *testing.T) {
	m, ok := ValidateNameReply(" \"alex\" ")
	assert.True(t, ok)
	assert.Equal(t, "Alex", m.Value)

	for _, reply := range []string{"None", "no name", "", "The name is Alex", "N/A"} {
		_, ok := ValidateNameReply(reply)
		assert.False(t, ok, reply)
	}
}

func TestMatchAge(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"I'm 28 and loving it", 28, true},
		{"28", 28, true},
		{"turning 101 soon but 45 now", 45, true},
		{"I am 17", 0, false},
		{"5'10\"", 0, false},
		{"178cm", 0, false},
		{"born in 1990, I'm 34", 34, true},
		{"no idea", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, ok := MatchAge(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, m.Value)
			}
		})
	}
}

func TestMatchGender(t *testing.T) {
	tests := map[string]string{
		"I'm a woman":           GenderFemale,
		"female":                GenderFemale,
		"yes I'm a girl":        GenderFemale,
		"I'm a guy":             GenderMale,
		"M":                     GenderMale,
		"non-binary":            GenderNonBinary,
		"I use they/them":       GenderNonBinary,
		"I’m a man, he/him pls": GenderMale,
	}
	for in, want := range tests {
		m, ok := MatchGender(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, m.Value, in)
	}

	_, ok := MatchGender("I'm not sure how to answer")
	assert.False(t, ok, "i'm must not read as m")

	for _, in := range []string{"not telling, he", "I don't want to tell them", "I'd rather not say, her call"} {
		_, ok := MatchGender(in)
		assert.False(t, ok, "pronouns in a refusal: %s", in)
	}
	m, ok := MatchGender("I'd rather not say much, but I'm a woman")
	assert.True(t, ok)
	assert.Equal(t, GenderFemale, m.Value)
}

func TestMatchGenderPreference(t *testing.T) {
	tests := map[string]string{
		"women":                                 GenderFemale,
		"I like guys":                           GenderMale,
		"enby folks":                            GenderNonBinary,
		"anyone really":                         GenderAny,
		"both men and women":                    GenderAny,
		"I'm a guy looking for women":           GenderFemale,
		"I'm a woman and I like men":            GenderMale,
		"as a woman I'm into women":             GenderFemale,
		"I'm a guy, women please":               GenderFemale,
		"I'm a man interested in men and women": GenderAny,
		"I like her":                            GenderFemale,
	}
	for in, want := range tests {
		m, ok := MatchGenderPreference(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, m.Value, in)
		assert.Equal(t, models.SlotGenderPreference, m.Field)
	}

	_, ok := MatchGenderPreference("I don't want to say")
	assert.False(t, ok)
	_, ok = MatchGenderPreference("I don't want to tell them")
	assert.False(t, ok)
}

func TestMatchAgePreference(t *testing.T) {
	tests := []struct {
		in    string
		field string
		want  string
	}{
		{"25-35", models.SlotAgePreference, "25-35"},
		{"between 25 and 35", models.SlotAgePreference, "25-35"},
		{"35 to 25", models.SlotAgePreference, "25-35"},
		{"someone in their 30s", models.SlotAgePreference, "30-39"},
		{"maybe 28 or 40", models.SlotAgePreference, "28-40"},
		{"30", models.SlotAgePreference, "30"},
		{"175", models.SlotHeight, "175cm"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, ok := MatchAgePreference(tt.in)
			assert.True(t, ok)
			assert.Equal(t, tt.field, m.Field)
			assert.Equal(t, tt.want, m.Value)
		})
	}

	_, ok := MatchAgePreference("no preference")
	assert.False(t, ok)
	_, ok = MatchAgePreference("5")
	assert.False(t, ok)
	_, ok = MatchAgePreference("I'm 5 foot 10")
	assert.False(t, ok)
	_, ok = MatchAgePreference("5-10")
	assert.False(t, ok)

	m, ok := MatchAgePreference("around 30 give or take 5 years")
	assert.True(t, ok)
	assert.Equal(t, "30", m.Value)
}

func TestValidateAgePreferenceReply(t *testing.T) {
	m, ok := ValidateAgePreferenceReply("'30-25'")
	assert.True(t, ok)
	assert.Equal(t, "25-30", m.Value)

	_, ok = ValidateAgePreferenceReply("None")
	assert.False(t, ok)
	_, ok = ValidateAgePreferenceReply("around thirty")
	assert.False(t, ok)
}

func TestMatchHeight(t *testing.T) {
	tests := map[string]string{
		"178cm":                "178cm",
		"178 cm":               "178cm",
		"5'10\"":               "5'10\"",
		"5′10″":                "5'10\"",
		"5 ft 10 in":           "5'10\"",
		"5 foot 2":             "5'2\"",
		"6 feet":               "6'0\"",
		"1.78m":                "178cm",
		"70 inches":            "5'10\"",
		"178":                  "178cm",
		"70":                   "5'10\"",
		"6":                    "6'0\"",
		"about 165.4 cm":       "165cm",
		"I'm 28 and about 180": "180cm",
		"28, and 70 tall":      "5'10\"",
	}
	for in, want := range tests {
		m, ok := MatchHeight(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, m.Value, in)
		assert.Equal(t, models.SlotHeight, m.Field, in)
	}

	for _, in := range []string{"tall", "100", "28"} {
		_, ok := MatchHeight(in)
		assert.False(t, ok, in)
	}
}

func TestInchesToFeet(t *testing.T) {
	assert.Equal(t, "5'10\"", InchesToFeet(70))
	assert.Equal(t, "6'0\"", InchesToFeet(72))
	assert.Equal(t, "4'0\"", InchesToFeet(48))
}

func TestDetectSkip(t *testing.T) {
	for _, in := range []string{"skip", "Pass", "not telling", "I don’t want to say", "I'd rather not", "next please", "dont tell"} {
		assert.True(t, DetectSkip(in), in)
	}
	for _, in := range []string{"I'm passionate about food", "my neighbor nextdoor", "", "28"} {
		assert.False(t, DetectSkip(in), in)
	}
}
