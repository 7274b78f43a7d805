package extract

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rosebeck482/hapa-chat/internal/models"
	"github.com/rosebeck482/hapa-chat/internal/util"
)

// Value ranges used for numeric disambiguation.
const (
	MinAge        = 18
	MaxAge        = 100
	MinHeightCM   = 150
	MaxHeightCM   = 220
	MinHeightInch = 48
	MaxHeightInch = 84
	MinHeightFeet = 4
	MaxHeightFeet = 7
)

// Match is a value recognized in an utterance. Field is the slot the value
// belongs to, which differs from the requested field when a number is
// redirected by range.
type Match struct {
	Field string
	Value any
}

// Matcher recognizes a field value in an utterance.
type Matcher func(text string) (Match, bool)

var (
	intRe    = regexp.MustCompile(`\d+`)
	tokenRe  = regexp.MustCompile(`[a-z][a-z'-]*`)
	letterRe = regexp.MustCompile(`^\pL[\pL'-]*$`)
)

func ints(text string) []int {
	var out []int
	for _, s := range intRe.FindAllString(text, -1) {
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func tokens(text string) []string {
	return tokenRe.FindAllString(util.Normalize(text), -1)
}

// --- name ---

var nameIntroRe = regexp.MustCompile(`(?i)\b(?:my name is|my name's|name's|call me|i am|i'm|im|it's|this is)\s+(\pL[\pL'-]*)(?:\s+(\pL[\pL'-]*))?`)

// Words that can follow "i'm" or stand alone without being a name.
var nameStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "but": true, "or": true, "so": true,
	"hi": true, "hello": true, "hey": true, "yo": true, "sup": true, "hiya": true,
	"yes": true, "yeah": true, "yep": true, "no": true, "nope": true, "nah": true,
	"ok": true, "okay": true, "sure": true, "fine": true, "good": true, "great": true,
	"well": true, "thanks": true, "thank": true, "please": true, "maybe": true,
	"not": true, "just": true, "here": true, "back": true, "ready": true, "new": true,
	"happy": true, "sad": true, "tired": true, "doing": true, "looking": true,
	"from": true, "in": true, "at": true, "on": true, "to": true, "with": true,
	"what": true, "why": true, "who": true, "how": true, "skip": true, "pass": true,
	"next": true, "none": true, "nothing": true, "idk": true, "single": true,
	"interested": true, "very": true, "really": true, "also": true, "too": true,
	"male": true, "female": true, "man": true, "woman": true, "guy": true, "girl": true,
	"me": true, "my": true, "you": true, "your": true, "it": true, "that": true,
	"this": true, "good morning": true, "good evening": true,
}

func nameWord(w string) bool {
	lw := strings.ToLower(w)
	return letterRe.MatchString(w) && !nameStopwords[lw] && !skipWordRe.MatchString(lw)
}

// MatchName recognizes "my name is X" style introductions and bare one or
// two word replies.
func MatchName(text string) (Match, bool) {
	clean := strings.TrimSpace(util.FoldQuotes(text))
	if m := nameIntroRe.FindStringSubmatch(clean); m != nil && nameWord(m[1]) {
		name := m[1]
		if m[2] != "" && nameWord(m[2]) && !strings.HasPrefix(strings.ToLower(m[0]), "i") {
			name += " " + m[2]
		}
		return Match{Field: models.SlotName, Value: util.CapitalizeWords(name)}, true
	}

	bare := strings.Trim(clean, ".!?,;: ")
	words := strings.Fields(bare)
	if len(words) == 0 || len(words) > 2 || DetectSkip(bare) || nameStopwords[strings.ToLower(bare)] {
		return Match{}, false
	}
	for _, w := range words {
		if !nameWord(w) {
			return Match{}, false
		}
	}
	return Match{Field: models.SlotName, Value: util.CapitalizeWords(bare)}, true
}

// ValidateNameReply accepts a single name token from the language model.
func ValidateNameReply(reply string) (Match, bool) {
	w := cleanReply(reply)
	w = strings.TrimRight(w, ".!")
	if isRefusal(w) || len([]rune(w)) > 40 || !letterRe.MatchString(w) || nameStopwords[strings.ToLower(w)] {
		return Match{}, false
	}
	return Match{Field: models.SlotName, Value: util.CapitalizeWords(w)}, true
}

// --- age ---

var ageRe = regexp.MustCompile(`(?i)(\d+)\s*(cm|centimet\w*|met(?:er|re)s?|ft|feet|foot|'|"|inch\w*|kg|lbs?|pounds?)?`)

// MatchAge returns the first integer in [18,100] that carries no height or
// weight unit.
func MatchAge(text string) (Match, bool) {
	for _, m := range ageRe.FindAllStringSubmatch(util.FoldQuotes(text), -1) {
		if m[2] != "" {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n >= MinAge && n <= MaxAge {
			return Match{Field: models.SlotAge, Value: n}, true
		}
	}
	return Match{}, false
}

// --- gender ---

const (
	GenderFemale    = "female"
	GenderMale      = "male"
	GenderNonBinary = "non-binary"
	GenderAny       = "any"
)

var genderTokens = []struct {
	value string
	words map[string]bool
}{
	{GenderFemale, set("female", "females", "woman", "women", "girl", "girls", "f", "she", "her", "lady", "ladies", "gal", "gals", "fem", "feminine")},
	{GenderMale, set("male", "males", "man", "men", "boy", "boys", "m", "he", "him", "guy", "guys", "dude", "dudes", "bro", "gentleman", "gentlemen", "masculine")},
	{GenderNonBinary, set("non-binary", "nonbinary", "nb", "enby", "they", "them", "neutral", "other", "genderqueer", "genderfluid", "agender")},
}

var anyGenderTokens = set("any", "all", "both", "everyone", "anybody", "anyone", "either", "whoever", "anything")

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Pronouns name a gender on their own but also show up in refusals such as
// "I don't want to tell them".
var genderPronouns = set("she", "her", "he", "him", "they", "them")

// genderCategories returns the matched categories in priority order.
// Pronouns are ignored when the utterance declines to answer.
func genderCategories(text string, declined bool) (cats []string, anyWord bool) {
	toks := tokens(text)
	for _, g := range genderTokens {
		for _, t := range toks {
			if g.words[t] && !(declined && genderPronouns[t]) {
				cats = append(cats, g.value)
				break
			}
		}
	}
	for _, t := range toks {
		if anyGenderTokens[t] {
			anyWord = true
			break
		}
	}
	return cats, anyWord
}

// MatchGender resolves the user's own gender; female wins over male wins
// over non-binary when several categories appear.
func MatchGender(text string) (Match, bool) {
	cats, _ := genderCategories(text, DetectSkip(text))
	if len(cats) == 0 {
		return Match{}, false
	}
	return Match{Field: models.SlotGender, Value: cats[0]}, true
}

var (
	// preferenceCueRe marks where the wanted gender starts.
	preferenceCueRe = regexp.MustCompile(`\b(?:looking for|interested in|attracted to|into|dating|date|like|prefer|want)\b`)
	// selfDescriptionRe captures the word in "I'm a guy" or "as a woman".
	selfDescriptionRe = regexp.MustCompile(`\b(?:i'm|im|i am|as)\s+(?:an?\s+)?([a-z][a-z-]*)`)
)

// MatchGenderPreference resolves who the user wants to date. The words after
// a cue such as "looking for" win; otherwise self-descriptions are dropped
// before matching. More than one concrete category, or only an
// "any/both/everyone" word, means any.
func MatchGenderPreference(text string) (Match, bool) {
	norm := util.Normalize(text)
	declined := DetectSkip(norm)
	if loc := preferenceCueRe.FindStringIndex(norm); loc != nil {
		if m, ok := genderPreference(norm[loc[1]:], declined); ok {
			return m, true
		}
	}
	return genderPreference(dropSelfDescription(norm), declined)
}

func dropSelfDescription(norm string) string {
	return selfDescriptionRe.ReplaceAllStringFunc(norm, func(s string) string {
		m := selfDescriptionRe.FindStringSubmatch(s)
		for _, g := range genderTokens {
			if g.words[m[1]] {
				return " "
			}
		}
		return s
	})
}

func genderPreference(text string, declined bool) (Match, bool) {
	cats, anyWord := genderCategories(text, declined)
	switch {
	case len(cats) == 1:
		return Match{Field: models.SlotGenderPreference, Value: cats[0]}, true
	case len(cats) > 1, anyWord:
		return Match{Field: models.SlotGenderPreference, Value: GenderAny}, true
	}
	return Match{}, false
}

// --- age preference ---

var (
	ageRangeRe  = regexp.MustCompile(`(?i)(\d{1,3})\s*(?:-|–|—|to|and|through|thru)\s*(\d{1,3})`)
	ageDecadeRe = regexp.MustCompile(`(?i)\b([2-9]0)'?s\b`)
)

func ageRange(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

func plausibleAge(n int) bool { return n >= MinAge && n <= MaxAge }

// MatchAgePreference recognizes ranges ("25-35", "25 to 35"), decades
// ("30s"), two loose integers and single values. Only numbers in the adult
// age range count. A lone number in the centimetre height range is returned
// as a height instead.
func MatchAgePreference(text string) (Match, bool) {
	text = util.FoldQuotes(text)
	if m := ageRangeRe.FindStringSubmatch(text); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		if plausibleAge(a) && plausibleAge(b) {
			return Match{Field: models.SlotAgePreference, Value: ageRange(a, b)}, true
		}
	}
	if m := ageDecadeRe.FindStringSubmatch(text); m != nil {
		d, _ := strconv.Atoi(m[1])
		return Match{Field: models.SlotAgePreference, Value: ageRange(d, d+9)}, true
	}

	nums := ints(text)
	var ages []int
	for _, n := range nums {
		if plausibleAge(n) {
			ages = append(ages, n)
		}
	}
	switch {
	case len(ages) >= 2:
		return Match{Field: models.SlotAgePreference, Value: ageRange(ages[0], ages[1])}, true
	case len(ages) == 1:
		return Match{Field: models.SlotAgePreference, Value: strconv.Itoa(ages[0])}, true
	case len(nums) == 1 && nums[0] >= MinHeightCM && nums[0] <= MaxHeightCM:
		return Match{Field: models.SlotHeight, Value: fmt.Sprintf("%dcm", nums[0])}, true
	}
	return Match{}, false
}

var ageRangeReplyRe = regexp.MustCompile(`^\d{2,3}(-\d{2,3})?$`)

// ValidateAgePreferenceReply accepts "25-35" or "30" from the language model.
func ValidateAgePreferenceReply(reply string) (Match, bool) {
	r := strings.ReplaceAll(cleanReply(reply), " ", "")
	if !ageRangeReplyRe.MatchString(r) {
		return Match{}, false
	}
	if a, b, ok := strings.Cut(r, "-"); ok {
		x, _ := strconv.Atoi(a)
		y, _ := strconv.Atoi(b)
		return Match{Field: models.SlotAgePreference, Value: ageRange(x, y)}, true
	}
	return Match{Field: models.SlotAgePreference, Value: r}, true
}

// --- height ---

var (
	feetInchesRe = regexp.MustCompile(`(?i)\b([3-8])\s*(?:'|ft\.?|feet|foot)\s*(?:-|,|and)?\s*(\d{1,2})\s*(?:"|''|in\b|inch\w*)?`)
	feetOnlyRe   = regexp.MustCompile(`(?i)\b([3-8])\s*(?:'|ft\b|feet\b|foot\b)`)
	cmRe         = regexp.MustCompile(`(?i)(\d{2,3}(?:[.,]\d+)?)\s*(?:cm|centimet(?:er|re)s?)\b`)
	metersRe     = regexp.MustCompile(`(?i)\b([12][.,]\d{1,2})\s*(?:m|met(?:er|re)s?)\b`)
	inchesRe     = regexp.MustCompile(`(?i)\b(\d{2})\s*(?:"|in\b|inch\w*)`)
)

// FeetInches formats a height as F'I".
func FeetInches(feet, inches int) string {
	return fmt.Sprintf("%d'%d\"", feet, inches)
}

// InchesToFeet converts a total inch count to F'I".
func InchesToFeet(total int) string {
	return FeetInches(total/12, total%12)
}

func parseDecimal(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return f, err == nil
}

// MatchHeight normalizes a height to F'I" or Ncm. Explicit units win; a bare
// number is classified by range: 150-220 cm, 48-84 inches, 4-7 feet.
// Numbers outside every range, such as an age, are passed over.
func MatchHeight(text string) (Match, bool) {
	text = util.FoldQuotes(text)
	height := func(v string) (Match, bool) { return Match{Field: models.SlotHeight, Value: v}, true }

	if m := feetInchesRe.FindStringSubmatch(text); m != nil {
		feet, _ := strconv.Atoi(m[1])
		inches, _ := strconv.Atoi(m[2])
		if inches < 12 {
			return height(FeetInches(feet, inches))
		}
	}
	if m := cmRe.FindStringSubmatch(text); m != nil {
		if f, ok := parseDecimal(m[1]); ok {
			return height(fmt.Sprintf("%dcm", int(math.Round(f))))
		}
	}
	if m := metersRe.FindStringSubmatch(text); m != nil {
		if f, ok := parseDecimal(m[1]); ok {
			return height(fmt.Sprintf("%dcm", int(math.Round(f*100))))
		}
	}
	if m := inchesRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= MinHeightInch && n <= MaxHeightInch {
			return height(InchesToFeet(n))
		}
	}
	if m := feetOnlyRe.FindStringSubmatch(text); m != nil {
		feet, _ := strconv.Atoi(m[1])
		return height(FeetInches(feet, 0))
	}

	// Bare numbers: the first centimetre value wins, then inches, then feet.
	nums := ints(text)
	for _, n := range nums {
		if n >= MinHeightCM && n <= MaxHeightCM {
			return height(fmt.Sprintf("%dcm", n))
		}
	}
	for _, n := range nums {
		if n >= MinHeightInch && n <= MaxHeightInch {
			return height(InchesToFeet(n))
		}
	}
	for _, n := range nums {
		if n >= MinHeightFeet && n <= MaxHeightFeet {
			return height(FeetInches(n, 0))
		}
	}
	return Match{}, false
}

// --- language model replies ---

var refusals = set("none", "no name", "n/a", "na", "null", "unknown", "nil", "no", "not provided", "not found")

// cleanReply trims whitespace, code fences and one pair of wrapping quotes,
// leaving a trailing inch mark in 5'10" intact.
func cleanReply(reply string) string {
	r := strings.TrimSpace(strings.Trim(strings.TrimSpace(util.FoldQuotes(reply)), "`"))
	for _, q := range []string{`"`, "'"} {
		if len(r) >= 2 && strings.HasPrefix(r, q) && strings.HasSuffix(r, q) {
			r = strings.TrimSpace(r[1 : len(r)-1])
		}
	}
	return r
}

func isRefusal(reply string) bool {
	r := strings.ToLower(strings.TrimRight(reply, ".!"))
	return r == "" || refusals[r]
}

// sortedKeys is used for deterministic logging of descriptor sets.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
