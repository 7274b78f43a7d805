package extract

import (
	"regexp"
	"strings"

	"github.com/rosebeck482/hapa-chat/internal/util"
)

// SkipPhrases are matched anywhere in the folded, lowercased utterance.
var SkipPhrases = []string{
	"don't want to", "dont want to", "don't tell", "dont tell",
	"not telling", "rather not", "prefer not",
}

// Single-word skip commands need word boundaries so "passionate" or
// "nextdoor" do not count.
var skipWordRe = regexp.MustCompile(`\b(?:skip|skipping|pass|passing|next)\b`)

// DetectSkip reports whether the user declined to answer.
func DetectSkip(text string) bool {
	norm := util.Normalize(text)
	if norm == "" {
		return false
	}
	for _, phrase := range SkipPhrases {
		if strings.Contains(norm, phrase) {
			return true
		}
	}
	return skipWordRe.MatchString(norm)
}
