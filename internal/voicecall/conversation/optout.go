package conversation

import "strings"

// OptOutDetector decides whether an utterance is a request to stop being
// contacted. Kept behind an interface so the phrase list can be replaced by a
// classifier later.
type OptOutDetector interface {
	IsOptOut(text string) bool
}

// defaultOptOutPhrases are matched case-insensitively as substrings.
var defaultOptOutPhrases = []string{
	"do not call",
	"don't call",
	"stop calling",
	"remove me from your list",
	"take me off your list",
	"not interested, stop",
	"unsubscribe",
	"do not contact",
}

// PhraseDetector matches a fixed list of opt-out phrases.
type PhraseDetector struct {
	phrases []string
}

// NewPhraseDetector creates a detector over the given phrases, or the default
// list when none are provided.
func NewPhraseDetector(phrases ...string) *PhraseDetector {
	if len(phrases) == 0 {
		phrases = defaultOptOutPhrases
	}
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return &PhraseDetector{phrases: lowered}
}

func (d *PhraseDetector) IsOptOut(text string) bool {
	lowered := strings.ToLower(text)
	for _, p := range d.phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
