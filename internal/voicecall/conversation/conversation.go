package conversation

import "time"

// Role identifies the speaker of a turn.
type Role string

const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// Turn is one utterance in the transcript. Turns are immutable once appended;
// Seq is monotonic from 1 with no gaps.
type Turn struct {
	Seq        int      `json:"seq"`
	Role       Role     `json:"role"`
	Text       string   `json:"text"`
	AudioRef   string   `json:"audio_ref,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"` // user turns only
}

// Summary is the structured outcome of a conversation.
type Summary struct {
	Text      string `json:"text"`
	NextSteps string `json:"next_steps"`
	Sentiment string `json:"sentiment"` // positive, neutral, negative
}

// Result is the aggregated output of one orchestrated call session.
type Result struct {
	Turns               []Turn
	Summary             Summary
	Duration            time.Duration
	ConfidenceScores    []float64
	FirstAudioLatencyMs *int64
	OptOutDetected      bool
}

// AgentTurnCount returns the number of agent turns in the transcript.
func (r *Result) AgentTurnCount() int {
	n := 0
	for _, t := range r.Turns {
		if t.Role == RoleAgent {
			n++
		}
	}
	return n
}

// LeadFacts is the context handed to the orchestrator about the homeowner
// being called.
type LeadFacts struct {
	Name     string
	Address  string
	RoofAge  int
	Priority string
}
