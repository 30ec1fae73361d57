package providers

import (
	"context"
	"sync"
	"time"

	"outcall-server/internal/voicecall/conversation"
)

// MockRecognizer plays a scripted sequence of recognition results. The script
// starts on the first submitted audio chunk; the result channel is closed once
// the script is exhausted or Close is called.
type MockRecognizer struct {
	results   chan RecognitionResult
	script    []RecognitionResult
	SubmitErr error

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

func NewMockRecognizer(script ...RecognitionResult) *MockRecognizer {
	return &MockRecognizer{
		results: make(chan RecognitionResult, 16),
		script:  script,
		done:    make(chan struct{}),
	}
}

func (m *MockRecognizer) SubmitAudio(ctx context.Context, chunk []byte) error {
	if m.SubmitErr != nil {
		return m.SubmitErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.started {
		return nil
	}
	m.started = true
	go m.emit()
	return nil
}

// emit plays the script and is the only closer of the results channel once
// started.
func (m *MockRecognizer) emit() {
	defer close(m.results)
	for _, r := range m.script {
		select {
		case m.results <- r:
		case <-m.done:
			return
		}
	}
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	m.mu.Unlock()
}

func (m *MockRecognizer) Results() <-chan RecognitionResult {
	return m.results
}

func (m *MockRecognizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	if !m.started {
		close(m.results)
	}
	return nil
}

// MockResponder returns canned replies in order, repeating the last one when
// the script runs out.
type MockResponder struct {
	Replies      []string
	Summary      conversation.Summary
	GenerateErr  error
	SummarizeErr error

	mu    sync.Mutex
	calls int
}

func NewMockResponder(replies ...string) *MockResponder {
	if len(replies) == 0 {
		replies = []string{"Thanks for your time. Would a morning or afternoon inspection work better?"}
	}
	return &MockResponder{
		Replies: replies,
		Summary: conversation.Summary{
			Text:      "Automated outreach call completed.",
			NextSteps: "Follow up with the homeowner.",
			Sentiment: "neutral",
		},
	}
}

func (m *MockResponder) GenerateReply(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error) {
	if m.GenerateErr != nil {
		return "", m.GenerateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	}
	m.calls++
	return m.Replies[idx], nil
}

func (m *MockResponder) Summarize(ctx context.Context, history []conversation.Turn) (conversation.Summary, error) {
	if m.SummarizeErr != nil {
		return conversation.Summary{}, m.SummarizeErr
	}
	return m.Summary, nil
}

// GenerateCalls reports how many replies were generated.
func (m *MockResponder) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SynthSpan records the wall-clock window of one Synthesize invocation.
type SynthSpan struct {
	Start time.Time
	End   time.Time
}

// MockSynthesizer produces deterministic audio and records invocation spans so
// tests can assert that synthesis is never concurrent.
type MockSynthesizer struct {
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	spans []SynthSpan
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	m.spans = append(m.spans, SynthSpan{Start: start, End: time.Now()})
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return []byte("pcm:" + text), nil
}

// Spans returns a copy of the recorded invocation windows.
func (m *MockSynthesizer) Spans() []SynthSpan {
	m.mu.Lock()
	defer m.mu.Unlock()
	spans := make([]SynthSpan, len(m.spans))
	copy(spans, m.spans)
	return spans
}
