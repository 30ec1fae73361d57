package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"outcall-server/internal/observability"
	"outcall-server/internal/voicecall/conversation"
	"outcall-server/internal/voicecall/providers"
)

func testConfig() Config {
	return Config{
		CallID:       "test-call",
		SystemPrompt: "You are a friendly roofing inspection scheduler.",
		Lead: conversation.LeadFacts{
			Name:     "Pat Doe",
			Address:  "12 Elm St",
			RoofAge:  18,
			Priority: "high",
		},
		MaxTurns: 5,
	}
}

func runOrchestrator(t *testing.T, transport *providers.MemoryTransport, bundle providers.Bundle, cfg Config) (conversation.Result, error) {
	t.Helper()
	o := New(transport, bundle, cfg, nil, observability.NewLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return o.Run(ctx)
}

func TestOrchestrator_SingleExchange(t *testing.T) {
	transport := providers.NewMemoryTransport()
	userText := "Yes, please schedule the inspection."
	recognizer := providers.NewMockRecognizer(providers.RecognitionResult{
		Text:       userText,
		Confidence: 0.92,
		IsFinal:    true,
	})
	bundle := providers.Bundle{
		Recognizer:  recognizer,
		Responder:   providers.NewMockResponder("Hello, this is the inspection team.", "Great, we will be in touch."),
		Synthesizer: providers.NewMockSynthesizer(),
	}

	if err := transport.InjectAudio([]byte{0x01}); err != nil {
		t.Fatalf("InjectAudio() error = %v", err)
	}

	result, err := runOrchestrator(t, transport, bundle, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Turns) < 2 {
		t.Fatalf("got %d turns, want at least 2", len(result.Turns))
	}
	var userTurns []conversation.Turn
	for _, turn := range result.Turns {
		if turn.Role == conversation.RoleUser {
			userTurns = append(userTurns, turn)
		}
	}
	if len(userTurns) != 1 {
		t.Fatalf("got %d user turns, want 1", len(userTurns))
	}
	if userTurns[0].Text != userText {
		t.Errorf("user turn text = %q, want %q", userTurns[0].Text, userText)
	}
	if userTurns[0].Confidence == nil || *userTurns[0].Confidence != 0.92 {
		t.Error("user turn should carry the recognition confidence")
	}
	if len(result.ConfidenceScores) != 1 {
		t.Errorf("got %d confidence scores, want 1", len(result.ConfidenceScores))
	}
	if result.OptOutDetected {
		t.Error("OptOutDetected should be false")
	}
	assertGaplessSeqs(t, result.Turns)
}

func TestOrchestrator_OptOutEndsTranscript(t *testing.T) {
	transport := providers.NewMemoryTransport()
	recognizer := providers.NewMockRecognizer(
		providers.RecognitionResult{Text: "please do not call me again", Confidence: 0.88, IsFinal: true},
		providers.RecognitionResult{Text: "hello?", Confidence: 0.9, IsFinal: true},
	)
	bundle := providers.Bundle{
		Recognizer:  recognizer,
		Responder:   providers.NewMockResponder("Hi, calling about your roof."),
		Synthesizer: providers.NewMockSynthesizer(),
	}

	if err := transport.InjectAudio([]byte{0x01}); err != nil {
		t.Fatalf("InjectAudio() error = %v", err)
	}

	result, err := runOrchestrator(t, transport, bundle, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !result.OptOutDetected {
		t.Fatal("OptOutDetected should be true")
	}
	last := result.Turns[len(result.Turns)-1]
	if last.Role != conversation.RoleUser {
		t.Errorf("last turn role = %s, transcript must end at the opt-out user turn", last.Role)
	}
	if last.Text != "please do not call me again" {
		t.Errorf("last turn text = %q, want the opt-out utterance", last.Text)
	}
	assertGaplessSeqs(t, result.Turns)
}

func TestOrchestrator_SynthesisFailureDegradesToText(t *testing.T) {
	transport := providers.NewMemoryTransport()
	recognizer := providers.NewMockRecognizer(providers.RecognitionResult{
		Text: "tell me more", Confidence: 0.8, IsFinal: true,
	})
	synth := providers.NewMockSynthesizer()
	synth.Err = providers.NewProviderError("tts", "synthesize", errors.New("voice service down"))
	bundle := providers.Bundle{
		Recognizer:  recognizer,
		Responder:   providers.NewMockResponder(),
		Synthesizer: synth,
	}

	if err := transport.InjectAudio([]byte{0x01}); err != nil {
		t.Fatalf("InjectAudio() error = %v", err)
	}

	result, err := runOrchestrator(t, transport, bundle, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v, synthesis failures must not be fatal", err)
	}

	if result.FirstAudioLatencyMs != nil {
		t.Error("FirstAudioLatencyMs should be nil when no audio was ever sent")
	}
	if len(transport.SentFrames()) != 0 {
		t.Error("no frames should reach the transport when synthesis always fails")
	}
	agentTurns := 0
	for _, turn := range result.Turns {
		if turn.Role == conversation.RoleAgent {
			agentTurns++
			if turn.AudioRef != "" {
				t.Error("agent turn should have no audio reference after synthesis failure")
			}
			if turn.Text == "" {
				t.Error("agent turn must keep its text after synthesis failure")
			}
		}
	}
	if agentTurns == 0 {
		t.Error("expected at least the opening agent turn")
	}
}

func TestOrchestrator_ReplyGenerationFailureIsFatal(t *testing.T) {
	transport := providers.NewMemoryTransport()
	recognizer := providers.NewMockRecognizer()
	responder := providers.NewMockResponder()
	responder.GenerateErr = providers.NewProviderError("llm", "generate", errors.New("upstream 500"))
	bundle := providers.Bundle{
		Recognizer:  recognizer,
		Responder:   responder,
		Synthesizer: providers.NewMockSynthesizer(),
	}

	_, err := runOrchestrator(t, transport, bundle, testConfig())
	if err == nil {
		t.Fatal("Run() should propagate a reply generation failure")
	}
	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) {
		t.Errorf("error = %v, want a *providers.ProviderError in the chain", err)
	}
}

func TestOrchestrator_MaxTurnsCapsAgentTurns(t *testing.T) {
	transport := providers.NewMemoryTransport()
	script := []providers.RecognitionResult{
		{Text: "first", Confidence: 0.9, IsFinal: true},
		{Text: "second", Confidence: 0.9, IsFinal: true},
		{Text: "third", Confidence: 0.9, IsFinal: true},
	}
	recognizer := providers.NewMockRecognizer(script...)
	bundle := providers.Bundle{
		Recognizer:  recognizer,
		Responder:   providers.NewMockResponder(),
		Synthesizer: providers.NewMockSynthesizer(),
	}

	cfg := testConfig()
	cfg.MaxTurns = 2

	if err := transport.InjectAudio([]byte{0x01}); err != nil {
		t.Fatalf("InjectAudio() error = %v", err)
	}

	result, err := runOrchestrator(t, transport, bundle, cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := result.AgentTurnCount(); got > cfg.MaxTurns {
		t.Errorf("agent turn count = %d, must not exceed max_turns %d", got, cfg.MaxTurns)
	}
	assertGaplessSeqs(t, result.Turns)
}

func TestOrchestrator_PartialResultsNeverReply(t *testing.T) {
	transport := providers.NewMemoryTransport()
	recognizer := providers.NewMockRecognizer(
		providers.RecognitionResult{Text: "I was", Confidence: 0.5, IsFinal: false},
		providers.RecognitionResult{Text: "I was wondering", Confidence: 0.6, IsFinal: false},
	)
	responder := providers.NewMockResponder()
	bundle := providers.Bundle{
		Recognizer:  recognizer,
		Responder:   responder,
		Synthesizer: providers.NewMockSynthesizer(),
	}

	if err := transport.InjectAudio([]byte{0x01}); err != nil {
		t.Fatalf("InjectAudio() error = %v", err)
	}

	_, err := runOrchestrator(t, transport, bundle, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Only the opening turn should have been generated.
	if calls := responder.GenerateCalls(); calls != 1 {
		t.Errorf("GenerateReply calls = %d, partial results must not trigger replies", calls)
	}
}

func TestOrchestrator_SynthesisIsSerialized(t *testing.T) {
	transport := providers.NewMemoryTransport()
	recognizer := providers.NewMockRecognizer(
		providers.RecognitionResult{Text: "yes", Confidence: 0.9, IsFinal: true},
		providers.RecognitionResult{Text: "sounds good", Confidence: 0.9, IsFinal: true},
	)
	synth := providers.NewMockSynthesizer()
	synth.Delay = 30 * time.Millisecond
	bundle := providers.Bundle{
		Recognizer:  recognizer,
		Responder:   providers.NewMockResponder(),
		Synthesizer: synth,
	}

	if err := transport.InjectAudio([]byte{0x01}); err != nil {
		t.Fatalf("InjectAudio() error = %v", err)
	}

	if _, err := runOrchestrator(t, transport, bundle, testConfig()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	spans := synth.Spans()
	if len(spans) < 2 {
		t.Fatalf("got %d synthesize invocations, want at least 2", len(spans))
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].Start.Before(spans[i-1].End) {
			t.Errorf("synthesize invocation %d overlaps the previous one", i)
		}
	}
}

func TestOrchestrator_ClosedTransportStopsGracefully(t *testing.T) {
	transport := providers.NewMemoryTransport()
	if err := transport.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	bundle := providers.Bundle{
		Recognizer:  providers.NewMockRecognizer(),
		Responder:   providers.NewMockResponder(),
		Synthesizer: providers.NewMockSynthesizer(),
	}

	result, err := runOrchestrator(t, transport, bundle, testConfig())
	if err != nil {
		t.Fatalf("Run() error = %v, transport exhaustion must stop gracefully", err)
	}
	if len(result.Turns) != 1 {
		t.Errorf("got %d turns, want only the opening turn", len(result.Turns))
	}
}

// stallAfterOpeningResponder answers the opening instantly, then blocks every
// later reply until the context ends.
type stallAfterOpeningResponder struct {
	inner *providers.MockResponder

	mu    sync.Mutex
	calls int
}

func (r *stallAfterOpeningResponder) GenerateReply(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first {
		return r.inner.GenerateReply(ctx, systemPrompt, history)
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func (r *stallAfterOpeningResponder) Summarize(ctx context.Context, history []conversation.Turn) (conversation.Summary, error) {
	return r.inner.Summarize(ctx, history)
}

func TestOrchestrator_DeadlineMidReplyStopsGracefully(t *testing.T) {
	transport := providers.NewMemoryTransport()
	recognizer := providers.NewMockRecognizer(providers.RecognitionResult{
		Text:       "Sure, tell me more about the inspection.",
		Confidence: 0.9,
		IsFinal:    true,
	})
	bundle := providers.Bundle{
		Recognizer:  recognizer,
		Responder:   &stallAfterOpeningResponder{inner: providers.NewMockResponder()},
		Synthesizer: providers.NewMockSynthesizer(),
	}

	if err := transport.InjectAudio([]byte{0x01}); err != nil {
		t.Fatalf("InjectAudio() error = %v", err)
	}

	o := New(transport, bundle, testConfig(), nil, observability.NewLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	result, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v, running out the allowed time must not be fatal", err)
	}

	// The transcript up to the stalled reply stands.
	assertGaplessSeqs(t, result.Turns)
	if len(result.Turns) != 2 {
		t.Errorf("got %d turns, want opening agent turn plus the user turn", len(result.Turns))
	}
}

func TestOrchestrator_DeadlineBeforeOpeningStopsGracefully(t *testing.T) {
	transport := providers.NewMemoryTransport()
	bundle := providers.Bundle{
		Recognizer:  providers.NewMockRecognizer(),
		Responder:   &stallResponder{},
		Synthesizer: providers.NewMockSynthesizer(),
	}

	o := New(transport, bundle, testConfig(), nil, observability.NewLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v, running out the allowed time must not be fatal", err)
	}
	if len(result.Turns) != 0 {
		t.Errorf("got %d turns, want none", len(result.Turns))
	}
}

// stallResponder blocks every reply until the context ends.
type stallResponder struct{}

func (r *stallResponder) GenerateReply(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (r *stallResponder) Summarize(ctx context.Context, history []conversation.Turn) (conversation.Summary, error) {
	return conversation.Summary{}, nil
}

func TestOrchestrator_ReleaseCalledOnce(t *testing.T) {
	transport := providers.NewMemoryTransport()
	transport.Close()
	bundle := providers.Bundle{
		Recognizer:  providers.NewMockRecognizer(),
		Responder:   providers.NewMockResponder(),
		Synthesizer: providers.NewMockSynthesizer(),
	}

	released := 0
	o := New(transport, bundle, testConfig(), func() { released++ }, observability.NewLogger())
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if released != 1 {
		t.Errorf("release called %d times, want exactly 1", released)
	}
}

func assertGaplessSeqs(t *testing.T, turns []conversation.Turn) {
	t.Helper()
	for i, turn := range turns {
		if turn.Seq != i+1 {
			t.Errorf("turn %d has seq %d, sequence numbers must be gapless from 1", i, turn.Seq)
		}
	}
}
