package providers

import (
	"context"
	"testing"

	"outcall-server/internal/config"
	"outcall-server/internal/observability"
)

func TestConfidenceFloor_DropsSubThresholdResults(t *testing.T) {
	inner := NewMockRecognizer(
		RecognitionResult{Text: "uh", Confidence: 0.3, IsFinal: false},
		RecognitionResult{Text: "mumble", Confidence: 0.4, IsFinal: true},
		RecognitionResult{Text: "yes please", Confidence: 0.9, IsFinal: true},
	)
	rec := newConfidenceFloor(inner, 0.6)

	if err := rec.SubmitAudio(context.Background(), []byte{0x01}); err != nil {
		t.Fatalf("SubmitAudio() error = %v", err)
	}

	var got []RecognitionResult
	for r := range rec.Results() {
		got = append(got, r)
	}

	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].Text != "yes please" {
		t.Errorf("result text = %q, want %q", got[0].Text, "yes please")
	}
}

func TestConfidenceFloor_ChannelClosesWithInner(t *testing.T) {
	inner := NewMockRecognizer(
		RecognitionResult{Text: "static", Confidence: 0.1, IsFinal: true},
	)
	rec := newConfidenceFloor(inner, 0.6)

	if err := rec.SubmitAudio(context.Background(), []byte{0x01}); err != nil {
		t.Fatalf("SubmitAudio() error = %v", err)
	}

	// Everything is filtered out; the channel must still close cleanly.
	if _, ok := <-rec.Results(); ok {
		t.Error("expected a closed, empty result stream")
	}
	if err := rec.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFactory_AppliesConfidenceThreshold(t *testing.T) {
	factory := NewFactory(config.ProviderConfig{
		ASRVendor:           "mock",
		TTSVendor:           "mock",
		LLMVendor:           "mock",
		ConfidenceThreshold: 0.6,
	}, observability.NewLogger())

	bundle, err := factory.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := bundle.Recognizer.(*confidenceFloor); !ok {
		t.Errorf("Recognizer = %T, want a confidence-filtered recognizer", bundle.Recognizer)
	}
}
