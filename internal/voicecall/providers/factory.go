package providers

import (
	"context"
	"fmt"

	"outcall-server/internal/clients/googleai"
	"outcall-server/internal/clients/openai"
	"outcall-server/internal/config"
	"outcall-server/internal/observability"
)

// Factory builds call-scoped provider bundles from explicit configuration.
// Vendor selection is deterministic: a vendor is used only when its key is
// configured AND its credentials are present; everything else gets a mock.
// The factory never reads the environment itself.
type Factory struct {
	cfg    config.ProviderConfig
	logger *observability.Logger
}

func NewFactory(cfg config.ProviderConfig, logger *observability.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// Build constructs one provider bundle for a single call. Provider instances
// are call-scoped and must not be shared across calls.
func (f *Factory) Build(ctx context.Context) (Bundle, error) {
	bundle := Bundle{}

	recognizer, err := f.buildRecognizer(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to build recognizer: %w", err)
	}
	if f.cfg.ConfidenceThreshold > 0 {
		recognizer = newConfidenceFloor(recognizer, f.cfg.ConfidenceThreshold)
	}
	bundle.Recognizer = recognizer

	bundle.Responder = f.buildResponder(ctx)
	bundle.Synthesizer = f.buildSynthesizer(ctx)
	return bundle, nil
}

func (f *Factory) buildRecognizer(ctx context.Context) (SpeechRecognizer, error) {
	if f.cfg.ASRVendor == "openai" && f.cfg.OpenAIAPIKey != "" {
		client, err := openai.NewClient(f.cfg.OpenAIAPIKey, f.logger)
		if err != nil {
			return nil, err
		}
		return newOpenAIRecognizer(ctx, client, "en")
	}
	f.logger.Info(ctx, fmt.Sprintf("ASR vendor %q has no credentials, using mock recognizer", f.cfg.ASRVendor))
	return NewMockRecognizer(), nil
}

func (f *Factory) buildResponder(ctx context.Context) ResponseGenerator {
	switch f.cfg.LLMVendor {
	case "openai":
		if f.cfg.OpenAIAPIKey != "" {
			client, err := openai.NewClient(f.cfg.OpenAIAPIKey, f.logger)
			if err == nil {
				return &openAIResponder{client: client}
			}
			f.logger.Error(ctx, "failed to create OpenAI client, using mock responder", err)
		}
	case "google":
		if f.cfg.GoogleAIAPIKey != "" {
			client, err := googleai.NewClient(f.cfg.GoogleAIAPIKey, f.logger)
			if err == nil {
				return &googleAIResponder{client: client}
			}
			f.logger.Error(ctx, "failed to create Google AI client, using mock responder", err)
		}
	}
	f.logger.Info(ctx, fmt.Sprintf("LLM vendor %q has no credentials, using mock responder", f.cfg.LLMVendor))
	return NewMockResponder()
}

func (f *Factory) buildSynthesizer(ctx context.Context) SpeechSynthesizer {
	if f.cfg.TTSVendor == "openai" && f.cfg.OpenAIAPIKey != "" {
		client, err := openai.NewClient(f.cfg.OpenAIAPIKey, f.logger)
		if err == nil {
			return &openAISynthesizer{client: client, voiceID: f.cfg.VoiceID}
		}
		f.logger.Error(ctx, "failed to create OpenAI client, using mock synthesizer", err)
	}
	f.logger.Info(ctx, fmt.Sprintf("TTS vendor %q has no credentials, using mock synthesizer", f.cfg.TTSVendor))
	return NewMockSynthesizer()
}
