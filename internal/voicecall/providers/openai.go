package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"outcall-server/internal/clients/openai"
	"outcall-server/internal/voicecall/conversation"
)

// openAIRecognizer bridges the OpenAI realtime transcription stream to the
// SpeechRecognizer interface.
type openAIRecognizer struct {
	audio   chan []byte
	results chan RecognitionResult
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newOpenAIRecognizer(ctx context.Context, client *openai.Client, language string) (*openAIRecognizer, error) {
	ctx, cancel := context.WithCancel(ctx)
	audio := make(chan []byte, 256)

	raw, err := client.StartRealtimeTranscription(ctx, audio, openai.RealtimeTranscriptionConfig{
		Model:    "gpt-4o-transcribe",
		Language: language,
		VAD:      true,
	})
	if err != nil {
		cancel()
		return nil, NewProviderError("asr", "connect", err)
	}

	r := &openAIRecognizer{
		audio:   audio,
		results: make(chan RecognitionResult, 100),
		cancel:  cancel,
	}

	go func() {
		defer close(r.results)
		for res := range raw {
			if res.Err != nil {
				// Stream errors end the result stream; the orchestrator
				// treats that as a graceful stop.
				return
			}
			r.results <- RecognitionResult{
				Text:       res.Text,
				Confidence: res.Confidence,
				IsFinal:    res.IsFinal,
			}
		}
	}()

	return r, nil
}

func (r *openAIRecognizer) SubmitAudio(ctx context.Context, chunk []byte) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return NewProviderError("asr", "submit", fmt.Errorf("recognizer closed"))
	}
	r.mu.Unlock()

	select {
	case r.audio <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *openAIRecognizer) Results() <-chan RecognitionResult {
	return r.results
}

func (r *openAIRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.audio)
	r.cancel()
	return nil
}

// openAIResponder generates replies and summaries over chat completions.
type openAIResponder struct {
	client *openai.Client
}

func (p *openAIResponder) GenerateReply(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error) {
	reply, err := p.client.GenerateChat(ctx, systemPrompt, turnsToChat(history))
	if err != nil {
		return "", NewProviderError("llm", "generate", err)
	}
	return reply, nil
}

func (p *openAIResponder) Summarize(ctx context.Context, history []conversation.Turn) (conversation.Summary, error) {
	result, err := p.client.SummarizeConversation(ctx, transcriptText(history))
	if err != nil {
		return conversation.Summary{}, NewProviderError("llm", "summarize", err)
	}
	return conversation.Summary{
		Text:      result.Summary,
		NextSteps: result.NextSteps,
		Sentiment: result.Sentiment,
	}, nil
}

// openAISynthesizer converts agent replies to PCM audio.
type openAISynthesizer struct {
	client  *openai.Client
	voiceID string
}

func (s *openAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, err := s.client.SynthesizeSpeech(ctx, text, s.voiceID)
	if err != nil {
		return nil, NewProviderError("tts", "synthesize", err)
	}
	return audio, nil
}

func turnsToChat(history []conversation.Turn) []openai.ChatMessage {
	msgs := make([]openai.ChatMessage, 0, len(history))
	for _, t := range history {
		role := "user"
		if t.Role == conversation.RoleAgent {
			role = "assistant"
		}
		msgs = append(msgs, openai.ChatMessage{Role: role, Content: t.Text})
	}
	return msgs
}

func transcriptText(history []conversation.Turn) string {
	var b strings.Builder
	for _, t := range history {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}
