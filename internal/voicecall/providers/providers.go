package providers

import (
	"context"
	"fmt"

	"outcall-server/internal/voicecall/conversation"
)

// RecognitionResult is one transcript emitted by a SpeechRecognizer. Partial
// results carry IsFinal=false and never trigger a reply.
type RecognitionResult struct {
	Text       string
	Confidence float64 // [0,1]
	IsFinal    bool
	Words      []string
}

// MediaTransport is a bidirectional audio channel to the callee.
// IncomingAudio returns the same channel on every call; it is closed when the
// far end hangs up or Close is called, and is not restartable.
type MediaTransport interface {
	IncomingAudio() <-chan []byte
	SendAudio(ctx context.Context, chunk []byte) error
	Close() error
}

// SpeechRecognizer converts submitted audio into a stream of recognition
// results. Results ends when Close is called or the upstream stream finishes.
type SpeechRecognizer interface {
	SubmitAudio(ctx context.Context, chunk []byte) error
	Results() <-chan RecognitionResult
	Close() error
}

// ResponseGenerator produces conversational replies and the end-of-call
// summary.
type ResponseGenerator interface {
	GenerateReply(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error)
	Summarize(ctx context.Context, history []conversation.Turn) (conversation.Summary, error)
}

// SpeechSynthesizer converts text to audio. Callers must treat a synthesis
// failure as non-fatal: the text turn is kept without audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Bundle groups the call-scoped provider instances for one session.
type Bundle struct {
	Recognizer  SpeechRecognizer
	Responder   ResponseGenerator
	Synthesizer SpeechSynthesizer
}

// ProviderError wraps an upstream AI vendor failure.
type ProviderError struct {
	Provider string // asr, llm, tts
	Op       string // submit, generate, summarize, synthesize
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError for the given capability and operation.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// TransportError wraps a media transport failure. Transport errors stop the
// session gracefully and are never surfaced as pipeline failures.
type TransportError struct {
	Op  string // register, wait, send, receive
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
