package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"outcall-server/internal/observability"
	"outcall-server/internal/voicecall/conversation"
	"outcall-server/internal/voicecall/providers"
)

// Config carries the session context for one orchestrated call.
type Config struct {
	CallID       string
	SystemPrompt string
	Lead         conversation.LeadFacts
	MaxTurns     int
	Detector     conversation.OptOutDetector
}

// Orchestrator runs the turn-taking loop of a single call: audio relay into
// the recognizer, transcript consumption, serialized reply generation, and
// teardown in a fixed order. Provider instances are call-scoped; the
// orchestrator owns them for the duration of Run.
type Orchestrator struct {
	transport providers.MediaTransport
	bundle    providers.Bundle
	cfg       Config
	release   func() // rendezvous entry release, invoked exactly once
	logger    *observability.Logger

	mu               sync.Mutex
	turns            []conversation.Turn
	confidences      []float64
	agentTurns       int
	optOut           bool
	firstAudioMs     *int64
	fatalErr         error

	replyMu   sync.Mutex // at most one reply generation in flight
	stopOnce  sync.Once
	stopCh    chan struct{}
	startedAt time.Time
}

func New(transport providers.MediaTransport, bundle providers.Bundle, cfg Config, release func(), logger *observability.Logger) *Orchestrator {
	if cfg.Detector == nil {
		cfg.Detector = conversation.NewPhraseDetector()
	}
	if release == nil {
		release = func() {}
	}
	return &Orchestrator{
		transport: transport,
		bundle:    bundle,
		cfg:       cfg,
		release:   release,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Run drives the call until a stop condition and returns the aggregated
// result. A returned error is fatal to the pipeline (reply generation or
// recognizer submission failed); transport problems, cancellation, and the
// session deadline stop the session gracefully with a nil error.
func (o *Orchestrator) Run(ctx context.Context) (conversation.Result, error) {
	o.startedAt = time.Now()
	ctx = observability.WithFields(ctx, observability.Field{Key: "call_id", Value: o.cfg.CallID})

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	systemPrompt := o.systemContext()

	// Greeting-first protocol: the agent speaks before any user input.
	opening, err := o.bundle.Responder.GenerateReply(loopCtx, systemPrompt, nil)
	if err != nil {
		o.teardown(ctx)
		if loopCtx.Err() != nil {
			// Session cancelled or out of allowed time, not a responder fault.
			return o.result(), nil
		}
		return o.result(), fmt.Errorf("failed to generate opening turn: %w", err)
	}
	o.emitAgentTurn(loopCtx, opening)

	var wg sync.WaitGroup
	wg.Add(2)
	go o.relayAudio(loopCtx, &wg)
	go o.consumeTranscripts(loopCtx, systemPrompt, &wg)

	select {
	case <-o.stopCh:
	case <-loopCtx.Done():
	}

	// Cancel both loops and drain them before releasing anything.
	cancel()
	wg.Wait()
	o.teardown(ctx)

	result := o.result()
	result.Summary = o.summarize(ctx)
	result.Duration = time.Since(o.startedAt)

	o.mu.Lock()
	fatal := o.fatalErr
	o.mu.Unlock()
	return result, fatal
}

// systemContext builds the synthetic context entry from lead facts. It is
// handed to the responder but never appears in the transcript or summary.
func (o *Orchestrator) systemContext() string {
	lead := o.cfg.Lead
	return fmt.Sprintf("%s\nHomeowner: %s\nAddress: %s\nRoof age: %d years\nPriority: %s",
		o.cfg.SystemPrompt, lead.Name, lead.Address, lead.RoofAge, lead.Priority)
}

// relayAudio forwards transport audio into the recognizer until the transport
// is exhausted or the session stops.
func (o *Orchestrator) relayAudio(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-o.transport.IncomingAudio():
			if !ok {
				o.logger.Info(ctx, "transport audio exhausted, stopping session")
				o.stop()
				return
			}
			if err := o.bundle.Recognizer.SubmitAudio(ctx, chunk); err != nil {
				if ctx.Err() != nil {
					// Session cancelled or out of allowed time, not a
					// recognizer fault.
					return
				}
				o.logger.Error(ctx, "recognizer rejected audio, stopping session", err)
				o.setFatal(err)
				o.stop()
				return
			}
		}
	}
}

// consumeTranscripts is the sole consumer of recognition results; results are
// processed strictly in arrival order.
func (o *Orchestrator) consumeTranscripts(ctx context.Context, systemPrompt string, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-o.bundle.Recognizer.Results():
			if !ok {
				o.stop()
				return
			}
			if result.Text == "" {
				continue
			}
			if done := o.handleResult(ctx, systemPrompt, result); done {
				o.stop()
				return
			}
		}
	}
}

// handleResult records one recognition result and, for final results, runs
// the reply step. It reports whether the session should stop.
func (o *Orchestrator) handleResult(ctx context.Context, systemPrompt string, result providers.RecognitionResult) bool {
	o.mu.Lock()
	o.confidences = append(o.confidences, result.Confidence)
	confidence := result.Confidence
	o.turns = append(o.turns, conversation.Turn{
		Seq:        len(o.turns) + 1,
		Role:       conversation.RoleUser,
		Text:       result.Text,
		Confidence: &confidence,
	})
	o.mu.Unlock()

	if o.cfg.Detector.IsOptOut(result.Text) {
		o.logger.Info(ctx, fmt.Sprintf("opt-out phrase detected in %q", result.Text))
		o.mu.Lock()
		o.optOut = true
		o.mu.Unlock()
		return true
	}

	if !result.IsFinal {
		return false
	}

	o.mu.Lock()
	reachedMax := o.agentTurns >= o.cfg.MaxTurns
	o.mu.Unlock()
	if reachedMax {
		return true
	}

	// Reply generation is serialized so two rapid final results can never
	// synthesize concurrently.
	o.replyMu.Lock()
	defer o.replyMu.Unlock()

	o.mu.Lock()
	history := make([]conversation.Turn, len(o.turns))
	copy(history, o.turns)
	o.mu.Unlock()

	reply, err := o.bundle.Responder.GenerateReply(ctx, systemPrompt, history)
	if err != nil {
		if ctx.Err() != nil {
			// The session ran out of allowed time mid-reply. The transcript
			// so far stands; this is a stop, not a pipeline failure.
			return true
		}
		o.logger.Error(ctx, "reply generation failed", err)
		o.setFatal(err)
		return true
	}

	o.emitAgentTurn(ctx, reply)

	o.mu.Lock()
	reachedMax = o.agentTurns >= o.cfg.MaxTurns
	o.mu.Unlock()
	return reachedMax
}

// emitAgentTurn synthesizes and sends one agent utterance, degrading to a
// text-only turn when synthesis fails. The first successful send records the
// first-audio latency.
func (o *Orchestrator) emitAgentTurn(ctx context.Context, text string) {
	audioRef := ""
	audio, err := o.bundle.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		observability.ProviderErrors.WithLabelValues("tts", "synthesize").Inc()
		o.logger.InfoWithError(ctx, "synthesis failed, keeping text-only turn", err)
	} else if len(audio) > 0 {
		if sendErr := o.transport.SendAudio(ctx, audio); sendErr != nil {
			o.logger.InfoWithError(ctx, "transport send failed, stopping session", sendErr)
			o.stop()
		} else {
			audioRef = fmt.Sprintf("call/%s/turn-audio", o.cfg.CallID)
			o.mu.Lock()
			if o.firstAudioMs == nil {
				latency := time.Since(o.startedAt).Milliseconds()
				o.firstAudioMs = &latency
				observability.FirstAudioLatency.Observe(float64(latency) / 1000)
			}
			o.mu.Unlock()
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.optOut {
		// Nothing may be appended after the opt-out turn.
		return
	}
	o.turns = append(o.turns, conversation.Turn{
		Seq:      len(o.turns) + 1,
		Role:     conversation.RoleAgent,
		Text:     text,
		AudioRef: audioRef,
	})
	o.agentTurns++
}

// teardown releases resources in the fixed order: recognizer, transport,
// rendezvous entry.
func (o *Orchestrator) teardown(ctx context.Context) {
	if err := o.bundle.Recognizer.Close(); err != nil {
		o.logger.InfoWithError(ctx, "recognizer close failed", err)
	}
	if err := o.transport.Close(); err != nil {
		o.logger.InfoWithError(ctx, "transport close failed", err)
	}
	o.release()
}

// summarize produces the structured outcome, excluding the synthetic context
// entry. A summarization failure yields an empty-but-valid summary.
func (o *Orchestrator) summarize(ctx context.Context) conversation.Summary {
	o.mu.Lock()
	history := make([]conversation.Turn, len(o.turns))
	copy(history, o.turns)
	o.mu.Unlock()

	summary, err := o.bundle.Responder.Summarize(ctx, history)
	if err != nil {
		observability.ProviderErrors.WithLabelValues("llm", "summarize").Inc()
		o.logger.InfoWithError(ctx, "summarization failed, using empty summary", err)
		return conversation.Summary{}
	}
	return summary
}

func (o *Orchestrator) stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *Orchestrator) setFatal(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fatalErr == nil {
		o.fatalErr = err
	}
}

func (o *Orchestrator) result() conversation.Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	turns := make([]conversation.Turn, len(o.turns))
	copy(turns, o.turns)
	confidences := make([]float64, len(o.confidences))
	copy(confidences, o.confidences)

	return conversation.Result{
		Turns:               turns,
		ConfidenceScores:    confidences,
		FirstAudioLatencyMs: o.firstAudioMs,
		OptOutDetected:      o.optOut,
	}
}
