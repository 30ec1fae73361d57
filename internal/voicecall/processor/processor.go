package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"outcall-server/internal/config"
	"outcall-server/internal/jobs"
	"outcall-server/internal/observability"
	"outcall-server/internal/store"
	"outcall-server/internal/voicecall/conversation"
	"outcall-server/internal/voicecall/orchestrator"
	"outcall-server/internal/voicecall/providers"
	"outcall-server/internal/voicecall/rendezvous"

	"github.com/google/uuid"
)

var ErrLeadOptedOut = errors.New("lead has opted out of calls")

// Rough blended per-minute rate (telephony + model usage) in cents, used for
// the cost estimate stored on the session.
const costCentsPerMinute = 9

// CallStore is the slice of the store the pipeline needs. Tests supply an
// in-memory fake.
type CallStore interface {
	GetLead(ctx context.Context, id uuid.UUID) (*store.Lead, error)
	MarkLeadOptedOut(ctx context.Context, id uuid.UUID) error

	CreateCallSession(ctx context.Context, userID, leadID uuid.UUID) (*store.CallSession, error)
	GetCallSession(ctx context.Context, id uuid.UUID) (*store.CallSession, error)
	UpdateCallStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkCallStarted(ctx context.Context, id uuid.UUID) error
	SetCallTransportSID(ctx context.Context, id uuid.UUID, sid string) error
	RecordCallFailure(ctx context.Context, id uuid.UUID, status string, retryAttempts int, lastError string, at time.Time) error
	CompleteCallSession(ctx context.Context, id uuid.UUID, c store.CallCompletion) error
	ReplaceCallTurns(ctx context.Context, callID uuid.UUID, turns []store.CallTurn) error

	CreateBooking(ctx context.Context, leadID, callID uuid.UUID, windowStart, windowEnd time.Time, notes string) (*store.Booking, error)

	GetDailyCallMetrics(ctx context.Context, day time.Time, userID uuid.UUID) (*store.DailyCallMetrics, error)
	UpsertDailyCallMetrics(ctx context.Context, m store.DailyCallMetrics) error
}

// BundleBuilder constructs the call-scoped provider bundle. The provider
// factory is the production implementation.
type BundleBuilder interface {
	Build(ctx context.Context) (providers.Bundle, error)
}

// Dialer places the live outbound call leg. Nil means no telephony is
// configured and the call runs against whatever transport the rendezvous
// produces.
type Dialer interface {
	Dial(ctx context.Context, toNumber string, answerURL string) (string, error)
}

// Processor owns the call lifecycle: session creation, the pipeline run that
// drives the orchestrator, result application, bounded retries, and external
// termination.
type Processor struct {
	store     CallStore
	builder   BundleBuilder
	registry  *rendezvous.Registry
	scheduler jobs.Scheduler
	dialer    Dialer
	cfg       config.PipelineConfig
	answerURL string
	logger    *observability.Logger

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
}

func New(callStore CallStore, builder BundleBuilder, registry *rendezvous.Registry,
	scheduler jobs.Scheduler, dialer Dialer, cfg config.PipelineConfig, answerURL string,
	logger *observability.Logger) *Processor {
	return &Processor{
		store:     callStore,
		builder:   builder,
		registry:  registry,
		scheduler: scheduler,
		dialer:    dialer,
		cfg:       cfg,
		answerURL: answerURL,
		logger:    logger,
		active:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// StartCall validates the lead, creates a session, optionally places the
// outbound leg, and schedules the pipeline run.
func (p *Processor) StartCall(ctx context.Context, leadID, userID uuid.UUID) (*store.CallSession, error) {
	lead, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.OptedOut {
		return nil, ErrLeadOptedOut
	}

	session, err := p.store.CreateCallSession(ctx, userID, leadID)
	if err != nil {
		return nil, err
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "call_id", Value: session.ID.String()})

	if p.dialer != nil {
		answerURL := fmt.Sprintf("%s?call_id=%s", p.answerURL, session.ID)
		sid, err := p.dialer.Dial(ctx, lead.PhoneNumber, answerURL)
		if err != nil {
			// The rendezvous falls back to an in-memory transport, so a
			// failed dial degrades the call rather than aborting it.
			p.logger.Warn(ctx, fmt.Sprintf("failed to place outbound leg: %v", err))
		} else if err := p.store.SetCallTransportSID(ctx, session.ID, sid); err != nil {
			return nil, err
		}
	}

	if err := p.scheduler.ScheduleRunPipeline(ctx, jobs.RunPipelinePayload{CallID: session.ID}, 0); err != nil {
		return nil, err
	}

	observability.CallsStarted.Inc()
	p.logger.Info(ctx, fmt.Sprintf("call started for lead %s", leadID))
	return session, nil
}

// RunPipeline executes one full pipeline attempt for the call: build the
// provider bundle, rendezvous with the transport, run the orchestrator, and
// apply the result. Any failure is recorded and retried with backoff until
// attempts are exhausted.
func (p *Processor) RunPipeline(ctx context.Context, callID uuid.UUID) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "call_id", Value: callID.String()})

	session, err := p.store.GetCallSession(ctx, callID)
	if err != nil {
		return err
	}
	if isTerminal(session.Status) {
		p.logger.Info(ctx, fmt.Sprintf("skipping pipeline run, session already %s", session.Status))
		return nil
	}

	lead, err := p.store.GetLead(ctx, session.LeadID)
	if err != nil {
		return err
	}

	if err := p.store.MarkCallStarted(ctx, callID); err != nil {
		return err
	}

	observability.CallsActive.Inc()
	defer observability.CallsActive.Dec()

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.MaxDurationMinutes)*time.Minute)
	p.registerActive(callID, cancel)
	defer p.unregisterActive(callID)
	defer cancel()

	result, runErr := p.runOrchestrator(runCtx, ctx, callID, lead)
	if runErr != nil {
		return p.handleFailure(ctx, callID, session.RetryAttempts, runErr)
	}

	return p.applyResult(ctx, session, lead, result)
}

// runOrchestrator builds the bundle, waits for the transport, and drives the
// conversation. runCtx bounds the conversation; ctx is used for logging.
func (p *Processor) runOrchestrator(runCtx, ctx context.Context, callID uuid.UUID,
	lead *store.Lead) (conversation.Result, error) {
	bundle, err := p.builder.Build(runCtx)
	if err != nil {
		return conversation.Result{}, fmt.Errorf("building provider bundle: %w", err)
	}

	transport, live := p.registry.WaitFor(runCtx, callID.String(), p.cfg.RendezvousWait)
	if !live {
		p.logger.Warn(ctx, "no live transport arrived, proceeding with in-memory transport")
	}

	orch := orchestrator.New(transport, bundle, orchestrator.Config{
		CallID:       callID.String(),
		SystemPrompt: systemPrompt(lead),
		Lead:         leadFacts(lead),
		MaxTurns:     p.cfg.MaxTurns,
	}, func() { p.registry.Release(callID.String()) }, p.logger)

	return orch.Run(runCtx)
}

// applyResult persists the transcript and derived outcome, updates the daily
// rollup, and creates a booking when the call scheduled one.
func (p *Processor) applyResult(ctx context.Context, session *store.CallSession,
	lead *store.Lead, result conversation.Result) error {
	// EndCall may have finalized the session while the orchestrator was
	// winding down; a terminal session keeps its recorded outcome.
	current, err := p.store.GetCallSession(ctx, session.ID)
	if err != nil {
		return err
	}
	if isTerminal(current.Status) {
		p.logger.Info(ctx, fmt.Sprintf("session already %s, discarding run result", current.Status))
		return nil
	}

	outcome, interest := deriveOutcome(result)
	durationS := int64(result.Duration.Seconds())

	turns := make([]store.CallTurn, 0, len(result.Turns))
	for _, t := range result.Turns {
		turn := store.CallTurn{
			CallID: session.ID,
			Seq:    t.Seq,
			Role:   string(t.Role),
			Text:   t.Text,
		}
		if t.AudioRef != "" {
			turn.AudioRef = sql.NullString{String: t.AudioRef, Valid: true}
		}
		if t.Confidence != nil {
			turn.Confidence = sql.NullFloat64{Float64: *t.Confidence, Valid: true}
		}
		turns = append(turns, turn)
	}
	if err := p.store.ReplaceCallTurns(ctx, session.ID, turns); err != nil {
		return err
	}

	completion := store.CallCompletion{
		Status:             store.CallStatusCompleted,
		Outcome:            outcome,
		InterestLevel:      interest,
		DurationSeconds:    durationS,
		SummaryText:        result.Summary.Text,
		SummaryNextSteps:   result.Summary.NextSteps,
		SummarySentiment:   result.Summary.Sentiment,
		ConfidenceScores:   store.FloatSlice(result.ConfidenceScores),
		OptOutDetected:     result.OptOutDetected,
		EstimatedCostCents: estimateCostCents(durationS),
	}
	if result.FirstAudioLatencyMs != nil {
		completion.FirstAudioLatencyMs = sql.NullInt64{Int64: *result.FirstAudioLatencyMs, Valid: true}
	}
	if err := p.store.CompleteCallSession(ctx, session.ID, completion); err != nil {
		return err
	}

	if result.OptOutDetected {
		if err := p.store.MarkLeadOptedOut(ctx, lead.ID); err != nil {
			return err
		}
	}

	booked := false
	if outcome == store.CallOutcomeScheduled {
		windowStart := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
		windowEnd := windowStart.Add(2 * time.Hour)
		if _, err := p.store.CreateBooking(ctx, lead.ID, session.ID, windowStart, windowEnd,
			result.Summary.NextSteps); err != nil {
			return err
		}
		booked = true
	}

	if err := p.updateDailyMetrics(ctx, session.UserID, durationS, result.FirstAudioLatencyMs, booked); err != nil {
		return err
	}

	observability.CallsCompleted.WithLabelValues(outcome).Inc()
	observability.CallDuration.Observe(result.Duration.Seconds())
	if result.FirstAudioLatencyMs != nil {
		observability.FirstAudioLatency.Observe(float64(*result.FirstAudioLatencyMs) / 1000)
	}

	p.logger.Info(ctx, fmt.Sprintf("call completed: outcome=%s interest=%s duration=%ds turns=%d",
		outcome, interest, durationS, len(result.Turns)))
	return nil
}

// handleFailure records the failure and either schedules a fresh pipeline run
// with exponential backoff or marks the session permanently failed. The retry
// restarts the whole pipeline; the partial transcript of the failed attempt
// is discarded.
func (p *Processor) handleFailure(ctx context.Context, callID uuid.UUID, priorAttempts int, runErr error) error {
	attempts := priorAttempts + 1
	now := time.Now()

	if attempts >= p.cfg.MaxRetryAttempts {
		if err := p.store.RecordCallFailure(ctx, callID, store.CallStatusFailed, attempts, runErr.Error(), now); err != nil {
			return err
		}
		observability.CallsFailed.Inc()
		p.logger.Error(ctx, fmt.Sprintf("call permanently failed after %d attempts", attempts), runErr)
		return runErr
	}

	if err := p.store.RecordCallFailure(ctx, callID, store.CallStatusRetrying, attempts, runErr.Error(), now); err != nil {
		return err
	}

	delay := retryDelay(attempts)
	if err := p.scheduler.ScheduleRunPipeline(ctx, jobs.RunPipelinePayload{CallID: callID, Attempt: attempts}, delay); err != nil {
		return err
	}

	observability.PipelineRetries.Inc()
	p.logger.Warn(ctx, fmt.Sprintf("pipeline attempt %d failed, retrying in %s: %v", attempts, delay, runErr))
	return nil
}

// EndCall terminates a call from outside the pipeline. Terminal sessions are
// left untouched; a still-running orchestrator is cancelled.
func (p *Processor) EndCall(ctx context.Context, callID uuid.UUID, outcome string) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "call_id", Value: callID.String()})

	session, err := p.store.GetCallSession(ctx, callID)
	if err != nil {
		return err
	}
	if isTerminal(session.Status) {
		p.logger.Info(ctx, fmt.Sprintf("end call ignored, session already %s", session.Status))
		return nil
	}

	p.mu.Lock()
	cancel, running := p.active[callID]
	p.mu.Unlock()
	if running {
		cancel()
	}

	var durationS int64
	if session.StartedAt.Valid {
		durationS = int64(time.Since(session.StartedAt.Time).Seconds())
	}
	completion := store.CallCompletion{
		Status:          store.CallStatusCompleted,
		Outcome:         outcome,
		InterestLevel:   store.InterestLevelLow,
		DurationSeconds: durationS,
	}
	if err := p.store.CompleteCallSession(ctx, callID, completion); err != nil {
		return err
	}

	observability.CallsCompleted.WithLabelValues(outcome).Inc()
	p.logger.Info(ctx, fmt.Sprintf("call ended externally with outcome %s", outcome))
	return nil
}

func (p *Processor) updateDailyMetrics(ctx context.Context, userID uuid.UUID,
	durationS int64, firstAudioMs *int64, booked bool) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)

	current, err := p.store.GetDailyCallMetrics(ctx, day, userID)
	if errors.Is(err, store.ErrNotFound) {
		current = &store.DailyCallMetrics{Day: day, UserID: userID}
	} else if err != nil {
		return err
	}

	updated := ApplyCall(*current, durationS, firstAudioMs, booked)
	return p.store.UpsertDailyCallMetrics(ctx, updated)
}

func (p *Processor) registerActive(callID uuid.UUID, cancel context.CancelFunc) {
	p.mu.Lock()
	p.active[callID] = cancel
	p.mu.Unlock()
}

func (p *Processor) unregisterActive(callID uuid.UUID) {
	p.mu.Lock()
	delete(p.active, callID)
	p.mu.Unlock()
}

func isTerminal(status string) bool {
	return status == store.CallStatusCompleted || status == store.CallStatusFailed
}

// retryDelay is min(30, 2^attempts) seconds.
func retryDelay(attempts int) time.Duration {
	seconds := 1
	for i := 0; i < attempts; i++ {
		seconds *= 2
		if seconds >= 30 {
			return 30 * time.Second
		}
	}
	return time.Duration(seconds) * time.Second
}

// deriveOutcome maps the summary sentiment and opt-out flag to the persisted
// outcome and interest level.
func deriveOutcome(result conversation.Result) (outcome, interest string) {
	if result.OptOutDetected {
		return store.CallOutcomeOptOut, store.InterestLevelLow
	}
	switch result.Summary.Sentiment {
	case "positive":
		return store.CallOutcomeScheduled, store.InterestLevelHigh
	case "neutral":
		return store.CallOutcomeFollowUp, store.InterestLevelMedium
	default:
		return store.CallOutcomeFollowUp, store.InterestLevelLow
	}
}

func estimateCostCents(durationS int64) int64 {
	minutes := (durationS + 59) / 60
	return minutes * costCentsPerMinute
}

func leadFacts(lead *store.Lead) conversation.LeadFacts {
	facts := conversation.LeadFacts{Name: lead.Name}
	if lead.Address.Valid {
		facts.Address = lead.Address.String
	}
	if lead.RoofAgeYrs.Valid {
		facts.RoofAge = int(lead.RoofAgeYrs.Int64)
	}
	if lead.Priority.Valid {
		facts.Priority = lead.Priority.String
	}
	return facts
}

func systemPrompt(lead *store.Lead) string {
	return fmt.Sprintf("You are a friendly scheduling assistant for a roof inspection company. "+
		"You are calling %s to offer a free roof inspection and, if they are interested, "+
		"agree on a time window. Keep replies short and conversational. "+
		"If the homeowner asks not to be called, apologize and end the call politely.", lead.Name)
}
