package handler

import (
	"net/http"
	"time"

	"outcall-server/internal/apierrors"
	"outcall-server/internal/auth"
	"outcall-server/internal/observability"
	"outcall-server/internal/store"
	"outcall-server/internal/voicecall/processor"
	"outcall-server/internal/voicecall/rendezvous"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the call pipeline over HTTP: call commands on the protected
// API, plus the Twilio webhook and media-stream endpoints.
type Handler struct {
	processor  *processor.Processor
	store      *store.Store
	registry   *rendezvous.Registry
	mediaWSURL string
	logger     *observability.Logger
}

func New(proc *processor.Processor, st *store.Store, registry *rendezvous.Registry,
	mediaWSURL string, logger *observability.Logger) Handler {
	return Handler{
		processor:  proc,
		store:      st,
		registry:   registry,
		mediaWSURL: mediaWSURL,
		logger:     logger,
	}
}

type StartCallRequest struct {
	LeadID uuid.UUID `json:"lead_id" binding:"required"`
}

func (h *Handler) HandleStartCall(c *gin.Context) {
	ctx := c.Request.Context()

	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	userID, ok := auth.UserID(c)
	if !ok {
		apierrors.RespondWithError(c, apierrors.Unauthorized("missing user identity"))
		return
	}

	session, err := h.processor.StartCall(ctx, req.LeadID, userID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"call_id": session.ID,
		"status":  session.Status,
	})
}

type EndCallRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=scheduled follow_up opt_out failed"`
}

func (h *Handler) HandleEndCall(c *gin.Context) {
	ctx := c.Request.Context()

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "invalid call id"))
		return
	}

	var req EndCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	if err := h.processor.EndCall(ctx, callID, req.Outcome); err != nil {
		apierrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "outcome": req.Outcome})
}

type TurnResponse struct {
	Seq        int      `json:"seq"`
	Role       string   `json:"role"`
	Text       string   `json:"text"`
	AudioRef   string   `json:"audio_ref,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func (h *Handler) HandleGetCall(c *gin.Context) {
	ctx := c.Request.Context()

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "invalid call id"))
		return
	}

	session, err := h.store.GetCallSession(ctx, callID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	turns, err := h.store.GetCallTurns(ctx, callID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	transcript := make([]TurnResponse, 0, len(turns))
	for _, t := range turns {
		turn := TurnResponse{Seq: t.Seq, Role: t.Role, Text: t.Text}
		if t.AudioRef.Valid {
			turn.AudioRef = t.AudioRef.String
		}
		if t.Confidence.Valid {
			conf := t.Confidence.Float64
			turn.Confidence = &conf
		}
		transcript = append(transcript, turn)
	}

	resp := gin.H{
		"call_id":           session.ID,
		"status":            session.Status,
		"retry_attempts":    session.RetryAttempts,
		"opt_out_detected":  session.OptOutDetected,
		"confidence_scores": session.ConfidenceScores,
		"transcript":        transcript,
	}
	if session.Outcome.Valid {
		resp["outcome"] = session.Outcome.String
	}
	if session.InterestLevel.Valid {
		resp["interest_level"] = session.InterestLevel.String
	}
	if session.DurationSeconds.Valid {
		resp["duration_seconds"] = session.DurationSeconds.Int64
	}
	if session.SummaryText.Valid {
		resp["ai_summary"] = gin.H{
			"text":       session.SummaryText.String,
			"next_steps": session.SummaryNextSteps.String,
			"sentiment":  session.SummarySentiment.String,
		}
	}
	if session.FirstAudioLatencyMs.Valid {
		resp["first_audio_latency_ms"] = session.FirstAudioLatencyMs.Int64
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) HandleDailyMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := auth.UserID(c)
	if !ok {
		apierrors.RespondWithError(c, apierrors.Unauthorized("missing user identity"))
		return
	}

	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -30)
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "from must be YYYY-MM-DD"))
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "to must be YYYY-MM-DD"))
			return
		}
		to = parsed
	}

	metrics, err := h.store.GetDailyCallMetricsRange(ctx, userID, from, to)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}
