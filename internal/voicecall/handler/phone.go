package handler

import (
	"fmt"
	"net/http"

	"outcall-server/internal/apierrors"
	"outcall-server/internal/voicecall/twilio"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Twilio media streams do not send an Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleAnswerCall returns the TwiML that bridges an answered outbound call
// onto the media-stream websocket. Twilio fetches it with the call_id the
// dialer put in the answer URL.
func (h *Handler) HandleAnswerCall(c *gin.Context) {
	ctx := c.Request.Context()

	callID := c.Query("call_id")
	if _, err := uuid.Parse(callID); err != nil {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "invalid call id"))
		return
	}

	twimlResult, err := twilio.AnswerTwiML(h.mediaWSURL, callID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	h.logger.Info(ctx, fmt.Sprintf("answering call %s with media stream TwiML", callID))
	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, twimlResult)
}

// HandleMediaStream upgrades the Twilio media-stream connection and hands the
// transport to the waiting pipeline through the rendezvous registry. The
// orchestrator owns the transport from registration on; this handler returns
// immediately after the hand-off.
func (h *Handler) HandleMediaStream(c *gin.Context) {
	ctx := c.Request.Context()

	callID := c.Query("call_id")
	if _, err := uuid.Parse(callID); err != nil {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "invalid call id"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "websocket upgrade failed", err)
		return
	}

	transport := twilio.NewTransport(conn, h.logger)
	h.registry.Register(callID, transport)
	h.logger.Info(ctx, fmt.Sprintf("media stream registered for call %s", callID))
}
