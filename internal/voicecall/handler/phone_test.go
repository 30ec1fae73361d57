package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"outcall-server/internal/observability"
	"outcall-server/internal/voicecall/rendezvous"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMediaWSURL = "wss://media.example.com/api/phone/media-stream"

func newTestHandler(t *testing.T) (Handler, *rendezvous.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := observability.NewLogger()
	registry := rendezvous.NewRegistry(logger)
	return New(nil, nil, registry, testMediaWSURL, logger), registry
}

func TestHandleAnswerCall_ReturnsStreamTwiML(t *testing.T) {
	h, _ := newTestHandler(t)
	router := gin.New()
	router.POST("/answer", h.HandleAnswerCall)

	callID := uuid.New().String()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/answer?call_id="+callID, nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "<Stream")
	assert.Contains(t, body, testMediaWSURL+"?call_id="+callID)
}

func TestHandleAnswerCall_RejectsMissingCallID(t *testing.T) {
	h, _ := newTestHandler(t)
	router := gin.New()
	router.POST("/answer", h.HandleAnswerCall)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/answer", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAnswerCall_RejectsMalformedCallID(t *testing.T) {
	h, _ := newTestHandler(t)
	router := gin.New()
	router.POST("/answer", h.HandleAnswerCall)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/answer?call_id=not-a-uuid", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMediaStream_RegistersTransport(t *testing.T) {
	h, registry := newTestHandler(t)
	router := gin.New()
	router.GET("/media-stream", h.HandleMediaStream)

	srv := httptest.NewServer(router)
	defer srv.Close()

	callID := uuid.New().String()
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/media-stream?call_id=" + callID

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	transport, live := registry.WaitFor(ctx, callID, time.Second)
	require.True(t, live)
	require.NotNil(t, transport)
	assert.NoError(t, transport.Close())
}

func TestHandleMediaStream_RejectsMalformedCallID(t *testing.T) {
	h, _ := newTestHandler(t)
	router := gin.New()
	router.GET("/media-stream", h.HandleMediaStream)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/media-stream?call_id=abc", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
