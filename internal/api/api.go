package api

import (
	"net/http"

	"outcall-server/internal/auth"
	"outcall-server/internal/voicecall/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	router      *gin.RouterGroup
	callHandler handler.Handler
	verifier    *auth.Verifier
}

func New(router *gin.RouterGroup, callHandler handler.Handler, verifier *auth.Verifier) API {
	return API{
		router:      router,
		callHandler: callHandler,
		verifier:    verifier,
	}
}

func (a *API) RegisterRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := a.router.Group("/api")

	// Telephony callbacks are authenticated by Twilio, not by user JWTs.
	phoneGroup := apiGroup.Group("/phone")
	phoneGroup.POST("/answer", a.callHandler.HandleAnswerCall)
	phoneGroup.GET("/media-stream", a.callHandler.HandleMediaStream)

	authGroup := apiGroup.Group("/protected")
	authGroup.Use(a.verifier.Middleware)
	authGroup.POST("/calls", a.callHandler.HandleStartCall)
	authGroup.POST("/calls/:id/end", a.callHandler.HandleEndCall)
	authGroup.GET("/calls/:id", a.callHandler.HandleGetCall)
	authGroup.GET("/metrics/daily", a.callHandler.HandleDailyMetrics)
}
