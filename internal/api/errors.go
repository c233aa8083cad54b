package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danmuck/linkctl/internal/auth"
	"github.com/danmuck/linkctl/internal/layout"
	"github.com/danmuck/linkctl/internal/link"
	"github.com/danmuck/linkctl/internal/protocol/frame"
	"github.com/danmuck/linkctl/internal/protocol/session"
	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionBusy),
		errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, session.ErrStopped):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidConfig),
		errors.Is(err, frame.ErrMalformedFrame),
		errors.Is(err, frame.ErrPayloadTooLarge),
		errors.Is(err, frame.ErrUnknownMode),
		errors.Is(err, layout.ErrInvalidField),
		errors.Is(err, layout.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, layout.ErrLayoutNotFound),
		errors.Is(err, layout.ErrFieldIndex):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBindFailure),
		errors.Is(err, session.ErrConnectFailure):
		return http.StatusBadGateway
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, link.ErrManagerClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func writeMessage(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// requireToken rejects requests without a valid bearer token.
func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			err = v.Validate(token)
		}
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}
