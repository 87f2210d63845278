package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/opsmono/agentproxy/internal/auth"
	"go.uber.org/zap"
)

// TokenGate rejects requests that fail the shared-secret check before
// any handler runs. Missing or malformed headers get 401, a wrong token
// gets 403.
func TokenGate(gate *auth.Gate, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := gate.Check(c.GetHeader("Authorization"))
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, auth.ErrMissingHeader), errors.Is(err, auth.ErrMalformedHeader):
			Unauthorized(c, err.Error())
		case errors.Is(err, auth.ErrInvalidToken):
			Forbidden(c, err.Error())
		default:
			logger.Error("token gate unavailable", zap.Error(err))
			InternalError(c, "authorization is temporarily unavailable")
		}
	}
}
