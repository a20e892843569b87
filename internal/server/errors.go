package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/subvault/internal/authorization"
	"github.com/smallbiznis/subvault/internal/safemath"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

// ErrorHandlingMiddleware renders the last handler error as a JSON envelope.
// Handlers report errors through AbortWithError and never write bodies on
// failure themselves.
func ErrorHandlingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("path", c.FullPath()),
				zap.Error(lastErr.Err),
			)
		}
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	payload := errorPayload{
		Type:    err.Error(),
		Code:    vaultdomain.CodeOf(err),
		Message: err.Error(),
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, vaultdomain.ErrInvalidArguments),
		errors.Is(err, vaultdomain.ErrInvalidAmount),
		errors.Is(err, vaultdomain.ErrInvalidInterval),
		errors.Is(err, vaultdomain.ErrBelowMinimumTopup),
		errors.Is(err, vaultdomain.ErrInvalidRecoveryAmount),
		errors.Is(err, vaultdomain.ErrInvalidConfig),
		errors.Is(err, vaultdomain.ErrUsageNotEnabled),
		errors.Is(err, safemath.ErrOverflow),
		errors.Is(err, safemath.ErrUnderflow),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		if errors.Is(err, ErrInvalidRequest) {
			payload.Type = "invalid_request"
			payload.Message = "invalid request"
		}
		// Errors outside the vault code table still carry the bad-request code.
		if payload.Code == vaultdomain.CodeUnknown {
			payload.Code = vaultdomain.CodeOf(vaultdomain.ErrInvalidArguments)
		}
		return http.StatusBadRequest, payload

	case errors.Is(err, vaultdomain.ErrUnauthorized):
		return http.StatusUnauthorized, payload

	case errors.Is(err, vaultdomain.ErrInsufficientBalance),
		errors.Is(err, vaultdomain.ErrInsufficientPrepaidBalance),
		errors.Is(err, vaultdomain.ErrInsufficientMerchantBalance):
		return http.StatusPaymentRequired, payload

	case errors.Is(err, vaultdomain.ErrNotAdmin),
		errors.Is(err, authorization.ErrForbidden):
		if payload.Code == vaultdomain.CodeUnknown {
			payload.Code = vaultdomain.CodeOf(vaultdomain.ErrNotAdmin)
		}
		return http.StatusForbidden, payload

	case errors.Is(err, vaultdomain.ErrNotFound):
		return http.StatusNotFound, payload

	case errors.Is(err, vaultdomain.ErrInvalidStatusTransition),
		errors.Is(err, vaultdomain.ErrNotActive),
		errors.Is(err, vaultdomain.ErrSubscriptionExpired),
		errors.Is(err, vaultdomain.ErrIntervalNotElapsed),
		errors.Is(err, vaultdomain.ErrReplay):
		return http.StatusConflict, payload

	case errors.Is(err, vaultdomain.ErrSubscriptionLimitReached):
		return http.StatusTooManyRequests, payload

	case errors.Is(err, vaultdomain.ErrVaultStopped),
		errors.Is(err, vaultdomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, payload

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    vaultdomain.CodeUnknown,
			Message: "internal server error",
		}
	}
}
