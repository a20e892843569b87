package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallbiznis/subvault/internal/authorization"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   uint32
	}{
		{ErrInvalidRequest, http.StatusBadRequest, 400},
		{vaultdomain.ErrInvalidAmount, http.StatusBadRequest, 407},
		{vaultdomain.ErrInvalidInterval, http.StatusBadRequest, 408},
		{vaultdomain.ErrBelowMinimumTopup, http.StatusBadRequest, 410},
		{vaultdomain.ErrUnauthorized, http.StatusUnauthorized, 401},
		{vaultdomain.ErrInsufficientBalance, http.StatusPaymentRequired, 402},
		{vaultdomain.ErrInsufficientMerchantBalance, http.StatusPaymentRequired, 411},
		{vaultdomain.ErrNotAdmin, http.StatusForbidden, 403},
		{authorization.ErrForbidden, http.StatusForbidden, 403},
		{vaultdomain.ErrNotFound, http.StatusNotFound, 404},
		{vaultdomain.ErrInvalidStatusTransition, http.StatusConflict, 409},
		{vaultdomain.ErrReplay, http.StatusConflict, 1004},
		{vaultdomain.ErrIntervalNotElapsed, http.StatusConflict, 1001},
		{vaultdomain.ErrSubscriptionLimitReached, http.StatusTooManyRequests, 429},
		{vaultdomain.ErrVaultStopped, http.StatusServiceUnavailable, 1008},
		{vaultdomain.ErrNotConfigured, http.StatusServiceUnavailable, 1101},
		{fmt.Errorf("boom"), http.StatusInternalServerError, vaultdomain.CodeUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantCode, payload.Code)
		})
	}

	t.Run("wrapped errors keep their mapping", func(t *testing.T) {
		status, payload := mapError(fmt.Errorf("charge 7: %w", vaultdomain.ErrReplay))
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, uint32(1004), payload.Code)
	})
}
