package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("load post: %w", NewStoreError(KindNotFound, "query", "kudos", errors.New("record not found")))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrTransient))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestKindOfFallsBackToTransient(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(errors.New("connection reset")))
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("empty: %w", ErrValidation)))
	assert.Equal(t, KindUnauthorized, KindOf(ErrUnauthorized))
}

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NewStoreError(KindNotFound, "query", "kudos", nil), http.StatusNotFound},
		{"unauthorized", NewStoreError(KindUnauthorized, "mutate", "kudos", nil), http.StatusUnauthorized},
		{"transient", NewStoreError(KindTransient, "query", "kudos", nil), http.StatusServiceUnavailable},
		{"validation", fmt.Errorf("message: %w", ErrValidation), http.StatusBadRequest},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"conflict", ErrConflict, http.StatusConflict},
		{"rate limit", ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"explicit code", New(http.StatusTeapot, "teapot", nil), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatus(tt.err))
		})
	}
}
