package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("approve: %w", InsufficientFunds())
	assert.Equal(t, KindInsufficientFunds, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindInsufficientFunds))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindInternal))
}

func TestMessageHidesInternals(t *testing.T) {
	cause := errors.New("pq: relation does not exist")
	err := Wrap(KindInternal, "store error", cause)

	assert.Equal(t, "store error", Message(err))
	assert.Equal(t, "store error: pq: relation does not exist", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error", Message(cause))
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindNotFound:            http.StatusNotFound,
		KindInsufficientFunds:   http.StatusUnprocessableEntity,
		KindValidation:          http.StatusUnprocessableEntity,
		KindAlreadyCheckedIn:    http.StatusConflict,
		KindConflict:            http.StatusConflict,
		KindUpstreamUnavailable: http.StatusBadGateway,
		KindUnauthorized:        http.StatusUnauthorized,
		KindForbidden:           http.StatusForbidden,
		KindInternal:            http.StatusInternalServerError,
		Kind("mystery"):         http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, HTTPStatus(kind), kind)
	}
}
