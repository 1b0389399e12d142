package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSentinel = New(KindConflict, "insufficient_escrow", "insufficient escrow balance")

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("release milestone: %w", errSentinel)

	assert.True(t, errors.Is(err, errSentinel))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "insufficient_escrow", CodeOf(err))
	assert.Equal(t, "insufficient escrow balance", MessageOf(err))
	assert.Equal(t, http.StatusConflict, KindOf(err).HTTPStatus())
}

func TestPlainErrorsAreInternal(t *testing.T) {
	err := errors.New("pq: connection refused")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal_error", CodeOf(err))
	assert.Equal(t, http.StatusInternalServerError, KindOf(err).HTTPStatus())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("stripe: timeout")
	err := Wrap(KindGateway, "gateway_unavailable", "payment gateway unavailable", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, http.StatusBadGateway, KindOf(err).HTTPStatus())
	assert.Contains(t, err.Error(), "stripe: timeout")
}

func TestKindStatusTable(t *testing.T) {
	cases := map[Kind]int{
		KindValidation: http.StatusBadRequest,
		KindNotFound:   http.StatusNotFound,
		KindForbidden:  http.StatusForbidden,
		KindConflict:   http.StatusConflict,
		KindGateway:    http.StatusBadGateway,
		KindInternal:   http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}
