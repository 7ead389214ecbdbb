package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappersMatchSentinels(t *testing.T) {
	assert.ErrorIs(t, Validation("name %s", "required"), ErrValidation)
	assert.ErrorIs(t, NotFound("player session %q", "x"), ErrNotFound)
	assert.ErrorIs(t, Storage("insert", errors.New("boom")), ErrStorage)
	assert.ErrorIs(t, Subscription("captures", nil), ErrSubscription)
}

func TestStorage_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage("insert capture", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert capture")
}

func TestStorage_PassesThroughNotFound(t *testing.T) {
	nf := NotFound("gone")
	err := Storage("get", nf)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStorage)
}

func TestStorage_Nil(t *testing.T) {
	assert.NoError(t, Storage("noop", nil))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("x")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("x")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Storage("x", errors.New("y"))))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Subscription("x", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("other")))
}
