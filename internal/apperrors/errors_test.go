package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfAndMessage(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Forbidden("Only admins can delete shortages"))
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.Equal(t, "Only admins can delete shortages", Message(err))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(err))
}

func TestProviderPassesMessageThrough(t *testing.T) {
	cause := errors.New("Invalid login credentials")
	err := Provider(cause)
	assert.Equal(t, "Invalid login credentials", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestForeignErrorsAreInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "boom", Message(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Equal(t, "", Message(nil))
}

func TestNotFoundWrapsSentinel(t *testing.T) {
	err := NotFound("Selected blood bank center does not exist")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Unauthenticated()))
}
