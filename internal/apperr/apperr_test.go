package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("export: %w", New(PermissionDenied, "cannot access customer %s", "c1"))
	assert.Equal(t, PermissionDenied, KindOf(err))
	assert.Equal(t, "cannot access customer c1", Message(err))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(KindOf(err)))
}

func TestPlainErrorsAreInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, "internal error", Message(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindOf(err)))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("smtp down")
	err := Wrap(FailedPrecondition, cause, "email delivery failed")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "email delivery failed", Message(err))
}
