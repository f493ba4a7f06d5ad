package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError_PassesThroughWrapped(t *testing.T) {
	base := NewConflict("email already registered", nil)
	wrapped := fmt.Errorf("register: %w", base)

	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, CodeConflict, de.Code)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)
}

func TestToDomainError_HidesUnknownCauses(t *testing.T) {
	de := ToDomainError(errors.New("pq: connection refused"))
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, "internal server error", de.Message)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.ErrorContains(t, de, "connection refused")
}

func TestToDomainError_Nil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}

func TestWithCode_DoesNotMutateOriginal(t *testing.T) {
	base := NewDomainError(CodeForbidden, "nope", http.StatusForbidden, nil)
	specific := base.WithCode("EMAIL_NOT_VERIFIED")
	assert.Equal(t, CodeForbidden, base.Code)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", specific.Code)
	assert.Equal(t, http.StatusForbidden, specific.HTTPStatus)
}

func TestFromStatus(t *testing.T) {
	assert.Equal(t, CodeNotFound, FromStatus(http.StatusNotFound, "Cannot GET /x").Code)
	assert.Equal(t, CodeUnauthorized, FromStatus(http.StatusUnauthorized, "").Code)

	internal := FromStatus(http.StatusBadGateway, "upstream exploded")
	assert.Equal(t, CodeInternal, internal.Code)
	assert.Equal(t, "internal server error", internal.Message)
}
