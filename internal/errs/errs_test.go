package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestKindOfWrapped(t *testing.T) {
	base := RateLimited("fetch quote")
	wrapped := fmt.Errorf("get details: %w", base)

	assert.Equal(t, KindRateLimited, KindOf(wrapped))
	assert.Equal(t, true, Is(wrapped, KindRateLimited))
	assert.Equal(t, false, Is(wrapped, KindTransient))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, false, Is(nil, KindUnknown))
}

func TestErrorMessageCarriesStatusAndBody(t *testing.T) {
	err := &Error{Kind: KindTransient, Op: "fetch failed", Status: 500, Body: "oops"}
	assert.Equal(t, "fetch failed: status 500: oops", err.Error())
}
