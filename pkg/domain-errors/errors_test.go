package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeStore, "should vanish"))
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeStore, "query contacts")

	// A further fmt wrap must not hide the code.
	outer := fmt.Errorf("reconcile: %w", err)

	assert.True(t, Is(outer, CodeStore))
	assert.False(t, Is(outer, CodeBadRequest))
	assert.True(t, errors.Is(outer, cause))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeInconsistent, CodeOf(New(CodeInconsistent, "empty group")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:   http.StatusBadRequest,
		CodeNotFound:     http.StatusNotFound,
		CodeTimeout:      http.StatusGatewayTimeout,
		CodeRateLimited:  http.StatusTooManyRequests,
		CodeStore:        http.StatusInternalServerError,
		CodeInconsistent: http.StatusInternalServerError,
		CodeInternal:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(errors.New("boom"), CodeStore, "insert contact")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store_failure")
	assert.Contains(t, err.Error(), "boom")
}
