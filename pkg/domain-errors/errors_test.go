package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs(t *testing.T) {
	err := New(CodeAlreadyAnchored, "receipt r1 is already anchored")
	assert.True(t, Is(err, CodeAlreadyAnchored))
	assert.False(t, Is(err, CodeNotFound))
	assert.False(t, Is(errors.New("plain"), CodeAlreadyAnchored))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeLedgerUnavailable, "publish failed", cause)

	require.True(t, Is(err, CodeLedgerUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsSeesThroughFmtWrapping(t *testing.T) {
	inner := New(CodeNotAnchored, "no anchor for receipt")
	outer := fmt.Errorf("export proof: %w", inner)
	assert.True(t, Is(outer, CodeNotAnchored))
	assert.Equal(t, CodeNotAnchored, CodeOf(outer))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidRecord:     http.StatusBadRequest,
		CodeBadRequest:        http.StatusBadRequest,
		CodeAlreadyAnchored:   http.StatusConflict,
		CodeNotFound:          http.StatusNotFound,
		CodeNotAnchored:       http.StatusNotFound,
		CodeLedgerUnavailable: http.StatusBadGateway,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
