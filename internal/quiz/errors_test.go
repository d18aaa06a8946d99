package quiz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  *Error
		kind ErrorKind
	}{
		{ErrCapacityExceeded(), KindCapacityExceeded},
		{ErrValidation("bad input"), KindValidation},
		{ErrNotFound("no pool"), KindNotFound},
		{ErrStaleEvent("old tap"), KindStaleEvent},
		{ErrTransport(errors.New("send failed")), KindTransport},
		{ErrInternal("detached"), KindInternal},
	}
	for _, tt := range tests {
		require.Equal(t, string(tt.kind), tt.err.Code())
		require.Equal(t, tt.kind, KindOf(tt.err))
		require.NotEmpty(t, tt.err.Error())
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	wrapped := fmt.Errorf("handling update: %w", ErrStaleEvent("old tap"))
	require.True(t, errors.Is(wrapped, ErrStaleEvent("")))
	require.False(t, errors.Is(wrapped, ErrValidation("")))
	require.Equal(t, KindStaleEvent, KindOf(wrapped))
}

func TestErrorTransportUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrTransport(cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection reset")
}

func TestKindOfForeignError(t *testing.T) {
	require.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	require.Equal(t, ErrorKind(""), KindOf(nil))
}
