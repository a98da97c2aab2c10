package hsgerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	err := Unavailable("vector search", errors.New("timeout"))
	require.True(t, Is(err, StorageUnavailable))
	require.False(t, Is(err, NotFound))
}

func TestIsFalseForPlainError(t *testing.T) {
	require.False(t, Is(errors.New("plain"), InputInvalid))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := EmbedFail("embed query", cause)
	require.Contains(t, err.Error(), "boom")
	require.Contains(t, err.Error(), string(EmbedFailure))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Unavailable("store write", cause)
	require.ErrorIs(t, err, cause)
}

func TestTransientCarriesRetryHint(t *testing.T) {
	err := TransientErr("rate limited", nil)
	require.NotEmpty(t, err.RetryHint)
}
