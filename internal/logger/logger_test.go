package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerbosity(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"none":     -4,
		"error":    -2,
		"Warning":  -1,
		" notice ": 0,
		"info":     1,
		"DEBUG":    2,
	}
	for level, want := range tests {
		got, err := Verbosity(level)
		require.NoError(t, err, level)
		require.Equal(t, want, got, level)
	}

	_, err := Verbosity("loud")
	require.ErrorIs(t, err, ErrUnknownLevel)
	require.ErrorContains(t, err, "critical")
}

func TestLevelsAreOrderedByVerbosity(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"none", "critical", "error", "warning", "notice", "info", "debug"}, Levels())
}

func TestOnceLogsOnlyTheFirstTime(t *testing.T) {
	t.Parallel()

	log := Get("test")
	var once Once
	require.True(t, once.Errorf(log, "first %d", 1))
	require.False(t, once.Errorf(log, "second %d", 2))
	require.False(t, once.Warningf(log, "third"))
}
