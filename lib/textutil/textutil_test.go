package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanWhitespace(t *testing.T) {
	require.Equal(t, "a b c", CleanWhitespace("  a\n\tb  c "))
	require.Equal(t, "", CleanWhitespace(" \n\t "))
}

func TestMatchName(t *testing.T) {
	require.True(t, MatchName("  Account Balance ", []string{"accountbalance"}))
	require.False(t, MatchName("Account Balance", []string{"duedate"}))
}
