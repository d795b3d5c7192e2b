package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignIDDeterministic(t *testing.T) {
	first := AssignID("alice", "2026-01-02T03:04:05Z", "Hello world")
	second := AssignID("alice", "2026-01-02T03:04:05Z", "Hello world")
	assert.Equal(t, first, second)
}

func TestAssignIDFormat(t *testing.T) {
	id := AssignID("alice", "2026-01-02T03:04:05Z", "Hello")
	require.True(t, strings.HasPrefix(id, "alice_"))
	assert.Len(t, strings.TrimPrefix(id, "alice_"), 8)
}

func TestAssignIDDistinctTriples(t *testing.T) {
	base := AssignID("alice", "2026-01-02T03:04:05Z", "Hello")
	assert.NotEqual(t, base, AssignID("bob", "2026-01-02T03:04:05Z", "Hello"))
	assert.NotEqual(t, base, AssignID("alice", "2026-01-02T03:04:06Z", "Hello"))
	assert.NotEqual(t, base, AssignID("alice", "2026-01-02T03:04:05Z", "Goodbye"))
}

func TestAssignIDOnlyBodyPrefixMatters(t *testing.T) {
	prefix := strings.Repeat("x", 30)
	first := AssignID("alice", "2026-01-02T03:04:05Z", prefix+"tail one")
	second := AssignID("alice", "2026-01-02T03:04:05Z", prefix+"tail two")
	assert.Equal(t, first, second)
}

func TestNewTokenUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		tok := NewToken("c")
		require.True(t, strings.HasPrefix(tok, "c_"))
		_, dup := seen[tok]
		require.False(t, dup)
		seen[tok] = struct{}{}
	}
}
