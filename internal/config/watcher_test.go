package config

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurfeed/murmur/internal/domain"
)

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWatcher(t.TempDir(), logger)
}

func TestWatcherReloadsTiers(t *testing.T) {
	w := newTestWatcher(t)

	var got []domain.Tier
	w.OnTiers = func(tiers []domain.Tier) { got = tiers }

	writeDoc(t, w.dir, TiersFile, `
tiers:
  - name: hot
    min_likes: 25
    max_age_days: 7
`)
	w.handle(TiersFile)

	require.Len(t, got, 1)
	assert.Equal(t, "hot", got[0].Name)
}

func TestWatcherReloadsRanking(t *testing.T) {
	w := newTestWatcher(t)

	var got RankingConfig
	w.OnRanking = func(cfg RankingConfig) { got = cfg }

	writeDoc(t, w.dir, RankingFile, "sort: most_liked\n")
	w.handle(RankingFile)

	assert.Equal(t, "most_liked", got.Sort)
}

func TestWatcherReloadsAgentConfig(t *testing.T) {
	w := newTestWatcher(t)

	var got AgentConfig
	w.OnAgent = func(cfg AgentConfig) { got = cfg }

	writeDoc(t, w.dir, AgentFile, "decline_percent: 77\n")
	w.handle(AgentFile)

	assert.Equal(t, 77, got.DeclinePercent)
	assert.Equal(t, "murmur_bot", got.Persona, "reload layers over defaults")
}

func TestWatcherKeepsPreviousConfigOnBadEdit(t *testing.T) {
	w := newTestWatcher(t)

	called := false
	w.OnTiers = func([]domain.Tier) { called = true }

	writeDoc(t, w.dir, TiersFile, "tiers: [unclosed")
	w.handle(TiersFile)
	assert.False(t, called, "a malformed edit never reaches the callback")
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	w := newTestWatcher(t)

	called := false
	w.OnTiers = func([]domain.Tier) { called = true }
	w.OnAgent = func(AgentConfig) { called = true }

	w.handle("notes.txt")
	assert.False(t, called)
}
