package jsonstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmurfeed/murmur/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := New(t.TempDir(), logger)
	require.NoError(t, err)
	return store
}

func TestScopeDocumentsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scopes := map[string][]*domain.Post{
		"alice": {{ID: "alice_aaaaaaaa", Author: "alice", Content: "Hello"}},
		"bob":   {{ID: "bob_bbbbbbbb", Author: "bob", Content: "Hi"}},
	}
	require.NoError(t, store.WriteScopeDocuments(ctx, scopes))

	loaded, err := store.ReadScopeDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Len(t, loaded["alice"], 1)
	assert.Equal(t, "Hello", loaded["alice"][0].Content)
}

func TestWriteScopeDocumentsRemovesStaleScopes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteScopeDocuments(ctx, map[string][]*domain.Post{
		"alice": {{ID: "a_1"}},
		"bob":   {{ID: "b_1"}},
	}))
	require.NoError(t, store.WriteScopeDocuments(ctx, map[string][]*domain.Post{
		"alice": {{ID: "a_1"}},
	}))

	loaded, err := store.ReadScopeDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
	_, gone := loaded["bob"]
	assert.False(t, gone)
}

func TestReadScopeDocumentsSkipsMalformed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteScopeDocuments(ctx, map[string][]*domain.Post{
		"alice": {{ID: "a_1"}},
	}))
	bad := filepath.Join(store.dir, contentDirName, "mallory.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	loaded, err := store.ReadScopeDocuments(ctx)
	require.NoError(t, err, "a bad document is skipped, not fatal")
	assert.Len(t, loaded, 1)
}

func TestReadScopeDocumentsEmptyDir(t *testing.T) {
	store := newTestStore(t)
	loaded, err := store.ReadScopeDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFeedDocumentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &domain.FeedDocument{
		Meta:  domain.FeedMeta{LastUpdated: "2026-01-02T03:04:05Z", EntryCount: 1},
		Posts: []domain.FeedEntry{{ID: "alice_aaaaaaaa", Content: "Hello"}},
	}
	require.NoError(t, store.WriteFeedDocument(ctx, doc))

	loaded, err := store.ReadFeedDocument(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.Meta.EntryCount)
	require.Len(t, loaded.Posts, 1)
	assert.Equal(t, "Hello", loaded.Posts[0].Content)

	_, err = os.Stat(filepath.Join(store.dir, feedFileName+".tmp"))
	assert.True(t, os.IsNotExist(err), "no temp file left behind")
}

func TestReadFeedDocumentAbsent(t *testing.T) {
	store := newTestStore(t)
	loaded, err := store.ReadFeedDocument(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestReadFeedDocumentMalformedDegradesToNil(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, feedFileName), []byte("<html>"), 0o644))

	loaded, err := store.ReadFeedDocument(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
