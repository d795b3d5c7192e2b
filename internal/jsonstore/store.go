// Package jsonstore persists the canonical content documents and the
// derived feed document as JSON files: one content document per author
// scope under content/, and a single feed.json.
package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/murmurfeed/murmur/internal/domain"
)

const (
	contentDirName = "content"
	feedFileName   = "feed.json"
)

// Store implements domain.DocumentStore on the local filesystem.
type Store struct {
	dir    string
	logger *slog.Logger
}

var _ domain.DocumentStore = (*Store)(nil)

// New creates the data directory layout and returns a Store rooted at dir.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, contentDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// ReadScopeDocuments loads every content document. A document that cannot
// be read or parsed is logged and skipped. It degrades to an absent
// scope, never a fatal error.
func (s *Store) ReadScopeDocuments(_ context.Context) (map[string][]*domain.Post, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, contentDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]*domain.Post{}, nil
		}
		return nil, fmt.Errorf("read content directory: %w", err)
	}

	scopes := make(map[string][]*domain.Post)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		scope := strings.TrimSuffix(name, ".json")
		path := filepath.Join(s.dir, contentDirName, name)

		raw, err := os.ReadFile(path)
		if err != nil {
			s.logger.Error("skipping unreadable content document", "path", path, "error", err)
			continue
		}
		var posts []*domain.Post
		if err := json.Unmarshal(raw, &posts); err != nil {
			s.logger.Error("skipping malformed content document", "path", path, "error", err)
			continue
		}
		scopes[scope] = posts
	}
	return scopes, nil
}

// WriteScopeDocuments writes one content document per scope and removes
// documents for scopes that no longer exist (a deleted owner's last post
// leaves no file behind).
func (s *Store) WriteScopeDocuments(_ context.Context, scopes map[string][]*domain.Post) error {
	dir := filepath.Join(s.dir, contentDirName)
	for scope, posts := range scopes {
		raw, err := json.MarshalIndent(posts, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal scope %q: %w", scope, err)
		}
		if err := os.WriteFile(filepath.Join(dir, scope+".json"), raw, 0o644); err != nil {
			return fmt.Errorf("write scope %q: %w", scope, err)
		}
	}

	existing, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read content directory: %w", err)
	}
	for _, entry := range existing {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, keep := scopes[strings.TrimSuffix(name, ".json")]; !keep {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				s.logger.Error("failed to remove stale scope document", "name", name, "error", err)
			}
		}
	}
	return nil
}

// ReadFeedDocument loads the last materialized feed document. Absent or
// malformed documents degrade to nil.
func (s *Store) ReadFeedDocument(_ context.Context) (*domain.FeedDocument, error) {
	path := filepath.Join(s.dir, feedFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read feed document: %w", err)
	}
	var doc domain.FeedDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Error("discarding malformed feed document", "path", path, "error", err)
		return nil, nil
	}
	return &doc, nil
}

// WriteFeedDocument persists the materialized feed document atomically
// (write to a temp file, then rename) so readers never observe a torn
// document.
func (s *Store) WriteFeedDocument(_ context.Context, doc *domain.FeedDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feed document: %w", err)
	}
	path := filepath.Join(s.dir, feedFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write feed document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace feed document: %w", err)
	}
	return nil
}
