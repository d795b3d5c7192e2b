package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/murmurfeed/murmur/internal/domain"
)

// Watcher hot-reloads the tiers and agent documents when they change on
// disk, so visibility policy and behavior weights can be tuned without a
// restart.
type Watcher struct {
	dir    string
	logger *slog.Logger

	// OnTiers is invoked with the freshly loaded tiers after tiers.yaml
	// changes. Optional.
	OnTiers func([]domain.Tier)

	// OnRanking is invoked with the freshly loaded ranking config after
	// ranking.yaml changes. Optional.
	OnRanking func(RankingConfig)

	// OnAgent is invoked with the freshly loaded agent config after
	// agent.yaml changes. Optional.
	OnAgent func(AgentConfig)
}

// NewWatcher creates a Watcher over the given config directory.
func NewWatcher(dir string, logger *slog.Logger) *Watcher {
	return &Watcher{dir: dir, logger: logger}
}

// Run watches the config directory until the context is cancelled. Reload
// failures keep the previous configuration; a bad edit never takes the
// process down.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching config directory", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.handle(filepath.Base(event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(name string) {
	switch name {
	case TiersFile:
		if w.OnTiers == nil {
			return
		}
		tiers, err := LoadTiers(w.dir)
		if err != nil {
			w.logger.Error("ignoring tiers reload", "error", err)
			return
		}
		if tiers == nil {
			return
		}
		w.logger.Info("reloaded visibility tiers", "count", len(tiers))
		w.OnTiers(tiers)
	case RankingFile:
		if w.OnRanking == nil {
			return
		}
		ranking, err := LoadRanking(w.dir)
		if err != nil {
			w.logger.Error("ignoring ranking reload", "error", err)
			return
		}
		if ranking == nil {
			return
		}
		w.logger.Info("reloaded feed ranking", "sort", ranking.Sort)
		w.OnRanking(*ranking)
	case AgentFile:
		if w.OnAgent == nil {
			return
		}
		agent, err := LoadAgent(w.dir)
		if err != nil {
			w.logger.Error("ignoring agent config reload", "error", err)
			return
		}
		if agent == nil {
			return
		}
		w.logger.Info("reloaded agent config")
		w.OnAgent(*agent)
	}
}
