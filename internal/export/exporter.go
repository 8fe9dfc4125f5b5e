// SPDX-License-Identifier: MIT

// Package export materializes per-context playlist artifacts under the data
// directory so external players and tooling can consume discovery results
// without talking to the API. Artifacts are rewritten on item changes and
// pruned when their page context closes.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/streamsift/streamsift/internal/events"
	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/metrics"
	"github.com/streamsift/streamsift/internal/registry"
)

const (
	playlistName = "playlist.m3u"
	itemsName    = "items.json"

	maxSlugLen = 48
)

// Source resolves page contexts to their registries. *pipeline.Pipeline
// satisfies it.
type Source interface {
	Registry(contextID string) (*registry.Registry, bool)
	Contexts() []string
}

// Exporter writes playlist.m3u and items.json per page context. All writes
// go through renameio so readers never observe a half-written artifact.
type Exporter struct {
	dir    string
	source Source
	logger zerolog.Logger
	now    func() time.Time
}

// New returns an Exporter rooted at dataDir. Artifacts land under
// dataDir/contexts/<slug>/.
func New(dataDir string, source Source) *Exporter {
	return &Exporter{
		dir:    filepath.Join(dataDir, "contexts"),
		source: source,
		logger: log.WithComponent("export"),
		now:    time.Now,
	}
}

// Run consumes coalesced change notices until ctx is canceled or the channel
// closes. Only item changes trigger exports; export failures are logged and
// metered, never fatal.
func (e *Exporter) Run(ctx context.Context, changes <-chan events.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Topic != events.TopicItems {
				continue
			}
			if err := e.Export(change.ContextID); err != nil {
				e.logger.Warn().Err(err).
					Str("context_id", change.ContextID).
					Msg("export.failed")
			}
		}
	}
}

// Export rewrites the artifacts for one page context, or prunes them when
// the context no longer exists.
func (e *Exporter) Export(contextID string) error {
	dir := filepath.Join(e.dir, slug(contextID))

	reg, ok := e.source.Registry(contextID)
	if !ok {
		return e.prune(contextID, dir)
	}

	items := reg.Displayable()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := e.writePlaylist(filepath.Join(dir, playlistName), items); err != nil {
		metrics.ExportErrorsTotal.WithLabelValues(playlistName).Inc()
		return err
	}
	if err := e.writeItems(filepath.Join(dir, itemsName), contextID, items); err != nil {
		metrics.ExportErrorsTotal.WithLabelValues(itemsName).Inc()
		return err
	}

	metrics.ExportItemsWritten.WithLabelValues(contextID).Set(float64(len(items)))
	e.logger.Debug().
		Str("context_id", contextID).
		Int("items", len(items)).
		Msg("export.written")
	return nil
}

// Sweep removes artifact directories that belong to no live page context.
// The daemon calls it at startup to clear leftovers from a previous run.
func (e *Exporter) Sweep() error {
	keep := make(map[string]struct{})
	for _, id := range e.source.Contexts() {
		keep[slug(id)] = struct{}{}
	}

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read artifact dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, live := keep[entry.Name()]; live {
			continue
		}
		if err := os.RemoveAll(filepath.Join(e.dir, entry.Name())); err != nil {
			return fmt.Errorf("sweep artifact dir %q: %w", entry.Name(), err)
		}
		e.logger.Debug().Str("dir", entry.Name()).Msg("export.swept")
	}
	return nil
}

func (e *Exporter) prune(contextID, dir string) error {
	metrics.ExportItemsWritten.DeleteLabelValues(contextID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("prune artifacts: %w", err)
	}
	e.logger.Debug().Str("context_id", contextID).Msg("export.pruned")
	return nil
}

func (e *Exporter) writePlaylist(path string, items []*registry.MediaItem) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending playlist: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			e.logger.Debug().Err(err).Msg("export.pending.cleanup")
		}
	}()

	if err := WriteM3U(pending, items); err != nil {
		return fmt.Errorf("write playlist: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace playlist: %w", err)
	}
	return nil
}

// itemsSnapshot is the items.json document. MediaItem headers carry a
// json:"-" tag, so captured request credentials never reach disk.
type itemsSnapshot struct {
	ContextID   string                `json:"contextId"`
	GeneratedAt time.Time             `json:"generatedAt"`
	Items       []*registry.MediaItem `json:"items"`
}

func (e *Exporter) writeItems(path, contextID string, items []*registry.MediaItem) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending items file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			e.logger.Debug().Err(err).Msg("export.pending.cleanup")
		}
	}()

	snap := itemsSnapshot{
		ContextID:   contextID,
		GeneratedAt: e.now().UTC(),
		Items:       items,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if _, err := pending.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write items: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace items file: %w", err)
	}
	return nil
}

// slug derives a filesystem-safe directory name from a context ID. IDs that
// are already safe map to themselves; anything else keeps a readable prefix
// and gains a hash suffix so distinct IDs never collide after sanitization.
func slug(contextID string) string {
	var b strings.Builder
	for _, r := range norm.NFKC.String(contextID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	cleaned := b.String()
	if len(cleaned) > maxSlugLen {
		cleaned = cleaned[:maxSlugLen]
	}
	if cleaned != "" && cleaned == contextID {
		return cleaned
	}

	sum := sha256.Sum256([]byte(contextID))
	if cleaned == "" {
		return hex.EncodeToString(sum[:8])
	}
	return cleaned + "-" + hex.EncodeToString(sum[:4])
}
