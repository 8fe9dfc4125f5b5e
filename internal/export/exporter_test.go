// SPDX-License-Identifier: MIT

package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/streamsift/streamsift/internal/events"
	"github.com/streamsift/streamsift/internal/manifest"
	"github.com/streamsift/streamsift/internal/registry"
)

// managerSource adapts a bare registry.Manager for tests that do not need a
// full pipeline.
type managerSource struct{ mgr *registry.Manager }

func (s managerSource) Registry(id string) (*registry.Registry, bool) { return s.mgr.Get(id) }

func (s managerSource) Contexts() []string {
	var out []string
	s.mgr.Range(func(id string, _ *registry.Registry) bool {
		out = append(out, id)
		return true
	})
	return out
}

// seedReady walks one item through the full lifecycle so it becomes
// display-eligible. Headers carry a fake credential to prove it never
// reaches disk.
func seedReady(t *testing.T, reg *registry.Registry, rawURL string) {
	t.Helper()
	_, created, err := reg.Observe(&registry.MediaItem{
		Key:     rawURL,
		URL:     rawURL,
		Kind:    manifest.KindHLS,
		Headers: map[string]string{"Cookie": "session=hunter2"},
	})
	require.NoError(t, err)
	require.True(t, created)

	_, err = reg.SetState(rawURL, registry.StateProcessing, "")
	require.NoError(t, err)
	_, err = reg.ApplyParse(rawURL, &manifest.Result{
		Kind:     manifest.KindHLS,
		Duration: dur(2 * time.Minute),
	})
	require.NoError(t, err)
	_, err = reg.SetState(rawURL, registry.StateReady, "")
	require.NoError(t, err)
}

func TestExport_WritesPlaylistAndItems(t *testing.T) {
	mgr := registry.NewManager()
	reg := mgr.Open("tab-1")
	seedReady(t, reg, "https://cdn.example.com/show/master.m3u8")
	// A pending item must stay out of the artifacts.
	_, _, err := reg.Observe(&registry.MediaItem{
		Key:  "https://cdn.example.com/other.mp4",
		URL:  "https://cdn.example.com/other.mp4",
		Kind: manifest.KindDirect,
	})
	require.NoError(t, err)

	dataDir := t.TempDir()
	e := New(dataDir, managerSource{mgr})
	require.NoError(t, e.Export("tab-1"))

	dir := filepath.Join(dataDir, "contexts", "tab-1")
	playlist, err := os.ReadFile(filepath.Join(dir, playlistName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(playlist), "#EXTM3U\n"))
	assert.Contains(t, string(playlist), "master.m3u8")
	assert.NotContains(t, string(playlist), "other.mp4")

	raw, err := os.ReadFile(filepath.Join(dir, itemsName))
	require.NoError(t, err)
	var snap struct {
		ContextID   string            `json:"contextId"`
		GeneratedAt time.Time         `json:"generatedAt"`
		Items       []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, "tab-1", snap.ContextID)
	assert.False(t, snap.GeneratedAt.IsZero())
	assert.Len(t, snap.Items, 1)

	// Captured request headers may hold credentials.
	assert.NotContains(t, string(raw), "hunter2")
	assert.NotContains(t, string(raw), "Cookie")
}

func TestExport_EmptyContextWritesEmptyArtifacts(t *testing.T) {
	mgr := registry.NewManager()
	mgr.Open("tab-2")

	dataDir := t.TempDir()
	e := New(dataDir, managerSource{mgr})
	require.NoError(t, e.Export("tab-2"))

	dir := filepath.Join(dataDir, "contexts", "tab-2")
	playlist, err := os.ReadFile(filepath.Join(dir, playlistName))
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(playlist))

	raw, err := os.ReadFile(filepath.Join(dir, itemsName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"items": []`)
}

func TestExport_ClosedContextPrunesArtifacts(t *testing.T) {
	mgr := registry.NewManager()
	reg := mgr.Open("tab-1")
	seedReady(t, reg, "https://cdn.example.com/show/master.m3u8")

	dataDir := t.TempDir()
	e := New(dataDir, managerSource{mgr})
	require.NoError(t, e.Export("tab-1"))

	dir := filepath.Join(dataDir, "contexts", "tab-1")
	_, err := os.Stat(dir)
	require.NoError(t, err)

	require.True(t, mgr.Close("tab-1"))
	require.NoError(t, e.Export("tab-1"))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// Pruning an already-pruned context stays quiet.
	require.NoError(t, e.Export("tab-1"))
}

func TestExport_RewriteReplacesContent(t *testing.T) {
	mgr := registry.NewManager()
	reg := mgr.Open("tab-1")
	seedReady(t, reg, "https://cdn.example.com/a.m3u8")
	seedReady(t, reg, "https://cdn.example.com/b.m3u8")

	dataDir := t.TempDir()
	e := New(dataDir, managerSource{mgr})
	require.NoError(t, e.Export("tab-1"))

	_, err := reg.Dismiss("https://cdn.example.com/a.m3u8")
	require.NoError(t, err)
	require.NoError(t, e.Export("tab-1"))

	playlist, err := os.ReadFile(filepath.Join(dataDir, "contexts", "tab-1", playlistName))
	require.NoError(t, err)
	assert.NotContains(t, string(playlist), "a.m3u8")
	assert.Contains(t, string(playlist), "b.m3u8")
}

func TestRun_ExportsOnItemChanges(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := registry.NewManager()
	reg := mgr.Open("tab-1")
	seedReady(t, reg, "https://cdn.example.com/show/master.m3u8")

	dataDir := t.TempDir()
	e := New(dataDir, managerSource{mgr})

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan events.Change, 4)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, changes) }()

	// Download changes carry no context and must not produce artifacts.
	changes <- events.Change{Topic: events.TopicDownloads}
	changes <- events.Change{Topic: events.TopicItems, ContextID: "tab-1"}

	playlistPath := filepath.Join(dataDir, "contexts", "tab-1", playlistName)
	require.Eventually(t, func() bool {
		_, err := os.Stat(playlistPath)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr := registry.NewManager()
	e := New(t.TempDir(), managerSource{mgr})

	changes := make(chan events.Change)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), changes) }()

	close(changes)
	require.NoError(t, <-done)
}

func TestSweep_RemovesOrphanDirs(t *testing.T) {
	mgr := registry.NewManager()
	reg := mgr.Open("tab-1")
	seedReady(t, reg, "https://cdn.example.com/show/master.m3u8")

	dataDir := t.TempDir()
	e := New(dataDir, managerSource{mgr})
	require.NoError(t, e.Export("tab-1"))

	contextsDir := filepath.Join(dataDir, "contexts")
	require.NoError(t, os.MkdirAll(filepath.Join(contextsDir, "stale-tab"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(contextsDir, "notes.txt"), []byte("x"), 0o644))

	require.NoError(t, e.Sweep())

	_, err := os.Stat(filepath.Join(contextsDir, "tab-1"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(contextsDir, "stale-tab"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(contextsDir, "notes.txt"))
	assert.NoError(t, err)
}

func TestSweep_MissingArtifactRootIsFine(t *testing.T) {
	e := New(t.TempDir(), managerSource{registry.NewManager()})
	require.NoError(t, e.Sweep())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "tab-42", slug("tab-42"))
	assert.Equal(t, slug("Tab/42"), slug("Tab/42"))

	sanitized := slug("Tab/42")
	assert.True(t, strings.HasPrefix(sanitized, "tab42-"))
	assert.NotContains(t, sanitized, "/")

	// Distinct IDs that sanitize to the same prefix must not collide.
	assert.NotEqual(t, slug("ctx/1"), slug("ctx.1"))

	traversal := slug("../../etc/passwd")
	assert.NotContains(t, traversal, "..")
	assert.NotContains(t, traversal, "/")

	assert.Len(t, slug(""), 16)

	long := strings.Repeat("a", 100)
	assert.LessOrEqual(t, len(slug(long)), maxSlugLen+9)
}
