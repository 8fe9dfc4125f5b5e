// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsift/streamsift/internal/download"
	"github.com/streamsift/streamsift/internal/library"
	"github.com/streamsift/streamsift/internal/pipeline"
	"github.com/streamsift/streamsift/internal/registry"
	"github.com/streamsift/streamsift/internal/store"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestObserve_AcceptedReturnsItem(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/observations",
		`{"contextId":"tab-1","url":"https://cdn.example.com/v/master.m3u8","headers":{"Cookie":"session=hunter2"}}`))

	require.Equal(t, http.StatusAccepted, w.Code)
	item := decodeResponse[registry.MediaItem](t, w)
	assert.Equal(t, "https://cdn.example.com/v/master.m3u8", item.Key)
	assert.Equal(t, registry.StatePending, item.State)

	// Captured headers may hold credentials and must never be echoed.
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.NotContains(t, w.Body.String(), "Cookie")
}

func TestObserve_RejectedSightingReturns204(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.rejectAll = true

	w := env.do(t, jsonRequest(http.MethodPost, "/api/observations",
		`{"contextId":"tab-1","url":"https://cdn.example.com/pixel.gif"}`))

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestObserve_BadBodiesReturn400(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]string{
		"malformed json": `{"contextId":`,
		"unknown field":  `{"contextId":"tab-1","url":"https://x.test/a.m3u8","bogus":true}`,
		"missing url":    `{"contextId":"tab-1"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, jsonRequest(http.MethodPost, "/api/observations", body))
			require.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestObserve_ShutdownReturns503(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.observeErr = pipeline.ErrShutdown

	w := env.do(t, jsonRequest(http.MethodPost, "/api/observations",
		`{"contextId":"tab-1","url":"https://cdn.example.com/v.m3u8"}`))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestObserve_OversizedBodyReturns400(t *testing.T) {
	env := newTestEnv(t)

	body := `{"contextId":"tab-1","url":"https://x.test/a.m3u8","headers":{"X":"` +
		strings.Repeat("a", maxBodyBytes) + `"}}`
	w := env.do(t, jsonRequest(http.MethodPost, "/api/observations", body))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContexts_ListsSummaries(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.seed(t, "tab-2", "https://b.test/v.m3u8", registry.StateReady)
	env.pipeline.seed(t, "tab-1", "https://a.test/v.m3u8", registry.StatePending)
	env.pipeline.seed(t, "tab-1", "https://a.test/w.m3u8", registry.StatePending)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/contexts", nil))

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeResponse[contextsResponse](t, w)
	require.Len(t, got.Contexts, 2)
	assert.Equal(t, contextSummary{ID: "tab-1", Items: 2}, got.Contexts[0])
	assert.Equal(t, contextSummary{ID: "tab-2", Items: 1}, got.Contexts[1])
}

func TestCloseContext(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.seed(t, "tab-1", "https://a.test/v.m3u8", registry.StatePending)

	w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/contexts/tab-1", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/contexts/tab-1", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "context not found")
}

func TestItems_ExcludesDismissedByDefault(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.seed(t, "tab-1", "https://a.test/keep.m3u8", registry.StateReady)
	env.pipeline.seed(t, "tab-1", "https://a.test/hidden.m3u8", registry.StateDismissed)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/contexts/tab-1/items", nil))
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeResponse[itemsResponse](t, w)
	assert.Equal(t, "tab-1", got.ContextID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "https://a.test/keep.m3u8", got.Items[0].Key)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/contexts/tab-1/items?includeDismissed=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	got = decodeResponse[itemsResponse](t, w)
	assert.Len(t, got.Items, 2)
}

func TestItems_UnknownContextReturns404(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/contexts/ghost/items", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlaylist_ServesDisplayableItems(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.seed(t, "tab-1", "https://a.test/ready.m3u8", registry.StateReady)
	env.pipeline.seed(t, "tab-1", "https://a.test/pending.m3u8", registry.StatePending)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/contexts/tab-1/playlist.m3u", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/x-mpegurl", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "#EXTM3U\n"))
	assert.Contains(t, body, "https://a.test/ready.m3u8")
	assert.NotContains(t, body, "pending.m3u8")
}

func TestDismiss_PercentEncodedKey(t *testing.T) {
	env := newTestEnv(t)
	key := "https://cdn.example.com/v/master.m3u8"
	env.pipeline.seed(t, "tab-1", key, registry.StateReady)

	target := "/api/contexts/tab-1/items/" + url.PathEscape(key) + "/dismiss"
	w := env.do(t, httptest.NewRequest(http.MethodPost, target, nil))

	require.Equal(t, http.StatusOK, w.Code)
	item := decodeResponse[registry.MediaItem](t, w)
	assert.Equal(t, registry.StateDismissed, item.State)
}

func TestRetry_ResetsFailedItem(t *testing.T) {
	env := newTestEnv(t)
	key := "https://cdn.example.com/flaky.m3u8"
	env.pipeline.seed(t, "tab-1", key, registry.StateFailed)

	target := "/api/contexts/tab-1/items/" + url.PathEscape(key) + "/retry"
	w := env.do(t, httptest.NewRequest(http.MethodPost, target, nil))

	require.Equal(t, http.StatusAccepted, w.Code)
	item := decodeResponse[registry.MediaItem](t, w)
	assert.Equal(t, registry.StatePending, item.State)
	assert.Empty(t, item.FailureReason)
}

func TestRetry_WrongStateReturns409(t *testing.T) {
	env := newTestEnv(t)
	key := "https://cdn.example.com/fine.m3u8"
	env.pipeline.seed(t, "tab-1", key, registry.StateReady)

	target := "/api/contexts/tab-1/items/" + url.PathEscape(key) + "/retry"
	w := env.do(t, httptest.NewRequest(http.MethodPost, target, nil))

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "cannot reset item in state ready")
}

func TestItemOps_NotFoundVariants(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.seed(t, "tab-1", "https://a.test/v.m3u8", registry.StateReady)

	w := env.do(t, httptest.NewRequest(http.MethodPost,
		"/api/contexts/ghost/items/"+url.PathEscape("https://a.test/v.m3u8")+"/dismiss", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "context not found")

	w = env.do(t, httptest.NewRequest(http.MethodPost,
		"/api/contexts/tab-1/items/"+url.PathEscape("https://a.test/other.m3u8")+"/dismiss", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "item not found")
}

func TestDownloadStart_ForwardsItemHeaders(t *testing.T) {
	env := newTestEnv(t)
	key := "https://cdn.example.com/film.mp4"
	env.pipeline.seed(t, "tab-1", key, registry.StateReady)

	body := `{"contextId":"tab-1","key":"` + key + `","path":"movies/film.mp4"}`
	w := env.do(t, jsonRequest(http.MethodPost, "/api/downloads", body))

	require.Equal(t, http.StatusCreated, w.Code)
	job := decodeResponse[download.Job](t, w)
	assert.Equal(t, key, job.URL)
	assert.Equal(t, "film.mp4", job.Title)
	assert.Equal(t, "movies/film.mp4", job.Path)

	// The manager got the captured credentials, the response did not.
	require.Len(t, env.downloads.requests, 1)
	assert.Equal(t, "session=hunter2", env.downloads.requests[0].Headers["Cookie"])
	assert.NotContains(t, w.Body.String(), "hunter2")

	// Same key again is a duplicate, not a second job.
	w = env.do(t, jsonRequest(http.MethodPost, "/api/downloads", body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.downloads.requests, 1)
}

func TestDownloadStart_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.seed(t, "tab-1", "https://a.test/v.mp4", registry.StateReady)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/downloads", `{"key":"https://a.test/v.mp4"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, jsonRequest(http.MethodPost, "/api/downloads",
		`{"contextId":"ghost","key":"https://a.test/v.mp4"}`))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "context not found")

	w = env.do(t, jsonRequest(http.MethodPost, "/api/downloads",
		`{"contextId":"tab-1","key":"https://a.test/missing.mp4"}`))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "item not found")
}

func TestDownloadCancel(t *testing.T) {
	env := newTestEnv(t)
	key := "https://cdn.example.com/film.mp4"
	env.pipeline.seed(t, "tab-1", key, registry.StateReady)
	env.do(t, jsonRequest(http.MethodPost, "/api/downloads",
		`{"contextId":"tab-1","key":"`+key+`"}`))

	w := env.do(t, httptest.NewRequest(http.MethodDelete,
		"/api/downloads?url="+url.QueryEscape(key), nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodDelete,
		"/api/downloads?url="+url.QueryEscape(key), nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "download not found")

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/downloads", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadList(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.seed(t, "tab-1", "https://a.test/v.mp4", registry.StateReady)
	env.do(t, jsonRequest(http.MethodPost, "/api/downloads",
		`{"contextId":"tab-1","key":"https://a.test/v.mp4"}`))

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/downloads", nil))

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeResponse[downloadsResponse](t, w)
	require.Len(t, got.Jobs, 1)
	assert.Equal(t, "https://a.test/v.mp4", got.Jobs[0].URL)
	assert.Equal(t, 1, got.Queued)
}

func TestDownloads_UnavailableWithoutManager(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Downloads = nil })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/downloads", nil),
		jsonRequest(http.MethodPost, "/api/downloads", `{"contextId":"t","key":"k"}`),
		httptest.NewRequest(http.MethodDelete, "/api/downloads?url=x", nil),
	} {
		w := env.do(t, req)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
	}
}

func TestThumbnail(t *testing.T) {
	env := newTestEnv(t)
	env.thumbs.thumbs["https://a.test/v.mp4"] = &store.Thumbnail{
		MIME:      "image/jpeg",
		Data:      []byte{0xff, 0xd8, 0xff},
		CreatedAt: time.Now(),
	}

	w := env.do(t, httptest.NewRequest(http.MethodGet,
		"/api/thumbnails?key="+url.QueryEscape("https://a.test/v.mp4"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Cache-Control"))
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, w.Body.Bytes())

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/thumbnails?key=unknown", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/thumbnails", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestThumbnail_UnavailableWithoutStore(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Thumbs = nil })

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/thumbnails?key=x", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLibrary_PagesEntries(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.history.entries = append(env.history.entries, library.Entry{
			ID:      string(rune('a' + i)),
			URL:     "https://a.test/v.mp4",
			Outcome: "success",
		})
	}

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/library?limit=2&offset=2", nil))

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeResponse[libraryResponse](t, w)
	assert.Equal(t, 5, got.Total)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "c", got.Entries[0].ID)
}

func TestLibrary_EmptyHistoryReturnsEmptyArray(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/library", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entries":[]`)
}

func TestLibrary_UnavailableWithoutStore(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.History = nil })

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/library", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
