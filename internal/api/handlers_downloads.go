// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/streamsift/streamsift/internal/download"
	"github.com/streamsift/streamsift/internal/library"
	"github.com/streamsift/streamsift/internal/mediaurl"
)

type downloadStartBody struct {
	ContextID string `json:"contextId"`
	Key       string `json:"key"`
	Path      string `json:"path,omitempty"`
}

type downloadsResponse struct {
	Jobs    []*download.Job `json:"jobs"`
	Running int             `json:"running"`
	Queued  int             `json:"queued"`
}

type libraryResponse struct {
	Entries []library.Entry `json:"entries"`
	Total   int             `json:"total"`
}

func (s *Server) handleDownloadList(w http.ResponseWriter, _ *http.Request) {
	if s.downloads == nil {
		writeError(w, http.StatusServiceUnavailable, "downloads unavailable")
		return
	}
	running, queued := s.downloads.Counts()
	writeJSON(w, http.StatusOK, downloadsResponse{
		Jobs:    s.downloads.Jobs(),
		Running: running,
		Queued:  queued,
	})
}

// handleDownloadStart resolves the referenced item and forwards it to the
// download manager. The item's captured headers ride along so the companion
// can replay the original fetch; they never appear in the response.
func (s *Server) handleDownloadStart(w http.ResponseWriter, r *http.Request) {
	if s.downloads == nil {
		writeError(w, http.StatusServiceUnavailable, "downloads unavailable")
		return
	}

	var body downloadStartBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.ContextID == "" || body.Key == "" {
		writeError(w, http.StatusBadRequest, "contextId and key are required")
		return
	}

	reg, ok := s.pipeline.Registry(body.ContextID)
	if !ok {
		writeNotFound(w, "context")
		return
	}
	item, ok := reg.Get(body.Key)
	if !ok {
		writeNotFound(w, "item")
		return
	}

	job, created, err := s.downloads.Start(download.Request{
		URL:     item.Key,
		Title:   mediaurl.Filename(item.URL),
		Path:    body.Path,
		Headers: item.Headers,
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, job)
}

func (s *Server) handleDownloadCancel(w http.ResponseWriter, r *http.Request) {
	if s.downloads == nil {
		writeError(w, http.StatusServiceUnavailable, "downloads unavailable")
		return
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	if err := s.downloads.Cancel(r.Context(), target); err != nil {
		if errors.Is(err, download.ErrUnknownDownload) {
			writeNotFound(w, "download")
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	if s.thumbs == nil {
		writeError(w, http.StatusServiceUnavailable, "thumbnails unavailable")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key query parameter is required")
		return
	}

	thumb, err := s.thumbs.GetThumbnail(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "thumbnail lookup failed")
		return
	}
	if thumb == nil {
		writeNotFound(w, "thumbnail")
		return
	}

	w.Header().Set("Content-Type", thumb.MIME)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(thumb.Data)
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	entries, total, err := s.history.Recent(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if entries == nil {
		entries = []library.Entry{}
	}
	writeJSON(w, http.StatusOK, libraryResponse{Entries: entries, Total: total})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
