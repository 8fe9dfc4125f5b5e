// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/streamsift/streamsift/internal/export"
	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/pipeline"
	"github.com/streamsift/streamsift/internal/registry"
)

type contextSummary struct {
	ID    string `json:"id"`
	Items int    `json:"items"`
}

type contextsResponse struct {
	Contexts []contextSummary `json:"contexts"`
}

type itemsResponse struct {
	ContextID string                `json:"contextId"`
	Items     []*registry.MediaItem `json:"items"`
}

func (s *Server) handleContexts(w http.ResponseWriter, _ *http.Request) {
	ids := s.pipeline.Contexts()
	sort.Strings(ids)

	out := make([]contextSummary, 0, len(ids))
	for _, id := range ids {
		reg, ok := s.pipeline.Registry(id)
		if !ok {
			continue
		}
		out = append(out, contextSummary{ID: id, Items: reg.Len()})
	}
	writeJSON(w, http.StatusOK, contextsResponse{Contexts: out})
}

func (s *Server) handleCloseContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.pipeline.CloseContext(id) {
		writeNotFound(w, "context")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleItems lists a context's items. Dismissed items are hidden unless
// includeDismissed=true; clients that offer an undo surface want them back.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reg, ok := s.pipeline.Registry(id)
	if !ok {
		writeNotFound(w, "context")
		return
	}

	items := reg.List()
	if r.URL.Query().Get("includeDismissed") != "true" {
		visible := items[:0]
		for _, item := range items {
			if item.State != registry.StateDismissed {
				visible = append(visible, item)
			}
		}
		items = visible
	}
	writeJSON(w, http.StatusOK, itemsResponse{ContextID: id, Items: items})
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reg, ok := s.pipeline.Registry(id)
	if !ok {
		writeNotFound(w, "context")
		return
	}

	w.Header().Set("Content-Type", "audio/x-mpegurl")
	if err := export.WriteM3U(w, reg.Displayable()); err != nil {
		logger := log.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).
			Str(log.FieldContextID, id).
			Msg("api.playlist.write_failed")
	}
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	id, key, ok := s.itemParams(w, r)
	if !ok {
		return
	}

	item, err := s.pipeline.Dismiss(id, key)
	if err != nil {
		s.writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, key, ok := s.itemParams(w, r)
	if !ok {
		return
	}

	item, err := s.pipeline.Retry(id, key)
	if err != nil {
		s.writeItemError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

// itemParams extracts the context id and the percent-encoded item key from
// the route. Keys are URLs, so clients must escape them into one path
// segment; chi routes on the raw path and hands the segment back encoded.
func (s *Server) itemParams(w http.ResponseWriter, r *http.Request) (id, key string, ok bool) {
	id = chi.URLParam(r, "id")
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "malformed item key")
		return "", "", false
	}
	return id, key, true
}

func (s *Server) writeItemError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrUnknownContext):
		writeNotFound(w, "context")
	case errors.Is(err, registry.ErrNotFound):
		writeNotFound(w, "item")
	case errors.Is(err, registry.ErrClosed):
		writeNotFound(w, "context")
	default:
		writeError(w, http.StatusConflict, err.Error())
	}
}
