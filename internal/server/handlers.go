package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/varoOP/shinkrolist/internal/auth"
	"github.com/varoOP/shinkrolist/internal/catalog"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/filter"
	"github.com/varoOP/shinkrolist/internal/watchlist"
)

type browseResponse struct {
	Query string `json:"query"`
	*catalog.Result
}

type statusResponse struct {
	Record *domain.UserStatus `json:"record"`
	State  string             `json:"state,omitempty"`
}

type setStatusRequest struct {
	Status *domain.WatchStatus `json:"status"`
}

type listResponse struct {
	*watchlist.Page
	Counts domain.StatusCounts `json:"counts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("Health check failed")
			RespondWithError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBrowse reads filter labels from the query string: status, type,
// rating, sort, genre (repeatable or comma separated), q and page.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	state := filter.NewFilterState()
	if q.Has("sort") {
		state.SetSort(q.Get("sort"))
	}
	state.SetStatus(q.Get("status"))
	state.SetType(q.Get("type"))
	state.SetRating(q.Get("rating"))
	state.SetSearch(q.Get("q"))

	var genres []string
	for _, v := range q["genre"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				genres = append(genres, name)
			}
		}
	}
	state.SetGenres(genres)

	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid page")
		return
	}
	state.SetPage(page)

	res, err := s.catalog.Browse(r.Context(), state)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, browseResponse{Query: res.Key.String(), Result: res})
}

func (s *Server) handleAnime(w http.ResponseWriter, r *http.Request) {
	id, ok := animeID(w, r)
	if !ok {
		return
	}

	item, err := s.catalog.Detail(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, item)
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := s.catalog.Genres(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, genres)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := animeID(w, r)
	if !ok {
		return
	}

	rec, err := s.status.Status(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	resp := statusResponse{Record: rec}
	if _, state, ok := s.status.Snapshot(r.Context(), id); ok {
		resp.State = state.String()
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := animeID(w, r)
	if !ok {
		return
	}
	if _, err := auth.RequireSession(r.Context()); err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status == nil {
		RespondWithError(w, http.StatusBadRequest, "status is required")
		return
	}

	item, err := s.catalog.Detail(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	out, err := s.status.SetStatus(r.Context(), item.Ref(), *req.Status)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, out)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var query watchlist.Query
	if v := q.Get("status"); v != "" && v != "all" {
		st, err := domain.ParseWatchStatus(v)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		query.Status = &st
	}

	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid page")
		return
	}
	query.Page = page

	list, err := s.list.List(r.Context(), query)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	counts, err := s.list.Counts(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, listResponse{Page: list, Counts: counts})
}

func (s *Server) handleEditListEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := animeID(w, r)
	if !ok {
		return
	}

	var edit domain.Edit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	out, err := s.status.Update(r.Context(), id, edit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, out)
}

func (s *Server) handleRemoveListEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := animeID(w, r)
	if !ok {
		return
	}

	out, err := s.status.Remove(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, out)
}

func animeID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "animeID"))
	if err != nil || id <= 0 {
		RespondWithError(w, http.StatusBadRequest, "Invalid anime ID")
		return 0, false
	}
	return id, true
}

func intParam(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrValidation, "invalid number %q", v)
	}
	return n, nil
}
