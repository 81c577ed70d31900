// Package server exposes the dependent-lookup service over HTTP: JSON
// endpoints for ranked dependents, badge counts, and history series.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/usedby/pkg/cache"
	"github.com/matzehuels/usedby/pkg/dependents"
	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/errors"
	"github.com/matzehuels/usedby/pkg/history"
)

// Server handles the HTTP API.
type Server struct {
	Service *dependents.Service
	Store   cache.Store
	Logger  *log.Logger
}

// Router builds the chi routing tree. Package names may contain slashes
// (scoped npm packages, Go module paths), so they are captured with a
// wildcard rather than a single path segment.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/platforms", s.handlePlatforms)
		r.Get("/dependents/{platform}/*", s.handleDependents)
		r.Get("/badge/{platform}/*", s.handleBadge)
		r.Get("/history/{platform}/*", s.handleHistory)
	})
	return r
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	name := chi.URLParam(r, "*")

	result, err := s.Service.GetDependents(r.Context(), platform, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Pending {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	name := chi.URLParam(r, "*")

	count, err := s.Service.GetDependentCountForBadge(r.Context(), platform, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// count stays null when unknown; zero would be a lie on a badge.
	s.writeJSON(w, http.StatusOK, map[string]*int{"count": count})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	name := chi.URLParam(r, "*")

	if _, ok := ecosystems.Lookup(platform); !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidPlatform, "unsupported platform %q", platform))
		return
	}
	series, err := history.Load(r.Context(), s.Store, cache.BuildKey(platform, name))
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeCache, err, "loading history"))
		return
	}
	if series == nil {
		series = []history.Snapshot{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"snapshots": series})
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"platforms": ecosystems.Slugs()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)

	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPlatform, errors.ErrCodeInvalidPackage, errors.ErrCodeInvalidCacheKey:
		status = http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodePackageNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeRateLimited:
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	if code == "" {
		code = errors.ErrCodeInternal
	}

	var body errorBody
	body.Error.Code = string(code)
	body.Error.Message = errors.UserMessage(err)
	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond))
	})
}
