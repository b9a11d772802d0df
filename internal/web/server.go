package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/renderinc/blip/internal/feed"
	"github.com/renderinc/blip/internal/search"
	"github.com/renderinc/blip/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	defaultKeywordLimit = 20
	maxKeywordLimit     = 100
)

// Comics is the storage the API reads and writes
type Comics interface {
	feed.Store
	Get(ctx context.Context, num int) (*storage.Comic, error)
	Favorites(ctx context.Context) ([]storage.Comic, error)
	Count(ctx context.Context) (int, error)
}

// Keywords is the ranked full-text index
type Keywords interface {
	Search(queryStr string, limit int) ([]*search.Result, error)
	Count() (uint64, error)
}

type Server struct {
	db  Comics
	idx Keywords
	log logrus.FieldLogger
}

type errorResponse struct {
	Error string `json:"error"`
	Retry bool   `json:"retry,omitempty"`
}

type comicResponse struct {
	feed.Row
	Published time.Time `json:"published"`
}

func NewServer(db Comics, idx Keywords, logger logrus.FieldLogger) *Server {
	return &Server{
		db:  db,
		idx: idx,
		log: logger.WithField("component", "web"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Get("/feed", s.handleFeed)
		api.Get("/search", s.handleSearch)
		api.Get("/keyword", s.handleKeyword)
		api.Get("/favorites", s.handleFavorites)

		api.Route("/comics/{num}", func(c chi.Router) {
			c.Get("/", s.handleGetComic)
			c.Put("/favorite", s.handleFavorite(true))
			c.Delete("/favorite", s.handleFavorite(false))
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Request served")
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	var (
		comics []storage.Comic
		err    error
	)

	if raw := r.URL.Query().Get("after"); raw != "" {
		after, convErr := strconv.Atoi(raw)
		if convErr != nil {
			s.writeError(w, http.StatusBadRequest, "after must be a comic number")
			return
		}
		comics, err = s.db.NextPage(r.Context(), after)
	} else {
		comics, err = s.db.InitialPage(r.Context())
	}

	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feed.MapRows(comics, feed.TitlePlain))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	comics, err := feed.Query(s.db, r.URL.Query().Get("q")).First(r.Context())
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feed.MapRows(comics, feed.TitleNumbered))
}

func (s *Server) handleKeyword(w http.ResponseWriter, r *http.Request) {
	limit := defaultKeywordLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 || l > maxKeywordLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = l
	}

	results, err := s.idx.Search(r.URL.Query().Get("q"), limit)
	if err != nil {
		s.log.WithError(err).Warn("Keyword search failed")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	comics, err := s.db.Favorites(r.Context())
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feed.MapRows(comics, feed.TitlePlain))
}

func (s *Server) handleGetComic(w http.ResponseWriter, r *http.Request) {
	num, ok := s.comicNum(w, r)
	if !ok {
		return
	}

	c, err := s.db.Get(r.Context(), num)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	if c == nil {
		s.writeError(w, http.StatusNotFound, "comic not found")
		return
	}

	s.writeJSON(w, http.StatusOK, comicResponse{
		Row:       feed.MapRow(*c, feed.TitlePlain),
		Published: c.PublishedOn(),
	})
}

func (s *Server) handleFavorite(favorite bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		num, ok := s.comicNum(w, r)
		if !ok {
			return
		}

		if err := s.db.SetFavorite(r.Context(), num, favorite); err != nil {
			s.writeStorageError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbCount, err := s.db.Count(r.Context())
	if err != nil {
		status = "degraded"
	}
	indexCount, err := s.idx.Count()
	if err != nil {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"comics_in_db":    dbCount,
		"comics_in_index": indexCount,
	})
}

func (s *Server) comicNum(w http.ResponseWriter, r *http.Request) (int, bool) {
	num, err := strconv.Atoi(chi.URLParam(r, "num"))
	if err != nil || num <= 0 {
		s.writeError(w, http.StatusBadRequest, "num must be a positive comic number")
		return 0, false
	}
	return num, true
}

func (s *Server) writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrUnavailable) {
		s.log.WithError(err).Error("Storage unavailable")
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: "storage unavailable, try again",
			Retry: true,
		})
		return
	}
	s.log.WithError(err).Error("Request failed")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("Error encoding response")
	}
}
