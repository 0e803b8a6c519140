// Package web serves the read-only admin inspection API.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/logging"
)

type Server struct {
	auth     *AuthManager
	sessions repository.SessionReader
	journal  repository.ExerciseJournal
	log      *zerolog.Logger
}

// NewServer wires the inspection handlers. sessions or journal may be nil when
// the backend cannot serve them; the matching routes then answer 501.
func NewServer(auth *AuthManager, sessions repository.SessionReader, journal repository.ExerciseJournal, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{auth: auth, sessions: sessions, journal: journal, log: logging.Component(logger, "admin")}
}

// Handler is meant to be mounted under /admin.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.authMiddleware)
	r.Get("/chats/{chatID}/session", s.sessionHandler)
	r.Get("/chats/{chatID}/events", s.eventsHandler)
	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		logging.With(r.Context(), s.log).Debug().Str("subject", claims.Subject).Str("path", r.URL.Path).Msg("admin request")
		next.ServeHTTP(w, r)
	})
}
