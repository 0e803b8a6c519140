package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/infra/logging"
)

const maxEvents = 500

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotImplemented, "session inspection not supported by this backend")
		return
	}
	chatID, ok := parseChatID(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.Load(r.Context(), chatID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "no session for chat")
	case err != nil:
		logging.With(r.Context(), s.log).Error().Err(err).Int64("chat_id", chatID).Msg("load session failed")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotImplemented, "journal not configured")
		return
	}
	chatID, ok := parseChatID(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEvents)
	}
	events, err := s.journal.ListByChat(r.Context(), chatID, limit)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Int64("chat_id", chatID).Msg("list events failed")
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "events": events})
}

func parseChatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
