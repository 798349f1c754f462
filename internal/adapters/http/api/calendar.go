package api

import (
	"fmt"
	"io"
	"net/http"
)

// handleImportICS handles POST /v1/calendar/ics?start=&end= with a raw
// iCalendar body.
func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseTimeParam("start", q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	end, err := parseTimeParam("end", q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxICSBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: read body: %w", ErrBadRequest, err))
		return
	}

	res, err := s.deps.ImportICS(r.Context(), body, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGoogleConnect handles GET /v1/connect/google.
func (s *Server) handleGoogleConnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	u, err := s.deps.GoogleAuthURL(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// handleGoogleCallback handles GET /v1/connect/google/callback. The state
// token identifies the user, so the route is public.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: consent denied: %s", ErrBadRequest, e))
		return
	}
	conn, err := s.deps.ConnectGoogle(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}
