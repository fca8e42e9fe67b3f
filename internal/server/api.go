package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dyluth/deck/pkg/deck"
	"github.com/gorilla/mux"
)

// CreatePresentationRequest is the body of POST /api/presentations.
type CreatePresentationRequest struct {
	Title           string `json:"title"`
	CreatorNickname string `json:"creatorNickname"`
	CreatorUserID   string `json:"creatorUserId"`
}

// ErrorResponse is the body of every failed REST request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) createPresentation(w http.ResponseWriter, r *http.Request) {
	var req CreatePresentationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.CreatorNickname == "" || req.CreatorUserID == "" {
		writeError(w, http.StatusBadRequest, "title, creatorNickname and creatorUserId are required")
		return
	}

	doc, err := s.store.Create(r.Context(), req.Title, req.CreatorUserID, req.CreatorNickname)
	if err != nil {
		if errors.Is(err, deck.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logEvent("create_failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to create presentation")
		return
	}

	s.logEvent("presentation_created", map[string]interface{}{
		"document_id": doc.ID,
		"user_id":     req.CreatorUserID,
	})
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) listPresentations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context())
	if err != nil {
		s.logEvent("list_failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to list presentations")
		return
	}
	if summaries == nil {
		summaries = []deck.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) getPresentation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := s.store.Get(r.Context(), id)
	if err != nil {
		if deck.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "presentation not found")
			return
		}
		s.logEvent("get_failed", map[string]interface{}{
			"document_id": id,
			"error":       err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to load presentation")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
