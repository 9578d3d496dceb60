package webserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/domain/canvas"
	"github.com/kbcanvas/kbcanvas/internal/domain/preference"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/assets"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
	apperrors "github.com/kbcanvas/kbcanvas/pkg/errors"
)

const maxRequestBody = 64 << 10

// Page and partial handlers

func (s *WebServer) handleHome(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	s.renderTemplate(w, "index", map[string]interface{}{
		"Title":           s.config.App.Name,
		"Image":           session.Image.Snapshot(),
		"Recommendations": session.Recommendations.Snapshot(),
	})
}

func (s *WebServer) handleHTMXGenerate(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	// empty text is a valid submission: it produces the fallback match
	snapshot := s.images.Generate(r.Context(), session.Image, r.FormValue("text"))

	s.renderTemplate(w, "image_panel", snapshot)
}

func (s *WebServer) handleHTMXPreferences(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	prefs := s.recommendations.SetPreferences(session.Recommendations, r.FormValue("preferences"))

	s.renderTemplate(w, "chips", prefs)
}

func (s *WebServer) handleHTMXRecommendations(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	if err := r.ParseForm(); err == nil {
		if _, ok := r.PostForm["preferences"]; ok {
			s.recommendations.SetPreferences(session.Recommendations, r.PostForm.Get("preferences"))
		}
	}

	snapshot := s.recommendations.Recommend(r.Context(), session.Recommendations)

	s.renderTemplate(w, "recommendations_panel", snapshot)
}

// Asset handler

func (s *WebServer) handleAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.assets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			s.writeError(w, r, apperrors.NewNotFoundError("Asset"))
			return
		}
		s.writeError(w, r, apperrors.Wrap(err, "Failed to load asset"))
		return
	}

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(asset.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(asset.Data)
}

// JSON API handlers

type imageRequest struct {
	Text string `json:"text"`
}

type recommendationsRequest struct {
	Preferences json.RawMessage `json:"preferences"`
}

type recommendationDTO struct {
	ID         outbound.ItemID `json:"id"`
	Name       string          `json:"name"`
	Similarity *float64        `json:"similarity,omitempty"`
}

type recommendationsResponse struct {
	Recommendations []recommendationDTO `json:"recommendations"`
}

func (s *WebServer) handleAPIImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	image, err := s.images.Render(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", image.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(image.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Knowledge-Match", image.Match)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image.Data)
}

func (s *WebServer) handleAPIRecommendations(w http.ResponseWriter, r *http.Request) {
	var req recommendationsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	prefs, err := parsePreferences(req.Preferences)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.recommendations.Fetch(r.Context(), prefs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recommendationsResponse{Recommendations: toDTOs(items)})
}

func (s *WebServer) handleAPIKnowledge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.images.Lookup(r.URL.Query().Get("q")))
}

func (s *WebServer) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	err := apperrors.NewAppError(apperrors.CodeTooManyRequests, "Too many requests", "Slow down and try again shortly")
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.writeError(w, r, err)
		return
	}

	s.renderTemplateStatus(w, http.StatusTooManyRequests, "error", err.Message)
}

// parsePreferences accepts either the comma separated input form or a JSON
// array of strings. Array entries are trimmed and blanks dropped.
func parsePreferences(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return preference.Normalize(text), nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, apperrors.NewBadRequestError("preferences must be a string or an array of strings")
	}

	prefs := make([]string, 0, len(list))
	for _, p := range list {
		if p = strings.TrimSpace(p); p != "" {
			prefs = append(prefs, p)
		}
	}
	return prefs, nil
}

func toDTOs(items []canvas.Item) []recommendationDTO {
	out := make([]recommendationDTO, 0, len(items))
	for _, item := range items {
		out = append(out, recommendationDTO{
			ID:         outbound.ItemID(item.ID),
			Name:       item.Name,
			Similarity: item.Similarity,
		})
	}
	return out
}

// Helper methods

func (s *WebServer) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.NewBadRequestError("Request body must be valid JSON").WithCause(err)
	}
	return nil
}

func (s *WebServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.Wrap(err, "Request failed")
	requestID := middleware.GetReqID(r.Context())

	if appErr.StatusCode() >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
	}

	writeJSON(w, appErr.StatusCode(), apperrors.ToErrorResponse(appErr, requestID))
}

func (s *WebServer) renderTemplate(w http.ResponseWriter, name string, data interface{}) {
	s.renderTemplateStatus(w, http.StatusOK, name, data)
}

func (s *WebServer) renderTemplateStatus(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("Failed to execute template",
			zap.String("template", name),
			zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
