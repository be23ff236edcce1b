package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tidyoux/timestamper/internal/buildinfo"
	"tidyoux/timestamper/internal/timestamps"
	"tidyoux/timestamper/internal/transcript"
)

const (
	detailNotConfigured = "API Key not configured"
	detailNoSubtitles   = "この動画には字幕がありません"
	detailServerError   = "Server Error: "
)

// GenerateRequest is the body of POST /generate_timestamps.
type GenerateRequest struct {
	VideoID string `json:"video_id"`
}

type diagnostics struct {
	Provider   string   `json:"provider,omitempty"`
	RequestID  string   `json:"request_id,omitempty"`
	ErrorChain []string `json:"error_chain"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "Server is running!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Info()
	info["status"] = "healthy"
	s.respond(w, http.StatusOK, info)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, http.StatusNotFound, "Not Found")
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.VideoID) == "" {
		s.errorResponse(w, http.StatusUnprocessableEntity, "video_id is required")
		return
	}

	videoID, err := s.resolve(r, req.VideoID)
	if err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := s.gen.Generate(r.Context(), videoID)
	if err != nil {
		s.generationError(w, r, videoID, err)
		return
	}

	cacheStatus := "MISS"
	if result.Cached {
		cacheStatus = "HIT"
	}
	w.Header().Set("X-Cache", cacheStatus)
	if result.Language != "" {
		w.Header().Set("X-Transcript-Language", result.Language)
	}
	// The model output is returned as a JSON string, not re-parsed.
	s.respond(w, http.StatusOK, result.Content)
}

func (s *Server) handleDebugTranscripts(w http.ResponseWriter, r *http.Request) {
	videoID, err := s.resolve(r, r.PathValue("video_id"))
	if err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	list, err := s.provider.List(r.Context(), videoID)
	if err != nil {
		s.generationError(w, r, videoID, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"provider":    s.provider.Name(),
		"transcripts": list,
	})
}

func (s *Server) resolve(r *http.Request, input string) (string, error) {
	if s.resolver != nil {
		return s.resolver.Resolve(r.Context(), input)
	}
	return transcript.ParseVideoID(input)
}

// generationError maps pipeline failures to responses: a missing
// credential and unavailable subtitles have fixed details, anything else
// embeds the error text.
func (s *Server) generationError(w http.ResponseWriter, r *http.Request, videoID string, err error) {
	logger := s.logger.With("videoID", videoID, "requestID", requestID(r.Context()))
	switch {
	case errors.Is(err, timestamps.ErrNotConfigured):
		logger.Error("Completion API key missing")
		s.errorResponse(w, http.StatusInternalServerError, detailNotConfigured)
	case transcript.IsUnavailable(err):
		logger.Info("No subtitles available", "reason", err)
		s.errorResponse(w, http.StatusNotFound, detailNoSubtitles)
	default:
		logger.Error("Timestamp generation failed", "error", err)
		body := errorBody{Detail: detailServerError + err.Error()}
		if s.debug {
			body.Diagnostics = s.diagnose(r, err)
		}
		s.respond(w, http.StatusInternalServerError, body)
	}
}

func (s *Server) diagnose(r *http.Request, err error) *diagnostics {
	d := &diagnostics{RequestID: requestID(r.Context())}
	if s.provider != nil {
		d.Provider = s.provider.Name()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.ErrorChain = append(d.ErrorChain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}
