package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/versecite/core/cache"
	"github.com/FocuswithJustin/versecite/core/errors"
	"github.com/FocuswithJustin/versecite/core/refscan"
	"github.com/FocuswithJustin/versecite/core/sqlite"
	"github.com/FocuswithJustin/versecite/core/xml"
	"github.com/FocuswithJustin/versecite/internal/logging"
	"github.com/FocuswithJustin/versecite/internal/validation"
)

// Version is reported by GET / and GET /health.
var Version = "dev"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ParseRequest is the body of POST /api/parse. With XML or XPath set, or when
// Text opens with an XML prologue, Text is parsed as XML and the nodes
// selected by XPath (default: all text) are scanned.
type ParseRequest struct {
	Text  string `json:"text"`
	XML   bool   `json:"xml,omitempty"`
	XPath string `json:"xpath,omitempty"`
}

// ParseResponse is returned by POST /api/parse.
type ParseResponse struct {
	References  []refscan.BibleReference `json:"references"`
	Diagnostics []refscan.Diagnostic     `json:"diagnostics"`
	Cached      bool                     `json:"cached"`
}

// AddDocumentRequest is the body of POST /api/documents.
type AddDocumentRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Index   bool   `json:"index"`
}

// StatsInfo is returned by GET /api/stats.
type StatsInfo struct {
	Cache  cache.Stats `json:"cache"`
	SQLite sqlite.Info `json:"sqlite"`
	Index  bool        `json:"index"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"name":    "versecite API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"POST /api/parse",
			"GET /api/expand?expr=",
			"GET /api/documents",
			"POST /api/documents",
			"GET /api/documents/{id}",
			"GET /api/documents/{id}/text",
			"DELETE /api/documents/{id}",
			"GET /api/citations?book=&chapter=",
			"GET /api/stats",
			"WS /api/ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthInfo{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Index:   s.index != nil,
	})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	kind, err := validation.CheckDocument([]byte(req.Text), "")
	if err != nil {
		respondErr(w, r, err)
		return
	}

	text := req.Text
	if req.XML || req.XPath != "" || kind == validation.KindXML {
		segs, err := xml.ExtractText([]byte(req.Text), req.XPath)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		text = xml.Join(segs)
	}

	key := cache.ScanKey(text, s.parser.MaxBookWords(), s.parser.MaxValue())
	if res, ok := s.scans.Get(key); ok {
		respond(w, http.StatusOK, ParseResponse{
			References:  res.References,
			Diagnostics: res.Diagnostics,
			Cached:      true,
		})
		return
	}

	res := s.parser.ParseDetailed(text)
	s.scans.Put(key, res)
	requestID := logging.GetRequestID(r.Context())
	for _, d := range res.Diagnostics {
		logging.DiagnosticEvent("api", d.Kind.String(), d.Text, d.Offset, "request_id", requestID)
	}
	logging.ScanCompleted("api", len(res.References), len(res.Diagnostics),
		"request_id", requestID)
	respond(w, http.StatusOK, ParseResponse{
		References:  res.References,
		Diagnostics: res.Diagnostics,
	})
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("expr")
	if expr == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "expr query parameter is required")
		return
	}
	values, err := s.parser.ExpandList(expr)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondList(w, values, len(values))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndex(w) {
		return
	}
	docs, err := s.index.Documents(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondList(w, docs, len(docs))
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndex(w) {
		return
	}
	var req AddDocumentRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := validation.ValidateName(name); err != nil {
		respondErr(w, r, err)
		return
	}
	if _, err := validation.CheckDocument([]byte(req.Text), name); err != nil {
		respondErr(w, r, err)
		return
	}

	doc, err := s.index.Add(r.Context(), name, req.Text)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndex(w) {
		return
	}
	doc, err := s.index.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, doc)
}

func (s *Server) handleDocumentText(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndex(w) {
		return
	}
	text, err := s.index.Text(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, text)
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndex(w) {
		return
	}
	id := r.PathValue("id")
	if err := s.index.Remove(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleCitations(w http.ResponseWriter, r *http.Request) {
	if !s.requireIndex(w) {
		return
	}
	q := r.URL.Query()
	chapter := 0
	if c := q.Get("chapter"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_INPUT", "chapter must be an integer")
			return
		}
		chapter = n
	}

	hits, err := s.index.Query(r.Context(), q.Get("book"), chapter)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondList(w, hits, len(hits))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, StatsInfo{
		Cache:  s.scans.Stats(),
		SQLite: sqlite.GetInfo(),
		Index:  s.index != nil,
	})
}

func (s *Server) requireIndex(w http.ResponseWriter) bool {
	if s.index == nil {
		respondError(w, http.StatusServiceUnavailable, "INDEX_UNAVAILABLE",
			"server was started without a citation index")
		return false
	}
	return true
}

// decodeBody reads a JSON body limited to MaxBodyBytes. It writes the error
// response itself and reports whether decoding succeeded.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE",
				"request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return false
		}
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// respondErr maps an error to a status code by its sentinel.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, errors.ErrDegenerateRange):
		respondError(w, http.StatusBadRequest, "DEGENERATE_RANGE", err.Error())
	case errors.Is(err, errors.ErrMalformedLocation):
		respondError(w, http.StatusBadRequest, "MALFORMED_LOCATION", err.Error())
	case errors.Is(err, errors.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	default:
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Total:     total,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
