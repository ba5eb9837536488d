package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pagetree/internal/rbac"
	"pagetree/internal/resolve"
	"pagetree/internal/search"
	"pagetree/internal/tree"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}
	read := r.Method == http.MethodGet || r.Method == http.MethodHead

	if read && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if read && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if read && r.URL.Path == "/metrics" && s.service.metrics != nil {
		s.service.metrics.Handler().ServeHTTP(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/") {
		requester, err := s.service.Requester(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		s.handleAPI(w, r, requester)
		return
	}

	if read && s.underMount(r.URL.Path) {
		s.handlePage(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAPI(w http.ResponseWriter, r *http.Request, requester rbac.Requester) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/pages/new":
		var body tree.InsertInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		page, err := s.service.InsertPage(r.Context(), body, requester)
		if err != nil {
			s.writeServiceError(w, r, err, requester)
			return
		}
		writeJSON(w, http.StatusCreated, page)

	case r.Method == http.MethodPost && r.URL.Path == "/api/pages/edit":
		var body tree.RenameInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.OriginalSlug) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "originalSlug is required", nil)
			return
		}
		result, err := s.service.EditPage(r.Context(), body, requester)
		if err != nil {
			s.writeServiceError(w, r, err, requester)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodPost && r.URL.Path == "/api/pages/delete":
		var body struct {
			Slug string `json:"slug"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Slug) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "slug is required", nil)
			return
		}
		parent, err := s.service.RemovePage(r.Context(), body.Slug, requester)
		if err != nil {
			s.writeServiceError(w, r, err, requester)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "parentSlug": parent})

	case r.Method == http.MethodGet && r.URL.Path == "/api/pages/tree":
		query := r.URL.Query()
		node, err := s.service.Tree(r.Context(), query.Get("slug"), queryInt(query.Get("depth"), 1), requester)
		if err != nil {
			s.writeServiceError(w, r, err, requester)
			return
		}
		writeJSON(w, http.StatusOK, node)

	case r.Method == http.MethodGet && r.URL.Path == "/api/pages/history":
		query := r.URL.Query()
		if hash := query.Get("hash"); hash != "" {
			snap, err := s.service.Revision(r.Context(), query.Get("slug"), hash, requester)
			if err != nil {
				s.writeServiceError(w, r, err, requester)
				return
			}
			writeJSON(w, http.StatusOK, snap)
			return
		}
		commits, err := s.service.History(r.Context(), query.Get("slug"), queryInt(query.Get("limit"), 0), requester)
		if err != nil {
			s.writeServiceError(w, r, err, requester)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": commits})

	case r.Method == http.MethodGet && r.URL.Path == "/api/search":
		query := r.URL.Query()
		resp := s.service.Search(r.Context(), search.Query{
			Text:   query.Get("q"),
			Type:   query.Get("type"),
			Limit:  queryInt(query.Get("limit"), 0),
			Offset: queryInt(query.Get("offset"), 0),
		}, requester)
		writeJSON(w, http.StatusOK, resp)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"search":   map[string]any{"status": "ok", "indexed": s.service.search.Healthy()},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	} else if pages, err := s.service.CountPages(ctx); err == nil {
		checks["database"] = map[string]any{"status": "ok", "pages": pages}
	}

	if external, err := s.service.PingCounter(ctx); external {
		checks["counter"] = map[string]any{"status": "ok"}
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["counter"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handlePage resolves the requested address and writes it through the
// configured renderer.
func (s *HTTPServer) handlePage(w http.ResponseWriter, r *http.Request) {
	requester, err := s.service.Requester(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	c := s.service.Resolve(r.Context(), s.service.SlugFor(r.URL.Path), requester)
	if c.Outcome == resolve.OutcomeRedirect {
		location := s.service.URLFor(c.RedirectTo)
		w.Header().Set("Location", location)
		writeJSON(w, http.StatusFound, map[string]any{"redirect": location})
		return
	}

	renderer := s.service.Renderer()
	var buf bytes.Buffer
	if err := renderer.Render(&buf, c.Template, c); err != nil {
		log.Printf("request %s: render %s (%s): %v", RequestID(r.Context()), c.Requested, c.Template, err)
		writeError(w, http.StatusInternalServerError, "RENDER_FAILED", "Render failed", nil)
		return
	}
	w.Header().Set("Content-Type", renderer.ContentType())
	w.WriteHeader(c.Status())
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) underMount(path string) bool {
	mount := s.service.mount()
	if mount == "/" {
		return true
	}
	return path == mount || strings.HasPrefix(path, mount+"/")
}

// writeServiceError maps err onto a response. A guest who is denied is told
// to authenticate instead.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error, requester rbac.Requester) {
	if errors.Is(err, tree.ErrPermissionDenied) && !requester.Authenticated() {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request %s failed: %v", RequestID(r.Context()), err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.service.metrics.ObserveHTTP(routeLabel(r.URL.Path), writer.status, elapsed)
		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			elapsed.Milliseconds(),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id the middleware assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// routeLabel keeps metric cardinality bounded: page addresses collapse into
// a single label.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/api/") || path == "/metrics" {
		return path
	}
	return "page"
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
