package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mdddj/blog-new-sub000/internal/auth"
	"github.com/mdddj/blog-new-sub000/internal/editor"
	"github.com/mdddj/blog-new-sub000/internal/export"
	"github.com/mdddj/blog-new-sub000/internal/media"
	"github.com/mdddj/blog-new-sub000/internal/rbac"
	"github.com/mdddj/blog-new-sub000/internal/search"
	"github.com/mdddj/blog-new-sub000/internal/store"
)

const (
	maxUploadMemory = 32 << 20
	historyLimit    = 50
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

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	if parts[1] == "sessions" {
		principal, ok := s.requirePrincipal(w, r)
		if !ok {
			return
		}
		s.handleSessions(w, r, principal, parts[2:])
		return
	}

	// /api/{blogs|documents}/{id}/{view|export}
	if len(parts) == 4 && r.Method == http.MethodGet {
		kind, ok := kindFromPath(parts[1])
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
			return
		}
		id, err := parseID(parts[2])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		switch parts[3] {
		case "view":
			view, err := s.service.View(r.Context(), kind, id, clientIP(r))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
			return
		case "export":
			s.handleExport(w, r, kind, id)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := s.service.Ping(ctx)
	checks := map[string]any{}
	for _, name := range sortedCheckNames(results) {
		if err := results[name]; err != nil {
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	statusCode := statusFor(results)
	status := "ready"
	if statusCode != http.StatusOK {
		status = "not_ready"
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":       statusCode == http.StatusOK,
		"status":   status,
		"checks":   checks,
		"sessions": s.service.SessionCount(),
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := search.Query{
		Text:       values.Get("q"),
		FilterType: search.ResultType(values.Get("type")),
		Limit:      atoiDefault(values.Get("limit"), 20),
		Offset:     atoiDefault(values.Get("offset"), 0),
	}
	if q.FilterType != "" && q.FilterType != search.ResultBlog && q.FilterType != search.ResultDocument {
		writeDomainError(w, errInvalidKind)
		return
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if strings.TrimSpace(q.Text) == "" {
		writeJSON(w, http.StatusOK, search.Response{Results: []search.Result{}})
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, kind store.Kind, id int64) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	result, err := s.service.Export(r.Context(), export.Request{
		Kind:      string(kind),
		ID:        id,
		Format:    format,
		OmitNotes: r.URL.Query().Get("notes") == "false",
	})
	if err != nil {
		log.Printf("export: %s %d as %s: %v", kind, id, format, err)
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request, p Principal, parts []string) {
	if !s.service.Can(p, rbac.ActionWrite) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return
	}

	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body struct {
			Kind string `json:"kind"`
			ID   int64  `json:"id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
			return
		}
		kind := store.Kind(body.Kind)
		if !kind.Valid() {
			writeDomainError(w, errInvalidKind)
			return
		}
		if body.ID <= 0 {
			writeDomainError(w, errInvalidID)
			return
		}
		status, err := s.service.OpenSession(r.Context(), p, kind, body.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, status)
		return
	}

	sid := parts[0]
	if len(parts) == 1 && r.Method == http.MethodDelete {
		if err := s.service.CloseSession(sid, p); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	sess, err := s.service.Session(sid, p)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		writeJSON(w, http.StatusOK, sess.Status())
		return
	}

	switch {
	case parts[1] == "content" && r.Method == http.MethodPut:
		var body struct {
			Content string `json:"content"`
			Caret   *int   `json:"caret"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
			return
		}
		if err := sess.Edit(body.Content); err != nil {
			writeDomainError(w, err)
			return
		}
		if body.Caret != nil {
			sess.MoveCaret(*body.Caret)
		}
		writeJSON(w, http.StatusOK, sess.Status())

	case parts[1] == "fields" && r.Method == http.MethodPut:
		var fields editor.Fields
		if err := decodeBody(r, &fields); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
			return
		}
		// Publication only changes through the publish action.
		fields.Published = sess.Draft().Fields.Published
		if err := sess.SetFields(fields); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Status())

	case parts[1] == "title" && r.Method == http.MethodPut:
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
			return
		}
		if err := sess.SetTitle(body.Title); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Status())

	case parts[1] == "caret" && r.Method == http.MethodPut:
		var body struct {
			Offset int `json:"offset"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
			return
		}
		sess.MoveCaret(body.Offset)
		writeJSON(w, http.StatusOK, map[string]any{"caret": sess.Status().Caret})

	case parts[1] == "images" && r.Method == http.MethodPost:
		s.handleImages(w, r, sess)

	case parts[1] == "references":
		s.handleReferences(w, r, sess, parts[2:])

	case parts[1] == "autosave" && r.Method == http.MethodPost:
		enabled := sess.ToggleAutoSave()
		writeJSON(w, http.StatusOK, map[string]any{"enabled": enabled})

	case parts[1] == "save" && r.Method == http.MethodPost:
		if !s.service.Can(p, rbac.ActionDraft) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := sess.SaveDraft(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Status())

	case parts[1] == "publish" && r.Method == http.MethodPost:
		if !s.service.Can(p, rbac.ActionPublish) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := sess.Publish(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Status())

	case parts[1] == "load" && r.Method == http.MethodPost:
		var body struct {
			Kind string `json:"kind"`
			ID   int64  `json:"id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
			return
		}
		kind := store.Kind(body.Kind)
		if body.Kind == "" {
			kind = store.Kind(sess.Draft().Kind)
		}
		if !kind.Valid() {
			writeDomainError(w, errInvalidKind)
			return
		}
		if body.ID <= 0 {
			writeDomainError(w, errInvalidID)
			return
		}
		if err := s.service.LoadInto(r.Context(), sess, kind, body.ID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Status())

	case parts[1] == "preview" && len(parts) == 2 && r.Method == http.MethodGet:
		view, err := sess.Preview(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"view":          view,
			"overlay":       sess.Status().Preview,
			"page":          sess.PreviewPage().Snapshot(),
			"activeHeading": sess.ActiveHeading(),
		})

	case parts[1] == "preview" && len(parts) == 3 && parts[2] == "events" && r.Method == http.MethodPost:
		s.handlePreviewEvent(w, r, sess)

	case parts[1] == "history" && len(parts) == 2 && r.Method == http.MethodGet:
		limit := atoiDefault(r.URL.Query().Get("limit"), historyLimit)
		revisions, err := s.service.History(sess, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": revisions})

	case parts[1] == "history" && len(parts) == 3 && r.Method == http.MethodGet:
		content, changes, err := s.service.Revision(sess, parts[2])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"content": content, "changes": changes})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReferences(w http.ResponseWriter, r *http.Request, sess *editor.Session, parts []string) {
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": sess.Draft().References})

	case len(parts) == 0 && r.Method == http.MethodPost:
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
			return
		}
		ref, err := sess.CreateReference(body.Title, body.Content)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ref)

	case len(parts) == 1 && r.Method == http.MethodPut:
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
			return
		}
		ref, err := sess.UpdateReference(parts[0], body.Title, body.Content)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ref)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := sess.DeleteReference(parts[0]); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 2 && parts[1] == "insert" && r.Method == http.MethodPost:
		if err := sess.InsertReference(parts[0]); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Status())

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleImages(w http.ResponseWriter, r *http.Request, sess *editor.Session) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Expected multipart form data", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]media.File, 0, len(headers))
	bodies := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, body := range bodies {
			body.Close()
		}
	}()
	for _, fh := range headers {
		body, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", fmt.Sprintf("open %s: %v", fh.Filename, err), nil)
			return
		}
		bodies = append(bodies, body)
		files = append(files, media.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        body,
		})
	}

	inserted, err := sess.InsertImages(r.Context(), files)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inserted": inserted,
		"session":  sess.Status(),
	})
}

// handlePreviewEvent drives the preview page the way a browser would.
func (s *HTTPServer) handlePreviewEvent(w http.ResponseWriter, r *http.Request, sess *editor.Session) {
	var body struct {
		Type    string  `json:"type"`
		Index   int     `json:"index"`
		Key     string  `json:"key"`
		Y       float64 `json:"y"`
		Heading string  `json:"heading"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
		return
	}

	page := sess.PreviewPage()
	switch body.Type {
	case "hover":
		page.Hover(body.Index)
	case "leave":
		page.Leave(body.Index)
	case "click":
		page.Press(body.Index)
	case "key":
		page.Key(body.Key)
	case "dismiss":
		page.DismissModal()
	case "scroll":
		page.ScrollTo(body.Y)
	case "select":
		if !sess.SelectHeading(body.Heading) {
			writeError(w, http.StatusNotFound, "HEADING_NOT_FOUND", "heading not found", nil)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "INVALID_EVENT", "type must be hover, leave, click, key, dismiss, scroll or select", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overlay":       sess.Status().Preview,
		"page":          page.Snapshot(),
		"activeHeading": sess.ActiveHeading(),
	})
}

func (s *HTTPServer) requirePrincipal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Principal{}, false
	}
	principal, err := s.service.Authenticate(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Principal{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Token check failed", nil)
		return Principal{}, false
	}
	return principal, true
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

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

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

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
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

func writeDomainError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("app: %v", err)
	}
	writeError(w, status, code, message, details)
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

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func kindFromPath(segment string) (store.Kind, bool) {
	switch segment {
	case "blogs":
		return store.KindBlog, true
	case "documents":
		return store.KindDocument, true
	}
	return "", false
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

func atoiDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
