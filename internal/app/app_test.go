package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mdddj/blog-new-sub000/internal/auth"
	"github.com/mdddj/blog-new-sub000/internal/config"
	"github.com/mdddj/blog-new-sub000/internal/export"
	"github.com/mdddj/blog-new-sub000/internal/history"
	"github.com/mdddj/blog-new-sub000/internal/media"
	"github.com/mdddj/blog-new-sub000/internal/preview"
	"github.com/mdddj/blog-new-sub000/internal/reading"
	"github.com/mdddj/blog-new-sub000/internal/store"
	"github.com/mdddj/blog-new-sub000/internal/timing"
)

const testSecret = "test-secret"

type memStore struct {
	mu        sync.Mutex
	blogs     map[int64]store.Blog
	documents map[int64]store.Document
	views     map[string]int
	pingErr   error
}

func newMemStore() *memStore {
	return &memStore{
		blogs: map[int64]store.Blog{
			1: {ID: 1, Title: "Hello", Slug: "hello", Content: "# Intro\n\nBody", IsPublished: true,
				References: map[string]store.Reference{}},
			2: {ID: 2, Title: "Hidden", Slug: "hidden", Content: "secret", IsPublished: false},
		},
		documents: map[int64]store.Document{
			5: {ID: 5, Name: "Guide", Filename: "guide.md", Content: "## Setup"},
		},
		views: map[string]int{},
	}
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) GetBlog(_ context.Context, id int64) (store.Blog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blogs[id]
	if !ok {
		return store.Blog{}, store.ErrNotFound
	}
	return b, nil
}

func (m *memStore) UpdateBlog(_ context.Context, b store.Blog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blogs[b.ID]; !ok {
		return store.ErrNotFound
	}
	m.blogs[b.ID] = b
	return nil
}

func (m *memStore) GetDocument(_ context.Context, id int64) (store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return d, nil
}

func (m *memStore) UpdateDocument(_ context.Context, d store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[d.ID]; !ok {
		return store.ErrNotFound
	}
	m.documents[d.ID] = d
	return nil
}

func (m *memStore) IncrementViews(_ context.Context, kind store.Kind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[fmt.Sprintf("%s-%d", kind, id)]++
	return nil
}

func (m *memStore) ListForIndex(context.Context) ([]store.IndexItem, error) {
	return nil, nil
}

func (m *memStore) blog(id int64) store.Blog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blogs[id]
}

type stubRenderer struct {
	calls int
	mu    sync.Mutex
}

func (r *stubRenderer) Render(_ context.Context, markdown string) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	var out strings.Builder
	for _, line := range strings.Split(markdown, "\n") {
		switch {
		case strings.HasPrefix(line, "## "):
			out.WriteString("<h2>" + strings.TrimPrefix(line, "## ") + "</h2>")
		case strings.HasPrefix(line, "# "):
			out.WriteString("<h1>" + strings.TrimPrefix(line, "# ") + "</h1>")
		case strings.TrimSpace(line) != "":
			out.WriteString("<p>" + line + "</p>")
		}
	}
	return out.String(), nil
}

type stubUploader struct{}

func (stubUploader) Upload(_ context.Context, f media.File) (string, error) {
	return media.Snippet(f.Name, "https://cdn.test/uploads/"+f.Name), nil
}

type testEnv struct {
	store   *memStore
	service *Service
	server  *httptest.Server
	clock   *timing.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := newMemStore()
	clock := timing.NewFake()
	cfg := config.Config{
		JWTSecret:      testSecret,
		CORSOrigin:     "*",
		AutoSaveDelay:  2 * time.Second,
		AutoSaveFlash:  2 * time.Second,
		SessionIdleTTL: time.Hour,
		ViewportWidth:  1280,
		ViewportHeight: 800,
	}
	svc := New(cfg, Deps{
		Store:    mem,
		Renderer: &stubRenderer{},
		Uploader: stubUploader{},
		History:  history.New(t.TempDir()),
		Clock:    clock,
	})
	server := httptest.NewServer(NewHTTPServer(svc, cfg.CORSOrigin).Handler())
	t.Cleanup(func() {
		server.Close()
		svc.Shutdown()
	})
	return &testEnv{store: mem, service: svc, server: server, clock: clock}
}

func tokenFor(t *testing.T, sub int64, role string) string {
	t.Helper()
	now := time.Now()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:      sub,
		Username: fmt.Sprintf("user%d", sub),
		Role:     role,
		Iat:      now.Unix(),
		Exp:      now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	payload := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func (e *testEnv) openSession(t *testing.T, token, kind string, id int64) string {
	t.Helper()
	resp, payload := e.do(t, http.MethodPost, "/api/sessions", token, map[string]any{"kind": kind, "id": id})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open session: status %d %v", resp.StatusCode, payload)
	}
	sid, _ := payload["id"].(string)
	if sid == "" {
		t.Fatalf("missing session id in %v", payload)
	}
	return sid
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	resp, payload := env.do(t, http.MethodGet, "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || payload["ok"] != true {
		t.Fatalf("health: %d %v", resp.StatusCode, payload)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	env.store.pingErr = errors.New("connection refused")
	resp, payload = env.do(t, http.MethodGet, "/api/ready", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || payload["status"] != "not_ready" {
		t.Fatalf("ready: %d %v", resp.StatusCode, payload)
	}
}

func TestViewPublishedAndHidden(t *testing.T) {
	env := newTestEnv(t)

	resp, payload := env.do(t, http.MethodGet, "/api/blogs/1/view", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("view: %d %v", resp.StatusCode, payload)
	}
	if payload["title"] != "Hello" || !strings.Contains(payload["html"].(string), `id="heading-0"`) {
		t.Fatalf("unexpected view %v", payload)
	}
	headings, _ := payload["headings"].([]any)
	if len(headings) != 1 {
		t.Fatalf("expected one heading, got %v", payload["headings"])
	}

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/blogs/2/view", http.StatusNotFound, "NOT_FOUND"},
		{"/api/blogs/99/view", http.StatusNotFound, "NOT_FOUND"},
		{"/api/blogs/abc/view", http.StatusBadRequest, "INVALID_ID"},
		{"/api/pages/1/view", http.StatusNotFound, "NOT_FOUND"},
		{"/api/documents/5/view", http.StatusOK, ""},
	}
	for _, tt := range tests {
		resp, payload := env.do(t, http.MethodGet, tt.path, "", nil)
		if resp.StatusCode != tt.status {
			t.Fatalf("%s: status %d, want %d (%v)", tt.path, resp.StatusCode, tt.status, payload)
		}
		if tt.code != "" && payload["code"] != tt.code {
			t.Fatalf("%s: code %v, want %s", tt.path, payload["code"], tt.code)
		}
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	env := newTestEnv(t)
	resp, payload := env.do(t, http.MethodGet, "/api/blogs/1/export?format=odt", "", nil)
	if resp.StatusCode != http.StatusBadRequest || payload["code"] != "UNSUPPORTED_FORMAT" {
		t.Fatalf("export: %d %v", resp.StatusCode, payload)
	}
}

func TestExportWritesDownload(t *testing.T) {
	env := newTestEnv(t)
	env.service.Exporter().WithConverter("pdf", func(_ context.Context, html, title string) (*export.Result, error) {
		return &export.Result{Data: []byte("%PDF-" + title), Filename: "Hello.pdf", MimeType: "application/pdf"}, nil
	})

	resp, err := http.Get(env.server.URL + "/api/blogs/1/export")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("export: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), `filename="Hello.pdf"`) || body.String() != "%PDF-Hello" {
		t.Fatalf("unexpected download %q %q", resp.Header.Get("Content-Disposition"), body.String())
	}
}

func TestSearchWithoutQueryIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	resp, payload := env.do(t, http.MethodGet, "/api/search?q=%20", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: %d %v", resp.StatusCode, payload)
	}
	if results, _ := payload["results"].([]any); len(results) != 0 {
		t.Fatalf("expected no results, got %v", payload)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/search?q=go&type=page", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", resp.StatusCode)
	}
}

func TestSessionsRequireAuthorization(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/sessions", "", map[string]any{"kind": "blog", "id": 1})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/sessions", "garbage", map[string]any{"kind": "blog", "id": 1})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/sessions", tokenFor(t, 3, "viewer"), map[string]any{"kind": "blog", "id": 1})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", resp.StatusCode)
	}
	resp, payload := env.do(t, http.MethodPost, "/api/sessions", tokenFor(t, 1, ""), map[string]any{"kind": "page", "id": 1})
	if resp.StatusCode != http.StatusBadRequest || payload["code"] != "INVALID_KIND" {
		t.Fatalf("expected INVALID_KIND, got %d %v", resp.StatusCode, payload)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/sessions", tokenFor(t, 1, ""), map[string]any{"kind": "blog", "id": 42})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing blog, got %d", resp.StatusCode)
	}
}

func TestEditingFlowSavesAndRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, 1, "editor")
	sid := env.openSession(t, token, "blog", 1)
	base := "/api/sessions/" + sid

	resp, payload := env.do(t, http.MethodPut, base+"/content", token, map[string]any{"content": "# Intro\n\nSee here", "caret": 7})
	if resp.StatusCode != http.StatusOK || payload["caret"] != float64(7) {
		t.Fatalf("content: %d %v", resp.StatusCode, payload)
	}

	resp, payload = env.do(t, http.MethodPost, base+"/references", token, map[string]any{"title": "RFC", "content": "Section 4.2"})
	if resp.StatusCode != http.StatusCreated || payload["id"] != "ref-1" {
		t.Fatalf("create reference: %d %v", resp.StatusCode, payload)
	}
	resp, payload = env.do(t, http.MethodPost, base+"/references/ref-1/insert", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insert reference: %d %v", resp.StatusCode, payload)
	}
	draft := payload["draft"].(map[string]any)
	if draft["content"] != "# Intro\n:::ref[ref-1]\n\n\nSee here" {
		t.Fatalf("unexpected content %q", draft["content"])
	}

	resp, payload = env.do(t, http.MethodPost, base+"/references/ref-9/insert", token, nil)
	if resp.StatusCode != http.StatusNotFound || payload["code"] != "REFERENCE_NOT_FOUND" {
		t.Fatalf("expected REFERENCE_NOT_FOUND, got %d %v", resp.StatusCode, payload)
	}

	resp, payload = env.do(t, http.MethodPost, base+"/publish", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish: %d %v", resp.StatusCode, payload)
	}
	saved := env.store.blog(1)
	if !saved.IsPublished || saved.References["ref-1"].Title != "RFC" || !strings.Contains(saved.Content, ":::ref[ref-1]") {
		t.Fatalf("unexpected stored blog %+v", saved)
	}

	resp, payload = env.do(t, http.MethodGet, base+"/history", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %v", resp.StatusCode, payload)
	}
	items, _ := payload["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one revision, got %v", payload)
	}
	short := items[0].(map[string]any)["short"].(string)

	env.do(t, http.MethodPut, base+"/content", token, map[string]any{"content": "rewritten"})
	resp, payload = env.do(t, http.MethodGet, base+"/history/"+short, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revision: %d %v", resp.StatusCode, payload)
	}
	changes, _ := payload["changes"].([]any)
	if len(changes) != 1 || changes[0].(map[string]any)["field"] != "content" {
		t.Fatalf("expected a content change, got %v", payload["changes"])
	}

	resp, _ = env.do(t, http.MethodDelete, base, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close: %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, base, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected closed session to be gone, got %d", resp.StatusCode)
	}
}

func TestSaveValidationAndRoles(t *testing.T) {
	env := newTestEnv(t)
	author := tokenFor(t, 2, "author")
	sid := env.openSession(t, author, "blog", 1)
	base := "/api/sessions/" + sid

	resp, _ := env.do(t, http.MethodPost, base+"/publish", author, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected authors to be denied publish, got %d", resp.StatusCode)
	}

	env.do(t, http.MethodPut, base+"/content", author, map[string]any{"content": "   "})
	resp, payload := env.do(t, http.MethodPost, base+"/save", author, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity || payload["code"] != "VALIDATION_FAILED" {
		t.Fatalf("expected validation failure, got %d %v", resp.StatusCode, payload)
	}

	env.do(t, http.MethodPut, base+"/content", author, map[string]any{"content": "draft body"})
	resp, payload = env.do(t, http.MethodPost, base+"/save", author, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save: %d %v", resp.StatusCode, payload)
	}
	if saved := env.store.blog(1); saved.IsPublished || saved.Content != "draft body" {
		t.Fatalf("expected unpublished draft, got %+v", saved)
	}

	other := tokenFor(t, 9, "editor")
	resp, payload = env.do(t, http.MethodGet, base, other, nil)
	if resp.StatusCode != http.StatusNotFound || payload["code"] != "SESSION_NOT_FOUND" {
		t.Fatalf("expected foreign session to be hidden, got %d %v", resp.StatusCode, payload)
	}
	resp, _ = env.do(t, http.MethodGet, base, tokenFor(t, 9, "admin"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected admin access, got %d", resp.StatusCode)
	}
}

func TestFieldsCannotPublish(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, 1, "editor")
	sid := env.openSession(t, token, "blog", 2)

	resp, payload := env.do(t, http.MethodPut, "/api/sessions/"+sid+"/fields", token, map[string]any{
		"title":     "Renamed",
		"slug":      "renamed",
		"published": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fields: %d %v", resp.StatusCode, payload)
	}
	fields := payload["draft"].(map[string]any)["fields"].(map[string]any)
	if fields["title"] != "Renamed" || fields["published"] != false {
		t.Fatalf("unexpected fields %v", fields)
	}

	resp, payload = env.do(t, http.MethodPut, "/api/sessions/"+sid+"/title", token, map[string]any{"title": "Final"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("title: %d %v", resp.StatusCode, payload)
	}
	fields = payload["draft"].(map[string]any)["fields"].(map[string]any)
	if fields["title"] != "Final" || fields["slug"] != "renamed" {
		t.Fatalf("unexpected fields after title change %v", fields)
	}
}

func TestImageUploadInsertsAtCaret(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, 1, "editor")
	sid := env.openSession(t, token, "document", 5)
	base := "/api/sessions/" + sid

	env.do(t, http.MethodPut, base+"/caret", token, map[string]any{"offset": 0})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for _, f := range []struct{ name, contentType string }{
		{"a.png", "image/png"},
		{"notes.txt", "text/plain"},
	} {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, f.name))
		header.Set("Content-Type", f.contentType)
		part, err := form.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte("data"))
	}
	_ = form.Close()

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+base+"/images", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, payload := env.send(t, req)
	if resp.StatusCode != http.StatusOK || payload["inserted"] != float64(1) {
		t.Fatalf("images: %d %v", resp.StatusCode, payload)
	}
	content := payload["session"].(map[string]any)["draft"].(map[string]any)["content"].(string)
	if content != "\n![a.png](https://cdn.test/uploads/a.png)\n## Setup" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestPreviewAndOverlayEvents(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, 1, "editor")
	sid := env.openSession(t, token, "blog", 1)
	base := "/api/sessions/" + sid

	resp, payload := env.do(t, http.MethodGet, base+"/preview", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview: %d %v", resp.StatusCode, payload)
	}
	view := payload["view"].(map[string]any)
	if !strings.Contains(view["html"].(string), "<h1") {
		t.Fatalf("unexpected preview %v", view)
	}

	resp, payload = env.do(t, http.MethodPost, base+"/preview/events", token, map[string]any{"type": "wheel"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected invalid event, got %d %v", resp.StatusCode, payload)
	}
	resp, _ = env.do(t, http.MethodPost, base+"/preview/events", token, map[string]any{"type": "key", "key": "Escape"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("key event: %d", resp.StatusCode)
	}
}

func TestPreviewTracksActiveHeading(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, 1, "editor")
	sid := env.openSession(t, token, "blog", 1)
	base := "/api/sessions/" + sid

	content := "# Intro\n\nBody\n## Next\n\nMore\n## Last"
	if resp, payload := env.do(t, http.MethodPut, base+"/content", token, map[string]any{"content": content}); resp.StatusCode != http.StatusOK {
		t.Fatalf("content: %d %v", resp.StatusCode, payload)
	}
	resp, payload := env.do(t, http.MethodGet, base+"/preview", token, nil)
	if resp.StatusCode != http.StatusOK || payload["activeHeading"] != "heading-0" {
		t.Fatalf("preview: %d %v", resp.StatusCode, payload["activeHeading"])
	}

	tests := []struct {
		name  string
		event map[string]any
		want  string
	}{
		{name: "scroll into second section", event: map[string]any{"type": "scroll", "y": 300}, want: "heading-1"},
		{name: "scroll to page end", event: map[string]any{"type": "scroll", "y": 5000}, want: "heading-2"},
		{name: "select first heading", event: map[string]any{"type": "select", "heading": "heading-0"}, want: "heading-0"},
	}
	for _, tt := range tests {
		resp, payload := env.do(t, http.MethodPost, base+"/preview/events", token, tt.event)
		if resp.StatusCode != http.StatusOK || payload["activeHeading"] != tt.want {
			t.Fatalf("%s: %d activeHeading=%v, want %s", tt.name, resp.StatusCode, payload["activeHeading"], tt.want)
		}
	}

	resp, payload = env.do(t, http.MethodPost, base+"/preview/events", token, map[string]any{"type": "select", "heading": "heading-9"})
	if resp.StatusCode != http.StatusNotFound || payload["code"] != "HEADING_NOT_FOUND" {
		t.Fatalf("select missing heading: %d %v", resp.StatusCode, payload)
	}

	for i := 0; i < 20; i++ {
		env.do(t, http.MethodGet, base+"/preview", token, nil)
		env.clock.Advance(preview.SettleDelay)
	}
	sess, err := env.service.Session(sid, Principal{UserID: 1})
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	page := sess.PreviewPage().Snapshot()
	if page.ScrollListeners != 1 || page.LiveOverlays != 0 {
		t.Fatalf("page after repeated previews = %+v", page)
	}
}

func TestLoadSwitchesDocument(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, 1, "editor")
	sid := env.openSession(t, token, "blog", 1)

	resp, payload := env.do(t, http.MethodPost, "/api/sessions/"+sid+"/load", token, map[string]any{"kind": "document", "id": 5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load: %d %v", resp.StatusCode, payload)
	}
	draft := payload["draft"].(map[string]any)
	if draft["kind"] != "document" || draft["content"] != "## Setup" || payload["caret"] != float64(-1) {
		t.Fatalf("unexpected session after load %v", payload)
	}
}

func TestAutoSavePersistsAfterDebounce(t *testing.T) {
	env := newTestEnv(t)
	env.service.cfg.AutoSaveDefault = true
	p := Principal{UserID: 1, UserName: "avery", Role: "editor"}

	status, err := env.service.OpenSession(context.Background(), p, store.KindBlog, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess, err := env.service.Session(status.ID, p)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := sess.Edit("# Intro\n\nchanged"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	env.clock.Advance(time.Second)
	if env.store.blog(1).Content != "# Intro\n\nBody" {
		t.Fatal("saved before the debounce elapsed")
	}
	env.clock.Advance(time.Second)
	sess.Wait()

	if got := env.store.blog(1).Content; got != "# Intro\n\nchanged" {
		t.Fatalf("expected auto-saved content, got %q", got)
	}
	revisions, err := env.service.History(sess, 10)
	if err != nil || len(revisions) != 1 || revisions[0].Author != "avery" {
		t.Fatalf("expected one revision by avery, got %+v (%v)", revisions, err)
	}
}

func TestReapIdleClosesStaleSessions(t *testing.T) {
	env := newTestEnv(t)
	p := Principal{UserID: 1, UserName: "avery", Role: "editor"}

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.service.now = func() time.Time { return start }
	status, err := env.service.OpenSession(context.Background(), p, store.KindBlog, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess, _ := env.service.Session(status.ID, p)

	if n := env.service.ReapIdle(start.Add(30 * time.Minute)); n != 0 {
		t.Fatalf("reaped %d active sessions", n)
	}
	if n := env.service.ReapIdle(start.Add(2 * time.Hour)); n != 1 {
		t.Fatalf("expected one reaped session, got %d", n)
	}
	if env.service.SessionCount() != 0 {
		t.Fatal("expected registry to be empty")
	}
	if err := sess.Edit("late"); err == nil {
		t.Fatal("expected edits on a reaped session to fail")
	}
}

func TestViewCacheAndReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	renderer := &stubRenderer{}
	mem := newMemStore()
	svc := New(config.Config{JWTSecret: testSecret}, Deps{
		Store:    mem,
		Renderer: renderer,
		Cache:    reading.NewCacheWithClient(client, time.Minute),
		History:  history.New(t.TempDir()),
	})
	t.Cleanup(svc.Shutdown)

	for i := 0; i < 2; i++ {
		if _, err := svc.View(context.Background(), store.KindBlog, 1, "203.0.113.7"); err != nil {
			t.Fatalf("view %d: %v", i, err)
		}
	}
	if renderer.calls != 1 {
		t.Fatalf("expected one render with a warm cache, got %d", renderer.calls)
	}
	if got := mem.views["blog-1"]; got != 1 {
		t.Fatalf("expected one counted view per address, got %d", got)
	}

	checks := svc.Ping(context.Background())
	if err, ok := checks["cache"]; !ok || err != nil {
		t.Fatalf("expected healthy cache check, got %v", checks)
	}
}
