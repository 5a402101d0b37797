package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryStore) Remove(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestUploadReturnsSnippet(t *testing.T) {
	store := newMemoryStore()
	u := NewUploader(store, "http://localhost:9000/", "blog")
	u.newID = func() string { return "fixed" }

	snippet, err := u.Upload(context.Background(), File{
		Name:        "cat.png",
		ContentType: "image/png",
		Size:        4,
		Body:        bytes.NewReader([]byte("data")),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if want := "![cat.png](http://localhost:9000/blog/uploads/fixed.png)"; snippet != want {
		t.Fatalf("Upload() = %q, want %q", snippet, want)
	}
	if string(store.objects["uploads/fixed.png"]) != "data" || store.types["uploads/fixed.png"] != "image/png" {
		t.Fatalf("stored objects = %v", store.objects)
	}
}

func TestUploadRejects(t *testing.T) {
	u := NewUploader(newMemoryStore(), "http://s3", "b")
	if _, err := u.Upload(context.Background(), File{Name: "a.txt", ContentType: "text/plain", Size: 1, Body: strings.NewReader("x")}); !errors.Is(err, ErrNotImage) {
		t.Fatalf("Upload(text) error = %v, want ErrNotImage", err)
	}
	if _, err := u.Upload(context.Background(), File{Name: "a.png", ContentType: "image/png", Size: 0, Body: strings.NewReader("")}); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("Upload(empty) error = %v, want ErrEmptyFile", err)
	}
}

func TestUploadStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("bucket offline")
	u := NewUploader(store, "http://s3", "b")
	_, err := u.Upload(context.Background(), File{Name: "a.png", ContentType: "image/png", Size: -1, Body: strings.NewReader("x")})
	if err == nil || !strings.Contains(err.Error(), "bucket offline") {
		t.Fatalf("Upload() error = %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	cases := []struct{ name, want string }{
		{name: "photo.jpeg", want: "uploads/id.jpeg"},
		{name: "archive.tar.gz", want: "uploads/id.gz"},
		{name: "README", want: "uploads/id"},
	}
	for _, tc := range cases {
		if got := ObjectKey("id", tc.name); got != tc.want {
			t.Fatalf("ObjectKey(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{bytes: 512, want: "512 B"},
		{bytes: 1536, want: "1.5 KB"},
		{bytes: 3 * 1024 * 1024, want: "3.00 MB"},
		{bytes: -1, want: "unknown size"},
	}
	for _, tc := range cases {
		if got := FormatSize(tc.bytes); got != tc.want {
			t.Fatalf("FormatSize(%d) = %q, want %q", tc.bytes, got, tc.want)
		}
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		host   string
		secure bool
	}{
		{in: "localhost:9000", host: "localhost:9000"},
		{in: "http://minio:9000", host: "minio:9000"},
		{in: "https://s3.example.com", host: "s3.example.com", secure: true},
	}
	for _, tc := range cases {
		host, secure, err := splitEndpoint(tc.in)
		if err != nil || host != tc.host || secure != tc.secure {
			t.Fatalf("splitEndpoint(%q) = %q, %v, %v", tc.in, host, secure, err)
		}
	}
}
