// Package media uploads editor images to S3-compatible object storage and
// returns the markup snippet that embeds them.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEmptyFile = errors.New("empty file")
	ErrNotImage  = errors.New("not an image")
)

// File is an upload received from the editor. Size may be -1 when unknown.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (f File) IsImage() bool {
	return strings.HasPrefix(f.ContentType, "image/")
}

// ObjectStore is the subset of an S3 client the uploader needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
}

// Uploader stores images under uploads/ and links them from publicBase.
type Uploader struct {
	store      ObjectStore
	publicBase string
	bucket     string
	newID      func() string
}

func NewUploader(store ObjectStore, publicBase, bucket string) *Uploader {
	return &Uploader{
		store:      store,
		publicBase: strings.TrimRight(publicBase, "/"),
		bucket:     bucket,
		newID:      uuid.NewString,
	}
}

// Upload stores f and returns an image snippet linking to it.
func (u *Uploader) Upload(ctx context.Context, f File) (string, error) {
	if !f.IsImage() {
		return "", ErrNotImage
	}
	if f.Body == nil || f.Size == 0 {
		return "", ErrEmptyFile
	}
	key := ObjectKey(u.newID(), f.Name)
	if err := u.store.Put(ctx, key, f.Body, f.Size, f.ContentType); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	log.Printf("media: uploaded %s as %s (%s)", f.Name, key, FormatSize(f.Size))
	return Snippet(f.Name, u.URL(key)), nil
}

// URL is the public address of an object key.
func (u *Uploader) URL(key string) string {
	return u.publicBase + "/" + u.bucket + "/" + key
}

// ObjectKey builds uploads/<id>.<ext>, omitting the extension when the
// original name has none.
func ObjectKey(id, name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return "uploads/" + id
	}
	return "uploads/" + id + "." + ext
}

// Snippet is the markdown image embedding url under name.
func Snippet(name, url string) string {
	return "![" + name + "](" + url + ")"
}

// FormatSize renders a byte count for notifications.
func FormatSize(bytes int64) string {
	switch {
	case bytes < 0:
		return "unknown size"
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
	}
}
