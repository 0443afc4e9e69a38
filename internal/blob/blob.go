// Package blob stores binary artifact payloads and returns the URL they are served from.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Store uploads objects.
type Store interface {
	// Put writes data under key and returns the object's URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Key builds the object key for a project file.
func Key(projectID, filename string) string {
	return path.Join(projectID, path.Base(filename))
}

var extensionTypes = map[string]string{
	".md":   "text/markdown; charset=utf-8",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".json": "application/json",
}

// DetectContentType returns the MIME type for data, preferring the filename extension
// for formats content sniffing cannot tell apart from plain text or zip.
func DetectContentType(filename string, data []byte) string {
	if ct, ok := extensionTypes[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return mimetype.Detect(data).String()
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
