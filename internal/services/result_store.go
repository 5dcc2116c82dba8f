package services

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentextractflow/internal/gcp"
)

// ObjectStore is the object storage used by the functions.
type ObjectStore interface {
	Write(ctx context.Context, bucket, object, contentType string, content []byte) error
	// WriteIfAbsent fails instead of replacing an existing object.
	WriteIfAbsent(ctx context.Context, bucket, object, contentType string, content []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// gcsStore is the Cloud Storage ObjectStore.
type gcsStore struct {
	client *storage.Client
}

// NewGCSStore wraps a storage client.
func NewGCSStore(client *storage.Client) ObjectStore {
	return &gcsStore{client: client}
}

func (s *gcsStore) Write(ctx context.Context, bucket, object, contentType string, content []byte) error {
	return gcp.SaveToGCS(ctx, s.client.Bucket(bucket), object, contentType, content)
}

func (s *gcsStore) WriteIfAbsent(ctx context.Context, bucket, object, contentType string, content []byte) error {
	return gcp.SaveToGCSAtomically(ctx, s.client.Bucket(bucket), object, contentType, content)
}

func (s *gcsStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	return gcp.ReadFromGCS(ctx, s.client.Bucket(bucket), object)
}

// KeyMapping rewrites an object key from one storage area to another. Only a
// leading FromPrefix is replaced; a key outside FromPrefix gets ToPrefix
// prepended. The final extension is looked up in Extensions; an unknown or
// missing extension gets DefaultExtension appended.
type KeyMapping struct {
	FromPrefix       string
	ToPrefix         string
	Extensions       map[string]string
	DefaultExtension string
}

// Map applies the mapping to key.
func (m KeyMapping) Map(key string) string {
	rest, ok := strings.CutPrefix(key, m.FromPrefix)
	if !ok {
		rest = key
	}

	ext := path.Ext(rest)
	if replacement, ok := m.Extensions[strings.ToLower(ext)]; ok {
		rest = strings.TrimSuffix(rest, ext) + replacement
	} else {
		rest += m.DefaultExtension
	}
	return m.ToPrefix + rest
}

// ResultKeyMapping maps uploaded documents to their JSON results.
var ResultKeyMapping = KeyMapping{
	FromPrefix: "uploads/",
	ToPrefix:   "results/",
	Extensions: map[string]string{
		".pdf":  ".json",
		".png":  ".json",
		".jpg":  ".json",
		".jpeg": ".json",
		".tif":  ".json",
		".tiff": ".json",
		".gif":  ".json",
		".bmp":  ".json",
		".webp": ".json",
	},
	DefaultExtension: ".json",
}

// RenderedKeyMapping maps JSON results to their rendered PDF tables.
var RenderedKeyMapping = KeyMapping{
	FromPrefix:       "results/",
	ToPrefix:         "processed/",
	Extensions:       map[string]string{".json": ".pdf"},
	DefaultExtension: ".pdf",
}

// StoreResult persists sanitized model output next to the source document and
// returns the key it was written to.
func StoreResult(ctx context.Context, store ObjectStore, ref DocumentRef, text string) (string, error) {
	resultKey := ResultKeyMapping.Map(ref.Key)
	if err := store.Write(ctx, ref.Bucket, resultKey, "application/json", []byte(text)); err != nil {
		return "", newStageError(StagePersist, fmt.Errorf("write %s: %w", gsURI(ref.Bucket, resultKey), err))
	}
	return resultKey, nil
}
