package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetDurationEnv reads a duration such as "30s" from the environment.
// An unset or empty variable yields the fallback.
func GetDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := GetEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative, got %s", key, d)
	}
	return d, nil
}

// SaveToGCS writes content to a GCS object, replacing any existing object.
func SaveToGCS(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).NewWriter(ctx)
	return writeAndClose(writer, objectName, contentType, content)
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is reported as ErrObjectExists.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	err := writeAndClose(writer, objectName, contentType, content)
	if isPreconditionFailed(err) {
		slog.Warn("Object already exists, write skipped.", "gcsObject", objectName)
		return ErrObjectExists
	}
	return err
}

// ErrObjectExists is returned by SaveToGCSAtomically when the target object is already present.
var ErrObjectExists = errors.New("object already exists")

// ReadFromGCS downloads a whole GCS object into memory.
func ReadFromGCS(ctx context.Context, bucket *storage.BucketHandle, objectName string) ([]byte, error) {
	reader, err := bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", objectName, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", objectName, err)
	}
	return data, nil
}

func writeAndClose(writer *storage.Writer, objectName, contentType string, content []byte) error {
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", objectName, err)
	}
	// The upload is only committed on Close, which is where most server-side
	// errors (including failed preconditions) surface.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write for %s: %w", objectName, err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
