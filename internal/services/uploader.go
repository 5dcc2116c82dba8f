package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentextractflow/internal/gcp"
	"github.com/Lllllllleong/documentextractflow/internal/models"
	"github.com/google/uuid"
)

// UploaderConfig holds configuration for the document-uploader service.
type UploaderConfig struct {
	UploadBucket string
}

// UploaderFunction stores uploaded documents under uploads/, where they
// trigger the document processor.
type UploaderFunction struct {
	store  ObjectStore
	config UploaderConfig
	newID  func() string
}

// NewUploader creates a new UploaderFunction instance.
func NewUploader(ctx context.Context) (*UploaderFunction, error) {
	config := UploaderConfig{
		UploadBucket: gcp.GetEnv("UPLOAD_BUCKET", ""),
	}
	if config.UploadBucket == "" {
		return nil, fmt.Errorf("UPLOAD_BUCKET environment variable must be set")
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &UploaderFunction{
		store:  NewGCSStore(storageClient),
		config: config,
		newID:  uuid.NewString,
	}, nil
}

// Process decodes a base64 request body and stores it as uploads/<filename>.
func (f *UploaderFunction) Process(ctx context.Context, body []byte, filename string) models.Outcome {
	encoded := bytes.TrimSpace(body)
	if len(encoded) == 0 {
		return models.Outcome{StatusCode: http.StatusBadRequest, Body: "Missing file content in request body"}
	}

	content, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		slog.Warn("Upload body is not valid base64", "error", err)
		return models.Outcome{StatusCode: http.StatusInternalServerError, Body: fmt.Sprintf("Error: %v", err)}
	}

	objectName := "uploads/" + f.uploadName(filename)
	if err := f.store.Write(ctx, f.config.UploadBucket, objectName, "application/pdf", content); err != nil {
		slog.Error("Failed to store upload", "error", err, "bucket", f.config.UploadBucket, "object", objectName)
		return models.Outcome{StatusCode: http.StatusInternalServerError, Body: fmt.Sprintf("Error: %v", err)}
	}

	slog.Info("Document uploaded.", "gcsUri", gsURI(f.config.UploadBucket, objectName), "bytes", len(content))
	return models.Outcome{StatusCode: http.StatusOK, Body: "Uploaded to storage as " + objectName}
}

// uploadName keeps only the last path element of the requested name so that
// an upload cannot escape uploads/.
func (f *UploaderFunction) uploadName(requested string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(requested), `\`, "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return f.newID() + ".pdf"
	}
	return name
}
