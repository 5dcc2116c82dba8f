package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentextractflow/internal/services"
)

// maxUploadBytes bounds the base64 request body.
const maxUploadBytes = 32 << 20

var (
	uploaderInstance *services.UploaderFunction
	once             sync.Once
	initErr          error
)

func init() {
	// Register the HTTP function with the framework.
	// "UploadDocument" is the entry point name configured in GCP.
	functions.HTTP("UploadDocument", uploadDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// uploadDocument is the HTTP handler. The body is the base64-encoded file and
// the optional "filename" header names it.
func uploadDocument(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		uploaderInstance, initErr = services.NewUploader(context.Background())
	})
	if initErr != nil {
		log.Printf("CRITICAL: Uploader initialization failed: %v", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		log.Printf("ERROR: Could not read request body: %v", err)
		http.Error(w, "Bad Request: could not read body", http.StatusBadRequest)
		return
	}

	outcome := uploaderInstance.Process(r.Context(), body, r.Header.Get("filename"))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(outcome.StatusCode)
	if _, err := io.WriteString(w, outcome.Body); err != nil {
		log.Printf("ERROR: Failed to write response: %v", err)
	}
}
