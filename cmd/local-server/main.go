package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/Lllllllleong/documentextractflow/internal/gcp"
	"github.com/Lllllllleong/documentextractflow/internal/models"
	"github.com/Lllllllleong/documentextractflow/internal/services"
	"github.com/joho/godotenv"
)

// local-server runs the HTTP entry points on one port for development. The
// environment is read from .env when present.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file loaded, using process environment", "error", err)
	}

	ctx := context.Background()

	processor, err := services.NewDocumentProcessor(ctx)
	if err != nil {
		slog.Error("Failed to initialize document processor", "error", err)
		os.Exit(1)
	}
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/ProcessDocumentHTTP", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Bad Request: could not read body", http.StatusBadRequest)
			return
		}
		outcome, err := processor.Process(r.Context(), body)
		if err != nil {
			slog.Error("Processing could not start", "error", err)
			http.Error(w, "Internal Server Error: processing could not start", http.StatusInternalServerError)
			return
		}
		writeOutcome(w, outcome)
	}); err != nil {
		slog.Error("Failed to register ProcessDocumentHTTP", "error", err)
		os.Exit(1)
	}

	// The uploader is optional locally; it needs UPLOAD_BUCKET.
	if uploader, err := services.NewUploader(ctx); err != nil {
		slog.Warn("Uploader disabled", "error", err)
	} else if err := funcframework.RegisterHTTPFunctionContext(ctx, "/UploadDocument", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
		if err != nil {
			http.Error(w, "Bad Request: could not read body", http.StatusBadRequest)
			return
		}
		writeOutcome(w, uploader.Process(r.Context(), body, r.Header.Get("filename")))
	}); err != nil {
		slog.Error("Failed to register UploadDocument", "error", err)
		os.Exit(1)
	}

	port := gcp.GetEnv("PORT", "8080")
	slog.Info("Local server listening", "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}

func writeOutcome(w http.ResponseWriter, outcome models.Outcome) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(outcome.StatusCode)
	if err := json.NewEncoder(w).Encode(outcome); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
