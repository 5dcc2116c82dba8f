package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/Lllllllleong/documentextractflow/internal/services"
)

// maxNotificationBytes bounds the HTTP trigger body.
const maxNotificationBytes = 1 << 20

var (
	processorInstance *services.DocumentProcessorFunction
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Storage trigger (object finalized). Objects outside uploads/ are skipped.
	functions.CloudEvent("ProcessDocument", processDocument)
	// Manual or forwarded notifications.
	functions.HTTP("ProcessDocumentHTTP", processDocumentHTTP)
}

// main is required by the Go Functions Framework.
func main() {}

func processor() (*services.DocumentProcessorFunction, error) {
	once.Do(func() {
		processorInstance, initErr = services.NewDocumentProcessor(context.Background())
	})
	return processorInstance, initErr
}

// processDocument is the CloudEvent entry point. A 5xx outcome is returned as
// an error so that the trigger's redelivery policy applies; a malformed event
// is acknowledged because redelivering it cannot succeed.
func processDocument(ctx context.Context, e cloudevents.Event) error {
	p, err := processor()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	outcome, err := p.Process(ctx, e.Data())
	if err != nil {
		slog.Error("Document processing could not start", "error", err, "eventId", e.ID())
		return err
	}
	if outcome.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("document processing failed: %d %s", outcome.StatusCode, outcome.Body)
	}
	return nil
}

// processDocumentHTTP accepts a storage-change notification as the request
// body and answers with the outcome.
func processDocumentHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := processor()
	if err != nil {
		slog.Error("Critical: DocumentProcessor initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		slog.Warn("Could not read request body", "error", err)
		http.Error(w, "Bad Request: could not read body", http.StatusBadRequest)
		return
	}

	outcome, err := p.Process(r.Context(), body)
	if err != nil {
		if errors.Is(err, services.ErrConfiguration) {
			slog.Error("Critical: processor is misconfigured", "error", err)
		}
		http.Error(w, "Internal Server Error: processing could not start", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(outcome.StatusCode)
	if err := json.NewEncoder(w).Encode(outcome); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
