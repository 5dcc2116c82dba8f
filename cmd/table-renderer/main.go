package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/Lllllllleong/documentextractflow/internal/models"
	"github.com/Lllllllleong/documentextractflow/internal/services"
)

var (
	rendererInstance *services.TableRendererFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("RenderResultTable", renderResultTable)
}

func main() {}

// renderResultTable is the Cloud Function entry point.
func renderResultTable(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		rendererInstance, initErr = services.NewTableRenderer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// The error is already logged with context within the Process method.
	return rendererInstance.Process(ctx, gcsEvent)
}
