package gcp

import (
	"context"
	"fmt"

	documentai "cloud.google.com/go/documentai/apiv1"
	"google.golang.org/api/option"
)

// NewDocumentAIClient creates a Document AI client bound to the regional
// endpoint of the given location ("us" or "eu").
func NewDocumentAIClient(ctx context.Context, location string) (*documentai.DocumentProcessorClient, error) {
	if location == "" {
		return nil, fmt.Errorf("NewDocumentAIClient: location cannot be empty")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("documentai.NewDocumentProcessorClient: %w", err)
	}
	return client, nil
}

// ProcessorName builds the fully qualified resource name of a Document AI processor.
func ProcessorName(projectID, location, processorID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID)
}
