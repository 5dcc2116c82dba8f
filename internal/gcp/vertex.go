package gcp

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
)

// --- Extraction Model Prompt ---
const ExtractionUserPrompt = "Analyze this document and return structured JSON:"

// Fixed generation parameters shared by every model provider.
const (
	ExtractionMaxTokens   = 1024
	ExtractionTemperature = 0.5
	ExtractionTopP        = 0.9
)

// AnthropicVertexVersion is the protocol tag Vertex AI requires in Claude request bodies.
const AnthropicVertexVersion = "vertex-2023-10-16"

const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// DefaultModelID returns the model used for a provider when MODEL_ID is not set.
func DefaultModelID(provider string) string {
	if provider == ProviderGemini {
		return "gemini-1.5-pro"
	}
	return "claude-3-5-sonnet-v2@20241022"
}

// VertexClient holds the clients needed to reach the configured extraction model.
// Exactly one of ExtractionModel and Predictions is set, depending on the provider.
type VertexClient struct {
	ExtractionModel *genai.GenerativeModel
	Predictions     *aiplatform.PredictionClient
	ModelEndpoint   string
	baseClient      *genai.Client
}

// NewVertexClient creates a client for the given provider and model.
func NewVertexClient(ctx context.Context, projectID, region, provider, modelID string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	switch provider {
	case ProviderGemini:
		baseClient, err := genai.NewClient(ctx, projectID, region)
		if err != nil {
			return nil, fmt.Errorf("genai.NewClient: %w", err)
		}

		extractionModel := baseClient.GenerativeModel(modelID)
		extractionModel.SetMaxOutputTokens(ExtractionMaxTokens)
		extractionModel.SetTemperature(ExtractionTemperature)
		extractionModel.SetTopP(ExtractionTopP)

		return &VertexClient{
			ExtractionModel: extractionModel,
			baseClient:      baseClient,
		}, nil

	case ProviderAnthropic:
		endpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", region)
		predictions, err := aiplatform.NewPredictionClient(ctx, option.WithEndpoint(endpoint))
		if err != nil {
			return nil, fmt.Errorf("aiplatform.NewPredictionClient: %w", err)
		}
		return &VertexClient{
			Predictions:   predictions,
			ModelEndpoint: fmt.Sprintf("projects/%s/locations/%s/publishers/anthropic/models/%s", projectID, region, modelID),
		}, nil

	default:
		return nil, fmt.Errorf("NewVertexClient: unknown model provider %q", provider)
	}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	if c.Predictions != nil {
		return c.Predictions.Close()
	}
	return nil
}
