package services

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/Lllllllleong/documentextractflow/internal/gcp"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/genproto/googleapis/api/httpbody"
)

// RawPredictor is the subset of the Vertex AI prediction client used to reach
// partner models.
type RawPredictor interface {
	RawPredict(ctx context.Context, req *aiplatformpb.RawPredictRequest, opts ...gax.CallOption) (*httpbody.HttpBody, error)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	Messages         []anthropicMessage `json:"messages"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	TopP             float64            `json:"top_p"`
	StopSequences    []string           `json:"stop_sequences"`
}

// anthropicInvoker calls a Claude model published on Vertex AI.
type anthropicInvoker struct {
	predictor RawPredictor
	endpoint  string
}

func newAnthropicRequest(transcript string) anthropicRequest {
	return anthropicRequest{
		AnthropicVersion: gcp.AnthropicVertexVersion,
		Messages: []anthropicMessage{
			{Role: "user", Content: extractionPrompt(transcript)},
		},
		MaxTokens:     gcp.ExtractionMaxTokens,
		Temperature:   gcp.ExtractionTemperature,
		TopP:          gcp.ExtractionTopP,
		StopSequences: []string{},
	}
}

func (a *anthropicInvoker) InvokeModel(ctx context.Context, transcript string) (ModelContent, error) {
	body, err := json.Marshal(newAnthropicRequest(transcript))
	if err != nil {
		return nil, newStageError(StageInfer, fmt.Errorf("failed to encode model request: %w", err))
	}

	resp, err := a.predictor.RawPredict(ctx, &aiplatformpb.RawPredictRequest{
		Endpoint: a.endpoint,
		HttpBody: &httpbody.HttpBody{
			ContentType: "application/json",
			Data:        body,
		},
	})
	if err != nil {
		return nil, newStageError(StageInfer, fmt.Errorf("rawPredict %s: %w", a.endpoint, err))
	}

	content, err := decodeReplyContent(resp.GetData())
	if err != nil {
		return nil, newStageError(StageInfer, err)
	}
	return content, nil
}

func extractionPrompt(transcript string) string {
	return gcp.ExtractionUserPrompt + "\n" + transcript
}
