package services

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// ContentGenerator is implemented by *genai.GenerativeModel.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// geminiInvoker calls a Gemini model. Text parts of the first candidate become
// tagged fragments; any other part is kept as an opaque fragment.
type geminiInvoker struct {
	model ContentGenerator
}

func (g *geminiInvoker) InvokeModel(ctx context.Context, transcript string) (ModelContent, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(extractionPrompt(transcript)))
	if err != nil {
		return nil, newStageError(StageInfer, fmt.Errorf("failed to generate content from gemini: %w", err))
	}

	content, err := geminiContent(resp)
	if err != nil {
		return nil, newStageError(StageInfer, err)
	}
	return content, nil
}

func geminiContent(resp *genai.GenerateContentResponse) (ModelContent, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errContentMissing
	}

	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return nil, errors.New("gemini candidate has no parts")
	}

	fragments := make(FragmentContent, 0, len(parts))
	for _, part := range parts {
		if txt, ok := part.(genai.Text); ok {
			fragments = append(fragments, TaggedFragment{Type: "text", Text: string(txt), HasText: true})
			continue
		}
		fragments = append(fragments, OpaqueFragment{Value: part})
	}
	return fragments, nil
}
