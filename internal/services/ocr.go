package services

import (
	"context"
	"fmt"
	"path"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
)

// BlockType distinguishes the kinds of element an OCR pass detects.
type BlockType string

const (
	BlockPage        BlockType = "PAGE"
	BlockLine        BlockType = "LINE"
	BlockTable       BlockType = "TABLE"
	BlockKeyValueSet BlockType = "KEY_VALUE_SET"
)

// Block is one detected element. Text is nil when the service returned no
// resolvable text for it.
type Block struct {
	Type BlockType
	Text *string
}

// FeatureType selects structure extraction beyond plain line detection.
type FeatureType string

const (
	FeatureTables FeatureType = "TABLES"
	FeatureForms  FeatureType = "FORMS"
)

// OCRClient analyzes a stored document. Blocks of the same type are returned
// in detection order.
type OCRClient interface {
	AnalyzeDocument(ctx context.Context, ref DocumentRef, features []FeatureType) ([]Block, error)
}

// AssembleTranscript joins the text of LINE blocks with newlines, in the order
// given. Other block types are skipped. A LINE without text is malformed.
func AssembleTranscript(blocks []Block) (string, error) {
	lines := make([]string, 0, len(blocks))
	for i, b := range blocks {
		if b.Type != BlockLine {
			continue
		}
		if b.Text == nil {
			return "", newStageError(StageAssemble, fmt.Errorf("line block %d has no text", i))
		}
		lines = append(lines, *b.Text)
	}
	return strings.Join(lines, "\n"), nil
}

// documentAIOCR runs a Document AI Form Parser processor over a document in
// Cloud Storage.
type documentAIOCR struct {
	client        *documentai.DocumentProcessorClient
	processorName string
}

func (o *documentAIOCR) AnalyzeDocument(ctx context.Context, ref DocumentRef, features []FeatureType) ([]Block, error) {
	req := &documentaipb.ProcessRequest{
		Name: o.processorName,
		Source: &documentaipb.ProcessRequest_GcsDocument{
			GcsDocument: &documentaipb.GcsDocument{
				GcsUri:   ref.URI(),
				MimeType: mimeTypeForKey(ref.Key),
			},
		},
		FieldMask: &fieldmaskpb.FieldMask{Paths: fieldMaskPaths(features)},
	}

	resp, err := o.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, newStageError(StageExtract, fmt.Errorf("document AI process %s: %w", ref.URI(), err))
	}
	return blocksFromDocument(resp.GetDocument()), nil
}

// fieldMaskPaths limits the Document AI response to the text, the lines, and
// the structures asked for.
func fieldMaskPaths(features []FeatureType) []string {
	paths := []string{"text", "pages.lines"}
	for _, f := range features {
		switch f {
		case FeatureTables:
			paths = append(paths, "pages.tables")
		case FeatureForms:
			paths = append(paths, "pages.form_fields")
		}
	}
	return paths
}

// blocksFromDocument flattens a processed document page by page: the page
// marker, its lines, its tables, then its form fields.
func blocksFromDocument(doc *documentaipb.Document) []Block {
	text := []rune(doc.GetText())
	var blocks []Block
	for _, page := range doc.GetPages() {
		blocks = append(blocks, Block{Type: BlockPage})
		for _, line := range page.GetLines() {
			t := anchorText(text, line.GetLayout().GetTextAnchor())
			if t != nil {
				trimmed := strings.TrimRight(*t, "\r\n")
				t = &trimmed
			}
			blocks = append(blocks, Block{Type: BlockLine, Text: t})
		}
		for _, table := range page.GetTables() {
			blocks = append(blocks, Block{Type: BlockTable, Text: anchorText(text, table.GetLayout().GetTextAnchor())})
		}
		for _, field := range page.GetFormFields() {
			blocks = append(blocks, Block{Type: BlockKeyValueSet, Text: anchorText(text, field.GetFieldName().GetTextAnchor())})
		}
	}
	return blocks
}

// anchorText resolves a text anchor against the document text. Indexes are
// in characters, not bytes.
func anchorText(text []rune, anchor *documentaipb.Document_TextAnchor) *string {
	if anchor == nil {
		return nil
	}
	if len(anchor.GetTextSegments()) == 0 {
		if c := anchor.GetContent(); c != "" {
			return &c
		}
		return nil
	}

	var sb strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end < start || end > int64(len(text)) {
			return nil
		}
		sb.WriteString(string(text[start:end]))
	}
	s := sb.String()
	return &s
}

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
}

func mimeTypeForKey(key string) string {
	if mt, ok := mimeTypes[strings.ToLower(path.Ext(key))]; ok {
		return mt
	}
	return "application/pdf"
}
