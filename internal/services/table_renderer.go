package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentextractflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	tableTitle       = "Extracted Document Data"
	tableRowsPerPage = 30
	tableWidth       = 520
	tableFont        = "Helvetica"
	tableFontSize    = 9
	// tableCellPadding is subtracted from a column's width before wrapping.
	tableCellPadding = 8
)

// tableColWidths are the column widths in percent of tableWidth.
var tableColWidths = []int{32, 68}

// TableField is one key/value pair of a result document, in document order.
type TableField struct {
	Key   string
	Value string
}

// TableRendererFunction renders JSON results as a two-column PDF table.
type TableRendererFunction struct {
	store ObjectStore
}

// NewTableRenderer creates a new TableRendererFunction instance.
func NewTableRenderer(ctx context.Context) (*TableRendererFunction, error) {
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &TableRendererFunction{store: NewGCSStore(storageClient)}, nil
}

// Process renders results/<name>.json to processed/<name>.pdf in the same
// bucket. Objects outside results/ or without a .json extension are skipped.
func (f *TableRendererFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !strings.HasPrefix(e.Name, ResultKeyMapping.ToPrefix) || !strings.HasSuffix(e.Name, ".json") {
		logCtx.Info("Object is not an extraction result. Skipping.")
		return nil
	}

	data, err := f.store.Read(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download result", "error", err)
		return err
	}

	fields, err := DecodeOrderedFields(data)
	if err != nil {
		logCtx.Error("Result is not a JSON object", "error", err)
		return fmt.Errorf("failed to decode result %s: %w", e.Name, err)
	}

	pdf, err := RenderTablePDF(fields)
	if err != nil {
		logCtx.Error("Failed to render table", "error", err, "fieldCount", len(fields))
		return err
	}

	outputKey := RenderedKeyMapping.Map(e.Name)
	if err := f.store.Write(ctx, e.Bucket, outputKey, "application/pdf", pdf); err != nil {
		logCtx.Error("Failed to upload rendered table", "error", err, "object", outputKey)
		return fmt.Errorf("failed to upload %s: %w", outputKey, err)
	}

	logCtx.Info("Table rendered.", "outputGcsUri", gsURI(e.Bucket, outputKey), "fieldCount", len(fields))
	return nil
}

// DecodeOrderedFields reads a flat JSON object keeping its key order. String
// values are used as-is; any other value is rendered as compact JSON.
func DecodeOrderedFields(data []byte) ([]TableField, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("top-level value is not an object")
	}

	var fields []TableField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("value of %q: %w", key, err)
		}
		fields = append(fields, TableField{Key: key, Value: fieldValue(raw)})
	}
	return fields, nil
}

func fieldValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// TableRows expands fields into table rows. Keys and values wider than their
// column are split into continuation rows; the shorter side is left empty.
func TableRows(fields []TableField) [][]string {
	keyLimit, valueLimit := columnTextLimit(0), columnTextLimit(1)
	var rows [][]string
	for _, f := range fields {
		keys := wrapCell(f.Key, keyLimit)
		values := wrapCell(f.Value, valueLimit)
		for i := range max(len(keys), len(values)) {
			rows = append(rows, []string{chunkAt(keys, i), chunkAt(values, i)})
		}
	}
	return rows
}

func columnTextLimit(col int) float64 {
	return float64(tableWidth*tableColWidths[col])/100 - tableCellPadding
}

func chunkAt(chunks []string, i int) string {
	if i < len(chunks) {
		return chunks[i]
	}
	return ""
}

// wrapCell splits v into single-line chunks no wider than limit points in the
// table font. Line breaks and tabs become spaces.
func wrapCell(v string, limit float64) []string {
	v = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(v)
	var (
		chunks  []string
		current []rune
	)
	for _, r := range v {
		next := append(current, r)
		if len(current) > 0 && font.TextWidth(string(next), tableFont, tableFontSize) > limit {
			chunks = append(chunks, string(current))
			next = []rune{r}
		}
		current = next
	}
	return append(chunks, string(current))
}

// pdfcpu JSON layout used by api.Create. The origin is the lower left
// corner, so negative offsets move content down from its anchor.
type pdfLayout struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

type pdfContent struct {
	Text  []pdfText  `json:"text,omitempty"`
	Table []pdfTable `json:"table,omitempty"`
}

type pdfFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type pdfText struct {
	Value  string  `json:"value"`
	Anchor string  `json:"anchor"`
	Dy     int     `json:"dy"`
	Font   pdfFont `json:"font"`
}

type pdfBorder struct {
	Width int    `json:"width"`
	Color string `json:"col"`
}

type pdfTableHeader struct {
	Values     []string `json:"values"`
	ColAnchors []string `json:"colAnchors"`
	BgCol      string   `json:"bgCol"`
	Font       pdfFont  `json:"font"`
}

type pdfTable struct {
	Anchor     string         `json:"anchor"`
	Dy         int            `json:"dy"`
	Width      int            `json:"width"`
	Rows       int            `json:"rows"`
	Cols       int            `json:"cols"`
	LineHeight int            `json:"lheight"`
	ColWidths  []int          `json:"colWidths"`
	ColAnchors []string       `json:"colAnchors"`
	Grid       bool           `json:"grid"`
	Font       pdfFont        `json:"font"`
	Border     pdfBorder      `json:"border"`
	Header     pdfTableHeader `json:"header"`
	Values     [][]string     `json:"values,omitempty"`
}

// tableLayout paginates the rows of fields into a pdfcpu layout. An empty
// result still yields one page with the header row.
func tableLayout(fields []TableField) pdfLayout {
	rows := TableRows(fields)
	layout := pdfLayout{Paper: "A4P", Origin: "LowerLeft", Pages: map[string]pdfPage{}}

	for page, start := 1, 0; ; page++ {
		end := min(start+tableRowsPerPage, len(rows))
		layout.Pages[strconv.Itoa(page)] = tablePage(rows[start:end])
		if end >= len(rows) {
			break
		}
		start = end
	}
	return layout
}

func tablePage(rows [][]string) pdfPage {
	// pdfcpu needs at least one body row; an empty result renders a blank one.
	rowCount := max(len(rows), 1)
	return pdfPage{Content: pdfContent{
		Text: []pdfText{{
			Value:  tableTitle,
			Anchor: "tc",
			Dy:     -30,
			Font:   pdfFont{Name: "Helvetica-Bold", Size: 14},
		}},
		Table: []pdfTable{{
			Anchor:     "tc",
			Dy:         -60,
			Width:      tableWidth,
			Rows:       rowCount,
			Cols:       2,
			LineHeight: 20,
			ColWidths:  tableColWidths,
			ColAnchors: []string{"l", "l"},
			Grid:       true,
			Font:       pdfFont{Name: tableFont, Size: tableFontSize},
			Border:     pdfBorder{Width: 1, Color: "Black"},
			Header: pdfTableHeader{
				Values:     []string{"Field", "Value"},
				ColAnchors: []string{"l", "l"},
				BgCol:      "#C8DCFF",
				Font:       pdfFont{Name: "Helvetica-Bold", Size: 11},
			},
			Values: rows,
		}},
	}}
}

// RenderTablePDF renders fields to PDF bytes.
func RenderTablePDF(fields []TableField) ([]byte, error) {
	layoutJSON, err := json.Marshal(tableLayout(fields))
	if err != nil {
		return nil, fmt.Errorf("failed to encode table layout: %w", err)
	}

	var out bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(layoutJSON), &out, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("pdfcpu create: %w", err)
	}

	pageCount, err := api.PageCount(bytes.NewReader(out.Bytes()), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("rendered PDF is unreadable: %w", err)
	}
	slog.Debug("Table PDF rendered.", "pages", pageCount, "bytes", out.Len())
	return out.Bytes(), nil
}
