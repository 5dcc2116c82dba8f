package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Lllllllleong/documentextractflow/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOrderedFields(t *testing.T) {
	fields, err := DecodeOrderedFields([]byte(`{"vendor":"ACME","total":10.5,"lines":[{"sku":"a"}],"paid":null,"note":""}`))
	require.NoError(t, err)
	assert.Equal(t, []TableField{
		{Key: "vendor", Value: "ACME"},
		{Key: "total", Value: "10.5"},
		{Key: "lines", Value: `[{"sku":"a"}]`},
		{Key: "paid", Value: "null"},
		{Key: "note", Value: ""},
	}, fields)

	fields, err = DecodeOrderedFields([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, fields)

	for _, bad := range []string{`[1,2]`, `"text"`, `{"a":`, ``} {
		_, err := DecodeOrderedFields([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestTableRows(t *testing.T) {
	long := strings.Repeat("W", 200)
	rows := TableRows([]TableField{{Key: "short", Value: "v"}, {Key: "long", Value: long}})

	require.Greater(t, len(rows), 2)
	assert.Equal(t, []string{"short", "v"}, rows[0])
	assert.Equal(t, "long", rows[1][0])

	var joined strings.Builder
	for _, row := range rows[1:] {
		assert.LessOrEqual(t, font.TextWidth(row[1], tableFont, tableFontSize), columnTextLimit(1))
		joined.WriteString(row[1])
	}
	assert.Equal(t, long, joined.String())
	for _, row := range rows[2:] {
		assert.Equal(t, "", row[0], "continuation rows have an empty key")
	}
}

func TestTableRowsWrapsLongKeys(t *testing.T) {
	key := strings.Repeat("k", 120)
	rows := TableRows([]TableField{{Key: key, Value: "v"}})

	require.Greater(t, len(rows), 1)
	assert.Equal(t, "v", rows[0][1])
	assert.Equal(t, "", rows[1][1])
	for _, row := range rows {
		assert.LessOrEqual(t, font.TextWidth(row[0], tableFont, tableFontSize), columnTextLimit(0))
	}
}

func TestWrapCell(t *testing.T) {
	assert.Equal(t, []string{""}, wrapCell("", 100))
	assert.Equal(t, []string{"abc"}, wrapCell("abc", 100))
	assert.Equal(t, []string{"a b c"}, wrapCell("a\nb\tc", 100))

	chunks := wrapCell("aaaaaaaaaa", font.TextWidth("aaaa", tableFont, tableFontSize))
	assert.Equal(t, []string{"aaaa", "aaaa", "aa"}, chunks)
}

func TestTableLayout(t *testing.T) {
	layout := tableLayout(nil)
	require.Len(t, layout.Pages, 1)
	assert.Equal(t, 1, layout.Pages["1"].Content.Table[0].Rows, "an empty result keeps one blank row")
	assert.Empty(t, layout.Pages["1"].Content.Table[0].Values)
	assert.Equal(t, []string{"Field", "Value"}, layout.Pages["1"].Content.Table[0].Header.Values)

	fields := make([]TableField, tableRowsPerPage*2+1)
	for i := range fields {
		fields[i] = TableField{Key: "k", Value: "v"}
	}
	layout = tableLayout(fields)
	require.Len(t, layout.Pages, 3)
	assert.Equal(t, tableRowsPerPage, layout.Pages["1"].Content.Table[0].Rows)
	assert.Equal(t, tableRowsPerPage, layout.Pages["2"].Content.Table[0].Rows)
	assert.Equal(t, 1, layout.Pages["3"].Content.Table[0].Rows)
	assert.Equal(t, tableTitle, layout.Pages["3"].Content.Text[0].Value)

	layout = tableLayout(fields[:tableRowsPerPage])
	assert.Len(t, layout.Pages, 1)
}

func TestTableRendererSkipsOtherObjects(t *testing.T) {
	store := newMemoryStore()
	f := &TableRendererFunction{store: store}

	for _, name := range []string{"uploads/a.pdf", "results/a.txt", "processed/a.json", "logs/pipeline-log.txt"} {
		require.NoError(t, f.Process(context.Background(), models.GCSEvent{Bucket: "docs", Name: name}))
	}
	assert.Empty(t, store.writes)
}

func TestTableRendererRejectsInvalidResult(t *testing.T) {
	store := newMemoryStore()
	store.put("docs", "results/a.json", []byte(`not json`))
	f := &TableRendererFunction{store: store}

	err := f.Process(context.Background(), models.GCSEvent{Bucket: "docs", Name: "results/a.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "results/a.json")
	assert.Empty(t, store.writes)

	err = f.Process(context.Background(), models.GCSEvent{Bucket: "docs", Name: "results/missing.json"})
	assert.Error(t, err)
}

func renderedPageCount(t *testing.T, pdf []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	require.NoError(t, err)
	return n
}

func TestRenderTablePDF(t *testing.T) {
	many := make([]TableField, tableRowsPerPage+5)
	for i := range many {
		many[i] = TableField{Key: fmt.Sprintf("line_%02d", i), Value: "value"}
	}

	tests := []struct {
		name      string
		fields    []TableField
		wantPages int
	}{
		{name: "one field", fields: []TableField{{Key: "total", Value: "10"}}, wantPages: 1},
		{name: "empty result", fields: nil, wantPages: 1},
		{name: "long value", fields: []TableField{{Key: "notes", Value: strings.Repeat("lorem ipsum ", 40)}}, wantPages: 1},
		{name: "paginated", fields: many, wantPages: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdf, err := RenderTablePDF(tt.fields)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
			assert.Equal(t, tt.wantPages, renderedPageCount(t, pdf))
		})
	}
}

func TestTableRendererProcess(t *testing.T) {
	store := newMemoryStore()
	store.put("docs", "results/invoice.json", []byte(`{"vendor":"ACME","total":10.5}`))
	f := &TableRendererFunction{store: store}

	require.NoError(t, f.Process(context.Background(), models.GCSEvent{Bucket: "docs", Name: "results/invoice.json"}))

	require.Len(t, store.writes, 1)
	w := store.writes[0]
	assert.Equal(t, "docs", w.Bucket)
	assert.Equal(t, "processed/invoice.pdf", w.Object)
	assert.Equal(t, "application/pdf", w.ContentType)
	assert.Equal(t, 1, renderedPageCount(t, []byte(w.Content)))
}
