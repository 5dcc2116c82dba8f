package services

import (
	"encoding/json"
	"testing"

	"github.com/Lllllllleong/documentextractflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResultStoredExecution(t *testing.T) {
	parent := workflowParent("proj", "us-central1", "render-results")
	assert.Equal(t, "projects/proj/locations/us-central1/workflows/render-results", parent)

	req, err := newResultStoredExecution(parent, DocumentRef{Bucket: "docs", Key: "uploads/a.pdf"}, "results/a.json")
	require.NoError(t, err)
	assert.Equal(t, parent, req.GetParent())

	var arg models.ResultStoredArgument
	require.NoError(t, json.Unmarshal([]byte(req.GetExecution().GetArgument()), &arg))
	assert.Equal(t, models.ResultStoredArgument{Bucket: "docs", SourceKey: "uploads/a.pdf", ResultKey: "results/a.json"}, arg)
}
