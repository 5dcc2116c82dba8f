package services

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/documentextractflow/internal/models"
)

// ResultNotifier hands a stored result over to downstream processing.
type ResultNotifier interface {
	ResultStored(ctx context.Context, ref DocumentRef, resultKey string) (string, error)
}

// workflowNotifier starts a Cloud Workflows execution per stored result.
type workflowNotifier struct {
	client *executions.Client
	parent string
}

func workflowParent(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

func newResultStoredExecution(parent string, ref DocumentRef, resultKey string) (*executionspb.CreateExecutionRequest, error) {
	payload, err := json.Marshal(models.ResultStoredArgument{
		Bucket:    ref.Bucket,
		SourceKey: ref.Key,
		ResultKey: resultKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	return &executionspb.CreateExecutionRequest{
		Parent: parent,
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}, nil
}

// ResultStored returns the name of the started execution.
func (n *workflowNotifier) ResultStored(ctx context.Context, ref DocumentRef, resultKey string) (string, error) {
	req, err := newResultStoredExecution(n.parent, ref, resultKey)
	if err != nil {
		return "", err
	}
	exec, err := n.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}
