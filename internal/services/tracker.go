package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentextractflow/internal/gcp"
	"github.com/Lllllllleong/documentextractflow/internal/models"
)

const (
	StatusProcessing = "PROCESSING"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// StatusTracker records the progress of a document in a job store.
type StatusTracker interface {
	Start(ctx context.Context, ref DocumentRef, logURI string) error
	Finish(ctx context.Context, ref DocumentRef, result JobResult) error
}

// JobResult is the terminal state reported to a StatusTracker.
type JobResult struct {
	Status       string
	ResultURI    string
	FailedStage  Stage
	ErrorDetails string
}

// firestoreTracker keeps one models.Document per source URI.
type firestoreTracker struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func (t *firestoreTracker) doc(ref DocumentRef) *firestore.DocumentRef {
	return t.client.Collection(t.collection).Doc(gcp.DocumentID(ref.URI()))
}

func (t *firestoreTracker) Start(ctx context.Context, ref DocumentRef, logURI string) error {
	now := t.now()
	record := models.Document{
		SourceURI: ref.URI(),
		LogURI:    logURI,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// A redelivered notification overwrites the earlier attempt.
	if _, err := t.doc(ref).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}
	return nil
}

func (t *firestoreTracker) Finish(ctx context.Context, ref DocumentRef, result JobResult) error {
	updates := []firestore.Update{
		{Path: "status", Value: result.Status},
		{Path: "updatedAt", Value: t.now()},
	}
	if result.ResultURI != "" {
		updates = append(updates, firestore.Update{Path: "resultUri", Value: result.ResultURI})
	}
	if result.FailedStage != "" {
		updates = append(updates, firestore.Update{Path: "failedStage", Value: string(result.FailedStage)})
	}
	if result.ErrorDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: result.ErrorDetails})
	}
	if _, err := t.doc(ref).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update job record to %s: %w", result.Status, err)
	}
	return nil
}
