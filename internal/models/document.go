package models

import "time"

// Document is the Firestore record tracking one source document through the
// extraction pipeline. It is keyed by a hash of the source URI so that a
// redelivered notification updates the same record.
type Document struct {
	SourceURI    string    `firestore:"sourceUri,omitempty"`
	ResultURI    string    `firestore:"resultUri,omitempty"`
	LogURI       string    `firestore:"logUri,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	FailedStage  string    `firestore:"failedStage,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt,omitempty"`
}
