package models

// These structs define the wire payloads of the functions: trigger
// notifications coming in, outcomes going out, and the argument handed to
// the downstream workflow.

// StorageNotification is a storage-change notification carrying one or more
// records. Only the first record is processed.
type StorageNotification struct {
	Records []StorageRecord `json:"Records"`
}

type StorageRecord struct {
	S3 *StorageEntity `json:"s3"`
}

type StorageEntity struct {
	Bucket *BucketEntity `json:"bucket"`
	Object *ObjectEntity `json:"object"`
}

type BucketEntity struct {
	Name string `json:"name"`
}

type ObjectEntity struct {
	Key string `json:"key"`
}

// GCSEvent is the payload of a Cloud Storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
}

// Outcome is the single terminal value of one function invocation.
type Outcome struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ResultStoredArgument is the execution argument of the downstream workflow
// started once a result has been persisted.
type ResultStoredArgument struct {
	Bucket    string `json:"bucket"`
	SourceKey string `json:"sourceKey"`
	ResultKey string `json:"resultKey"`
}
