package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Lllllllleong/documentextractflow/internal/models"
)

// DocumentRef identifies a stored source document.
type DocumentRef struct {
	Bucket string
	Key    string
}

// URI returns the gs:// form of the reference.
func (r DocumentRef) URI() string {
	return gsURI(r.Bucket, r.Key)
}

// ParseEvent extracts the newly stored document from a trigger payload.
//
// Two shapes are accepted: a storage-change notification whose first record
// carries s3.bucket.name and s3.object.key, and the Cloud Storage
// object-finalized payload with top-level bucket and name. Anything else is
// an ErrEventFormat stage error.
func ParseEvent(raw []byte) (DocumentRef, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return DocumentRef{}, newStageError(StageParse, fmt.Errorf("payload is not a JSON object: %w", err))
	}

	if _, ok := top["Records"]; ok {
		return parseNotification(raw)
	}
	return parseGCSEvent(raw)
}

func parseNotification(raw []byte) (DocumentRef, error) {
	var n models.StorageNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return DocumentRef{}, newStageError(StageParse, fmt.Errorf("malformed Records: %w", err))
	}
	if len(n.Records) == 0 {
		return DocumentRef{}, newStageError(StageParse, errors.New("notification has no records"))
	}

	rec := n.Records[0]
	switch {
	case rec.S3 == nil:
		return DocumentRef{}, newStageError(StageParse, errors.New("record has no s3 entity"))
	case rec.S3.Bucket == nil || rec.S3.Bucket.Name == "":
		return DocumentRef{}, newStageError(StageParse, errors.New("record has no bucket name"))
	case rec.S3.Object == nil || rec.S3.Object.Key == "":
		return DocumentRef{}, newStageError(StageParse, errors.New("record has no object key"))
	}
	return DocumentRef{Bucket: rec.S3.Bucket.Name, Key: rec.S3.Object.Key}, nil
}

func parseGCSEvent(raw []byte) (DocumentRef, error) {
	var e models.GCSEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return DocumentRef{}, newStageError(StageParse, fmt.Errorf("malformed storage event: %w", err))
	}
	if e.Bucket == "" || e.Name == "" {
		return DocumentRef{}, newStageError(StageParse, errors.New("event has neither Records nor bucket/name"))
	}
	return DocumentRef{Bucket: e.Bucket, Key: e.Name}, nil
}
