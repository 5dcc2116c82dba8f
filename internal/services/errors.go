package services

import (
	"errors"
	"fmt"
)

// Error kinds of the extraction pipeline. A *StageError matches its kind
// with errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrEventFormat     = errors.New("event format error")
	ErrExtraction      = errors.New("extraction error")
	ErrModelInvocation = errors.New("model invocation error")
	ErrPersistence     = errors.New("persistence error")
)

// Stage names a step of the extraction pipeline.
type Stage string

const (
	StageParse    Stage = "parse"
	StageExtract  Stage = "extract"
	StageAssemble Stage = "assemble"
	StageInfer    Stage = "infer"
	StagePersist  Stage = "persist"
)

var stageKinds = map[Stage]error{
	StageParse:    ErrEventFormat,
	StageExtract:  ErrExtraction,
	StageAssemble: ErrExtraction,
	StageInfer:    ErrModelInvocation,
	StagePersist:  ErrPersistence,
}

// StageError records which stage failed, the kind of failure, and the
// underlying cause.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func newStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: stageKinds[stage], Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
