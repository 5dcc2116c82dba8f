package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/documentextractflow/internal/gcp"
	"github.com/Lllllllleong/documentextractflow/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ProcessorConfig holds all configuration for the document processor.
type ProcessorConfig struct {
	ProjectID             string
	LogBucket             string
	DocumentAILocation    string
	DocumentAIProcessorID string
	VertexAIRegion        string
	ModelProvider         string
	ModelID               string
	CollectionName        string
	WorkflowID            string
	WorkflowLocation      string
	OCRTimeout            time.Duration
	ModelTimeout          time.Duration
	StorageTimeout        time.Duration
}

// State is a step of one invocation's lifecycle.
type State string

const (
	StateInit      State = "INIT"
	StateParsed    State = "PARSED"
	StateExtracted State = "EXTRACTED"
	StateAssembled State = "ASSEMBLED"
	StateInferred  State = "INFERRED"
	StateSanitized State = "SANITIZED"
	StateStored    State = "STORED"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

var nextState = map[State]State{
	StateInit:      StateParsed,
	StateParsed:    StateExtracted,
	StateExtracted: StateAssembled,
	StateAssembled: StateInferred,
	StateInferred:  StateSanitized,
	StateSanitized: StateStored,
	StateStored:    StateDone,
}

// Next returns the state that follows s on success.
func (s State) Next() (State, bool) {
	n, ok := nextState[s]
	return n, ok
}

// CanFail reports whether an invocation in state s may still end in FAILED.
// Once the result is stored the invocation always completes.
func (s State) CanFail() bool {
	switch s {
	case StateStored, StateDone, StateFailed:
		return false
	}
	return true
}

// Terminal outcomes. The bodies are part of the external contract.
var (
	outcomeComplete = models.Outcome{StatusCode: 200, Body: "Textract and Bedrock processing complete"}
	outcomeInternal = models.Outcome{StatusCode: 500, Body: "Internal processing error"}
	outcomeSkipped  = models.Outcome{StatusCode: 200, Body: "Object is not an upload; skipped"}

	stageOutcomes = map[Stage]models.Outcome{
		StageParse:    {StatusCode: 400, Body: "Invalid event structure"},
		StageExtract:  {StatusCode: 500, Body: "Textract processing failed"},
		StageAssemble: {StatusCode: 500, Body: "Text extraction failed"},
		StageInfer:    {StatusCode: 500, Body: "Bedrock model invocation failed"},
		StagePersist:  {StatusCode: 500, Body: "Failed to upload result to S3"},
	}
)

// OutcomeFor maps a pipeline error to its terminal outcome.
func OutcomeFor(err error) models.Outcome {
	var se *StageError
	if errors.As(err, &se) {
		if o, ok := stageOutcomes[se.Stage]; ok {
			return o
		}
	}
	return outcomeInternal
}

// DocumentProcessorFunction holds the dependencies of the extraction pipeline.
// It carries no per-invocation state.
type DocumentProcessorFunction struct {
	ocr      OCRClient
	model    ModelInvoker
	store    ObjectStore
	tracker  StatusTracker
	notifier ResultNotifier
	config   ProcessorConfig
	now      func() time.Time
	newID    func() string
}

// loadProcessorConfig loads and validates all necessary environment variables for this service.
func loadProcessorConfig() (*ProcessorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	logBucket := gcp.GetEnv("LOG_BUCKET", "")
	if logBucket == "" {
		return nil, fmt.Errorf("%w: LOG_BUCKET environment variable must be set", ErrConfiguration)
	}
	processorID := gcp.GetEnv("DOCUMENT_AI_PROCESSOR_ID", "")
	if processorID == "" {
		return nil, fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID environment variable must be set")
	}

	provider := gcp.GetEnv("MODEL_PROVIDER", gcp.ProviderAnthropic)
	config := &ProcessorConfig{
		ProjectID:             projectID,
		LogBucket:             logBucket,
		DocumentAILocation:    gcp.GetEnv("DOCUMENT_AI_LOCATION", "us"),
		DocumentAIProcessorID: processorID,
		VertexAIRegion:        gcp.GetEnv("VERTEX_AI_REGION", "us-east5"),
		ModelProvider:         provider,
		ModelID:               gcp.GetEnv("MODEL_ID", gcp.DefaultModelID(provider)),
		CollectionName:        gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		WorkflowID:            gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation:      gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}

	var err error
	if config.OCRTimeout, err = gcp.GetDurationEnv("OCR_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if config.ModelTimeout, err = gcp.GetDurationEnv("MODEL_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if config.StorageTimeout, err = gcp.GetDurationEnv("STORAGE_TIMEOUT", 0); err != nil {
		return nil, err
	}
	return config, nil
}

// NewDocumentProcessor creates a new DocumentProcessorFunction instance. The
// GCP clients are created concurrently to keep cold starts short.
func NewDocumentProcessor(ctx context.Context) (*DocumentProcessorFunction, error) {
	config, err := loadProcessorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	f := &DocumentProcessorFunction{
		config: *config,
		now:    time.Now,
		newID:  uuid.NewString,
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		storageClient, err := storage.NewClient(gctx)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		f.store = NewGCSStore(storageClient)
		return nil
	})
	eg.Go(func() error {
		docAIClient, err := gcp.NewDocumentAIClient(gctx, config.DocumentAILocation)
		if err != nil {
			return fmt.Errorf("failed to create document AI client: %w", err)
		}
		f.ocr = &documentAIOCR{
			client:        docAIClient,
			processorName: gcp.ProcessorName(config.ProjectID, config.DocumentAILocation, config.DocumentAIProcessorID),
		}
		return nil
	})
	var vertexClient *gcp.VertexClient
	eg.Go(func() error {
		var err error
		vertexClient, err = gcp.NewVertexClient(gctx, config.ProjectID, config.VertexAIRegion, config.ModelProvider, config.ModelID)
		if err != nil {
			return fmt.Errorf("failed to create vertex client: %w", err)
		}
		if vertexClient.ExtractionModel != nil {
			f.model = &geminiInvoker{model: vertexClient.ExtractionModel}
		} else {
			f.model = &anthropicInvoker{predictor: vertexClient.Predictions, endpoint: vertexClient.ModelEndpoint}
		}
		return nil
	})
	if config.CollectionName != "" {
		eg.Go(func() error {
			firestoreClient, err := gcp.NewFirestoreClient(gctx, config.ProjectID)
			if err != nil {
				return fmt.Errorf("failed to create firestore client: %w", err)
			}
			f.tracker = &firestoreTracker{client: firestoreClient, collection: config.CollectionName, now: time.Now}
			return nil
		})
	}
	if config.WorkflowID != "" {
		eg.Go(func() error {
			executionsClient, err := executions.NewClient(gctx)
			if err != nil {
				return fmt.Errorf("failed to create Workflows Executions client: %w", err)
			}
			f.notifier = &workflowNotifier{
				client: executionsClient,
				parent: workflowParent(config.ProjectID, config.WorkflowLocation, config.WorkflowID),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if vertexClient != nil {
			if cerr := vertexClient.Close(); cerr != nil {
				slog.Warn("Failed to close vertex client", "error", cerr)
			}
		}
		return nil, err
	}

	slog.Info("Document processor initialized.",
		"modelProvider", config.ModelProvider,
		"modelId", config.ModelID,
		"statusTracking", f.tracker != nil,
		"workflowId", config.WorkflowID,
	)
	return f, nil
}

// Process runs the extraction pipeline for one trigger payload.
//
// Every stage failure is converted into its fixed outcome; the returned error
// is non-nil only for ErrConfiguration, when there is nowhere to write the
// diagnostic log. The log is flushed exactly once before Process returns,
// except for skipped objects: those are never written so that objects the
// functions create in the bucket cannot trigger further invocations.
func (f *DocumentProcessorFunction) Process(ctx context.Context, raw []byte) (models.Outcome, error) {
	if f.config.LogBucket == "" {
		return models.Outcome{}, fmt.Errorf("%w: LOG_BUCKET must be set", ErrConfiguration)
	}

	startedAt := f.now()
	inv := &invocation{
		f:      f,
		state:  StateInit,
		logKey: LogObjectName(startedAt, f.newID()),
		logger: slog.Default(),
	}
	inv.diag = NewDiagnosticLog(inv.logger, f.now)

	outcome := inv.run(ctx, raw)
	if inv.skipped {
		inv.logger.Info("Invocation skipped.", "statusCode", outcome.StatusCode)
		return outcome, nil
	}

	flushCtx, cancel := withOptionalTimeout(context.WithoutCancel(ctx), f.config.StorageTimeout)
	defer cancel()
	if err := inv.diag.Flush(flushCtx, f.store, f.config.LogBucket, inv.logKey); err != nil {
		inv.logger.Error("Diagnostic log could not be persisted", "error", err, "logUri", gsURI(f.config.LogBucket, inv.logKey))
	}

	inv.logger.Info("Invocation finished.", "statusCode", outcome.StatusCode, "state", inv.state)
	return outcome, nil
}

// invocation is the state of a single Process call. A new one is created for
// every trigger so that nothing leaks between documents.
type invocation struct {
	f      *DocumentProcessorFunction
	diag   *DiagnosticLog
	logKey string
	state   State
	ref     DocumentRef
	logger  *slog.Logger
	skipped bool
}

func (inv *invocation) run(ctx context.Context, raw []byte) models.Outcome {
	f := inv.f

	ref, err := ParseEvent(raw)
	if err != nil {
		inv.diag.Record("Invalid event format: %v", err)
		return inv.fail(ctx, err)
	}
	inv.ref = ref
	inv.logger = inv.logger.With("gcsBucket", ref.Bucket, "gcsObject", ref.Key)
	inv.diag.logger = inv.logger
	inv.advance(StateParsed)
	inv.diag.Record("Received file: %s", ref.URI())
	if !strings.HasPrefix(ref.Key, ResultKeyMapping.FromPrefix) {
		inv.diag.Record("Object is outside %s; skipping.", ResultKeyMapping.FromPrefix)
		inv.skipped = true
		inv.state = StateDone
		return outcomeSkipped
	}
	inv.trackStart(ctx)

	ocrCtx, cancel := withOptionalTimeout(ctx, f.config.OCRTimeout)
	blocks, err := f.ocr.AnalyzeDocument(ocrCtx, ref, []FeatureType{FeatureTables, FeatureForms})
	cancel()
	if err != nil {
		inv.diag.Record("OCR analysis failed: %v", err)
		return inv.fail(ctx, asStageError(StageExtract, err))
	}
	inv.advance(StateExtracted)
	inv.diag.Record("OCR analysis complete.")

	transcript, err := AssembleTranscript(blocks)
	if err != nil {
		inv.diag.Record("Text extraction error: %v", err)
		return inv.fail(ctx, err)
	}
	inv.advance(StateAssembled)
	inv.diag.Record("Text extraction successful.")

	modelCtx, cancel := withOptionalTimeout(ctx, f.config.ModelTimeout)
	content, err := f.model.InvokeModel(modelCtx, transcript)
	cancel()
	if err != nil {
		inv.diag.Record("Model inference failed: %v", err)
		return inv.fail(ctx, asStageError(StageInfer, err))
	}
	inv.advance(StateInferred)

	result := SanitizeResponse(content.Normalize())
	inv.advance(StateSanitized)
	inv.diag.Record("Model inference complete.")
	inv.diag.Record("Inference JSON Output:\n%s", result)
	if !json.Valid([]byte(result)) {
		inv.diag.Record("Warning: model output is not valid JSON; storing it unchanged.")
	}

	storeCtx, cancel := withOptionalTimeout(ctx, f.config.StorageTimeout)
	resultKey, err := StoreResult(storeCtx, f.store, ref, result)
	cancel()
	if err != nil {
		inv.diag.Record("Failed to upload result: %v", err)
		return inv.fail(ctx, err)
	}
	inv.advance(StateStored)
	resultURI := gsURI(ref.Bucket, resultKey)
	inv.diag.Record("Result uploaded to %s", resultURI)

	if f.notifier != nil {
		if execName, err := f.notifier.ResultStored(ctx, ref, resultKey); err != nil {
			inv.diag.Record("Downstream hand-off failed: %v", err)
		} else {
			inv.diag.Record("Downstream hand-off started: %s", execName)
		}
	}

	inv.advance(StateDone)
	inv.trackFinish(ctx, JobResult{Status: StatusDone, ResultURI: resultURI})
	return outcomeComplete
}

// advance moves to the next state. Skipping a state is a programming error and
// is logged, not fatal.
func (inv *invocation) advance(to State) {
	if next, ok := inv.state.Next(); !ok || next != to {
		inv.logger.Error("Unexpected state transition", "from", inv.state, "to", to)
	}
	inv.state = to
}

func (inv *invocation) fail(ctx context.Context, err error) models.Outcome {
	if !inv.state.CanFail() {
		inv.logger.Error("Failure reported after the result was stored", "state", inv.state, "error", err)
	}
	failedIn := inv.state
	inv.state = StateFailed

	outcome := OutcomeFor(err)
	inv.logger.Error("Pipeline stage failed", "error", err, "failedAfter", failedIn, "statusCode", outcome.StatusCode)

	var se *StageError
	if errors.As(err, &se) && se.Stage != StageParse {
		inv.trackFinish(ctx, JobResult{Status: StatusFailed, FailedStage: se.Stage, ErrorDetails: err.Error()})
	}
	return outcome
}

func (inv *invocation) trackStart(ctx context.Context) {
	if inv.f.tracker == nil {
		return
	}
	if err := inv.f.tracker.Start(ctx, inv.ref, gsURI(inv.f.config.LogBucket, inv.logKey)); err != nil {
		inv.logger.Warn("Could not record job start", "error", err)
	}
}

func (inv *invocation) trackFinish(ctx context.Context, result JobResult) {
	if inv.f.tracker == nil {
		return
	}
	if err := inv.f.tracker.Finish(ctx, inv.ref, result); err != nil {
		inv.logger.Warn("Could not record job result", "error", err, "status", result.Status)
	}
}

// asStageError tags errors from collaborators that did not tag them already.
func asStageError(stage Stage, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return newStageError(stage, err)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
