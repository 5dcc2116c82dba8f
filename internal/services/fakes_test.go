package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"cloud.google.com/go/vertexai/genai"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/genproto/googleapis/api/httpbody"
)

type storedObject struct {
	Bucket      string
	Object      string
	ContentType string
	Content     string
	IfAbsent    bool
}

// memoryStore is an in-memory ObjectStore that records every write in order.
type memoryStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	writes   []storedObject
	writeErr map[string]error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, writeErr: map[string]error{}}
}

func (s *memoryStore) put(bucket, object string, content []byte) {
	s.objects[bucket+"/"+object] = content
}

func (s *memoryStore) write(bucket, object, contentType string, content []byte, ifAbsent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.writeErr[object]; ok {
		return err
	}
	if _, exists := s.objects[bucket+"/"+object]; exists && ifAbsent {
		return errors.New("precondition failed")
	}
	s.put(bucket, object, content)
	s.writes = append(s.writes, storedObject{
		Bucket: bucket, Object: object, ContentType: contentType, Content: string(content), IfAbsent: ifAbsent,
	})
	return nil
}

func (s *memoryStore) Write(_ context.Context, bucket, object, contentType string, content []byte) error {
	return s.write(bucket, object, contentType, content, false)
}

func (s *memoryStore) WriteIfAbsent(_ context.Context, bucket, object, contentType string, content []byte) error {
	return s.write(bucket, object, contentType, content, true)
}

func (s *memoryStore) Read(_ context.Context, bucket, object string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+object]
	if !ok {
		return nil, fmt.Errorf("object gs://%s/%s not found", bucket, object)
	}
	return data, nil
}

// failOn makes writes to object fail with err.
func (s *memoryStore) failOn(object string, err error) {
	s.writeErr[object] = err
}

func (s *memoryStore) writesUnder(prefix string) []storedObject {
	var out []storedObject
	for _, w := range s.writes {
		if len(w.Object) >= len(prefix) && w.Object[:len(prefix)] == prefix {
			out = append(out, w)
		}
	}
	return out
}

type fakeOCR struct {
	blocks   []Block
	err      error
	calls    int
	lastRef  DocumentRef
	features []FeatureType
}

func (o *fakeOCR) AnalyzeDocument(_ context.Context, ref DocumentRef, features []FeatureType) ([]Block, error) {
	o.calls++
	o.lastRef = ref
	o.features = features
	return o.blocks, o.err
}

type fakeModel struct {
	content        ModelContent
	err            error
	calls          int
	lastTranscript string
}

func (m *fakeModel) InvokeModel(_ context.Context, transcript string) (ModelContent, error) {
	m.calls++
	m.lastTranscript = transcript
	return m.content, m.err
}

type trackerCall struct {
	Op     string
	Ref    DocumentRef
	Result JobResult
}

type fakeTracker struct {
	calls []trackerCall
	err   error
}

func (t *fakeTracker) Start(_ context.Context, ref DocumentRef, _ string) error {
	t.calls = append(t.calls, trackerCall{Op: "start", Ref: ref})
	return t.err
}

func (t *fakeTracker) Finish(_ context.Context, ref DocumentRef, result JobResult) error {
	t.calls = append(t.calls, trackerCall{Op: "finish", Ref: ref, Result: result})
	return t.err
}

type fakeNotifier struct {
	err        error
	resultKeys []string
}

func (n *fakeNotifier) ResultStored(_ context.Context, _ DocumentRef, resultKey string) (string, error) {
	n.resultKeys = append(n.resultKeys, resultKey)
	if n.err != nil {
		return "", n.err
	}
	return "executions/exec-1", nil
}

type fakePredictor struct {
	reply   []byte
	err     error
	lastReq *aiplatformpb.RawPredictRequest
}

func (p *fakePredictor) RawPredict(_ context.Context, req *aiplatformpb.RawPredictRequest, _ ...gax.CallOption) (*httpbody.HttpBody, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &httpbody.HttpBody{ContentType: "application/json", Data: p.reply}, nil
}

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (g *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	g.parts = parts
	return g.resp, g.err
}

func strPtr(s string) *string { return &s }

// recordingHandler is a slog.Handler that keeps every record.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) messagesAt(level slog.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.records {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}

// captureDefaultLogger routes slog.Default to a recordingHandler for the test.
func captureDefaultLogger(t interface{ Cleanup(func()) }) *recordingHandler {
	h := &recordingHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return h
}
