package verification_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/pkg/progress"
)

type mockDetector struct {
	calls    atomic.Int32
	detectFn func(ctx context.Context, doc verification.Document) (*verification.Detection, error)
}

func (m *mockDetector) Detect(ctx context.Context, doc verification.Document) (*verification.Detection, error) {
	m.calls.Add(1)
	return m.detectFn(ctx, doc)
}

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	types map[string]string
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte), types: make(map[string]string)}
}

func (s *memStore) Upload(_ context.Context, key string, r io.Reader, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	delete(s.types, key)
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

func (s *memStore) get(key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	return data, s.types[key], ok
}

type fixedInspector int

func (f fixedInspector) PageCount([]byte, string) (int, bool) { return int(f), true }

type panicInspector struct{}

func (panicInspector) PageCount([]byte, string) (int, bool) { panic("malformed xref table") }

func testConfig() verification.Config {
	cfg := verification.DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.SettleDelay = 0
	return cfg
}

func pdf(size int) verification.UploadCandidate {
	return verification.UploadCandidate{
		Data:        bytes.Repeat([]byte{'x'}, size),
		ContentType: "application/pdf",
		SizeBytes:   int64(size),
		Filename:    "report.pdf",
	}
}

func findings() *verification.Detection {
	return &verification.Detection{
		Findings: []verification.Finding{
			{Category: verification.CategoryPII, Confidence: 0.95},
			{Category: verification.CategoryPII, Confidence: 0.95},
			{Category: verification.CategoryFinancial, Confidence: 0.87},
		},
		Redacted:            []byte("redacted"),
		RedactedContentType: "application/pdf",
	}
}

func checkExclusive(t *testing.T, s verification.Snapshot) {
	t.Helper()

	hasProgress := s.Progress != nil
	hasResult := s.Result != nil
	hasError := s.Error != ""

	var ok bool
	switch s.Status {
	case verification.StatusIdle, verification.StatusValidating:
		ok = !hasProgress && !hasResult && !hasError
	case verification.StatusProcessing:
		ok = hasProgress && !hasResult && !hasError
	case verification.StatusResults:
		ok = !hasProgress && hasResult && !hasError
	case verification.StatusError:
		ok = !hasProgress && !hasResult && hasError
	}

	if !ok {
		t.Errorf("snapshot %s carries progress=%v result=%v error=%v", s.Status, hasProgress, hasResult, hasError)
	}
}

func await(t *testing.T, inst *verification.Instance) verification.Snapshot {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := inst.Await(ctx)
	if err != nil {
		t.Fatalf("Await() error: %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestInstanceStartsIdle(t *testing.T) {
	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector: &mockDetector{},
	})
	defer inst.Close()

	s := inst.Snapshot()
	if s.Status != verification.StatusIdle {
		t.Errorf("Status = %s, want idle", s.Status)
	}
	checkExclusive(t, s)
}

func TestSubmitSuccess(t *testing.T) {
	store := newMemStore()
	outcomes := make(chan verification.Outcome, 1)
	det := &mockDetector{detectFn: func(_ context.Context, doc verification.Document) (*verification.Detection, error) {
		if doc.Filename != "report.pdf" {
			t.Errorf("detector filename = %q", doc.Filename)
		}
		time.Sleep(20 * time.Millisecond)
		return findings(), nil
	}}

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector:  det,
		Store:     store,
		Inspector: fixedInspector(3),
		OnOutcome: func(o verification.Outcome) { outcomes <- o },
	})
	defer inst.Close()

	ch, unsubscribe := inst.Subscribe()
	defer unsubscribe()

	var (
		mu       sync.Mutex
		observed []verification.Snapshot
	)
	go func() {
		for s := range ch {
			mu.Lock()
			observed = append(observed, s)
			mu.Unlock()
		}
	}()

	if err := inst.Submit(pdf(1024)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	s := await(t, inst)
	if s.Status != verification.StatusResults {
		t.Fatalf("Status = %s, want results (error %q)", s.Status, s.Error)
	}
	checkExclusive(t, s)

	r := s.Result
	if r.TotalFindings() != 3 {
		t.Errorf("TotalFindings() = %d, want 3", r.TotalFindings())
	}
	if len(r.Detections) != 2 || r.Detections[0].Count != 2 || r.Detections[1].Category != verification.CategoryFinancial {
		t.Errorf("Detections = %+v", r.Detections)
	}
	if r.ProcessingTimeSeconds <= 0 {
		t.Errorf("ProcessingTimeSeconds = %f, want > 0", r.ProcessingTimeSeconds)
	}
	if r.Document.PageCount == nil || *r.Document.PageCount != 3 {
		t.Errorf("PageCount = %v, want 3", r.Document.PageCount)
	}
	if r.Document.SizeBytes != 1024 {
		t.Errorf("SizeBytes = %d, want 1024", r.Document.SizeBytes)
	}

	if !strings.HasSuffix(r.OriginalRef, "/original/report.pdf") {
		t.Errorf("OriginalRef = %q", r.OriginalRef)
	}
	if data, _, ok := store.get(r.OriginalRef); !ok || len(data) != 1024 {
		t.Errorf("original blob missing or wrong size")
	}
	if data, ct, ok := store.get(r.RedactedRef); !ok || string(data) != "redacted" || ct != "application/pdf" {
		t.Errorf("redacted blob = %q %q %v", data, ct, ok)
	}
	if r.RedactedContentType != "application/pdf" {
		t.Errorf("RedactedContentType = %q", r.RedactedContentType)
	}

	select {
	case o := <-outcomes:
		if o.Status != verification.StatusResults || o.Result != r {
			t.Errorf("outcome = %+v", o)
		}
	case <-time.After(time.Second):
		t.Error("no outcome reported")
	}

	unsubscribe()
	mu.Lock()
	defer mu.Unlock()

	prev := -1.0
	for _, o := range observed {
		checkExclusive(t, o)
		if o.Progress != nil {
			if o.Progress.Percent < prev {
				t.Errorf("progress regressed from %f to %f", prev, o.Progress.Percent)
			}
			prev = o.Progress.Percent
		}
	}
}

func TestStorageKeyCollapsesDottedNames(t *testing.T) {
	store := newMemStore()
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		return findings(), nil
	}}

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector:  det,
		Store:     store,
		Inspector: fixedInspector(1),
	})
	defer inst.Close()

	c := pdf(64)
	c.Filename = "q3..final.pdf"
	if err := inst.Submit(c); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	s := await(t, inst)
	if s.Status != verification.StatusResults {
		t.Fatalf("Status = %s, want results (error %q)", s.Status, s.Error)
	}
	if !strings.HasSuffix(s.Result.OriginalRef, "/original/q3_final.pdf") {
		t.Errorf("OriginalRef = %q", s.Result.OriginalRef)
	}
	if s.Result.Document.Filename != "q3..final.pdf" {
		t.Errorf("Filename = %q, want original name kept", s.Result.Document.Filename)
	}
}

func TestRedactedContentType(t *testing.T) {
	tests := []struct {
		name         string
		detectorType string
		want         string
	}{
		{"detector type", "application/pdf", "application/pdf"},
		{"falls back to upload", "", "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
				d := findings()
				d.RedactedContentType = tt.detectorType
				return d, nil
			}}

			inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
				Detector: det,
				Store:    store,
			})
			defer inst.Close()

			c := pdf(64)
			c.Filename = "scan.png"
			c.ContentType = "image/png"
			if err := inst.Submit(c); err != nil {
				t.Fatalf("Submit() error: %v", err)
			}

			s := await(t, inst)
			if s.Status != verification.StatusResults {
				t.Fatalf("Status = %s, want results (error %q)", s.Status, s.Error)
			}
			if s.Result.RedactedContentType != tt.want {
				t.Errorf("RedactedContentType = %q, want %q", s.Result.RedactedContentType, tt.want)
			}
			if _, ct, _ := store.get(s.Result.RedactedRef); ct != tt.want {
				t.Errorf("stored type = %q, want %q", ct, tt.want)
			}
		})
	}
}

func TestSubmitTooLarge(t *testing.T) {
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		return findings(), nil
	}}
	outcomes := make(chan verification.Outcome, 1)

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector:  det,
		OnOutcome: func(o verification.Outcome) { outcomes <- o },
	})
	defer inst.Close()

	err := inst.Submit(verification.UploadCandidate{
		ContentType: "application/pdf",
		SizeBytes:   12 * mib,
		Filename:    "big.pdf",
	})

	var ve *verification.ValidationError
	if !errors.As(err, &ve) || ve.Kind != verification.TooLarge {
		t.Fatalf("Submit() = %v, want TooLarge", err)
	}

	s := inst.Snapshot()
	if s.Status != verification.StatusError {
		t.Fatalf("Status = %s, want error", s.Status)
	}
	if s.Error != "File size exceeds the maximum limit of 10MB. Your file is 12.00MB." {
		t.Errorf("Error = %q", s.Error)
	}
	checkExclusive(t, s)

	if n := det.calls.Load(); n != 0 {
		t.Errorf("detector calls = %d, want 0", n)
	}

	select {
	case o := <-outcomes:
		t.Errorf("unexpected outcome for rejected upload: %+v", o)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubmitDetectorFault(t *testing.T) {
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		return nil, errors.New("connection refused")
	}}
	outcomes := make(chan verification.Outcome, 1)

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector:  det,
		Store:     newMemStore(),
		OnOutcome: func(o verification.Outcome) { outcomes <- o },
	})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	s := await(t, inst)
	if s.Status != verification.StatusError {
		t.Fatalf("Status = %s, want error", s.Status)
	}
	if s.Error != verification.FailureMessage {
		t.Errorf("Error = %q, want %q", s.Error, verification.FailureMessage)
	}
	checkExclusive(t, s)

	time.Sleep(30 * time.Millisecond)
	after := inst.Snapshot()
	if after.Progress != nil || after.Result != nil || after.Status != verification.StatusError {
		t.Errorf("state changed after fault: %+v", after)
	}

	o := <-outcomes
	if !errors.Is(o.Cause, verification.ErrDetector) {
		t.Errorf("Cause = %v, want ErrDetector", o.Cause)
	}
}

func TestSubmitDetectorPanic(t *testing.T) {
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		panic("boom")
	}}

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{Detector: det})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	s := await(t, inst)
	if s.Status != verification.StatusError || s.Error != verification.FailureMessage {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestInspectorPanicLeavesPageCountUnknown(t *testing.T) {
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		return findings(), nil
	}}

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector:  det,
		Store:     newMemStore(),
		Inspector: panicInspector{},
	})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	s := await(t, inst)
	if s.Status != verification.StatusResults {
		t.Fatalf("Status = %s, want results (error %q)", s.Status, s.Error)
	}
	if s.Result.Document.PageCount != nil {
		t.Errorf("PageCount = %d, want unknown", *s.Result.Document.PageCount)
	}
}

func TestFailedEpisodeDiscardsStoredDocuments(t *testing.T) {
	store := newMemStore()
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		time.Sleep(30 * time.Millisecond)
		return nil, errors.New("detector unavailable")
	}}
	outcomes := make(chan verification.Outcome, 1)

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector:  det,
		Store:     store,
		OnOutcome: func(o verification.Outcome) { outcomes <- o },
	})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if s := await(t, inst); s.Status != verification.StatusError {
		t.Fatalf("Status = %s, want error", s.Status)
	}
	if o := <-outcomes; o.Result != nil {
		t.Errorf("error outcome carries result %+v", o.Result)
	}

	waitFor(t, func() bool { return store.len() == 0 })
}

func TestResetDuringSettleDiscardsStoredDocuments(t *testing.T) {
	store := newMemStore()
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		return findings(), nil
	}}

	cfg := testConfig()
	cfg.SettleDelay = 100 * time.Millisecond

	inst := verification.NewInstance(context.Background(), cfg, verification.Deps{
		Detector: det,
		Store:    store,
	})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	waitFor(t, func() bool {
		p := inst.Snapshot().Progress
		return p != nil && p.Percent == 100
	})
	if n := store.len(); n != 2 {
		t.Fatalf("stored %d documents before reset, want 2", n)
	}

	if err := inst.Reset(); err != nil {
		t.Fatalf("Reset() during settle error: %v", err)
	}

	waitFor(t, func() bool { return store.len() == 0 })
	if s := inst.Snapshot(); s.Status != verification.StatusIdle {
		t.Errorf("Status = %s, want idle", s.Status)
	}
}

func TestSubmitDetectorTimeout(t *testing.T) {
	det := &mockDetector{detectFn: func(ctx context.Context, _ verification.Document) (*verification.Detection, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond

	inst := verification.NewInstance(context.Background(), cfg, verification.Deps{Detector: det})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	s := await(t, inst)
	if s.Status != verification.StatusError {
		t.Errorf("Status = %s, want error", s.Status)
	}
}

func TestResetFromIdle(t *testing.T) {
	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector: &mockDetector{},
	})
	defer inst.Close()

	if err := inst.Reset(); !errors.Is(err, verification.ErrPrecondition) {
		t.Errorf("Reset() = %v, want ErrPrecondition", err)
	}
	if s := inst.Snapshot(); s.Status != verification.StatusIdle {
		t.Errorf("Status = %s, want idle", s.Status)
	}
}

func TestDoubleSubmit(t *testing.T) {
	release := make(chan struct{})
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		<-release
		return findings(), nil
	}}

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{Detector: det})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("first Submit() error: %v", err)
	}
	if err := inst.Submit(pdf(64)); !errors.Is(err, verification.ErrPrecondition) {
		t.Errorf("second Submit() = %v, want ErrPrecondition", err)
	}

	close(release)
	s := await(t, inst)
	if s.Status != verification.StatusResults {
		t.Errorf("Status = %s, want results", s.Status)
	}
	if n := det.calls.Load(); n != 1 {
		t.Errorf("detector calls = %d, want 1", n)
	}
}

func TestSubmitFromResultsRequiresReset(t *testing.T) {
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		return findings(), nil
	}}

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{Detector: det})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	await(t, inst)

	if err := inst.Submit(pdf(64)); !errors.Is(err, verification.ErrPrecondition) {
		t.Fatalf("Submit() from results = %v, want ErrPrecondition", err)
	}

	if err := inst.Reset(); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	s := inst.Snapshot()
	if s.Status != verification.StatusIdle {
		t.Fatalf("Status = %s, want idle", s.Status)
	}
	checkExclusive(t, s)

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() after reset error: %v", err)
	}
	if s := await(t, inst); s.Status != verification.StatusResults {
		t.Errorf("Status = %s, want results", s.Status)
	}
}

func TestSubmitFromErrorImpliesReset(t *testing.T) {
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		return findings(), nil
	}}

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{Detector: det})
	defer inst.Close()

	bad := verification.UploadCandidate{ContentType: "text/plain", SizeBytes: 4, Data: []byte("text")}
	if err := inst.Submit(bad); err == nil {
		t.Fatal("Submit() of text/plain succeeded")
	}

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() from error = %v, want nil", err)
	}
	if s := await(t, inst); s.Status != verification.StatusResults {
		t.Errorf("Status = %s, want results", s.Status)
	}
}

func TestResetDuringProcessingDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	returned := make(chan struct{})
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		defer close(returned)
		<-release
		return findings(), nil
	}}
	outcomes := make(chan verification.Outcome, 1)

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector:  det,
		OnOutcome: func(o verification.Outcome) { outcomes <- o },
	})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := inst.Reset(); err != nil {
		t.Fatalf("Reset() during processing error: %v", err)
	}

	close(release)
	<-returned
	time.Sleep(20 * time.Millisecond)

	s := inst.Snapshot()
	if s.Status != verification.StatusIdle {
		t.Errorf("Status = %s, want idle", s.Status)
	}
	checkExclusive(t, s)

	select {
	case o := <-outcomes:
		t.Errorf("abandoned episode produced outcome: %+v", o)
	default:
	}
}

func TestCancel(t *testing.T) {
	cancelled := make(chan struct{})
	det := &mockDetector{detectFn: func(ctx context.Context, _ verification.Document) (*verification.Detection, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}}

	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{Detector: det})
	defer inst.Close()

	if err := inst.Cancel(); !errors.Is(err, verification.ErrPrecondition) {
		t.Errorf("Cancel() while idle = %v, want ErrPrecondition", err)
	}

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	waitFor(t, func() bool { return det.calls.Load() == 1 })

	if err := inst.Cancel(); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("detector context not cancelled")
	}

	s := inst.Snapshot()
	if s.Status != verification.StatusError || s.Error != verification.CancelledMessage {
		t.Errorf("snapshot = %+v", s)
	}
	checkExclusive(t, s)
}

func TestProgressTicksWhileProcessing(t *testing.T) {
	release := make(chan struct{})
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		<-release
		return findings(), nil
	}}

	cfg := testConfig()
	cfg.TickInterval = 20 * time.Millisecond

	inst := verification.NewInstance(context.Background(), cfg, verification.Deps{
		Detector:  det,
		Increment: progress.Sequence(20, 20, 20, 20, 20, 20),
	})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	initial := inst.Snapshot()
	if initial.Progress == nil || initial.Progress.Percent != 0 || initial.Progress.ETASeconds != nil {
		t.Errorf("initial progress = %+v, want 0 with no ETA", initial.Progress)
	}

	waitFor(t, func() bool {
		p := inst.Snapshot().Progress
		return p != nil && p.Percent >= progress.DefaultCap
	})

	s := inst.Snapshot()
	if s.Progress.Percent != progress.DefaultCap {
		t.Errorf("percent = %f, want cap %f", s.Progress.Percent, progress.DefaultCap)
	}
	if s.Progress.ETASeconds == nil || *s.Progress.ETASeconds != 1 {
		t.Errorf("ETA = %v, want 1", s.Progress.ETASeconds)
	}

	close(release)
	if s := await(t, inst); s.Status != verification.StatusResults {
		t.Errorf("Status = %s, want results", s.Status)
	}
}

func TestSettleDelayShowsCompletion(t *testing.T) {
	det := &mockDetector{detectFn: func(context.Context, verification.Document) (*verification.Detection, error) {
		return findings(), nil
	}}

	cfg := testConfig()
	cfg.SettleDelay = 50 * time.Millisecond

	inst := verification.NewInstance(context.Background(), cfg, verification.Deps{Detector: det})
	defer inst.Close()

	if err := inst.Submit(pdf(64)); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	waitFor(t, func() bool {
		p := inst.Snapshot().Progress
		return p != nil && p.Percent == 100
	})

	s := inst.Snapshot()
	if s.Status != verification.StatusProcessing && s.Status != verification.StatusResults {
		t.Errorf("Status = %s during settle", s.Status)
	}
	if s.Progress != nil && s.Progress.ETASeconds != nil {
		t.Errorf("ETA = %d at completion, want nil", *s.Progress.ETASeconds)
	}

	if s := await(t, inst); s.Status != verification.StatusResults {
		t.Errorf("Status = %s, want results", s.Status)
	}
}

func TestClose(t *testing.T) {
	inst := verification.NewInstance(context.Background(), testConfig(), verification.Deps{
		Detector: &mockDetector{},
	})

	ch, _ := inst.Subscribe()
	<-ch

	inst.Close()

	if _, ok := <-ch; ok {
		t.Error("subscription still open after Close")
	}
	if err := inst.Submit(pdf(64)); !errors.Is(err, verification.ErrClosed) {
		t.Errorf("Submit() after Close = %v, want ErrClosed", err)
	}
	if err := inst.Reset(); !errors.Is(err, verification.ErrClosed) {
		t.Errorf("Reset() after Close = %v, want ErrClosed", err)
	}
}
