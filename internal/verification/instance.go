package verification

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/warden/pkg/progress"
)

const discardTimeout = 10 * time.Second

// Config tunes an Instance. Zero durations disable the settle delay and the
// detector timeout; a zero tick interval falls back to progress.DefaultInterval.
type Config struct {
	Limits            Limits
	EstimatedDuration time.Duration
	TickInterval      time.Duration
	MaxIncrement      float64
	ProgressCap       float64
	SettleDelay       time.Duration
	Timeout           time.Duration
	KeyPrefix         string
}

// DefaultConfig mirrors the upload constraints and progress cadence of the
// hosted service.
func DefaultConfig() Config {
	return Config{
		Limits:            DefaultLimits(),
		EstimatedDuration: 5 * time.Second,
		TickInterval:      progress.DefaultInterval,
		MaxIncrement:      progress.DefaultMaxIncrement,
		ProgressCap:       progress.DefaultCap,
		SettleDelay:       500 * time.Millisecond,
		KeyPrefix:         "verifications",
	}
}

// Deps are the collaborators of an Instance. Detector is required.
type Deps struct {
	Detector  Detector
	Store     BlobStore
	Inspector Inspector
	Logger    *slog.Logger

	// Increment overrides the random progress step.
	Increment progress.IncrementFunc
	// OnOutcome receives every episode that leaves processing for a terminal
	// state. It runs on its own goroutine.
	OnOutcome func(Outcome)
}

// Outcome describes how a processing episode ended.
type Outcome struct {
	InstanceID uuid.UUID
	EpisodeID  uuid.UUID
	Status     Status
	Document   DocumentInfo
	Result     *Result
	Error      string
	Cause      error
	StartedAt  time.Time
	FinishedAt time.Time
}

type state struct {
	status   Status
	progress *progress.State
	result   *Result
	err      string
}

func idleState() state { return state{status: StatusIdle} }

func validatingState() state { return state{status: StatusValidating} }

func processingState(p progress.State) state {
	return state{status: StatusProcessing, progress: &p}
}

func resultsState(r *Result) state {
	return state{status: StatusResults, result: r}
}

func errorState(msg string) state {
	if msg == "" {
		msg = FailureMessage
	}
	return state{status: StatusError, err: msg}
}

type episode struct {
	id        uuid.UUID
	cancel    context.CancelFunc
	estimator *progress.Estimator
	document  DocumentInfo
	started   time.Time

	storedMu sync.Mutex
	stored   []string
}

func (ep *episode) track(key string) {
	ep.storedMu.Lock()
	defer ep.storedMu.Unlock()
	ep.stored = append(ep.stored, key)
}

func (ep *episode) storedKeys() []string {
	ep.storedMu.Lock()
	defer ep.storedMu.Unlock()
	return slices.Clone(ep.stored)
}

// Instance is one verification workflow, owned by a single user session.
// Callers are expected to serialize Submit and Reset; overlapping calls are
// rejected with ErrPrecondition rather than raced.
type Instance struct {
	id     uuid.UUID
	cfg    Config
	deps   Deps
	logger *slog.Logger
	parent context.Context

	mu       sync.Mutex
	st       state
	updated  time.Time
	current  *episode
	subs     map[int]chan Snapshot
	nextSub  int
	closed   bool
	stopRoot context.CancelFunc
}

// NewInstance creates an idle instance. Background work is bound to ctx;
// cancelling it behaves like Close.
func NewInstance(ctx context.Context, cfg Config, deps Deps) *Instance {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	root, stop := context.WithCancel(ctx)
	id := uuid.New()

	return &Instance{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With("instance", id),
		parent:   root,
		st:       idleState(),
		updated:  time.Now(),
		subs:     make(map[int]chan Snapshot),
		stopRoot: stop,
	}
}

// ID identifies the instance.
func (i *Instance) ID() uuid.UUID {
	return i.id
}

// Snapshot returns the current state.
func (i *Instance) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshot()
}

// Status returns the current status.
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.st.status
}

// UpdatedAt returns the time of the last state change.
func (i *Instance) UpdatedAt() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.updated
}

// Submit validates c and, when accepted, starts processing in the background
// and returns nil immediately. A rejected candidate moves the instance to
// error and the *ValidationError is returned. Submit is legal from idle, and
// from error where it implies a reset.
func (i *Instance) Submit(c UploadCandidate) error {
	if i.deps.Detector == nil {
		return fmt.Errorf("%w: no detector configured", ErrPrecondition)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}

	switch i.st.status {
	case StatusIdle, StatusError:
	default:
		return precondition("submit", i.st.status)
	}

	i.set(validatingState())

	if err := Validate(c, i.cfg.Limits); err != nil {
		i.logger.Info(
			"upload rejected",
			"filename", c.Filename,
			"content_type", c.ContentType,
			"size_bytes", c.SizeBytes,
			"error", err,
		)
		i.set(errorState(err.Error()))
		return err
	}

	ctx, cancel := i.episodeContext()
	est := progress.Start(i.cfg.EstimatedDuration, i.estimatorOptions()...)

	ep := &episode{
		id:        uuid.New(),
		cancel:    cancel,
		estimator: est,
		document: DocumentInfo{
			Filename:    c.Filename,
			ContentType: c.ContentType,
			SizeBytes:   c.SizeBytes,
		},
		started: time.Now(),
	}

	i.current = ep
	i.set(processingState(est.State()))

	i.logger.Info(
		"verification started",
		"episode", ep.id,
		"filename", c.Filename,
		"size_bytes", c.SizeBytes,
	)

	go est.Run(ctx, i.cfg.TickInterval, func(progress.State) { i.tick(ep) })
	go i.process(ctx, ep, c)

	return nil
}

// Reset discards the result, error, or in-flight work and returns to idle.
// Resetting while processing abandons the detector call; its answer, if it
// ever arrives, is dropped.
func (i *Instance) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}

	switch i.st.status {
	case StatusResults, StatusError:
	case StatusProcessing:
		i.logger.Info("verification abandoned", "episode", i.current.id)
		i.stopEpisode()
	default:
		return precondition("reset", i.st.status)
	}

	i.set(idleState())
	return nil
}

// Cancel stops processing and moves to error with CancelledMessage.
func (i *Instance) Cancel() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}

	if i.st.status != StatusProcessing {
		return precondition("cancel", i.st.status)
	}

	ep := i.current
	i.stopEpisode()
	i.set(errorState(CancelledMessage))
	i.logger.Info("verification cancelled", "episode", ep.id)

	i.emit(Outcome{
		InstanceID: i.id,
		EpisodeID:  ep.id,
		Status:     StatusError,
		Document:   ep.document,
		Error:      CancelledMessage,
		Cause:      fmt.Errorf("%w: %w", ErrDetector, context.Canceled),
		StartedAt:  ep.started,
		FinishedAt: time.Now(),
	})
	return nil
}

// Close cancels any in-flight work and ends all subscriptions. Later calls
// to Submit, Reset, and Cancel return ErrClosed.
func (i *Instance) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return
	}

	i.closed = true
	if i.current != nil {
		i.stopEpisode()
	}
	i.stopRoot()

	for id, ch := range i.subs {
		close(ch)
		delete(i.subs, id)
	}
}

// Subscribe returns a channel carrying the latest snapshot after every state
// change, starting with the current one. Slow readers see only the newest
// snapshot. The returned func ends the subscription.
func (i *Instance) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		close(ch)
		return ch, func() {}
	}

	id := i.nextSub
	i.nextSub++
	i.subs[id] = ch
	ch <- i.snapshot()

	return ch, func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		if c, ok := i.subs[id]; ok {
			delete(i.subs, id)
			close(c)
		}
	}
}

// Await blocks until the instance reaches results or error, or ctx ends.
func (i *Instance) Await(ctx context.Context) (Snapshot, error) {
	ch, unsubscribe := i.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return i.Snapshot(), ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return i.Snapshot(), ErrClosed
			}
			if s.Status.Terminal() {
				return s, nil
			}
		}
	}
}

func (i *Instance) process(ctx context.Context, ep *episode, c UploadCandidate) {
	result, err := i.run(ctx, ep, c)
	i.finish(ep, result, err)
}

func (i *Instance) run(ctx context.Context, ep *episode, c UploadCandidate) (*Result, error) {
	var (
		detection   *Detection
		pageCount   *int
		originalRef string
		redactedRef string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(guard(ErrDetector, func() error {
		d, err := i.deps.Detector.Detect(gctx, Document{
			Data:        c.Data,
			ContentType: c.ContentType,
			Filename:    c.Filename,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDetector, err)
		}
		if d == nil {
			return fmt.Errorf("%w: empty detection", ErrDetector)
		}
		detection = d
		return nil
	}))

	if i.deps.Store != nil {
		originalRef = i.storageKey(ep, "original", c.Filename)
		g.Go(guard(ErrStore, func() error {
			return i.upload(gctx, ep, originalRef, c.Data, c.ContentType)
		}))
	}

	if i.deps.Inspector != nil {
		g.Go(func() error {
			pageCount = i.pageCount(ep, c)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if i.deps.Store != nil {
		redactedRef = i.storageKey(ep, "redacted", c.Filename)
		if err := i.upload(ctx, ep, redactedRef, detection.Redacted, redactedContentType(detection, c)); err != nil {
			return nil, err
		}
	}

	doc := ep.document
	doc.PageCount = pageCount

	return &Result{
		OriginalRef:           originalRef,
		RedactedRef:           redactedRef,
		RedactedContentType:   redactedContentType(detection, c),
		Detections:            Aggregate(detection.Findings),
		ProcessingTimeSeconds: time.Since(ep.started).Seconds(),
		Document:              doc,
	}, nil
}

// finish publishes the episode's result or error. Documents stored by an
// episode that does not end in results are discarded.
func (i *Instance) finish(ep *episode, result *Result, err error) {
	kept := false
	defer func() {
		if !kept {
			i.discard(ep)
		}
	}()

	i.mu.Lock()

	if i.current != ep {
		i.mu.Unlock()
		i.logger.Debug("discarding stale detector result", "episode", ep.id, "error", err)
		return
	}

	ep.cancel()

	if err != nil {
		i.stopEpisode()
		i.set(errorState(FailureMessage))
		i.logger.Error("verification failed", "episode", ep.id, "error", err)
		i.emit(Outcome{
			InstanceID: i.id,
			EpisodeID:  ep.id,
			Status:     StatusError,
			Document:   ep.document,
			Error:      FailureMessage,
			Cause:      err,
			StartedAt:  ep.started,
			FinishedAt: time.Now(),
		})
		i.mu.Unlock()
		return
	}

	i.set(processingState(ep.estimator.Complete()))
	i.mu.Unlock()

	if i.cfg.SettleDelay > 0 {
		t := time.NewTimer(i.cfg.SettleDelay)
		select {
		case <-t.C:
		case <-i.parent.Done():
			t.Stop()
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.current != ep {
		return
	}

	i.current = nil
	kept = true
	i.set(resultsState(result))
	i.logger.Info(
		"verification complete",
		"episode", ep.id,
		"findings", result.TotalFindings(),
		"categories", len(result.Detections),
		"processing_seconds", result.ProcessingTimeSeconds,
	)
	i.emit(Outcome{
		InstanceID: i.id,
		EpisodeID:  ep.id,
		Status:     StatusResults,
		Document:   result.Document,
		Result:     result,
		StartedAt:  ep.started,
		FinishedAt: time.Now(),
	})
}

func (i *Instance) tick(ep *episode) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.current != ep || i.st.status != StatusProcessing || ep.estimator.Done() {
		return
	}
	i.set(processingState(ep.estimator.State()))
}

func (i *Instance) upload(ctx context.Context, ep *episode, key string, data []byte, contentType string) error {
	if err := i.deps.Store.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStore, key, err)
	}
	ep.track(key)
	return nil
}

// discard deletes what ep stored. Failures are logged; the episode is
// already over.
func (i *Instance) discard(ep *episode) {
	keys := ep.storedKeys()
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
	defer cancel()

	for _, key := range keys {
		if err := i.deps.Store.Delete(ctx, key); err != nil {
			i.logger.Warn("failed to discard stored document", "episode", ep.id, "key", key, "error", err)
			continue
		}
		i.logger.Debug("discarded stored document", "episode", ep.id, "key", key)
	}
}

// pageCount asks the inspector for the page count. A panicking parser
// leaves the count unknown.
func (i *Instance) pageCount(ep *episode, c UploadCandidate) (n *int) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn("page count failed", "episode", ep.id, "panic", r)
			n = nil
		}
	}()

	if count, ok := i.deps.Inspector.PageCount(c.Data, c.ContentType); ok {
		return &count
	}
	return nil
}

// redactedContentType falls back to the upload's type when the detector
// leaves it unset.
func redactedContentType(d *Detection, c UploadCandidate) string {
	if d.RedactedContentType != "" {
		return d.RedactedContentType
	}
	return c.ContentType
}

// guard turns a panic in fn into an error wrapping kind. errgroup does not
// recover panics raised in its goroutines.
func guard(kind error, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: panic: %v", kind, r)
			}
		}()
		return fn()
	}
}

// stopEpisode must be called with mu held.
func (i *Instance) stopEpisode() {
	if i.current == nil {
		return
	}
	i.current.cancel()
	i.current.estimator.Cancel()
	i.current = nil
}

func (i *Instance) episodeContext() (context.Context, context.CancelFunc) {
	if i.cfg.Timeout > 0 {
		return context.WithTimeout(i.parent, i.cfg.Timeout)
	}
	return context.WithCancel(i.parent)
}

func (i *Instance) estimatorOptions() []progress.Option {
	opts := []progress.Option{progress.WithCap(i.cfg.ProgressCap)}
	switch {
	case i.deps.Increment != nil:
		opts = append(opts, progress.WithIncrement(i.deps.Increment))
	case i.cfg.MaxIncrement > 0:
		opts = append(opts, progress.WithIncrement(progress.UniformIncrement(i.cfg.MaxIncrement)))
	}
	return opts
}

func (i *Instance) storageKey(ep *episode, kind, filename string) string {
	// Storage keys may not contain "..", so dotted runs collapse.
	name := strings.ReplaceAll(filepath.Base(filename), "..", "_")
	if name == "_" || name == "." || name == "/" || name == "" {
		name = "document"
	}
	prefix := i.cfg.KeyPrefix
	if prefix == "" {
		prefix = "verifications"
	}
	return fmt.Sprintf("%s/%s/%s/%s", prefix, ep.id, kind, url.PathEscape(name))
}

// set installs st as the whole state; status and payload always change together.
// Must be called with mu held.
func (i *Instance) set(st state) {
	i.st = st
	i.updated = time.Now()
	i.publish()
}

func (i *Instance) snapshot() Snapshot {
	s := Snapshot{
		ID:        i.id,
		Status:    i.st.status,
		Result:    i.st.result,
		Error:     i.st.err,
		UpdatedAt: i.updated,
	}
	if i.st.progress != nil {
		p := *i.st.progress
		s.Progress = &p
	}
	return s
}

func (i *Instance) publish() {
	if len(i.subs) == 0 {
		return
	}

	s := i.snapshot()
	for _, ch := range i.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (i *Instance) emit(o Outcome) {
	if i.deps.OnOutcome == nil {
		return
	}
	go i.deps.OnOutcome(o)
}
