// Package batch drives many independent conversations through a
// chat-completion API with a concurrency cap, per-call retries and
// checkpointed, resumable progress.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
	"github.com/aixgo-dev/chatbatch/pkg/checkpoint"
	"github.com/aixgo-dev/chatbatch/pkg/client"
	"github.com/aixgo-dev/chatbatch/pkg/observability"
	"github.com/aixgo-dev/chatbatch/pkg/response"
)

// Config holds the limits of a run.
type Config struct {
	// Model and Options are sent with every request.
	Model   string
	Options map[string]any

	// MaxRequests is the number of attempts per conversation.
	MaxRequests int
	// Concurrency caps the number of conversations in their network phase.
	Concurrency int
	// Timeout bounds each attempt; zero means no timeout.
	Timeout time.Duration
	// Jitter is the exclusive upper bound of the random pause between attempts.
	Jitter time.Duration
	// RequestsPerSecond, when positive, throttles attempts across the run.
	RequestsPerSecond float64

	// ClearCheckpoint discards existing progress before the run.
	ClearCheckpoint bool
}

func (c Config) validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be greater than 0, got %d", ErrInvalidConfig, c.Concurrency)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be greater than 0, got %d", ErrInvalidConfig, c.MaxRequests)
	}
	if c.Timeout < 0 || c.Jitter < 0 {
		return fmt.Errorf("%w: timeout and jitter cannot be negative", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Dispatcher completes one assistant turn for every conversation that the
// checkpoint does not already hold.
type Dispatcher struct {
	completer client.Completer
	store     checkpoint.Store
	cfg       Config
	logger    *zap.Logger
	limiter   *rate.Limiter

	jitter func(limit time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger receiving per-conversation warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New validates cfg and creates a dispatcher.
func New(completer client.Completer, store checkpoint.Store, cfg Config, opts ...Option) (*Dispatcher, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: completer is required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: checkpoint store is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		completer: completer,
		store:     store,
		cfg:       cfg,
		logger:    zap.NewNop(),
		jitter:    randomJitter,
		sleep:     sleepContext,
	}
	if cfg.RequestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Concurrency)
	}

	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Prepare returns the run for logs without starting it. When the config asks
// for it, the checkpoint is cleared here.
func (d *Dispatcher) Prepare(ctx context.Context, logs []*chat.Log) (*Job, error) {
	if len(logs) > checkpoint.MaxChatID+1 {
		return nil, fmt.Errorf("%w: %d conversations exceed the checkpoint limit of %d", ErrInvalidConfig, len(logs), checkpoint.MaxChatID+1)
	}
	for i, log := range logs {
		if log == nil {
			return nil, fmt.Errorf("%w: conversation %d is nil", ErrInvalidConfig, i)
		}
	}
	if d.cfg.ClearCheckpoint {
		if err := d.store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("clear checkpoint: %w", err)
		}
	}
	return &Job{d: d, logs: logs, id: uuid.NewString()}, nil
}

// Run prepares and drives a run to completion.
func (d *Dispatcher) Run(ctx context.Context, logs []*chat.Log) (*Report, error) {
	job, err := d.Prepare(ctx, logs)
	if err != nil {
		return nil, err
	}
	return job.Run(ctx)
}

// Job is a prepared, not yet started run.
type Job struct {
	d    *Dispatcher
	logs []*chat.Log
	id   string
}

// JobResult is delivered by Start.
type JobResult struct {
	Report *Report
	Err    error
}

// ID returns the run id attached to every log line of the job.
func (j *Job) ID() string {
	return j.id
}

// Start runs the job in its own goroutine and delivers the result on the
// returned channel.
func (j *Job) Start(ctx context.Context) <-chan JobResult {
	ch := make(chan JobResult, 1)
	go func() {
		rep, err := j.Run(ctx)
		ch <- JobResult{Report: rep, Err: err}
		close(ch)
	}()
	return ch
}

// Run loads the checkpoint, dispatches every conversation it does not hold
// and waits for all of them. Per-conversation failures are reported in the
// Report; only a checkpoint that cannot be loaded fails the run.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	d := j.d
	logger := d.logger.With(zap.String("run_id", j.id))

	ctx, span := observability.StartSpan(ctx, "batch.run",
		trace.WithAttributes(
			attribute.String("batch.run_id", j.id),
			attribute.Int("batch.conversations", len(j.logs)),
			attribute.Int("batch.concurrency", d.cfg.Concurrency),
		),
	)
	defer span.End()

	view, err := checkpoint.LoadStoreView(ctx, d.store)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load checkpoint")
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	report := &Report{RunID: j.id, Total: len(j.logs)}
	var pending []int
	for i := range j.logs {
		if view.Done(i) {
			report.Skipped = append(report.Skipped, i)
			continue
		}
		pending = append(pending, i)
	}

	logger.Info("Starting batch",
		zap.Int("conversations", len(j.logs)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("pending", len(pending)),
	)

	r := &run{
		job:    j,
		logger: logger,
		gate:   semaphore.NewWeighted(int64(d.cfg.Concurrency)),
	}

	report.Outcomes = make([]Outcome, len(pending))
	var g errgroup.Group
	for k, idx := range pending {
		g.Go(func() error {
			report.Outcomes[k] = r.complete(ctx, idx, j.logs[idx])
			return nil
		})
	}
	_ = g.Wait()

	counts := report.Counts()
	span.SetAttributes(
		attribute.Int("batch.completed", counts[StatusCompleted]),
		attribute.Int("batch.failed", len(pending)-counts[StatusCompleted]),
	)
	logger.Info("Batch finished",
		zap.Int("completed", counts[StatusCompleted]),
		zap.Int("exhausted", counts[StatusExhausted]),
		zap.Int("invalid", counts[StatusInvalid]),
		zap.Int("persist_failed", counts[StatusPersistFailed]),
		zap.Int("canceled", counts[StatusCanceled]),
	)

	return report, nil
}

// run holds the state shared by the tasks of one Job.Run.
type run struct {
	job    *Job
	logger *zap.Logger

	// gate bounds the network phase; persistMu serializes checkpoint writes.
	gate      *semaphore.Weighted
	persistMu sync.Mutex
	finished  int
}

func (r *run) complete(ctx context.Context, idx int, log *chat.Log) (out Outcome) {
	ctx, span := observability.StartSpan(ctx, "batch.complete",
		trace.WithAttributes(attribute.Int("batch.index", idx)),
	)
	defer span.End()

	logger := r.logger.With(zap.Int("index", idx))
	out.Index = idx

	defer func() {
		observability.RecordConversation(out.Status.String())
		span.SetAttributes(
			attribute.String("batch.status", out.Status.String()),
			attribute.Int("batch.attempts", out.Attempts),
		)
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Status.String())
		}
	}()

	raw, attempts, err := r.fetch(ctx, logger, log)
	out.Attempts = attempts
	if err != nil {
		out.Err = err
		out.Status = StatusExhausted
		if ctx.Err() != nil {
			out.Status = StatusCanceled
		}
		logger.Warn("Request failed, conversation left incomplete",
			zap.Int("attempts", attempts), zap.Error(err))
		return out
	}

	content, err := assistantContent(raw)
	if err != nil {
		out.Err = err
		out.Status = StatusInvalid
		logger.Warn("Invalid response", zap.Error(err))
		return out
	}

	log.Assistant(content)
	if err := r.persist(ctx, idx, log); err != nil {
		// Keep the caller's log in its pre-run shape so the next run sends
		// the same request.
		_, _ = log.Pop()
		out.Err = err
		out.Status = StatusPersistFailed
		logger.Error("Checkpoint write failed", zap.Error(err))
		return out
	}

	out.Status = StatusCompleted
	return out
}

// fetch runs the network phase while holding a concurrency permit.
func (r *run) fetch(ctx context.Context, logger *zap.Logger, log *chat.Log) (json.RawMessage, int, error) {
	d := r.job.d
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return nil, 0, err
	}
	observability.AddInflight(1)
	defer func() {
		observability.AddInflight(-1)
		r.gate.Release(1)
	}()

	req := client.Request{
		Model:    d.cfg.Model,
		Messages: log.Messages(),
		Options:  d.cfg.Options,
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRequests; attempt++ {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, attempt - 1, err
			}
		}

		raw, err := r.call(ctx, req)
		if err == nil {
			return raw, attempt, nil
		}

		// The API answered: its error body is judged by the envelope, not retried.
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return apiErr.Body, attempt, nil
		}

		lastErr = err
		logger.Debug("Request failed", zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
		if attempt == d.cfg.MaxRequests {
			break
		}

		observability.RecordRetry()
		if err := d.sleep(ctx, d.jitter(d.cfg.Jitter)); err != nil {
			return nil, attempt, err
		}
	}

	return nil, d.cfg.MaxRequests, fmt.Errorf("%w (%d): %w", ErrRetriesExhausted, d.cfg.MaxRequests, lastErr)
}

func (r *run) call(ctx context.Context, req client.Request) (json.RawMessage, error) {
	d := r.job.d
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := d.completer.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordRequest(status, time.Since(start))
	return raw, err
}

func (r *run) persist(ctx context.Context, idx int, log *chat.Log) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	err := r.job.d.store.Append(ctx, checkpoint.Tagged(idx, log))
	observability.RecordCheckpointWrite(err)
	if err != nil {
		return fmt.Errorf("persist conversation %d: %w", idx, err)
	}

	r.finished++
	r.logger.Debug("Conversation saved", zap.Int("index", idx), zap.Int("saved_this_run", r.finished))
	return nil
}

// assistantContent validates a raw response and extracts the reply text.
func assistantContent(raw json.RawMessage) (string, error) {
	env, err := response.Parse(raw)
	if err != nil {
		return "", err
	}
	if !env.IsValid() {
		typ, _ := env.ErrorType()
		code, _ := env.ErrorCode()
		msg, _ := env.ErrorMessage()
		return "", &InvalidResponseError{Type: typ, Code: code, Message: msg}
	}
	return env.Content()
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run validates cfg, then completes one turn for every conversation in logs
// that store does not already hold. It returns one flag per dispatched
// conversation, in input order.
func Run(ctx context.Context, logs []*chat.Log, completer client.Completer, store checkpoint.Store, cfg Config, opts ...Option) ([]bool, error) {
	d, err := New(completer, store, cfg, opts...)
	if err != nil {
		return nil, err
	}
	report, err := d.Run(ctx, logs)
	if err != nil {
		return nil, err
	}
	return report.Completed(), nil
}

// Prepare is the dry form of Run: it validates cfg, clears the checkpoint if
// asked, and returns the unstarted job.
func Prepare(ctx context.Context, logs []*chat.Log, completer client.Completer, store checkpoint.Store, cfg Config, opts ...Option) (*Job, error) {
	d, err := New(completer, store, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return d.Prepare(ctx, logs)
}
