// Package worker consumes the execution queue and drives jobs through the
// sandbox.
package worker

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"runbox/internal/observability"
	"runbox/internal/queue"
	"runbox/internal/sandbox"
	"runbox/internal/store"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config holds configuration for the execution pipeline.
type Config struct {
	// Concurrency is the number of parallel consumers (default: 4).
	Concurrency int
	// ExecTimeout bounds a single sandboxed run (default: 30s).
	ExecTimeout time.Duration
}

// Pipeline pulls queued jobs and advances them through the status lifecycle:
// READY when picked up, RUNNING when handed to the sandbox, then
// FINISHED_WITH_SUCCESS or FAILED. Statuses are appended, never rewritten,
// so the history stays a faithful audit trail.
type Pipeline struct {
	jobs    store.JobStore
	queue   queue.Consumer
	runner  sandbox.Runner
	config  Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a pipeline. metrics may be nil when metrics are not exported.
func New(jobs store.JobStore, q queue.Consumer, runner sandbox.Runner, config Config, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.ExecTimeout <= 0 {
		config.ExecTimeout = 30 * time.Second
	}

	return &Pipeline{
		jobs:    jobs,
		queue:   q,
		runner:  runner,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Run starts the consumer pool and blocks until the context is cancelled.
// In-flight jobs finish before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline starting", "concurrency", p.config.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < p.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.consume(ctx)
		}()
	}

	wg.Wait()
	p.logger.Info("pipeline stopped")
	return ctx.Err()
}

// dequeueRetryDelay spaces out retries when the queue itself is failing, so
// an unreachable broker does not turn the consumer pool into a busy loop.
const dequeueRetryDelay = time.Second

func (p *Pipeline) consume(ctx context.Context) {
	for {
		msg, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueRetryDelay):
			}
			continue
		}
		p.Process(ctx, msg.JobID)
	}
}

// Process runs a single dequeued job to a terminal status. Exported so a
// one-shot invocation (CLI, tests) can drive the same path as the pool.
func (p *Pipeline) Process(ctx context.Context, jobID string) {
	tracer := otel.Tracer("worker-pipeline")
	ctx, span := tracer.Start(ctx, "process_job",
		trace.WithAttributes(attribute.String("job.id", jobID)),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	log := p.logger.With("job_id", jobID)

	job, err := p.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		// A message without a job row is unrecoverable; there is no job to
		// attach a FAILED status to.
		span.RecordError(err)
		log.Error("dequeued job does not exist", "error", err)
		return
	}

	latest, err := p.jobs.LatestStatus(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		log.Error("failed to load latest status", "error", err)
		return
	}
	if latest.Status.Terminal() {
		// Redelivered message for a job that already finished.
		log.Info("skipping job already in terminal status", "status", latest.Status)
		return
	}

	if err := p.appendStatus(ctx, jobID, store.StatusReady); err != nil {
		span.RecordError(err)
		log.Error("failed to mark job ready", "error", err)
		return
	}

	if _, err := os.Stat(job.ArtifactPath); err != nil {
		log.Error("artifact missing", "path", job.ArtifactPath, "error", err)
		p.finish(ctx, log, span, jobID, store.StatusFailed)
		return
	}

	if err := p.appendStatus(ctx, jobID, store.StatusRunning); err != nil {
		span.RecordError(err)
		log.Error("failed to mark job running", "error", err)
		return
	}

	// The run gets its own deadline so a wedged container cannot stall the
	// consumer slot forever.
	runCtx, cancel := context.WithTimeout(ctx, p.config.ExecTimeout)
	defer cancel()

	result, err := p.runner.Run(runCtx, sandbox.RunSpec{
		ArtifactPath: job.ArtifactPath,
		JobID:        jobID,
	})
	if err != nil {
		span.RecordError(err)
		var infraErr *sandbox.InfraError
		if errors.As(err, &infraErr) {
			log.Error("sandbox infrastructure failure", "op", infraErr.Op, "error", infraErr.Err)
		} else {
			log.Error("execution failed", "error", err)
		}
		p.finish(ctx, log, span, jobID, store.StatusFailed)
		return
	}

	span.SetAttributes(attribute.Int("exit_code", result.ExitCode))
	if result.ExitCode == 0 {
		log.Info("execution finished", "exit_code", 0)
		p.finish(ctx, log, span, jobID, store.StatusFinishedWithSuccess)
	} else {
		log.Info("execution failed", "exit_code", result.ExitCode)
		p.finish(ctx, log, span, jobID, store.StatusFailed)
	}
}

// finish appends the terminal status and records metrics. The append uses a
// background-derived context so a cancelled consumer still lands the result.
func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, span trace.Span, jobID string, status store.JobStatus) {
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.appendStatus(appendCtx, jobID, status); err != nil {
		span.RecordError(err)
		log.Error("failed to append terminal status", "status", status, "error", err)
		return
	}

	if p.metrics != nil {
		p.metrics.JobsProcessed.Add(ctx, 1)
		if status == store.StatusFailed {
			p.metrics.JobsFailed.Add(ctx, 1)
		}
	}
}

func (p *Pipeline) appendStatus(ctx context.Context, jobID string, status store.JobStatus) error {
	entry := &store.StatusLog{
		ID:        ulid.MustNew(ulid.Now(), rand.Reader).String(),
		JobID:     jobID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.jobs.AppendStatus(ctx, nil, entry); err != nil {
		return fmt.Errorf("append %s: %w", status, err)
	}
	return nil
}
