package transcribe

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// minAudioBytes is the ASR semantic-error floor: files smaller than this
// are treated as invalid audio and failed immediately rather than retried
// (spec.md §4.2 "file < 1 KB").
const minAudioBytes = 1024

// maxTransportRetries is how many times a transport error is retried
// before the job completes with an empty transcription (spec.md §4.2).
const maxTransportRetries = 2

// Job is a single transcription request enqueued by the ingest pipeline.
type Job struct {
	CallID   int64
	Ref      AudioRef
	Timeout  time.Duration // per-attempt timeout; 0 uses the pool default
	Complete func(ctx context.Context, callID int64, text string)
}

// WorkerPool runs a bounded FIFO queue of transcription jobs against a
// single Provider, per spec.md §4.2's queue discipline (default
// concurrency 3, bounded retries, non-fatal failure).
type WorkerPool struct {
	provider   Provider
	workers    int
	timeout    time.Duration
	preprocess bool
	jobs       chan Job
	log        zerolog.Logger

	wg        sync.WaitGroup
	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool builds a pool with the given concurrency and queue depth.
// When preprocess is true, Path-based jobs are run through a sox cleanup
// pass before being handed to the provider.
func NewWorkerPool(provider Provider, workers, queueSize int, timeout time.Duration, preprocess bool, log zerolog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &WorkerPool{
		provider:   provider,
		workers:    workers,
		timeout:    timeout,
		preprocess: preprocess,
		jobs:       make(chan Job, queueSize),
		log:        log.With().Str("component", "transcribe_worker").Logger(),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.workers).Msg("transcription worker pool started")
}

// Stop drains the queue and waits for in-flight jobs to finish.
func (wp *WorkerPool) Stop() {
	close(wp.jobs)
	wp.wg.Wait()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("transcription worker pool stopped")
}

// QueueDepth reports the number of jobs currently waiting, for the
// `/metrics` gauge (spec.md ambient observability).
func (wp *WorkerPool) QueueDepth() int {
	return len(wp.jobs)
}

// Enqueue adds a job to the queue. Returns false if the queue is full.
func (wp *WorkerPool) Enqueue(j Job) bool {
	select {
	case wp.jobs <- j:
		return true
	default:
		return false
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()
	for job := range wp.jobs {
		text, err := wp.run(log, job)
		if err != nil {
			wp.failed.Add(1)
			log.Warn().Err(err).Int64("call_id", job.CallID).Msg("transcription failed, storing empty transcription")
		} else {
			wp.completed.Add(1)
		}
		if job.Complete != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			job.Complete(ctx, job.CallID, text)
			cancel()
		}
	}
}

// run executes a job's retry policy, always returning a text (possibly
// empty) since failure is never fatal to the call (spec.md §4.2).
func (wp *WorkerPool) run(log zerolog.Logger, job Job) (string, error) {
	if size := audioSize(job.Ref); size > 0 && size < minAudioBytes {
		return "", errors.New("audio smaller than 1KB, treated as invalid")
	}

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = wp.timeout
	}

	ref := job.Ref
	if wp.preprocess && ref.Path != "" && CheckSox() {
		processed, cleanup, err := Preprocess(context.Background(), ref.Path)
		if err != nil {
			log.Warn().Err(err).Int64("call_id", job.CallID).Msg("preprocessing failed, using original audio")
		} else {
			defer cleanup()
			ref.Path = processed
			ref.Bytes = nil // providers read Bytes first; make them use the processed file
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxTransportRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		text, err := wp.provider.Transcribe(ctx, ref)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if attempt < maxTransportRetries {
			log.Debug().Err(err).Int("attempt", attempt+1).Int64("call_id", job.CallID).Msg("transcription attempt failed, retrying")
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	return "", lastErr
}

func audioSize(ref AudioRef) int64 {
	if ref.Bytes != nil {
		return int64(len(ref.Bytes))
	}
	if ref.Path != "" {
		if fi, err := os.Stat(ref.Path); err == nil {
			return fi.Size()
		}
	}
	return 0
}
