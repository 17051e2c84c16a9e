package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
	"mpscraper/pkg/ratelimit"
	"mpscraper/pkg/retry"
)

// DownloadJob represents a single media download
type DownloadJob struct {
	Index int
	Ref   models.MediaRef
	Path  string
}

// DownloadResult represents the result of a download job
type DownloadResult struct {
	Job      DownloadJob
	Success  bool
	Skipped  bool
	Attempts int
	Error    error
	Duration time.Duration
	Size     int
}

// MediaClient fetches remote media
type MediaClient interface {
	DownloadMedia(ctx context.Context, url string) ([]byte, error)
}

// MediaStorage persists downloaded media
type MediaStorage interface {
	Exists(path string) bool
	Save(r io.Reader, path string) error
}

// PoolOptions tunes a WorkerPool
type PoolOptions struct {
	Workers    int
	RetryTimes int
	RetryDelay time.Duration
	// Timeout bounds a single attempt; zero means no bound
	Timeout   time.Duration
	Overwrite bool
	Limiter   ratelimit.Limiter
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	opts        PoolOptions
	jobQueue    chan DownloadJob
	resultQueue chan DownloadResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      MediaClient
	storage     MediaStorage
	logger      logger.Logger
}

// NewWorkerPool creates a new download worker pool bound to ctx
func NewWorkerPool(ctx context.Context, client MediaClient, storage MediaStorage, opts PoolOptions, log logger.Logger) *WorkerPool {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.RetryTimes < 0 {
		opts.RetryTimes = 0
	}

	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		opts:        opts,
		jobQueue:    make(chan DownloadJob, opts.Workers*2),
		resultQueue: make(chan DownloadResult, opts.Workers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		storage:     storage,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.opts.Workers,
	})

	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, waits for the workers and closes the result
// queue. It must be called exactly once, after the last Submit.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit adds a job to the queue, blocking while the queue is full
func (wp *WorkerPool) Submit(job DownloadJob) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel
func (wp *WorkerPool) Results() <-chan DownloadResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job DownloadJob, workerID int) DownloadResult {
	start := time.Now()
	result := DownloadResult{Job: job}

	if !wp.opts.Overwrite && wp.storage.Exists(job.Path) {
		wp.logger.DebugWithFields("Media already present", map[string]interface{}{
			"worker_id": workerID,
			"path":      job.Path,
		})
		result.Success = true
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	cfg := retry.FixedConfig(wp.ctx, wp.opts.RetryTimes, wp.opts.RetryDelay)
	// A per-attempt timeout surfaces as cancellation too; only the pool
	// context decides whether the run is over.
	cfg.RetryIf = func(error) bool { return wp.ctx.Err() == nil }
	cfg.Logger = wp.logger

	data, err := retry.DoWithResult(func() ([]byte, error) {
		result.Attempts++
		return wp.fetch(job.Ref.RemoteURL)
	}, cfg)
	if err == nil {
		result.Size = len(data)
		if saveErr := wp.storage.Save(bytes.NewReader(data), job.Path); saveErr != nil {
			err = fmt.Errorf("save failed: %w", saveErr)
		}
	}

	result.Duration = time.Since(start)
	if err != nil {
		result.Error = errs.Wrap(errs.ErrorTypeMediaFetchFailed, err, job.Ref.RemoteURL)
	} else {
		result.Success = true
	}

	logger.LogMediaFetch(wp.logger, job.Ref.RemoteURL, string(job.Ref.Kind), result.Attempts, result.Error)
	return result
}

func (wp *WorkerPool) fetch(url string) ([]byte, error) {
	if wp.opts.Limiter != nil {
		if err := wp.opts.Limiter.Wait(wp.ctx); err != nil {
			return nil, err
		}
	}

	ctx := wp.ctx
	if wp.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.opts.Timeout)
		defer cancel()
	}
	return wp.client.DownloadMedia(ctx, url)
}

// QueueSize returns the current number of jobs in the queue
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}
