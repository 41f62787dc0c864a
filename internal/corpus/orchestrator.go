package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jibzus/enterprise-spendguard/internal/metrics"
)

// Orchestrator runs corpus load jobs on a bounded worker pool and publishes
// the results.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	loader  *Loader
	store   *Store
	met     *metrics.Metrics
	log     *slog.Logger
	workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewOrchestrator creates the orchestrator. Call Start before Submit.
func NewOrchestrator(loader *Loader, store *Store, workers, queueSize int, jobTTL time.Duration, met *metrics.Metrics, log *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 8
	}
	return &Orchestrator{
		jobs:    NewJobStore(jobTTL),
		queue:   make(chan *Job, queueSize),
		loader:  loader,
		store:   store,
		met:     met,
		log:     log,
		workers: workers,
	}
}

// Start launches worker goroutines and the job store cleanup loop.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline. Safe to call more than once;
// later Submit calls fail instead of sending on the closed queue.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new load job.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		job.SetStatus(StatusFailed, "shutting_down")
		return fmt.Errorf("orchestrator stopped")
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("load queue is full (%d)", cap(o.queue))
	}
}

// GetJob returns a job by ID, or nil.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

func (o *Orchestrator) process(ctx context.Context, job *Job) {
	log := o.log.With("job_id", job.ID, "filename", job.Filename)

	if active := o.store.Active(); active != nil && active.Version.ContentHash == job.ContentHash {
		log.Info("identical corpus already active, skipping", "version", active.Version.ID)
		job.SetVersion(active.Version.ID)
		job.SetStatus(StatusDupSkipped, "dedup")
		o.met.CorpusLoadsTotal.WithLabelValues("duplicate").Inc()
		return
	}

	snap, err := o.loader.Build(ctx, job)
	if err != nil {
		log.Error("corpus load failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, job.Snapshot().Phase)
		o.met.CorpusLoadsTotal.WithLabelValues("failed").Inc()
		return
	}

	o.store.Publish(snap)
	job.SetVersion(snap.Version.ID)
	job.SetStatus(StatusPublished, "published")
	o.met.CorpusLoadsTotal.WithLabelValues("published").Inc()
	o.met.ActiveCorpusChunks.Set(float64(snap.Version.ChunkCount))
	log.Info("corpus published", "version", snap.Version.ID, "chunks", snap.Version.ChunkCount)
}
