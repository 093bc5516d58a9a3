package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/repogist/internal/chunker"
	"github.com/dgallion1/repogist/internal/config"
	"github.com/dgallion1/repogist/internal/gather"
)

// Orchestrator manages the analysis job queue and worker pool.
type Orchestrator struct {
	jobs      *JobStore
	queue     chan *Job
	completer Completer
	est       chunker.Estimator
	gatherer  *gather.Gatherer
	log       *slog.Logger
	cfg       config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Start must be called before
// submitting jobs.
func NewOrchestrator(cfg config.Config, completer Completer, est chunker.Estimator, log *slog.Logger) (*Orchestrator, error) {
	gatherer, err := gather.New(est, log, gather.Options{
		MaxFileBytes: cfg.MaxFileBytes,
		Ignore:       cfg.IgnorePatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("configure gatherer: %w", err)
	}
	return &Orchestrator{
		jobs:      NewJobStore(cfg.JobTTL),
		queue:     make(chan *Job, cfg.MaxQueueSize),
		completer: completer,
		est:       est,
		gatherer:  gatherer,
		log:       log,
		cfg:       cfg,
	}, nil
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.completer, o.est, o.gatherer, o.log,
				o.cfg.ReserveFraction, o.cfg.MaxConcurrentSummaries, o.cfg.ContextOverride)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
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

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
