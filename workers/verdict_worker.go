// workers/verdict_worker.go
package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"eco-mission-system/services"
)

// VerdictWorker pulls validation jobs off a buffered queue, runs the
// validator with a per-job timeout, and applies the verdict to the owning
// pipeline. Jobs carry ids only; the pipelines re-fetch fresh state before
// settling, so a verdict racing an admin action resolves via the payment
// guards rather than here.
type VerdictWorker struct {
	validator services.Validator
	reports   *services.ReportService
	tasks     *services.TaskService

	jobs    chan services.ValidationJob
	workers int
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewVerdictWorker(validator services.Validator, reports *services.ReportService, tasks *services.TaskService) *VerdictWorker {
	return &VerdictWorker{
		validator: validator,
		reports:   reports,
		tasks:     tasks,
		jobs:      make(chan services.ValidationJob, 256),
		workers:   4,
		timeout:   30 * time.Second,
	}
}

// Enqueue implements services.ValidationQueue. A full queue drops the job
// with a log line; the entity stays in its pre-verdict status for community
// voting or admin review.
func (w *VerdictWorker) Enqueue(job services.ValidationJob) {
	select {
	case w.jobs <- job:
	default:
		log.Printf("⚠️ Validation queue full, dropping %s job for %s", job.Kind, job.EntityID)
	}
}

func (w *VerdictWorker) Start(ctx context.Context) {
	log.Printf("🔁 Starting Verdict Worker (%d consumers)…", w.workers)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Stop waits for in-flight jobs to finish after the context is cancelled.
func (w *VerdictWorker) Stop() {
	w.wg.Wait()
	log.Println("⏹️ Verdict Worker stopped")
}

func (w *VerdictWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case job := <-w.jobs:
			w.process(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (w *VerdictWorker) process(ctx context.Context, job services.ValidationJob) {
	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	verdict, err := w.validator.Classify(jobCtx, job.MediaRef, services.ValidationContext{
		Kind:     job.Kind,
		EntityID: job.EntityID,
		UserID:   job.UserID,
		Category: job.Category,
	})
	if err != nil {
		// Timed out or failed: the entity keeps its current status.
		log.Printf("⚠️ Validator failed on %s %s: %v", job.Kind, job.EntityID, err)
		return
	}

	switch job.Kind {
	case services.JobReport:
		if _, err := w.reports.ApplyVerdict(jobCtx, job.EntityID, verdict); err != nil {
			log.Printf("❌ Applying report verdict for %s failed: %v", job.EntityID, err)
		}
	case services.JobTaskProof:
		if err := w.tasks.ApplyProofVerdict(jobCtx, job.EntityID, verdict); err != nil {
			log.Printf("❌ Applying proof verdict for %s failed: %v", job.EntityID, err)
		}
	default:
		log.Printf("⚠️ Unknown validation job kind %q", job.Kind)
	}
}
