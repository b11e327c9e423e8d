package ingestion_engine

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"studyvault/internal/core"
	"studyvault/internal/models"
)

// IngestJob is one queued ingestion request.
type IngestJob struct {
	JobID        string
	UserID       string
	SessionID    string
	ExpectedETag string
}

// Worker consumes ingestion jobs from a bounded in-process queue and records
// their outcome on the job row.
type Worker struct {
	pipeline *Pipeline
	db       core.DbClient
	jobs     chan IngestJob
	wg       sync.WaitGroup
}

func NewWorker(pipeline *Pipeline, dbc core.DbClient) *Worker {
	return &Worker{
		pipeline: pipeline,
		db:       dbc,
		jobs:     make(chan IngestJob, 64),
	}
}

// Start launches numWorkers goroutines draining the queue until ctx is
// cancelled. Call once.
func (w *Worker) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for i := 1; i <= numWorkers; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			log.Printf("Worker %d: started", id)
			for {
				select {
				case <-ctx.Done():
					log.Printf("Worker %d: stopping", id)
					return
				case job := <-w.jobs:
					w.processOne(ctx, job)
				}
			}
		}(i)
	}
}

// Wait blocks until all workers have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Enqueue hands a job to the queue without blocking the caller.
func (w *Worker) Enqueue(ctx context.Context, job IngestJob) error {
	select {
	case w.jobs <- job:
		return nil
	case <-ctx.Done():
		return core.Errf(core.CodeQueueUnavailable, "ingestion queue shutting down")
	default:
		return core.Errf(core.CodeQueueUnavailable, "ingestion queue is full")
	}
}

func (w *Worker) processOne(ctx context.Context, job IngestJob) {
	log.Printf("Worker: job %s started (session %s)", job.JobID, job.SessionID)
	sink := NewJobSink(w.db, job.JobID)

	mat, err := w.pipeline.CompleteUpload(ctx, job.UserID, job.SessionID, job.ExpectedETag, sink)
	if err != nil {
		w.finish(job.JobID, models.JobFailed, 0, errorJSON(err), "")
		log.Printf("Worker: job %s failed: %v", job.JobID, err)
		return
	}
	w.finish(job.JobID, models.JobSucceeded, 100, "", mat.ID)
	log.Printf("Worker: job %s succeeded (material %s)", job.JobID, mat.ID)
}

func (w *Worker) finish(jobID, status string, progress int, errJSON, materialID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.db.FinishMaterialJob(ctx, jobID, status, progress, errJSON, materialID); err != nil {
		log.Printf("Worker: finish job %s failed: %v", jobID, err)
	}
}

// errorJSON serializes a failure into the job row's error payload.
func errorJSON(err error) string {
	code := core.CodeOf(err)
	if code == "" {
		code = core.CodeInvalidState
	}
	payload := struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{
		Code:    string(code),
		Message: err.Error(),
	}
	b, merr := json.Marshal(payload)
	if merr != nil {
		return `{"code":"INVALID_STATE","message":"unserializable error"}`
	}
	return string(b)
}
