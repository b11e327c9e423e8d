package ingestion_engine

import (
	"context"
	"log"
	"time"

	"studyvault/internal/core"
	"studyvault/internal/models"
)

// Step names one pipeline stage as seen by clients.
type Step string

const (
	StepPreparing  Step = "PREPARING"
	StepVerifying  Step = "VERIFYING"
	StepLoading    Step = "LOADING"
	StepChecking   Step = "CHECKING"
	StepStoring    Step = "STORING"
	StepAnalyzing  Step = "ANALYZING"
	StepFinalizing Step = "FINALIZING"
	StepCompleted  Step = "COMPLETED"
)

// stepPercent maps each step to its client-visible progress. ANALYZING spans
// 60-90 and reports intermediate percentages.
var stepPercent = map[Step]int{
	StepPreparing:  5,
	StepVerifying:  15,
	StepLoading:    30,
	StepChecking:   40,
	StepStoring:    50,
	StepAnalyzing:  60,
	StepFinalizing: 95,
	StepCompleted:  100,
}

// ProgressSink receives step-boundary progress. Sinks must be cheap; the
// pipeline invokes them synchronously.
type ProgressSink func(step Step, percent int)

func report(sink ProgressSink, step Step) {
	reportPct(sink, step, stepPercent[step])
}

func reportPct(sink ProgressSink, step Step, percent int) {
	if sink != nil {
		sink(step, percent)
	}
}

// NewJobSink persists progress onto a MaterialJob row at each step boundary,
// for clients that poll instead of stream. Write failures are logged, never
// propagated: progress reporting must not sink the pipeline.
func NewJobSink(dbc core.DbClient, jobID string) ProgressSink {
	return func(step Step, percent int) {
		status := models.JobRunning
		if step == StepCompleted {
			status = models.JobSucceeded
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dbc.UpdateMaterialJobProgress(ctx, jobID, status, percent); err != nil {
			log.Printf("Pipeline: job %s progress update failed: %v", jobID, err)
		}
	}
}
