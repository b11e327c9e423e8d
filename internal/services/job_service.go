package services

import (
	"context"
	"encoding/json"
	"strings"

	"studyvault/internal/core"
	"studyvault/internal/models"
)

// JobError is the structured failure payload stored on a failed job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobResult is the payload exposed for a succeeded ingestion job.
type JobResult struct {
	MaterialID string `json:"material_id"`
	Summary    string `json:"summary,omitempty"`
}

// JobStatusView is the client-facing projection of a job row.
type JobStatusView struct {
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"current_step"`
	Error       *JobError  `json:"error,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// JobService reports on asynchronous pipeline runs.
type JobService struct {
	db core.DbClient
}

func NewJobService(db core.DbClient) *JobService {
	return &JobService{db: db}
}

// GetStatus builds the status view for one of the user's jobs. A foreign or
// unknown job id looks absent.
func (s *JobService) GetStatus(ctx context.Context, userID, jobID string) (*JobStatusView, error) {
	job, err := s.db.GetMaterialJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, core.Errf(core.CodeNotFound, "job not found: %s", jobID)
	}

	view := &JobStatusView{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: stepLabel(job.JobType),
	}

	switch job.Status {
	case models.JobFailed:
		view.Error = parseJobError(job.ErrorJSON)
	case models.JobSucceeded:
		result := &JobResult{MaterialID: job.MaterialID}
		if job.MaterialID != "" {
			if mat, err := s.db.GetMaterialByID(ctx, userID, job.MaterialID); err == nil && mat != nil {
				result.Summary = mat.Summary
			}
		}
		view.Result = result
	}
	return view, nil
}

// stepLabel translates a job type into the client-facing step name.
func stepLabel(jobType string) string {
	switch jobType {
	case "TEXT_EXTRACT":
		return "parsing"
	case "CHUNK":
		return "chunking"
	case "EMBED":
		return "embedding"
	default:
		return strings.ToLower(jobType)
	}
}

func parseJobError(raw string) *JobError {
	if raw == "" {
		return &JobError{Code: string(core.CodeInvalidState), Message: "job failed"}
	}
	var je JobError
	if err := json.Unmarshal([]byte(raw), &je); err != nil || je.Code == "" {
		return &JobError{Code: string(core.CodeInvalidState), Message: raw}
	}
	return &je
}
