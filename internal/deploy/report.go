package deploy

import (
	"time"

	"git.home.luguber.info/inful/nekodeploy/internal/metrics"
)

// Outcome labels for a finished deployment run.
const (
	OutcomeSuccess = "success"
	OutcomeWarning = "warning"
	OutcomeFailed  = "failed"
)

// DeployReport accumulates per-stage results for one deployment run.
type DeployReport struct {
	DeployID       string
	Folder         string
	Revision       string
	Outcome        string
	UploadedBytes  int64
	ArchiveEntries int
	StageDurations map[StageName]time.Duration
	Warnings       []*StageError
	Errors         []*StageError
	StartedAt      time.Time
	Duration       time.Duration
}

func newDeployReport(deployID string) *DeployReport {
	return &DeployReport{
		DeployID:       deployID,
		StageDurations: make(map[StageName]time.Duration),
		StartedAt:      time.Now(),
	}
}

func (r *DeployReport) recordWarning(stage StageName, se *StageError, recorder metrics.Recorder) {
	r.Warnings = append(r.Warnings, se)
	recorder.IncStageResult(string(stage), metrics.ResultWarning)
}

func (r *DeployReport) recordError(stage StageName, se *StageError, recorder metrics.Recorder) {
	r.Errors = append(r.Errors, se)
	if se.Kind == StageErrorCanceled {
		recorder.IncStageResult(string(stage), metrics.ResultCanceled)
		return
	}
	recorder.IncStageResult(string(stage), metrics.ResultFatal)
}

// finalize stamps the overall outcome and duration.
func (r *DeployReport) finalize(err error, start time.Time) {
	r.Duration = time.Since(start)
	switch {
	case err != nil:
		r.Outcome = OutcomeFailed
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

// FirstError returns the deployment's fatal error text, if any.
func (r *DeployReport) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Error()
}
