package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
	"git.home.luguber.info/inful/nekodeploy/internal/metrics"
	"git.home.luguber.info/inful/nekodeploy/internal/nekoweb"
	"git.home.luguber.info/inful/nekodeploy/internal/workspace"
)

// Stage is a discrete unit of work in the deployment.
type Stage func(ctx context.Context, st *DeployState) error

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Deployment must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}
func newCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// classifyStageError wraps an arbitrary error for a stage, deriving the kind
// from the structured error severity: warning-severity errors are absorbed,
// everything else aborts.
func classifyStageError(stage StageName, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	if !deployerrors.IsFatal(err) {
		return newWarnStageError(stage, err)
	}
	return newFatalStageError(stage, err)
}

// DeployState carries mutable state across stages of one deployment run.
type DeployState struct {
	DeployID string
	Folder   string // resolved target folder
	Revision string // source revision, when discoverable

	Workspace   *workspace.Manager
	FolderDir   string // staged copy of the build output, under the folder name
	ArchivePath string // zip artifact; empty until the archive stage ran
	ArchiveSize int64

	Session *nekoweb.BigFileSession

	Report *DeployReport
}

// newDeployState constructs a DeployState.
func newDeployState(deployID string) *DeployState {
	return &DeployState{
		DeployID: deployID,
		Report:   newDeployReport(deployID),
	}
}

// runStages executes stages in order, recording timing and stopping on the
// first fatal error. Warning-kind errors are absorbed into the report and
// execution continues; this is what keeps the best-effort stages
// (delete_previous, metadata_update) from failing the run.
func runStages(ctx context.Context, st *DeployState, stages []StageDef, recorder metrics.Recorder) error {
	for _, sd := range stages {
		select {
		case <-ctx.Done():
			se := newCanceledStageError(sd.Name, ctx.Err())
			st.Report.recordError(sd.Name, se, recorder)
			return se
		default:
		}

		t0 := time.Now()
		err := sd.Fn(ctx, st)
		dur := time.Since(t0)
		st.Report.StageDurations[sd.Name] = dur
		recorder.ObserveStageDuration(string(sd.Name), dur)

		if err == nil {
			recorder.IncStageResult(string(sd.Name), metrics.ResultSuccess)
			continue
		}

		se := classifyStageError(sd.Name, err)
		switch se.Kind {
		case StageErrorWarning:
			st.Report.recordWarning(sd.Name, se, recorder)
			slog.Warn("Stage completed with warning",
				logfields.DeployID(st.DeployID),
				logfields.Stage(string(sd.Name)),
				logfields.Error(se.Err))
			continue
		default:
			st.Report.recordError(sd.Name, se, recorder)
			return se
		}
	}
	return nil
}
