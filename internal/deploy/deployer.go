// Package deploy sequences one end-to-end publish of a built site:
// staging, archiving, the upload session protocol, and the optional
// metadata side channel, with unconditional local cleanup.
package deploy

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/nekodeploy/internal/config"
	"git.home.luguber.info/inful/nekodeploy/internal/history"
	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
	"git.home.luguber.info/inful/nekodeploy/internal/metrics"
	"git.home.luguber.info/inful/nekodeploy/internal/nekoweb"
	"git.home.luguber.info/inful/nekodeploy/internal/notify"
)

// Deployer runs deployments against one configured site. It is not safe to
// run two deployments concurrently against the same target folder; callers
// own that serialization.
type Deployer struct {
	cfg    *config.Config
	api    *nekoweb.Client
	cookie *nekoweb.CookieClient

	recorder metrics.Recorder
	journal  *history.Store
	notifier *notify.Publisher

	workspaceBase string // test seam; empty selects the system temp dir
	dryRun        bool
}

// New creates a Deployer from configuration. The cookie client exists only
// when a cookie credential was supplied; its absence silently disables the
// metadata stage.
func New(cfg *config.Config) *Deployer {
	d := &Deployer{
		cfg:      cfg,
		api:      nekoweb.NewClient(cfg.API.URL, cfg.Auth.APIKey),
		recorder: metrics.NoopRecorder{},
	}
	if cfg.Auth.Cookie != "" {
		d.cookie = nekoweb.NewCookieClient(cfg.API.SiteURL, cfg.Auth.Cookie)
	}
	return d
}

// SetRecorder injects a metrics recorder.
func (d *Deployer) SetRecorder(r metrics.Recorder) {
	if r != nil {
		d.recorder = r
	}
}

// SetJournal injects the deployment history store.
func (d *Deployer) SetJournal(s *history.Store) { d.journal = s }

// SetNotifier injects the deploy-event publisher.
func (d *Deployer) SetNotifier(p *notify.Publisher) { d.notifier = p }

// SetWorkspaceBase overrides where staging directories are created.
func (d *Deployer) SetWorkspaceBase(dir string) { d.workspaceBase = dir }

// SetDryRun limits the run to the local stages (staging and archiving);
// no network calls are made. Cleanup still runs.
func (d *Deployer) SetDryRun(v bool) { d.dryRun = v }

// Run executes one deployment. The returned report is non-nil even on
// failure. A non-nil error means a required step failed and the invoking
// pipeline should fail its own run.
func (d *Deployer) Run(ctx context.Context) (*DeployReport, error) {
	deployID := uuid.NewString()
	st := newDeployState(deployID)
	start := time.Now()

	startAttrs := []any{
		logfields.DeployID(deployID),
		logfields.Path(d.cfg.Output.Directory),
	}
	if d.cfg.Site.Name != "" {
		startAttrs = append(startAttrs, logfields.Site(d.cfg.Site.Name))
	}
	slog.Info("Starting deployment", startAttrs...)

	// Cleanup runs on every exit path that reached staging, including a
	// failed metadata update and fatal mid-sequence errors.
	defer d.cleanup(st)

	err := runStages(ctx, st, d.stageList(), d.recorder)

	st.Report.Folder = st.Folder
	st.Report.Revision = st.Revision
	st.Report.finalize(err, start)
	d.recorder.ObserveDeployDuration(st.Report.Duration)
	d.recorder.IncDeployOutcome(st.Report.Outcome)

	d.record(ctx, st)

	if err != nil {
		slog.Error("Deployment failed",
			logfields.DeployID(deployID),
			logfields.Error(err))
		return st.Report, err
	}

	slog.Info("Deployment finished",
		logfields.DeployID(deployID),
		logfields.Folder(st.Folder),
		logfields.Bytes(st.Report.UploadedBytes),
		logfields.DurationMS(float64(st.Report.Duration.Milliseconds())))
	return st.Report, nil
}

// stageList assembles the pipeline. Order matters: delete of the previous
// deployment happens after upload completes so the old content stays
// servable until right before import replaces it.
func (d *Deployer) stageList() []StageDef {
	stages := []StageDef{
		{StageValidate, d.stageValidate},
		{StageStageFiles, d.stageStageFiles},
		{StageArchive, d.stageArchive},
	}
	if d.dryRun {
		return stages
	}
	return append(stages,
		StageDef{StageSessionOpen, d.stageSessionOpen},
		StageDef{StageUpload, d.stageUpload},
		StageDef{StageDeletePrevious, d.stageDeletePrevious},
		StageDef{StageImport, d.stageImport},
		StageDef{StageMetadata, d.stageMetadata},
	)
}

// cleanup removes the archive artifact and the staging directory.
func (d *Deployer) cleanup(st *DeployState) {
	if st.ArchivePath != "" {
		if err := os.Remove(st.ArchivePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove archive artifact",
				logfields.Path(st.ArchivePath),
				logfields.Error(err))
		}
	}
	if st.Workspace != nil {
		if err := st.Workspace.Cleanup(); err != nil {
			slog.Warn("Failed to clean staging directory", logfields.Error(err))
		}
	}
}

// record persists the run to the journal and publishes a deploy event.
// Both are best-effort.
func (d *Deployer) record(ctx context.Context, st *DeployState) {
	r := st.Report
	if d.journal != nil {
		err := d.journal.Append(ctx, history.Record{
			DeployID:  r.DeployID,
			Folder:    r.Folder,
			Revision:  r.Revision,
			Outcome:   r.Outcome,
			Bytes:     r.UploadedBytes,
			Error:     r.FirstError(),
			StartedAt: r.StartedAt,
			Duration:  r.Duration,
		})
		if err != nil {
			slog.Warn("Failed to record deployment history", logfields.Error(err))
		}
	}
	if d.notifier != nil {
		err := d.notifier.Publish(notify.Event{
			DeployID: r.DeployID,
			Folder:   r.Folder,
			Outcome:  r.Outcome,
			Bytes:    r.UploadedBytes,
			Revision: r.Revision,
			Error:    r.FirstError(),
		})
		if err != nil {
			slog.Warn("Failed to publish deploy event", logfields.Error(err))
		}
	}
}
