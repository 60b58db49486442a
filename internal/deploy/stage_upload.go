package deploy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
)

// stageSessionOpen opens the server-side big-file session. Exactly one
// session exists per deployment; it is never reused across runs.
func (d *Deployer) stageSessionOpen(ctx context.Context, st *DeployState) error {
	session, err := d.api.CreateBigFile(ctx)
	if err != nil {
		return err
	}
	st.Session = session
	slog.Info("Opened upload session",
		logfields.DeployID(st.DeployID),
		logfields.SessionID(session.ID))
	return nil
}

// stageUpload sends the whole archive in a single append. The artifact is
// loaded into memory as one buffer; archive size is bounded by what one
// request body can carry.
func (d *Deployer) stageUpload(ctx context.Context, st *DeployState) error {
	data, err := os.ReadFile(st.ArchivePath)
	if err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryFileSystem, deployerrors.SeverityFatal, "reading archive artifact failed")
	}

	if err := st.Session.Append(ctx, filepath.Base(st.ArchivePath), data); err != nil {
		return err
	}
	st.Report.UploadedBytes = st.Session.BytesAppended()
	d.recorder.ObserveUploadBytes(st.Report.UploadedBytes)

	slog.Info("Uploaded archive",
		logfields.DeployID(st.DeployID),
		logfields.SessionID(st.Session.ID),
		logfields.Bytes(st.Report.UploadedBytes))
	return nil
}

// stageDeletePrevious removes the previous deployment's folder. Best-effort:
// the folder may not exist on a first deploy, and import replaces content
// regardless. Failures surface as warnings, never as a failed run.
func (d *Deployer) stageDeletePrevious(ctx context.Context, st *DeployState) error {
	if err := d.api.Delete(ctx, st.Folder); err != nil {
		// Swallowed by the stage runner; logged at debug so partial
		// outages are not completely invisible under -v.
		slog.Debug("Pre-import delete failed",
			logfields.DeployID(st.DeployID),
			logfields.Folder(st.Folder),
			logfields.Error(err))
		return err
	}
	return nil
}

// stageImport commits the session, atomically replacing the target folder's
// content server-side. The deployment is not successful without it.
func (d *Deployer) stageImport(ctx context.Context, st *DeployState) error {
	if err := st.Session.Import(ctx, st.Folder); err != nil {
		return err
	}
	slog.Info("Imported upload session",
		logfields.DeployID(st.DeployID),
		logfields.SessionID(st.Session.ID),
		logfields.Folder(st.Folder))
	return nil
}
