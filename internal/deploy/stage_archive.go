package deploy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/nekodeploy/internal/archive"
	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
)

// stageArchive zips the staging directory. The artifact lives next to the
// staging directory, never inside it, and is named after the target
// folder's top segment.
func (d *Deployer) stageArchive(ctx context.Context, st *DeployState) error {
	st.ArchivePath = filepath.Join(filepath.Dir(st.Workspace.Path()), topSegment(st.Folder)+".zip")

	count, err := archive.Create(st.ArchivePath, st.Workspace.Path())
	if err != nil {
		return err
	}
	st.Report.ArchiveEntries = count

	info, err := os.Stat(st.ArchivePath)
	if err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryArchive, deployerrors.SeverityFatal, "archive artifact missing after creation")
	}
	st.ArchiveSize = info.Size()

	slog.Info("Created archive",
		logfields.DeployID(st.DeployID),
		logfields.Path(filepath.Base(st.ArchivePath)),
		logfields.Bytes(st.ArchiveSize))
	return nil
}
