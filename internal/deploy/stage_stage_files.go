package deploy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
	"git.home.luguber.info/inful/nekodeploy/internal/workspace"
)

// The host serves this filename for unknown paths; static generators
// conventionally emit 404.html instead.
const (
	notFoundSource = "404.html"
	notFoundTarget = "not_found.html"
)

// stageStageFiles copies the build output into a fresh staging directory
// under the target folder name, so the archive's internal layout matches
// the remote layout exactly. Stale staging state from a prior failed run is
// removed first.
func (d *Deployer) stageStageFiles(ctx context.Context, st *DeployState) error {
	st.Workspace = workspace.NewManager(d.workspaceBase, topSegment(st.Folder))
	if err := st.Workspace.Prepare(); err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryFileSystem, deployerrors.SeverityFatal, "preparing staging directory failed")
	}

	st.FolderDir = filepath.Join(st.Workspace.Path(), filepath.FromSlash(st.Folder))
	if err := workspace.CopyDir(st.FolderDir, d.cfg.Output.Directory); err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryFileSystem, deployerrors.SeverityFatal, "copying build output failed")
	}

	// Not-found page rename, when the generator produced one.
	src := filepath.Join(st.FolderDir, notFoundSource)
	if _, err := os.Stat(src); err == nil {
		if err := os.Rename(src, filepath.Join(st.FolderDir, notFoundTarget)); err != nil {
			return deployerrors.Wrap(err, deployerrors.CategoryFileSystem, deployerrors.SeverityFatal, "renaming not-found page failed")
		}
		slog.Debug("Renamed not-found page", logfields.Path(notFoundTarget))
	}

	slog.Info("Staged build output",
		logfields.DeployID(st.DeployID),
		logfields.Folder(st.Folder),
		logfields.Path(st.FolderDir))
	return nil
}

// topSegment returns the first path segment of a target folder.
func topSegment(folder string) string {
	for i := 0; i < len(folder); i++ {
		if folder[i] == '/' {
			return folder[:i]
		}
	}
	return folder
}
