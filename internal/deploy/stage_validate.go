package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
)

// stageValidate checks credentials and inputs, and resolves the target
// folder. No side effects have been performed when this stage fails.
func (d *Deployer) stageValidate(ctx context.Context, st *DeployState) error {
	if strings.TrimSpace(d.cfg.Auth.APIKey) == "" {
		return deployerrors.ConfigError("missing API key")
	}

	info, err := os.Stat(d.cfg.Output.Directory)
	if err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryValidation, deployerrors.SeverityFatal,
			fmt.Sprintf("build output directory not found: %s", d.cfg.Output.Directory))
	}
	if !info.IsDir() {
		return deployerrors.ValidationError(fmt.Sprintf("build output is not a directory: %s", d.cfg.Output.Directory))
	}

	st.Folder = strings.Trim(d.cfg.Site.Folder, "/")
	if st.Folder == "" {
		if d.dryRun {
			return deployerrors.ValidationError("site.folder must be set for a dry run (site info is not consulted)")
		}
		siteInfo, err := d.api.SiteInfo(ctx)
		if err != nil {
			return deployerrors.Wrap(err, deployerrors.CategoryValidation, deployerrors.SeverityFatal,
				"target folder not configured and site info lookup failed")
		}
		st.Folder = siteInfo.Folder()
		slog.Info("Resolved target folder from site info", logfields.Folder(st.Folder))
	}
	if st.Folder == "" {
		return deployerrors.ValidationError("could not resolve a target folder")
	}

	st.Revision = resolveRevision(d.cfg.Output.Directory)
	if st.Revision != "" {
		slog.Debug("Resolved source revision", logfields.Revision(st.Revision))
	}
	return nil
}
