package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
	"git.home.luguber.info/inful/nekodeploy/internal/nekoweb"
)

// markerPathname is the fixed remote file written purely to produce a
// file-modification event the platform surfaces as "recently updated".
const markerPathname = "/.nekodeploy.html"

// stageMetadata performs the cookie-authenticated side channel: a fresh
// CSRF context, then up to two file edits (feed refresh, deploy marker).
// The whole stage is best-effort; without a cookie it is skipped entirely.
func (d *Deployer) stageMetadata(ctx context.Context, st *DeployState) error {
	if d.cookie == nil {
		slog.Info("No cookie configured, skipping site update signal",
			logfields.DeployID(st.DeployID))
		return nil
	}

	// Fetched after import on purpose: the edits must apply to the newly
	// deployed content, and the token's validity window is short.
	csrf, err := d.cookie.FetchCSRF(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var failures []error

	if d.cfg.Site.RSSPath != "" {
		if err := d.refreshFeed(ctx, st, csrf, now); err != nil {
			slog.Error("Feed refresh failed",
				logfields.DeployID(st.DeployID),
				logfields.Error(err))
			failures = append(failures, err)
		}
	}

	marker := fmt.Sprintf("<!-- deployed %s%s -->\n", now.Format(time.RFC3339), revisionSuffix(st.Revision))
	if err := d.cookie.EditFile(ctx, markerPathname, []byte(marker), csrf); err != nil {
		slog.Error("Deploy marker write failed",
			logfields.DeployID(st.DeployID),
			logfields.Error(err))
		failures = append(failures, err)
	} else {
		slog.Info("Wrote deploy marker",
			logfields.DeployID(st.DeployID),
			logfields.Path(markerPathname))
	}

	if len(failures) > 0 {
		return newWarnStageError(StageMetadata, errors.Join(failures...))
	}
	return nil
}

// refreshFeed re-writes the feed file with its own freshly deployed content
// plus a single trailing marker comment, producing an update event on it.
func (d *Deployer) refreshFeed(ctx context.Context, st *DeployState, csrf *nekoweb.CSRFContext, now time.Time) error {
	local := filepath.Join(st.FolderDir, filepath.FromSlash(d.cfg.Site.RSSPath))
	content, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("feed file not staged: %w", err)
	}

	edited := append(content, []byte(fmt.Sprintf("\n<!-- deployed %s -->", now.Format(time.RFC3339)))...)
	return d.cookie.EditFile(ctx, "/"+d.cfg.Site.RSSPath, edited, csrf)
}

func revisionSuffix(rev string) string {
	if rev == "" {
		return ""
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return " rev " + rev
}
