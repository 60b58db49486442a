package config

import (
	"fmt"
	"os"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
)

// starterTemplate is written by `nekodeploy init`. Credentials are expanded
// from the environment at load time so the file stays committable.
const starterTemplate = `# nekodeploy configuration
site:
  # Target folder (or domain) the site is served under. Leave empty to use
  # the account's primary domain from site info.
  folder: ""
  # Relative path of an RSS/feed file to refresh after deploying (optional).
  rss_path: ""

auth:
  # API key for the upload endpoints. Prefer NEKOWEB_API_KEY in .env.
  api_key: ${NEKOWEB_API_KEY}
  # Session cookie enabling the "recently updated" signal (optional).
  cookie: ${NEKOWEB_COOKIE}

output:
  directory: ./dist

history:
  path: .nekodeploy/history.db

daemon:
  watch: false
  debounce: 2s
  metrics_addr: ""
`

// WriteStarter writes the starter configuration file.
// Refuses to overwrite an existing file unless force is set.
func WriteStarter(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return deployerrors.ConfigError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", path))
		}
	}
	if err := os.WriteFile(path, []byte(starterTemplate), 0o644); err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryFileSystem, deployerrors.SeverityFatal, "failed to write configuration file")
	}
	return nil
}
