package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/nekodeploy/internal/config"
)

func parseArgs(t *testing.T, args ...string) string {
	t.Helper()
	var cli = CLI
	parser, err := kong.New(&cli)
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return kctx.Command()
}

func TestCLIGrammar(t *testing.T) {
	assert.Equal(t, "deploy", parseArgs(t, "deploy"))
	assert.Equal(t, "deploy", parseArgs(t, "deploy", "--dry-run", "--folder", "mysite"))
	assert.Equal(t, "init", parseArgs(t, "init", "--force"))
	assert.Equal(t, "history", parseArgs(t, "history", "-n", "5"))
	assert.Equal(t, "daemon", parseArgs(t, "-c", "custom.yaml", "daemon"))
	assert.Equal(t, "version", parseArgs(t, "version"))
}

func TestInitProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nekodeploy.yaml")
	require.NoError(t, config.WriteStarter(path, false))

	t.Setenv(config.EnvAPIKey, "key-from-env")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.Auth.APIKey)

	// A second init without force must not clobber the file.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Error(t, config.WriteStarter(path, false))
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
}
