package deploy

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/nekodeploy/internal/config"
	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
)

// fakeHost emulates the remote hosting API for both credential contexts.
type fakeHost struct {
	mu    sync.Mutex
	calls []string

	failCreate bool
	failAppend bool
	failDelete bool
	failImport bool
	failCSRF   bool

	appended       []byte
	importPathname string
	deletePathname string
	edits          []map[string]string
}

func (f *fakeHost) record(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
}

func (f *fakeHost) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeHost) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.record(r.URL.Path)
		switch {
		case r.URL.Path == "/site/info":
			_, _ = w.Write([]byte(`{"username":"neko","domain":""}`))
		case r.URL.Path == "/files/big/create":
			if f.failCreate {
				http.Error(w, "no sessions", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"id":"s1"}`))
		case r.URL.Path == "/files/big/append":
			if f.failAppend {
				http.Error(w, "session gone", http.StatusGone)
				return
			}
			require.NoError(t, r.ParseMultipartForm(32<<20))
			file, _, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			data, err := io.ReadAll(file)
			require.NoError(t, err)
			f.mu.Lock()
			f.appended = data
			f.mu.Unlock()
		case r.URL.Path == "/files/delete":
			require.NoError(t, r.ParseForm())
			f.mu.Lock()
			f.deletePathname = r.PostForm.Get("pathname")
			f.mu.Unlock()
			if f.failDelete {
				http.Error(w, "cannot delete", http.StatusBadRequest)
			}
		case strings.HasPrefix(r.URL.Path, "/files/import/"):
			if f.failImport {
				http.Error(w, "import refused", http.StatusConflict)
				return
			}
			require.NoError(t, r.ParseForm())
			f.mu.Lock()
			f.importPathname = r.PostForm.Get("pathname")
			f.mu.Unlock()
		case r.URL.Path == "/api/site/info":
			_, _ = w.Write([]byte(`{"username":"neko","domain":""}`))
		case r.URL.Path == "/csrf":
			if f.failCSRF {
				http.Error(w, "no session", http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte("tok"))
		case r.URL.Path == "/files/edit":
			require.NoError(t, r.ParseMultipartForm(32<<20))
			f.mu.Lock()
			f.edits = append(f.edits, map[string]string{
				"csrf":     r.FormValue("csrf"),
				"site":     r.FormValue("site"),
				"pathname": r.FormValue("pathname"),
				"content":  r.FormValue("content"),
			})
			f.mu.Unlock()
		default:
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})
}

// testSite builds a build-output directory with the conventional files.
func testSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>home</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "404.html"), []byte("<html>lost</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feed.xml"), []byte("<rss><channel/></rss>"), 0o644))
	return dir
}

func testConfig(srvURL, sourceDir, cookie string) *config.Config {
	return &config.Config{
		Site:   config.SiteConfig{Folder: "mysite", RSSPath: "feed.xml"},
		Auth:   config.AuthConfig{APIKey: "key", Cookie: cookie},
		API:    config.APIConfig{URL: srvURL, SiteURL: srvURL},
		Output: config.OutputConfig{Directory: sourceDir},
	}
}

func newTestDeployer(t *testing.T, cfg *config.Config) (*Deployer, string) {
	t.Helper()
	base := t.TempDir()
	d := New(cfg)
	d.SetWorkspaceBase(base)
	return d, base
}

func zipEntries(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func assertWorkspaceClean(t *testing.T, base string) {
	t.Helper()
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directory and archive must be cleaned up")
}

func TestRunHappyPathSequence(t *testing.T) {
	host := &fakeHost{}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "cookie")
	d, base := newTestDeployer(t, cfg)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, "mysite", report.Folder)
	assert.Greater(t, report.UploadedBytes, int64(0))

	// create -> append -> delete (best-effort) -> import -> metadata.
	assert.Equal(t, []string{
		"/files/big/create",
		"/files/big/append",
		"/files/delete",
		"/files/import/s1",
		"/api/site/info",
		"/csrf",
		"/files/edit",
		"/files/edit",
	}, host.Calls())

	assert.Equal(t, "/mysite", host.deletePathname)
	assert.Equal(t, "/mysite", host.importPathname)

	// The archive carries the target folder layout and the renamed
	// not-found page; the original 404 name is gone.
	entries := zipEntries(t, host.appended)
	assert.Contains(t, entries, "mysite/index.html")
	assert.Contains(t, entries, "mysite/not_found.html")
	assert.Contains(t, entries, "mysite/feed.xml")
	assert.NotContains(t, entries, "mysite/404.html")

	assertWorkspaceClean(t, base)
}

func TestRunFeedEditAppendsSingleMarker(t *testing.T) {
	host := &fakeHost{}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "cookie")
	d, _ := newTestDeployer(t, cfg)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, host.edits, 2)
	feedEdit := host.edits[0]
	assert.Equal(t, "/feed.xml", feedEdit["pathname"])
	assert.Equal(t, "tok", feedEdit["csrf"])
	assert.Equal(t, "neko", feedEdit["site"])

	original := "<rss><channel/></rss>"
	require.True(t, strings.HasPrefix(feedEdit["content"], original+"\n"))
	marker := strings.TrimPrefix(feedEdit["content"], original+"\n")
	assert.Regexp(t, regexp.MustCompile(`^<!-- deployed [0-9T:+Z-]+ -->$`), marker)

	markerEdit := host.edits[1]
	assert.Equal(t, "/.nekodeploy.html", markerEdit["pathname"])
	assert.Contains(t, markerEdit["content"], "<!-- deployed ")
}

func TestRunWithoutCookieSkipsMetadata(t *testing.T) {
	host := &fakeHost{}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "")
	d, base := newTestDeployer(t, cfg)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)

	for _, call := range host.Calls() {
		assert.NotEqual(t, "/csrf", call)
		assert.NotEqual(t, "/files/edit", call)
		assert.NotEqual(t, "/api/site/info", call)
	}
	assertWorkspaceClean(t, base)
}

func TestRunSessionCreateFailure(t *testing.T) {
	host := &fakeHost{failCreate: true}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "cookie")
	d, base := newTestDeployer(t, cfg)

	report, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.True(t, deployerrors.IsCategory(err, deployerrors.CategorySession))

	// Nothing past session creation was attempted, and no local state leaks.
	assert.Equal(t, []string{"/files/big/create"}, host.Calls())
	assertWorkspaceClean(t, base)
}

func TestRunAppendFailureAbortsBeforeImport(t *testing.T) {
	host := &fakeHost{failAppend: true}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "cookie")
	d, base := newTestDeployer(t, cfg)

	report, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)

	assert.True(t, deployerrors.IsCategory(err, deployerrors.CategoryUpload))
	assert.Contains(t, err.Error(), "upload")

	for _, call := range host.Calls() {
		assert.False(t, strings.HasPrefix(call, "/files/import"), "import must never run after a failed append")
		assert.NotEqual(t, "/csrf", call)
		assert.NotEqual(t, "/files/edit", call)
	}
	assertWorkspaceClean(t, base)
}

func TestRunDeleteFailureIsSwallowed(t *testing.T) {
	host := &fakeHost{failDelete: true}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "")
	d, base := newTestDeployer(t, cfg)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWarning, report.Outcome)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, StageDeletePrevious, report.Warnings[0].Stage)

	// Import still ran after the swallowed delete failure.
	assert.Equal(t, "/mysite", host.importPathname)
	assertWorkspaceClean(t, base)
}

func TestRunImportFailureIsFatal(t *testing.T) {
	host := &fakeHost{failImport: true}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "cookie")
	d, base := newTestDeployer(t, cfg)

	report, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.True(t, deployerrors.IsCategory(err, deployerrors.CategoryImport))

	for _, call := range host.Calls() {
		assert.NotEqual(t, "/files/edit", call, "metadata must not run after failed import")
	}
	assertWorkspaceClean(t, base)
}

func TestRunMetadataFailureStillSucceeds(t *testing.T) {
	host := &fakeHost{failCSRF: true}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "cookie")
	d, base := newTestDeployer(t, cfg)

	report, err := d.Run(context.Background())
	require.NoError(t, err, "metadata degradation must not fail the deployment")
	assert.Equal(t, OutcomeWarning, report.Outcome)
	require.NotEmpty(t, report.Warnings)
	assert.Equal(t, StageMetadata, report.Warnings[0].Stage)

	// Cleanup runs even when the run degraded during metadata update.
	assertWorkspaceClean(t, base)
}

func TestRunResolvesFolderFromSiteInfo(t *testing.T) {
	host := &fakeHost{}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "")
	cfg.Site.Folder = ""
	d, _ := newTestDeployer(t, cfg)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "neko", report.Folder)
	assert.Equal(t, "/site/info", host.Calls()[0])
	assert.Equal(t, "/neko", host.importPathname)
}

func TestRunRemovesStaleStagingState(t *testing.T) {
	host := &fakeHost{}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "")
	d, base := newTestDeployer(t, cfg)

	// Leftover from a previous failed run.
	stale := filepath.Join(base, "nekodeploy-mysite", "mysite")
	require.NoError(t, os.MkdirAll(stale, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "stale.html"), []byte("old"), 0o644))

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	entries := zipEntries(t, host.appended)
	assert.NotContains(t, entries, "mysite/stale.html")
	assertWorkspaceClean(t, base)
}

func TestRunValidationFailureHasNoSideEffects(t *testing.T) {
	host := &fakeHost{}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, filepath.Join(t.TempDir(), "missing"), "")
	d, base := newTestDeployer(t, cfg)

	report, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.True(t, deployerrors.IsCategory(err, deployerrors.CategoryValidation))
	assert.Empty(t, host.Calls())
	assertWorkspaceClean(t, base)
}

func TestDryRunMakesNoNetworkCalls(t *testing.T) {
	host := &fakeHost{}
	srv := httptest.NewServer(host.handler(t))
	defer srv.Close()

	cfg := testConfig(srv.URL, testSite(t), "cookie")
	d, base := newTestDeployer(t, cfg)
	d.SetDryRun(true)

	report, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Greater(t, report.ArchiveEntries, 0)
	assert.Empty(t, host.Calls())
	assertWorkspaceClean(t, base)
}
