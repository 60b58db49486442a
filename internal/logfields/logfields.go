package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyDeployID   = "deploy_id"
	KeyStage      = "stage"
	KeyFolder     = "folder"
	KeySite       = "site"
	KeySessionID  = "session_id"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyStatus     = "status"
	KeyBytes      = "bytes"
	KeyDurationMS = "duration_ms"
	KeyRevision   = "revision"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func DeployID(id string) slog.Attr    { return slog.String(KeyDeployID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Folder(f string) slog.Attr       { return slog.String(KeyFolder, f) }
func Site(s string) slog.Attr         { return slog.String(KeySite, s) }
func SessionID(id string) slog.Attr   { return slog.String(KeySessionID, id) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Revision(r string) slog.Attr     { return slog.String(KeyRevision, r) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
