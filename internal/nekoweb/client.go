// Package nekoweb implements the HTTP clients for the Nekoweb hosting API:
// the API-key client driving upload sessions and path deletion, and the
// cookie client driving the CSRF-protected file-edit side channel.
package nekoweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
	"git.home.luguber.info/inful/nekodeploy/internal/logfields"
	"git.home.luguber.info/inful/nekodeploy/internal/version"
)

// DefaultAPIURL is the production API endpoint.
const DefaultAPIURL = "https://nekoweb.org/api"

// maxErrorBody caps how much of an error response body is kept for diagnostics.
const maxErrorBody = 4096

// Client is the API-key authenticated client.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
}

// NewClient creates a new API client. An empty apiURL selects production.
func NewClient(apiURL, apiKey string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
	}
}

// SiteInfo describes the authenticated account's site.
type SiteInfo struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title"`
	Domain   string `json:"domain"`
	Views    int    `json:"views"`
}

// Folder returns the path segment the site is served under: the custom
// domain when one is configured, otherwise the account username.
func (s *SiteInfo) Folder() string {
	if s.Domain != "" {
		return s.Domain
	}
	return s.Username
}

// SiteInfo fetches the account's site info.
func (c *Client) SiteInfo(ctx context.Context) (*SiteInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/site/info", nil, "")
	if err != nil {
		return nil, err
	}

	var info SiteInfo
	if err := c.doJSON(req, &info); err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryNetwork, deployerrors.SeverityFatal, "site info lookup failed")
	}
	return &info, nil
}

// Delete removes a path on the remote site. Callers treat failures as
// best-effort: the folder may not exist yet, or the server may refuse to
// delete a live path right before it is replaced.
func (c *Client) Delete(ctx context.Context, pathname string) error {
	form := url.Values{"pathname": {"/" + strings.TrimPrefix(pathname, "/")}}
	req, err := c.newRequest(ctx, http.MethodPost, "/files/delete", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryNetwork, deployerrors.SeverityWarning, "delete previous deployment failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp, deployerrors.CategoryNetwork, deployerrors.SeverityWarning, "delete previous deployment failed")
	}
	return nil
}

// newRequest builds an API request with the key-auth header set.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Request, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryConfig, deployerrors.SeverityFatal, "invalid API URL")
	}
	u.Path = path.Join(u.Path, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryInternal, deployerrors.SeverityFatal, "building API request failed")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("User-Agent", userAgent())
	return req, nil
}

// doJSON executes a request and decodes a JSON response into result.
func (c *Client) doJSON(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error: %s: %s", resp.Status, readErrorBody(resp))
	}

	if result != nil {
		return decodeJSON(resp.Body, result)
	}
	return nil
}

// responseError converts a non-success response into a structured error
// carrying the HTTP status and server message.
func responseError(resp *http.Response, cat deployerrors.ErrorCategory, sev deployerrors.ErrorSeverity, message string) *deployerrors.DeployError {
	body := readErrorBody(resp)
	if resp.Request != nil {
		slog.Debug("Remote API error response",
			logfields.URL(resp.Request.URL.String()),
			logfields.Status(resp.StatusCode))
	}
	return deployerrors.New(cat, sev, fmt.Sprintf("%s: %s", message, resp.Status)).
		WithContext("status", resp.StatusCode).
		WithContext("body", body)
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func userAgent() string {
	return "nekodeploy/" + version.Version
}
