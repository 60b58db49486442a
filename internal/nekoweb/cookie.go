package nekoweb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
)

// DefaultSiteURL is the production web origin hosting the cookie-auth endpoints.
const DefaultSiteURL = "https://nekoweb.org"

// CookieClient is the session-cookie authenticated client used for the
// CSRF-protected metadata side channel. It is independent from Client: both
// credential contexts may be active in the same run.
type CookieClient struct {
	httpClient *http.Client
	siteURL    string
	cookie     string
}

// NewCookieClient creates a cookie client. An empty siteURL selects production.
func NewCookieClient(siteURL, cookie string) *CookieClient {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	return &CookieClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		siteURL:    strings.TrimRight(siteURL, "/"),
		cookie:     cookie,
	}
}

// CSRFContext pairs a short-lived anti-forgery token with the site it is
// scoped to. It is fetched fresh per deployment run and never cached.
type CSRFContext struct {
	Token string
	Site  string
}

// FetchCSRF authenticates the cookie session: it resolves the site's
// canonical identifier via the cookie-auth site info endpoint, then requests
// a CSRF token for that session. Failures here are non-fatal to a deployment.
func (c *CookieClient) FetchCSRF(ctx context.Context) (*CSRFContext, error) {
	info, err := c.siteInfo(ctx)
	if err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryMetadata, deployerrors.SeverityWarning, "cookie-auth site info lookup failed")
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/csrf", nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryMetadata, deployerrors.SeverityWarning, "CSRF token fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, responseError(resp, deployerrors.CategoryMetadata, deployerrors.SeverityWarning, "CSRF token fetch failed")
	}

	token, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryMetadata, deployerrors.SeverityWarning, "CSRF token read failed")
	}

	return &CSRFContext{
		Token: strings.TrimSpace(string(token)),
		Site:  info.Folder(),
	}, nil
}

// siteInfo fetches site info through the cookie-auth API route.
func (c *CookieClient) siteInfo(ctx context.Context) (*SiteInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/site/info", nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("site info: %s: %s", resp.Status, readErrorBody(resp))
	}

	var info SiteInfo
	if err := decodeJSON(resp.Body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// EditFile overwrites a single remote file through the web UI's edit
// endpoint. This is the only write path that produces a file-modification
// event the platform surfaces as "recently updated".
func (c *CookieClient) EditFile(ctx context.Context, pathname string, content []byte, csrf *CSRFContext) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"csrf":     csrf.Token,
		"site":     csrf.Site,
		"pathname": pathname,
		"content":  string(content),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return deployerrors.Wrap(err, deployerrors.CategoryInternal, deployerrors.SeverityWarning, "building edit form failed")
		}
	}
	if err := mw.Close(); err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryInternal, deployerrors.SeverityWarning, "building edit form failed")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files/edit", &body, mw.FormDataContentType())
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryMetadata, deployerrors.SeverityWarning, fmt.Sprintf("file edit failed: %s", pathname))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp, deployerrors.CategoryMetadata, deployerrors.SeverityWarning, fmt.Sprintf("file edit failed: %s", pathname))
	}
	return nil
}

// newRequest builds a request with the full cookie-bearing header set the
// web endpoints expect.
func (c *CookieClient) newRequest(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.siteURL+endpoint, body)
	if err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryInternal, deployerrors.SeverityWarning, "building cookie request failed")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Cookie", "token="+c.cookie)
	req.Header.Set("Origin", c.siteURL)
	// The edit endpoint rejects requests without a same-origin referer.
	req.Header.Set("Referer", fmt.Sprintf("%s/?%d", c.siteURL, rand.Int63()))
	req.Header.Set("User-Agent", userAgent())
	return req, nil
}
