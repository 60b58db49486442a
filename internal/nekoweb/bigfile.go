package nekoweb

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
)

// BigFileSession is a server-side upload session handle. It is owned by
// exactly one deployment run and becomes invalid after Import (or when the
// server expires it).
type BigFileSession struct {
	client *Client
	ID     string

	bytesAppended int64
}

// createResponse is the server payload for a new big-file session.
type createResponse struct {
	ID string `json:"id"`
}

// CreateBigFile opens a new big-file upload session.
func (c *Client) CreateBigFile(ctx context.Context) (*BigFileSession, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/big/create", nil, "")
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategorySession, deployerrors.SeverityFatal, "create upload session failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, responseError(resp, deployerrors.CategorySession, deployerrors.SeverityFatal, "create upload session failed")
	}

	var cr createResponse
	if err := decodeJSON(resp.Body, &cr); err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategorySession, deployerrors.SeverityFatal, "create upload session returned malformed response")
	}
	if cr.ID == "" {
		return nil, deployerrors.New(deployerrors.CategorySession, deployerrors.SeverityFatal, "create upload session returned no id")
	}

	return &BigFileSession{client: c, ID: cr.ID}, nil
}

// Append uploads the archive content into the session as a single multipart
// request. One append per deployment: the artifact is held in memory whole,
// which bounds deployable size to what one request body can carry.
func (s *BigFileSession) Append(ctx context.Context, filename string, data []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("id", s.ID); err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryInternal, deployerrors.SeverityFatal, "building upload form failed")
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryInternal, deployerrors.SeverityFatal, "building upload form failed")
	}
	if _, err := fw.Write(data); err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryInternal, deployerrors.SeverityFatal, "building upload form failed")
	}
	if err := mw.Close(); err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryInternal, deployerrors.SeverityFatal, "building upload form failed")
	}

	req, err := s.client.newRequest(ctx, http.MethodPost, "/files/big/append", &body, mw.FormDataContentType())
	if err != nil {
		return err
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryUpload, deployerrors.SeverityFatal, "append to upload session failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp, deployerrors.CategoryUpload, deployerrors.SeverityFatal, "append to upload session failed")
	}

	s.bytesAppended += int64(len(data))
	return nil
}

// BytesAppended reports the total payload size appended so far.
func (s *BigFileSession) BytesAppended() int64 {
	return s.bytesAppended
}

// Import commits the session's accumulated bytes as the new content of the
// target folder, replacing whatever was there. The session is invalid
// afterwards regardless of outcome.
func (s *BigFileSession) Import(ctx context.Context, folder string) error {
	form := url.Values{"pathname": {"/" + strings.TrimPrefix(folder, "/")}}
	req, err := s.client.newRequest(ctx, http.MethodPost, "/files/import/"+s.ID, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return deployerrors.Wrap(err, deployerrors.CategoryImport, deployerrors.SeverityFatal, "import of upload session failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp, deployerrors.CategoryImport, deployerrors.SeverityFatal, "import of upload session failed")
	}
	return nil
}
