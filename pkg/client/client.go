package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/rmax-ai/readgraph/pkg/suggest"
)

// DefaultEndpoint is where readgraphd listens unless configured otherwise.
const DefaultEndpoint = "http://127.0.0.1:8091"

// Client is the readgraphd SDK client.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  BackoffStrategy
	retries  int
}

// NewClient creates a new readgraphd client.
// endpoint defaults to DefaultEndpoint if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: DefaultBackoff(),
		retries: 3,
	}
}

// SetRetry configures how read requests are retried on network errors and
// 5xx answers. retries 0 disables retrying.
func (c *Client) SetRetry(retries int, b BackoffStrategy) {
	c.retries = retries
	if b != nil {
		c.backoff = b
	}
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.getJSON(ctx, "/v1/health", nil, &status)
	return status, err
}

// Document returns the open document, or an *APIError with status 404.
func (c *Client) Document(ctx context.Context) (Document, error) {
	var d Document
	err := c.getJSON(ctx, "/v1/document", nil, &d)
	return d, err
}

// OpenDocument opens a document in the daemon's workspace.
func (c *Client) OpenDocument(ctx context.Context, req OpenRequest) (Document, error) {
	if req.OwnerID == "" || req.DocumentID == "" {
		return Document{}, fmt.Errorf("invalid open request: owner and document ids are required")
	}
	var d Document
	err := c.sendJSON(ctx, http.MethodPost, "/v1/document", req, &d)
	return d, err
}

// CloseDocument stops the session and persists the open document.
func (c *Client) CloseDocument(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodDelete, "/v1/document", nil, nil)
}

// Documents returns the DOCUMENTS level rollup.
func (c *Client) Documents(ctx context.Context, sel analytics.Selection) ([]analytics.DocumentRow, error) {
	var out documentsResponse
	err := c.getJSON(ctx, "/v1/analytics/documents", selectionQuery(sel), &out)
	return out.Documents, err
}

// Users returns the USERS level rollup for one document.
func (c *Client) Users(ctx context.Context, documentID string, sel analytics.Selection) ([]analytics.UserRow, error) {
	q := selectionQuery(sel)
	q.Set("document", documentID)
	var out usersResponse
	err := c.getJSON(ctx, "/v1/analytics/users", q, &out)
	return out.Users, err
}

// Purposes returns the PURPOSES level rollup for one user on one document.
func (c *Client) Purposes(ctx context.Context, documentID, ownerID string, sel analytics.Selection) ([]analytics.PurposeRow, error) {
	q := selectionQuery(sel)
	q.Set("document", documentID)
	q.Set("owner", ownerID)
	var out purposesResponse
	err := c.getJSON(ctx, "/v1/analytics/purposes", q, &out)
	return out.Purposes, err
}

// Timeline returns the stitched reading timeline of every selected pair.
func (c *Client) Timeline(ctx context.Context, sel analytics.Selection) ([]analytics.PairTimeline, error) {
	var out timelineResponse
	err := c.getJSON(ctx, "/v1/analytics/timeline", selectionQuery(sel), &out)
	return out.Timelines, err
}

// Report fetches a rendered report.
func (c *Client) Report(ctx context.Context, opts ReportOptions) ([]byte, error) {
	q := selectionQuery(opts.Selection)
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.Format != "" {
		q.Set("format", opts.Format)
	}
	if opts.DocumentID != "" {
		q.Set("document", opts.DocumentID)
	}
	if opts.OwnerID != "" {
		q.Set("owner", opts.OwnerID)
	}
	var buf bytes.Buffer
	if err := c.getRaw(ctx, "/v1/reports", q, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadArchive streams the open document's archive into w.
func (c *Client) DownloadArchive(ctx context.Context, w io.Writer, includeDocument bool) error {
	q := url.Values{}
	q.Set("document", strconv.FormatBool(includeDocument))
	return c.getRaw(ctx, "/v1/archive", q, w)
}

// ExportArchive asks the daemon to store an archive in its blob store.
func (c *Client) ExportArchive(ctx context.Context, includeDocument bool) (ExportResult, error) {
	var out ExportResult
	path := "/v1/archive/export?document=" + strconv.FormatBool(includeDocument)
	err := c.sendJSON(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

// ImportArchives uploads archives to merge into the open document.
func (c *Client) ImportArchives(ctx context.Context, files ...ArchiveFile) (ImportResult, error) {
	if len(files) == 0 {
		return ImportResult{}, fmt.Errorf("no archives to import")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		fw, err := mw.CreateFormFile("archives", f.Name)
		if err != nil {
			return ImportResult{}, fmt.Errorf("failed to build upload: %w", err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return ImportResult{}, fmt.Errorf("failed to build upload: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return ImportResult{}, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/archive/import", &body)
	if err != nil {
		return ImportResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out ImportResult
	err = c.do(req, &out)
	return out, err
}

// Suggest generates reading goals for the open document. refresh bypasses
// the daemon's cache.
func (c *Client) Suggest(ctx context.Context, req SuggestRequest, refresh bool) (*suggest.Suggestion, error) {
	path := "/v1/suggestions"
	if refresh {
		path += "?refresh=true"
	}
	var out suggest.Suggestion
	if err := c.sendJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Suggestion returns the last generated suggestion for the open document.
func (c *Client) Suggestion(ctx context.Context) (*suggest.Suggestion, error) {
	var out suggest.Suggestion
	if err := c.getJSON(ctx, "/v1/suggestions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path, q), nil)
		if err != nil {
			return err
		}
		return c.do(req, out)
	})
}

func (c *Client) getRaw(ctx context.Context, path string, q url.Values, w io.Writer) error {
	// Retrying a stream that already wrote to w would duplicate output.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path, q), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= c.retries || !retryable(err) {
			return err
		}
		select {
		case <-time.After(c.backoff.Next(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func (c *Client) url(path string, q url.Values) string {
	if len(q) == 0 {
		return c.endpoint + path
	}
	return c.endpoint + path + "?" + q.Encode()
}

func selectionQuery(sel analytics.Selection) url.Values {
	q := url.Values{}
	if len(sel.DocumentIDs) > 0 {
		q.Set("documents", strings.Join(sel.DocumentIDs, ","))
	}
	if len(sel.UserIDs) > 0 {
		q.Set("users", strings.Join(sel.UserIDs, ","))
	}
	return q
}
