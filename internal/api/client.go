package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// NewClient builds a client for the daemon at baseURL. A bare host:port is
// treated as http.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{baseURL: base, http: &http.Client{Timeout: 60 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadDocument sends a local PDF to the daemon.
func (c *Client) UploadDocument(ctx context.Context, path, title string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if title = strings.TrimSpace(title); title != "" {
		if err := writer.WriteField("title", title); err != nil {
			return nil, err
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	var doc Document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments lists documents, optionally filtered by status.
func (c *Client) ListDocuments(ctx context.Context, statuses ...string) ([]Document, error) {
	query := url.Values{}
	for _, status := range statuses {
		if status = strings.TrimSpace(status); status != "" {
			query.Add("status", status)
		}
	}
	var resp DocumentListResponse
	if err := c.get(ctx, "/api/documents", query, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// GetDocument fetches one document.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := c.get(ctx, "/api/documents/"+url.PathEscape(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes a document and everything derived from it.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// RequestStage asks the daemon to run a stage. config may be nil.
func (c *Client) RequestStage(ctx context.Context, documentID, stage string, config json.RawMessage) (*Task, error) {
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}
	endpoint := fmt.Sprintf("%s/api/documents/%s/stages/%s", c.baseURL, url.PathEscape(documentID), url.PathEscape(stage))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(config))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var task Task
	if err := c.do(req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask fetches a task's current status.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := c.get(ctx, "/api/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks lists a document's tasks, newest first.
func (c *Client) ListTasks(ctx context.Context, documentID string) ([]Task, error) {
	var resp TaskListResponse
	if err := c.get(ctx, "/api/documents/"+url.PathEscape(documentID)+"/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// GetResult fetches the latest completed artifact of kind.
func (c *Client) GetResult(ctx context.Context, documentID, kind string) (*Artifact, error) {
	var artifact Artifact
	path := fmt.Sprintf("/api/documents/%s/results/%s", url.PathEscape(documentID), url.PathEscape(kind))
	if err := c.get(ctx, path, nil, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// DownloadSlides streams the rendered deck into w and returns the byte count
// and the server-suggested filename.
func (c *Client) DownloadSlides(ctx context.Context, documentID string, w io.Writer) (int64, string, error) {
	endpoint := fmt.Sprintf("%s/api/documents/%s/results/slides/file", c.baseURL, url.PathEscape(documentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, "", decodeError(resp)
	}
	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, name, fmt.Errorf("download deck: %w", err)
	}
	return n, name, nil
}

// Templates lists the render template catalog.
func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var resp TemplateListResponse
	if err := c.get(ctx, "/api/templates", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Templates, nil
}

// Status fetches daemon and scheduler status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var status DaemonStatus
	if err := c.get(ctx, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	var body ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		apiErr.RetryAfter = time.Duration(seconds) * time.Second
	}
	return apiErr
}
