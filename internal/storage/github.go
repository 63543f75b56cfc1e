package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// GitHubOptions configures a GitHubBackend.
type GitHubOptions struct {
	BaseURL    string // e.g. https://api.github.com
	Repository string // owner/name
	PathPrefix string // folder inside the repository
	Branch     string
	Token      string
	Timeout    time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// GitHubBackend stores documents as files in a GitHub repository through the
// contents API. Every write is a commit; the file sha is the revision marker
// and is sent back on update so a stale write is rejected by GitHub.
// Calls are not retried.
type GitHubBackend struct {
	baseURL    string
	repo       string
	prefix     string
	branch     string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewGitHubBackend creates a GitHub contents API backend.
func NewGitHubBackend(opts GitHubOptions, logger *logrus.Logger) *GitHubBackend {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	branch := opts.Branch
	if branch == "" {
		branch = "main"
	}
	return &GitHubBackend{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		repo:       strings.Trim(opts.Repository, "/"),
		prefix:     strings.Trim(opts.PathPrefix, "/"),
		branch:     branch,
		token:      opts.Token,
		httpClient: client,
		logger:     logger,
	}
}

// contentsFile is the subset of the contents API file object we use.
type contentsFile struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

type deleteRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

// repoPath is the document path inside the repository.
func (b *GitHubBackend) repoPath(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func escapeSegments(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func (b *GitHubBackend) contentsURL(path string, withRef bool) string {
	u := b.baseURL + "/repos/" + escapeSegments(b.repo) + "/contents"
	if path != "" {
		u += "/" + escapeSegments(path)
	}
	if withRef {
		u += "?ref=" + url.QueryEscape(b.branch)
	}
	return u
}

// makeRequest sends one request and returns the status and body.
func (b *GitHubBackend) makeRequest(ctx context.Context, method, endpoint string, body interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+b.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "wishlist-storage")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    endpoint,
		"status": resp.StatusCode,
	}).Debug("GitHub contents API call")

	return resp.StatusCode, respBody, nil
}

func statusError(op, path string, status int, body []byte) *StatusError {
	msg := strings.TrimSpace(string(body))
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &StatusError{Op: op, Path: path, StatusCode: status, Body: msg}
}

// Read fetches the file and its sha. 404 is NotFound; every other non-200
// status and transport error is Failed.
func (b *GitHubBackend) Read(ctx context.Context, key string) Result {
	path := b.repoPath(key)
	status, body, err := b.makeRequest(ctx, http.MethodGet, b.contentsURL(path, true), nil)
	if err != nil {
		return failed(fmt.Errorf("get %s: %w", path, err))
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return missing()
	default:
		return failed(statusError("get", path, status, body))
	}

	var file contentsFile
	if err := json.Unmarshal(body, &file); err != nil {
		return failed(fmt.Errorf("get %s: unexpected response: %w", path, err))
	}
	if file.Type != "" && file.Type != "file" {
		return failed(fmt.Errorf("get %s: is a %s, not a file", path, file.Type))
	}
	if file.Encoding != "" && file.Encoding != "base64" {
		// Files above 1MB come back with encoding "none" and no content.
		return failed(fmt.Errorf("get %s: unsupported content encoding %q", path, file.Encoding))
	}

	// The API wraps base64 at 60 columns.
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return failed(fmt.Errorf("get %s: decode content: %w", path, err))
	}
	return found(data, file.SHA)
}

// Write commits data to key. base is sent as the file sha so GitHub rejects
// the update when the file changed since it was read. Without base the
// current sha is looked up first.
func (b *GitHubBackend) Write(ctx context.Context, key string, data []byte, base, message string) (string, error) {
	path := b.repoPath(key)

	sha := base
	if sha == "" {
		current := b.Read(ctx, key)
		if current.Outcome == Failed {
			return "", fmt.Errorf("resolve revision of %s: %w", path, current.Err)
		}
		sha = current.Revision
	}

	req := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  b.branch,
		SHA:     sha,
	}
	status, body, err := b.makeRequest(ctx, http.MethodPut, b.contentsURL(path, false), req)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", statusError("put", path, status, body)
	}

	var resp putResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("put %s: unexpected response: %w", path, err)
	}
	return resp.Content.SHA, nil
}

// Delete removes the file at key in its own commit.
func (b *GitHubBackend) Delete(ctx context.Context, key string, message string) error {
	path := b.repoPath(key)

	current := b.Read(ctx, key)
	switch current.Outcome {
	case NotFound:
		return nil
	case Failed:
		return fmt.Errorf("resolve revision of %s: %w", path, current.Err)
	}

	req := deleteRequest{Message: message, SHA: current.Revision, Branch: b.branch}
	status, body, err := b.makeRequest(ctx, http.MethodDelete, b.contentsURL(path, false), req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return statusError("delete", path, status, body)
}

// List returns the names of the files directly under the path prefix.
func (b *GitHubBackend) List(ctx context.Context) ([]string, error) {
	status, body, err := b.makeRequest(ctx, http.MethodGet, b.contentsURL(b.prefix, true), nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.prefix, err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, statusError("list", b.prefix, status, body)
	}

	var files []contentsFile
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("list %s: expected a directory listing: %w", b.prefix, err)
	}
	keys := make([]string, 0, len(files))
	for _, f := range files {
		if f.Type == "file" {
			keys = append(keys, f.Name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
