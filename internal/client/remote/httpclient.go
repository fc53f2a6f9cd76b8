package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/daybook-app/daybook/internal/client/models"
	"github.com/daybook-app/daybook/internal/common"
	"github.com/daybook-app/daybook/internal/logging"
)

const apiPrefix = "/api/v1"

// HTTPClient talks JSON to the Daybook sync server and holds the issued
// bearer tokens. An expired access token is refreshed once per request,
// transparently to the caller.
//
// The token pair is read by the reachability probe and the background
// workers while the REPL may be logging in or refreshing, so every access
// goes through the mutex.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
	log     logging.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewHTTPClient(endpoint string, log logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(endpoint, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
		log:     log.With("module", "remote"),
	}
}

func (c *HTTPClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

// SetTokens restores previously issued tokens, e.g. after a process restart.
func (c *HTTPClient) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	c.refreshToken = refresh
}

// Tokens returns the current token pair for persistence.
func (c *HTTPClient) Tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

// errPayload is the server's machine-readable error envelope.
type errPayload struct {
	Code    common.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// mapError translates a response classified as failed into a sentinel error.
func mapError(status int, p errPayload) error {
	switch {
	case p.Code == common.CodeMissingIndex:
		return ErrMissingIndex
	case p.Code == common.CodeQuota:
		return ErrQuotaExceeded
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, p.Message)
	case status >= 400:
		return fmt.Errorf("%w: %s", ErrRejected, p.Message)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, p.Message)
	}
}

// doJSON runs one API request. A nil out skips response decoding. Transport
// failures surface as ErrUnavailable so callers treat them as connectivity.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	access, _ := c.Tokens()
	err := c.doJSONOnce(ctx, method, path, body, out, access)
	if err == nil {
		return nil
	}

	// retry exactly once behind a token refresh
	if c.shouldRefresh(err) {
		if rerr := c.refresh(ctx); rerr != nil {
			return err
		}
		access, _ = c.Tokens()
		return c.doJSONOnce(ctx, method, path, body, out, access)
	}
	return err
}

func (c *HTTPClient) shouldRefresh(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		return false
	}
	_, refresh := c.Tokens()
	return ae.payload.Code == common.CodeTokenExpired && refresh != ""
}

// apiError keeps the raw envelope so doJSON can detect expired tokens while
// callers only ever see the mapped sentinel.
type apiError struct {
	status  int
	payload errPayload
}

func (e *apiError) Error() string { return mapError(e.status, e.payload).Error() }
func (e *apiError) Unwrap() error { return mapError(e.status, e.payload) }

func (c *HTTPClient) doJSONOnce(ctx context.Context, method, path string, body, out any, token string) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var p errPayload
		_ = json.NewDecoder(resp.Body).Decode(&p)
		return &apiError{status: resp.StatusCode, payload: p}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) refresh(ctx context.Context) error {
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	_, refresh := c.Tokens()
	req := map[string]string{"refresh_token": refresh}
	if err := c.doJSONOnce(ctx, http.MethodPost, "/auth/refresh", req, &resp, ""); err != nil {
		return err
	}
	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return nil
}

func (c *HTTPClient) Register(ctx context.Context, username, password string) error {
	req := map[string]string{"username": username, "password": password}
	return c.doJSON(ctx, http.MethodPost, "/auth/register", req, nil)
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		UserID       string `json:"user_id"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	req := map[string]string{"username": username, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return "", err
	}
	c.SetTokens(resp.AccessToken, resp.RefreshToken)
	return resp.UserID, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/ping", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (c *HTTPClient) Upsert(ctx context.Context, entry *models.Entry) (int64, error) {
	var resp struct {
		ServerTS int64 `json:"server_ts"`
	}
	doc := toDoc(entry)
	if err := c.doJSON(ctx, http.MethodPut, "/entries/"+url.PathEscape(entry.Id), doc, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTS, nil
}

func (c *HTTPClient) Get(ctx context.Context, id string) (*models.Entry, error) {
	var doc EntryDoc
	if err := c.doJSON(ctx, http.MethodGet, "/entries/"+url.PathEscape(id), nil, &doc); err != nil {
		return nil, err
	}
	e := fromDoc(doc)
	return &e, nil
}

func (c *HTTPClient) Query(ctx context.Context, ownerId string, byServerTS bool) ([]models.Entry, error) {
	path := "/entries"
	if byServerTS {
		path += "?order=server_ts"
	}

	var resp struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	result := make([]models.Entry, 0, len(resp.Entries))
	for _, raw := range resp.Entries {
		var doc EntryDoc
		if err := json.Unmarshal(raw, &doc); err != nil || doc.ID == "" {
			// a malformed document must not sink the whole query
			c.log.Warn(ctx, "skipping undecodable remote document", "id", docID(raw), "error", err)
			continue
		}
		result = append(result, fromDoc(doc))
	}
	_ = ownerId // the server scopes the query to the authenticated owner
	return result, nil
}

func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/entries/"+url.PathEscape(id), nil, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (c *HTTPClient) PresignPut(ctx context.Context, entryID, filename string) (string, string, error) {
	var resp struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}
	req := map[string]string{"entry_id": entryID, "filename": filename}
	if err := c.doJSON(ctx, http.MethodPost, "/attachments/presign-put", req, &resp); err != nil {
		return "", "", err
	}
	return resp.Key, resp.URL, nil
}

func (c *HTTPClient) PresignGet(ctx context.Context, key string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	req := map[string]string{"key": key}
	if err := c.doJSON(ctx, http.MethodPost, "/attachments/presign-get", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// UploadObject PUTs raw bytes to a presigned URL.
func (c *HTTPClient) UploadObject(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 500:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: upload failed: %s; body: %s", ErrUnavailable, resp.Status, string(b))
	default:
		return fmt.Errorf("%w: upload failed: %s", ErrRejected, resp.Status)
	}
}

func (c *HTTPClient) MarkUploaded(ctx context.Context, entryID, key string) error {
	req := map[string]string{"key": key}
	return c.doJSON(ctx, http.MethodPost, "/attachments/"+url.PathEscape(entryID)+"/uploaded", req, nil)
}

func (c *HTTPClient) DeleteBlob(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodDelete, "/attachments?key="+url.QueryEscape(key), nil, nil)
}
