// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bureau-foundation/rendezvous/lib/clock"
	"github.com/bureau-foundation/rendezvous/lib/netutil"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the backend origin (e.g., "https://api.example.com").
	BaseURL string
	// SessionToken is the user's long-lived session, sent as a bearer
	// token on every request. Required.
	SessionToken string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Clock is used to check token expiry. If nil, clock.Real() is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client talks to the backend's realtime support endpoints.
type Client struct {
	baseURL      string
	sessionToken string
	httpClient   *http.Client
	clock        clock.Clock
	logger       *slog.Logger
}

// NewClient creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("messaging: BaseURL is required")
	}
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: BaseURL %q must be http or https", config.BaseURL)
	}
	if config.SessionToken == "" {
		return nil, fmt.Errorf("messaging: SessionToken is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		sessionToken: config.SessionToken,
		httpClient:   httpClient,
		clock:        clk,
		logger:       logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's pool. Call after a network disruption so the next request
// does not reuse a dead pooled connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// AccessToken issues a short-lived realtime token. When the token is a
// JWT its exp claim is checked against the local clock; an already
// expired token is rejected with ErrTokenExpired. The signature is not
// verified here. Opaque tokens are returned as-is.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/auth/realtime-token/", "", nil)
	if err != nil {
		return "", fmt.Errorf("messaging: realtime token failed: %w", err)
	}

	var response tokenResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse token response: %w", err)
	}
	if response.AccessToken == "" {
		return "", fmt.Errorf("messaging: token response missing access_token")
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(response.AccessToken, claims); err != nil {
		c.logger.Debug("realtime token is not a JWT, skipping expiry check", "error", err)
		return response.AccessToken, nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(c.clock.Now()) {
		return "", fmt.Errorf("%w (exp %s)", ErrTokenExpired, claims.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return response.AccessToken, nil
}

// History returns the messages of a conversation in backend order.
// Both a bare JSON array and a paginated {"results": [...]} body are
// accepted. Records that fail to decode are logged and skipped.
func (c *Client) History(ctx context.Context, conversation string) ([]MessageRecord, error) {
	if conversation == "" {
		return nil, fmt.Errorf("messaging: conversation is required")
	}
	path := "/api/chat/" + url.PathEscape(conversation) + "/messages/"
	body, err := c.doRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: history for %s failed: %w", conversation, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		var page historyPage
		if pageErr := json.Unmarshal(body, &page); pageErr != nil {
			return nil, fmt.Errorf("messaging: failed to parse history response: %w", err)
		}
		raw = page.Results
	}

	records := make([]MessageRecord, 0, len(raw))
	for index, item := range raw {
		var record MessageRecord
		if err := json.Unmarshal(item, &record); err != nil {
			c.logger.Warn("skipping malformed history record",
				"conversation", conversation,
				"index", index,
				"error", err,
			)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// UploadFile posts content as a multipart "file" field. Each upload
// carries a fresh X-Request-ID so backend logs can correlate retries.
func (c *Client) UploadFile(ctx context.Context, conversation, name string, content io.Reader) (*UploadResult, error) {
	if conversation == "" {
		return nil, fmt.Errorf("messaging: conversation is required")
	}
	if name == "" {
		return nil, fmt.Errorf("messaging: file name is required")
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("messaging: creating form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("messaging: reading %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("messaging: finishing form: %w", err)
	}

	requestID := uuid.NewString()
	path := "/api/chat/" + url.PathEscape(conversation) + "/upload/"
	body, err := c.doRequest(ctx, http.MethodPost, path, writer.FormDataContentType(), &form, requestID)
	if err != nil {
		return nil, fmt.Errorf("messaging: upload of %s failed: %w", name, err)
	}
	c.logger.Info("file uploaded",
		"conversation", conversation,
		"name", name,
		"request_id", requestID,
	)

	var result UploadResult
	if len(bytes.TrimSpace(body)) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse upload response: %w", err)
	}
	return &result, nil
}

// RecoverFile asks the backend for a fresh location of a message's file.
func (c *Client) RecoverFile(ctx context.Context, messageID string) (string, error) {
	if messageID == "" {
		return "", fmt.Errorf("messaging: message id is required")
	}
	path := "/api/chat/messages/" + url.PathEscape(messageID) + "/refresh-file/"
	body, err := c.doRequest(ctx, http.MethodPost, path, "", nil)
	if err != nil {
		return "", fmt.Errorf("messaging: refresh file for message %s failed: %w", messageID, err)
	}

	var response refreshFileResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse refresh-file response: %w", err)
	}
	if response.FileURL == "" {
		return "", fmt.Errorf("messaging: refresh-file response missing file_url")
	}
	return response.FileURL, nil
}

// doRequest performs an authenticated request and returns the response
// body. Non-2xx responses return *APIError.
func (c *Client) doRequest(ctx context.Context, method, path, contentType string, body io.Reader, requestID ...string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.sessionToken)
	if len(requestID) > 0 {
		request.Header.Set("X-Request-ID", requestID[0])
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	apiErr := &APIError{StatusCode: response.StatusCode}
	if jsonErr := json.Unmarshal(responseBody, apiErr); jsonErr != nil || (apiErr.Code == "" && apiErr.Message == "") {
		// Proxies and framework error pages return HTML or plain text.
		apiErr.Message = strings.TrimSpace(string(responseBody))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(response.StatusCode)
		}
	}
	return nil, apiErr
}
