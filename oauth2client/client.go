package oauth2client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

// Params describes the caller's part of one request. The Authorization, Accept and
// User-Agent headers are always set by the client.
type Params struct {
	// Query is merged into the endpoint's query string.
	Query url.Values

	// Header holds extra request headers.
	Header http.Header

	// JSON is marshalled as the request body.
	JSON interface{}

	// Fields are set into the JSON body by sjson path ("subscriber.reference"), on top
	// of JSON when both are given.
	Fields map[string]interface{}

	// Form sends a form-encoded body instead of JSON.
	Form url.Values
}

// APIClient makes authenticated calls to the payment API. A rejected access token is
// refreshed and the call retried exactly once; every other failure is returned
// classified as TransportError, ClientError, ServerError, RedirectError or BodyError.
type APIClient struct {
	cfg        Config
	tokens     TokenProvider
	httpClient *http.Client
	logger     log.FieldLogger
}

// NewAPIClient creates a new APIClient from cfg. Unset settings take their defaults.
//
// Example:
//
//	client, err := oauth2client.NewAPIClient(oauth2client.Config{
//		ClientID:     "your_client_id",
//		ClientSecret: "your_client_secret",
//		BaseURL:      "https://api.preprod.slimpay.com",
//	})
func NewAPIClient(cfg Config, opts ...Option) (*APIClient, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := buildOptions(opts)
	if o.httpClient == nil {
		hc, err := newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		o.httpClient = hc
	} else if o.httpClient.CheckRedirect == nil {
		// Copy so the caller's client is left untouched.
		hc := *o.httpClient
		hc.CheckRedirect = redirectPolicy(cfg.MaxRedirects)
		o.httpClient = &hc
	}
	if o.tokens == nil {
		o.tokens = NewTokenManager(cfg.Credentials(),
			WithHTTPClient(o.httpClient),
			WithLogger(o.logger),
			WithClock(o.now),
			WithUserAgent(cfg.UserAgent),
		)
	}

	return &APIClient{
		cfg:        cfg,
		tokens:     o.tokens,
		httpClient: o.httpClient,
		logger:     o.logger,
	}, nil
}

// APIVersion returns the API version named in the Accept profile.
func (c *APIClient) APIVersion() string {
	return c.cfg.APIVersion
}

// Tokens returns the provider the client takes its bearer tokens from.
func (c *APIClient) Tokens() TokenProvider {
	return c.tokens
}

// Request performs one logical API call. endpoint is either a path relative to the
// base URL or an absolute URL, such as a HAL link.
func (c *APIClient) Request(ctx context.Context, method HttpMethod, endpoint string, params *Params) (*Result, error) {
	if params == nil {
		params = &Params{}
	}
	entry := c.logger.WithFields(log.Fields{
		"request_id": uuid.NewString()[:8],
		"method":     method,
		"endpoint":   endpoint,
	})

	result, err := c.attempt(ctx, method, endpoint, params)

	var rejected *authRejectedError
	if !errors.As(err, &rejected) {
		return result, err
	}

	entry.Debug("access token rejected, refreshing and retrying once")
	c.tokens.Invalidate()

	result, err = c.attempt(ctx, method, endpoint, params)
	if errors.As(err, &rejected) {
		return nil, &ClientError{rejected.HTTPError}
	}
	return result, err
}

// attempt fetches a token, sends the request once and classifies the outcome.
func (c *APIClient) attempt(ctx context.Context, method HttpMethod, endpoint string, params *Params) (*Result, error) {
	resp, err := c.send(ctx, method, endpoint, params)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := readBody(resp)
	if err != nil {
		return nil, &TransportError{Op: string(method), URL: resp.Request.URL.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp, body)
	}

	contentType := resp.Header.Get("Content-Type")
	parsed, err := parseBody(contentType, body)
	if err != nil {
		return nil, &BodyError{StatusCode: resp.StatusCode, ContentType: contentType, Err: err}
	}
	return &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: parsed}, nil
}

// send returns an open response; the caller closes its body.
func (c *APIClient) send(ctx context.Context, method HttpMethod, endpoint string, params *Params) (*http.Response, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, method, endpoint, params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyDoError(string(method), req.URL.String(), c.cfg.MaxRedirects, err)
	}
	return resp, nil
}

// newRequest builds a fresh request; bodies are rebuilt for every attempt.
func (c *APIClient) newRequest(ctx context.Context, method HttpMethod, endpoint string, params *Params) (*http.Request, error) {
	target, err := c.resolve(endpoint, params.Query)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	contentType := "application/json"
	switch {
	case params.Form != nil:
		bodyReader = strings.NewReader(params.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case params.JSON != nil || len(params.Fields) > 0:
		payload, err := jsonBody(params.JSON, params.Fields)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, string(method), target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range params.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", c.cfg.AcceptHeader())
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

func (c *APIClient) resolve(endpoint string, query url.Values) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	var u *url.URL
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		u, err = url.Parse(endpoint)
	} else {
		u, err = url.Parse(strings.TrimRight(base.String(), "/") + "/" + strings.TrimLeft(endpoint, "/"))
	}
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func jsonBody(v interface{}, fields map[string]interface{}) ([]byte, error) {
	payload := []byte("{}")
	if v != nil {
		var err error
		if payload, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	for path, value := range fields {
		var err error
		if payload, err = sjson.SetBytes(payload, path, value); err != nil {
			return nil, fmt.Errorf("failed to set body field %q: %w", path, err)
		}
	}
	return payload, nil
}

// DownloadFile fetches endpoint with GET and saves the body to destPath. When destPath
// is a directory, the file name comes from the Content-Disposition header.
//
// Example:
//
//	err := client.DownloadFile(ctx, mandateDocumentURL, "./mandate.pdf")
func (c *APIClient) DownloadFile(ctx context.Context, endpoint, destPath string) error {
	result, err := c.Request(ctx, HttpGet, endpoint, nil)
	if err != nil {
		return err
	}

	if fi, err := os.Stat(destPath); err == nil && fi.IsDir() {
		if disposition := result.Header.Get("Content-Disposition"); disposition != "" {
			if _, params, err := mime.ParseMediaType(disposition); err == nil {
				if filename, ok := params["filename"]; ok {
					destPath = filepath.Join(destPath, filepath.Base(filename))
				}
			}
		}
	}

	if err := os.WriteFile(destPath, result.Body.Raw(), 0o644); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}
