// Package sefaz fetches fiscal documents from the state tax portals.
package sefaz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"

	"github.com/rezonia/nfce-processor/internal/model"
)

var logger = logrus.WithField("component", "sefaz")

const (
	// DefaultTimeout bounds each request
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBodyBytes caps a response body
	DefaultMaxBodyBytes int64 = 5 << 20

	// DefaultUserAgent mimics a desktop browser; several portals reject
	// unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	acceptHeader = "application/xml, text/xml, text/html, */*"
)

// Client performs the direct request and, on failure, one consult request
type Client struct {
	httpClient *http.Client
	endpoints  Table
	timeout    time.Duration
	userAgent  string
	maxBody    int64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithEndpoints replaces the endpoint table
func WithEndpoints(t Table) Option {
	return func(c *Client) {
		c.endpoints = t
	}
}

// WithMaxBodyBytes caps how much of a response is read
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		c.maxBody = n
	}
}

// NewClient creates a portal client
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		endpoints:  DefaultEndpoints,
		timeout:    DefaultTimeout,
		userAgent:  DefaultUserAgent,
		maxBody:    DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the document for key from the portal of uf. The direct
// endpoint is tried first; a transport error, timeout or non-2xx status
// moves to the consult endpoint. There are no retries beyond that hop.
func (c *Client) Fetch(ctx context.Context, key model.AccessKey, uf model.UF) (*model.RawDocument, error) {
	direct, consult, err := c.endpoints.URLs(uf, key)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{"key": key.String(), "uf": uf})

	body, directErr := c.get(ctx, direct)
	if directErr == nil {
		return c.document(body, direct, key, uf), nil
	}
	if ctx.Err() != nil {
		return nil, directErr
	}
	if consult == "" {
		return nil, directErr
	}

	log.WithError(directErr).Warn("direct endpoint failed, trying consult endpoint")

	body, consultErr := c.get(ctx, consult)
	if consultErr != nil {
		return nil, fmt.Errorf("%w: direct: %w; consult: %w", model.ErrNetwork, directErr, consultErr)
	}
	return c.document(body, consult, key, uf), nil
}

func (c *Client) document(body, url string, key model.AccessKey, uf model.UF) *model.RawDocument {
	kind := Classify(body)
	logger.WithFields(logrus.Fields{"key": key.String(), "kind": kind, "bytes": len(body)}).Debug("fetched document")
	return &model.RawDocument{
		Kind: kind,
		Body: body,
		URL:  url,
		Key:  key,
		UF:   uf,
	}
}

func (c *Client) get(ctx context.Context, url string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &model.NetworkError{URL: url, Cause: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &model.NetworkError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &model.NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return "", &model.NetworkError{URL: url, Cause: errors.Wrap(err, "read body")}
	}
	if int64(len(raw)) > c.maxBody {
		return "", &model.NetworkError{URL: url, Cause: errors.Errorf("body exceeds %d bytes", c.maxBody)}
	}

	r, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &model.NetworkError{URL: url, Cause: errors.Wrap(err, "detect charset")}
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return "", &model.NetworkError{URL: url, Cause: errors.Wrap(err, "transcode body")}
	}
	return string(text), nil
}
