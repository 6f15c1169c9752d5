// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package httpclient provides the pluggable HTTP client geoclued's
// location sources queue requests on. Queuing and cancellation are
// expressed as context.Context, matching how callers in this codebase
// already cancel outstanding work; a source that wants "at most one
// outstanding query" keeps a context.CancelFunc around and calls it on
// stop or before starting the next query.
package httpclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"runtime"
	"time"

	"github.com/geoclued/geoclued/internal/logger"
)

// DefaultTimeout bounds a request absent an explicit deadline.
const DefaultTimeout = time.Second * 10

var (
	version = "dev"
	// UserAgent identifies geoclued to upstream geolocation providers.
	UserAgent = fmt.Sprintf("geoclued/%s (+https://github.com/geoclued/geoclued) (%s; %s)",
		version, runtime.GOOS, runtime.GOARCH)

	// ErrNonPointerTarget is returned when the decode target isn't a non-nil pointer.
	ErrNonPointerTarget = errors.New("target must be a non-nil pointer")

	// ErrDecode wraps a Decoder failure, distinguishing a malformed
	// response body from a transport-level failure.
	ErrDecode = errors.New("failed to decode response body")
)

// Client wraps the stdlib http.Client with JSON/XML decoding and logging.
type Client struct {
	*http.Client
	log *logger.Logger
}

// New returns a Client with a minimum TLS 1.2 transport.
func New(log *logger.Logger) *Client {
	transport := &http.Transport{TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12}}
	return &Client{
		Client: &http.Client{Timeout: DefaultTimeout, Transport: transport},
		log:    log,
	}
}

// Decoder unmarshals a response body into target; callers pick json.NewDecoder
// or xml.NewDecoder depending on the provider's wire format.
type Decoder func(body io.Reader, target any) error

// JSONDecoder decodes a JSON response body.
func JSONDecoder(body io.Reader, target any) error {
	return json.NewDecoder(body).Decode(target)
}

// XMLDecoder decodes an XML response body, for providers like OpenCellID
// that do not speak JSON.
func XMLDecoder(body io.Reader, target any) error {
	return xml.NewDecoder(body).Decode(target)
}

// Get performs an HTTP GET and decodes the response into target using decode.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, headers map[string]string, target any, decode Decoder) (int, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, ErrNonPointerTarget
	}

	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	return c.do(request, headers, target, decode)
}

// Post performs an HTTP POST with body and decodes the response into target using decode.
func (c *Client) Post(ctx context.Context, endpoint string, body io.Reader, headers map[string]string, target any, decode Decoder) (int, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, ErrNonPointerTarget
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	return c.do(request, headers, target, decode)
}

func (c *Client) do(request *http.Request, headers map[string]string, target any, decode Decoder) (int, error) {
	request.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		request.Header.Set(k, v)
	}

	response, err := c.Do(request)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	if response == nil {
		return 0, errors.New("nil response received")
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.log.Error("failed to close HTTP response body", logger.Err(cerr))
		}
	}(response.Body)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return response.StatusCode, fmt.Errorf("unexpected status code %d", response.StatusCode)
	}

	if err = decode(response.Body, target); err != nil {
		return response.StatusCode, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return response.StatusCode, nil
}
