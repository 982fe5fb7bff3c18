// Package transport abstracts the HTTP round trips the SDK performs against
// the control plane and id-list storage. The store depends only on the
// Fetcher interface so tests (and hosts with bespoke networking) can swap
// the implementation without touching sync logic.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// ErrLocalMode is returned by the default fetcher when the SDK runs in
// local mode. The store treats it as a quiet failure: no warning, no
// failure counting, just "no network data available".
var ErrLocalMode = errors.New("transport: network access disabled in local mode")

// Response is the subset of an HTTP response the sync paths consume.
type Response struct {
	StatusCode    int
	Body          []byte
	ContentLength int64
	Header        http.Header
}

// Fetcher performs the SDK's outbound requests.
type Fetcher interface {
	// Get issues a GET with optional extra headers (e.g. Range).
	Get(ctx context.Context, url string, headers map[string]string) (*Response, error)

	// Post issues a JSON POST.
	Post(ctx context.Context, url string, body []byte) (*Response, error)
}

// Metadata identifies this SDK instance to the control plane. It rides on
// every request as headers and inside id-list manifest requests as a body
// field, which analytics uses to partition traffic per session.
type Metadata struct {
	SDKType         string `json:"sdkType"`
	SDKVersion      string `json:"sdkVersion"`
	SessionID       string `json:"sessionID"`
	LanguageVersion string `json:"languageVersion"`
}

// NewMetadata stamps a fresh session identity.
func NewMetadata(sdkVersion string) Metadata {
	return Metadata{
		SDKType:         "mimir-go",
		SDKVersion:      sdkVersion,
		SessionID:       uuid.NewString(),
		LanguageVersion: runtime.Version(),
	}
}

// HTTPFetcher is the default Fetcher backed by net/http.
type HTTPFetcher struct {
	client    *http.Client
	sdkKey    string
	metadata  Metadata
	localMode bool
}

// NewHTTPFetcher builds the default fetcher. A zero timeout falls back to a
// conservative default; requests are additionally bounded by the caller's
// context.
func NewHTTPFetcher(sdkKey string, metadata Metadata, timeout time.Duration, localMode bool) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		sdkKey:    sdkKey,
		metadata:  metadata,
		localMode: localMode,
	}
}

// Metadata exposes the session identity stamped at construction.
func (f *HTTPFetcher) Metadata() Metadata {
	return f.metadata
}

// Get implements Fetcher.
func (f *HTTPFetcher) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	if f.localMode {
		return nil, ErrLocalMode
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return f.do(req)
}

// Post implements Fetcher.
func (f *HTTPFetcher) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	if f.localMode {
		return nil, ErrLocalMode
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return f.do(req)
}

func (f *HTTPFetcher) do(req *http.Request) (*Response, error) {
	// Identity headers ride on every request.
	req.Header.Set("MIMIR-API-KEY", f.sdkKey)
	req.Header.Set("MIMIR-SDK-TYPE", f.metadata.SDKType)
	req.Header.Set("MIMIR-SDK-VERSION", f.metadata.SDKVersion)
	req.Header.Set("MIMIR-SESSION-ID", f.metadata.SessionID)
	req.Header.Set("MIMIR-CLIENT-TIME", fmt.Sprintf("%d", time.Now().UnixMilli()))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request to %s returned status %d", req.URL, resp.StatusCode)
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Body:          payload,
		ContentLength: resp.ContentLength,
		Header:        resp.Header,
	}, nil
}
