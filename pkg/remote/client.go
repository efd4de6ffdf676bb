package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odvcencio/gitdeps/pkg/manifest"
)

// DefaultUserAgent identifies pack requests.
const DefaultUserAgent = "gitdeps"

// ClientOptions configures the pack client.
type ClientOptions struct {
	Timeout     time.Duration // time to wait for response headers (default 60s)
	MaxAttempts int           // HTTP attempts per request (default 1)
	// Proxy is an explicit proxy URL, credentials in its userinfo. Empty
	// falls back to HTTP_PROXY/HTTPS_PROXY/NO_PROXY from the environment.
	Proxy     string
	Token     string // sent as a Bearer token when set
	UserAgent string
}

// Client fetches packs over HTTP. Packs whose manifest sets IgnoreProxy use
// a client that never goes through a proxy.
type Client struct {
	proxied     *http.Client
	direct      *http.Client
	token       string
	userAgent   string
	maxAttempts int
}

// TransportError reports a pack request that failed before any pack bytes
// could be trusted: a network failure or a non-200 status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: %d %s: %v", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewClient creates a pack client. Zero-value or negative fields in opts
// receive defaults.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	proxy := http.ProxyFromEnvironment
	if raw := strings.TrimSpace(opts.Proxy); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy URL must include scheme and host")
		}
		proxy = http.ProxyURL(u)
	}

	return &Client{
		proxied:     &http.Client{Transport: newTransport(proxy, opts.Timeout)},
		direct:      &http.Client{Transport: newTransport(nil, opts.Timeout)},
		token:       strings.TrimSpace(opts.Token),
		userAgent:   opts.UserAgent,
		maxAttempts: opts.MaxAttempts,
	}, nil
}

// Packs can be large, so only the wait for headers is bounded; the body is
// bounded by the caller's context.
func newTransport(proxy func(*http.Request) (*url.URL, error), timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = proxy
	t.ResponseHeaderTimeout = timeout
	// Packs are already gzip; the stream must arrive byte for byte.
	t.DisableCompression = true
	return t
}

// PackURL returns BaseURL/RemotePath/Hash.
func PackURL(p manifest.TargetPack) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if base == "" {
		return "", fmt.Errorf("pack %s has no base URL", p.Hash)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("pack %s: parse base URL: %w", p.Hash, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("pack %s: base URL must include scheme and host", p.Hash)
	}
	parts := []string{base}
	if rp := strings.Trim(p.RemotePath, "/"); rp != "" {
		parts = append(parts, rp)
	}
	parts = append(parts, string(p.Hash))
	return strings.Join(parts, "/"), nil
}

// OpenPack starts downloading p and returns the raw (still compressed) body
// and its length, or -1 when the server did not send one. The caller must
// close the body.
func (c *Client) OpenPack(ctx context.Context, p manifest.TargetPack) (io.ReadCloser, int64, error) {
	rawURL, err := PackURL(p)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	display := req.URL.Redacted()
	c.applyAuth(req)

	client := c.proxied
	if p.IgnoreProxy {
		client = c.direct
	}
	resp, err := retryDo(client, req, c.maxAttempts)
	if err != nil {
		return nil, 0, &TransportError{URL: display, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		var detail error
		if msg := strings.TrimSpace(string(body)); msg != "" {
			detail = errors.New(msg)
		}
		return nil, 0, &TransportError{URL: display, StatusCode: resp.StatusCode, Err: detail}
	}
	return &transportBody{ReadCloser: resp.Body, url: display}, resp.ContentLength, nil
}

// transportBody turns mid-stream network failures into TransportErrors.
type transportBody struct {
	io.ReadCloser
	url string
}

func (b *transportBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = &TransportError{URL: b.url, Err: err}
	}
	return n, err
}

func (c *Client) applyAuth(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		return
	}
	if u := req.URL.User; u != nil {
		pass, _ := u.Password()
		req.SetBasicAuth(u.Username(), pass)
		req.URL.User = nil
	}
}
