package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

const (
	// defaultMaxBodySize limits page bodies when WithMaxBodySize is not used.
	defaultMaxBodySize = 10 * 1024 * 1024

	// maxRedirects bounds redirect chains.
	maxRedirects = 10

	// checkProxyTimeout bounds the SOCKS5 greeting performed by CheckProxy.
	checkProxyTimeout = 2 * time.Second
)

// Client performs HTTP GET requests on behalf of the crawler and downloader.
//
// Design decision: Request decoration (User-Agent, headers, cookie) lives in
// a RoundTripper rather than at each call site, so redirects carry the same
// values as the original request.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	headers      map[string]string
	cookie       string
	proxyAddress string
	maxBodySize  int64
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHeaders adds custom headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithCookie sets a raw cookie string ("a=1; b=2") sent with every request,
// in addition to cookies collected in the jar.
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithProxy routes all connections through the SOCKS5 proxy at address
// ("host:port"). An empty address disables proxying.
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithMaxBodySize limits how many bytes GetPage reads. Longer bodies are truncated.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// NewClient creates a Client. It validates the proxy address but does not
// contact the proxy; call CheckProxy for that.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}

	base, err := c.newTransport()
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c.httpClient = &http.Client{
		Transport: &decoratingTransport{
			base:      base,
			userAgent: c.userAgent,
			cookie:    c.cookie,
			headers:   c.headers,
		},
		Jar: jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return c, nil
}

// newTransport builds the base transport, dialing through SOCKS5 when a
// proxy address is configured.
func (c *Client) newTransport() (*http.Transport, error) {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		transport = &http.Transport{}
	}
	transport = transport.Clone()

	if c.proxyAddress == "" {
		return transport, nil
	}
	if !isValidProxyAddress(c.proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	dialer, err := proxy.SOCKS5("tcp", c.proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	transport.Proxy = nil
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return transport, nil
}

// isValidProxyAddress checks if the address is in "host:port" format with
// a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// ProxyAddress returns the configured proxy address, or "" when not proxying.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// Page is a fully read page response.
type Page struct {
	// URL is the requested address. Relative links resolve against it.
	URL string

	// StatusCode is the final HTTP status code.
	StatusCode int

	// ContentType is the Content-Type header value.
	ContentType string

	// Body holds at most the client's max body size.
	Body []byte
}

// GetPage fetches rawURL and reads the body, with timeout covering the whole
// exchange. Status codes >= 400 return a *StatusError.
func (c *Client) GetPage(ctx context.Context, rawURL string, timeout time.Duration) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}

	return &Page{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Response is a streaming response. The caller must Close it.
type Response struct {
	// StatusCode is the final HTTP status code.
	StatusCode int

	// ContentType is the Content-Type header value.
	ContentType string

	// ContentLength is the declared length, or -1 if unknown.
	ContentLength int64

	// Body streams the content. Reads fail with ErrIdleTimeout when no data
	// arrives within the idle timeout.
	Body io.ReadCloser
}

// Close releases the response.
func (r *Response) Close() error {
	return r.Body.Close()
}

// Get fetches rawURL and returns a streaming response. idleTimeout applies
// to waiting for headers and to every gap between body reads.
// Status codes >= 400 return a *StatusError with the body already closed.
func (c *Client) Get(ctx context.Context, rawURL string, idleTimeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(idleTimeout, func() {
		cancel(ErrIdleTimeout)
	})

	resp, err := c.do(ctx, rawURL)
	if err != nil {
		timer.Stop()
		cause := context.Cause(ctx)
		cancel(nil)
		if cause == ErrIdleTimeout { //nolint:errorlint // cause is the sentinel itself
			return nil, fmt.Errorf("%s: %w", rawURL, ErrIdleTimeout)
		}
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		timer.Stop()
		resp.Body.Close()
		cancel(nil)
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	timer.Reset(idleTimeout)
	return &Response{
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Body: &idleTimeoutBody{
			body:    resp.Body,
			ctx:     ctx,
			cancel:  cancel,
			timer:   timer,
			timeout: idleTimeout,
		},
	}, nil
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// idleTimeoutBody re-arms the idle timer after every read that returns data.
type idleTimeoutBody struct {
	body    io.ReadCloser
	ctx     context.Context
	cancel  context.CancelCauseFunc
	timer   *time.Timer
	timeout time.Duration
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	if err != nil && err != io.EOF && context.Cause(b.ctx) == ErrIdleTimeout { //nolint:errorlint // sentinel comparison
		return n, ErrIdleTimeout
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	b.timer.Stop()
	err := b.body.Close()
	b.cancel(nil)
	return err
}

// decoratingTransport sets the User-Agent and injects custom headers and
// cookies into every request.
type decoratingTransport struct {
	base      http.RoundTripper
	userAgent string
	cookie    string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *decoratingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	// Custom headers win over the User-Agent set above.
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
