package realdebrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ochronus/godebrid/internal/services/retry"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the Real-Debrid API host.
	DefaultBaseURL = "https://api.real-debrid.com"
	// DefaultClientID is the public client id for open-source apps.
	DefaultClientID = "X245A4XAIBGVM"

	apiPath   = "/rest/1.0/"
	oauthPath = "/oauth/v2/"
	timeout   = 10 * time.Second
)

type options struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     *logrus.Logger
	now        func() time.Time
	sleep      retry.Sleeper
	prompt     func(DeviceAuthorization)
	onRefresh  func(*RefreshableSession)
	loader     SessionLoader
}

// SessionLoader reads the most recently persisted session. It returns nil
// when nothing is stored.
type SessionLoader func(ctx context.Context) (*RefreshableSession, error)

// Option configures a Client or an Authenticator.
type Option func(*options)

// WithBaseURL points the client at another host. Both the REST and the
// OAuth2 endpoints are derived from it.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithClientID overrides the OAuth2 client id used by the device flow.
func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSleeper overrides how the device flow waits between polls.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithPrompt sets the hook that shows the user code to the user.
func WithPrompt(fn func(DeviceAuthorization)) Option {
	return func(o *options) { o.prompt = fn }
}

// WithOnRefresh registers a hook called with every rotated session.
func WithOnRefresh(fn func(*RefreshableSession)) Option {
	return func(o *options) { o.onRefresh = fn }
}

// WithSessionLoader sets where a refresh looks for a session rotated by
// another process. A stored snapshot issued after the current one is
// adopted instead of spending a refresh token that is no longer valid.
func WithSessionLoader(fn SessionLoader) Option {
	return func(o *options) { o.loader = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		baseURL:  DefaultBaseURL,
		clientID: DefaultClientID,
		now:      time.Now,
		sleep:    retry.SleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: timeout}
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	if o.prompt == nil {
		logger := o.logger
		o.prompt = func(d DeviceAuthorization) {
			logger.WithFields(logrus.Fields{
				"url":  d.VerificationURL,
				"code": d.UserCode,
			}).Info("Open the verification URL and enter the code to authorize this device")
		}
	}
	return o
}

// Client is a Real-Debrid REST client. It is safe for concurrent use.
type Client struct {
	apiURL     string
	oauthURL   string
	httpClient *http.Client
	logger     *logrus.Logger
	now        func() time.Time
	onRefresh  func(*RefreshableSession)
	loader     SessionLoader

	session   atomic.Pointer[sessionBox]
	refreshMu sync.Mutex
}

var _ ClientAPI = (*Client)(nil)

// NewClient creates a client authenticated by session. A nil session
// leaves the client unauthenticated.
func NewClient(session Session, opts ...Option) *Client {
	o := buildOptions(opts)
	c := &Client{
		apiURL:     o.baseURL + apiPath,
		oauthURL:   o.baseURL + oauthPath,
		httpClient: o.httpClient,
		logger:     o.logger,
		now:        o.now,
		onRefresh:  o.onRefresh,
		loader:     o.loader,
	}
	if session == nil {
		session = InvalidSession{}
	}
	c.store(session)
	return c
}

// Session returns the current session snapshot.
func (c *Client) Session() Session {
	return c.session.Load().Session
}

// Bearer returns the Authorization header value sent with every call.
func (c *Client) Bearer() string {
	return c.Session().Bearer()
}

// SetAPIKey switches the client to a static API key.
func (c *Client) SetAPIKey(key string) {
	c.store(StaticSession{APIKey: key})
}

// IsExpired reports whether the OAuth2 access token has expired.
func (c *Client) IsExpired() (bool, error) {
	s, ok := c.Session().(*RefreshableSession)
	if !ok {
		return false, ErrNotOAuth2
	}
	return s.ExpiredAt(c.now()), nil
}

func (c *Client) store(s Session) {
	c.session.Store(&sessionBox{Session: s})
}

// statusKinds maps response statuses to the error kind they signal.
type statusKinds map[int]error

var (
	authErrs    = statusKinds{http.StatusUnauthorized: ErrBadToken, http.StatusForbidden: ErrPermissionDenied}
	premiumErrs = statusKinds{http.StatusUnauthorized: ErrBadToken, http.StatusForbidden: ErrNotPremium}
)

func (k statusKinds) with(extra statusKinds) statusKinds {
	merged := make(statusKinds, len(k)+len(extra))
	for code, kind := range k {
		merged[code] = kind
	}
	for code, kind := range extra {
		merged[code] = kind
	}
	return merged
}

// call describes one REST request.
type call struct {
	method      string
	path        string
	query       url.Values
	form        url.Values
	body        io.Reader
	contentType string
	public      bool
	errs        statusKinds
}

// send executes c and returns the response when the status means success.
// The caller closes the body.
func (c *Client) send(ctx context.Context, cl call) (*http.Response, error) {
	target := c.apiURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	body, contentType := cl.body, cl.contentType
	if cl.form != nil {
		body = strings.NewReader(cl.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if !cl.public {
		if bearer := c.Bearer(); bearer != "" {
			req.Header.Set("Authorization", bearer)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}

	if kind, ok := cl.errs[resp.StatusCode]; ok {
		defer resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, newAPIError(resp, kind))
	}
	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, newAPIError(resp, ErrUndefined))
	}

	return resp, nil
}

// doJSON sends cl and decodes the body into out. A nil out discards the body.
func (c *Client) doJSON(ctx context.Context, cl call, out any) (http.Header, error) {
	resp, err := c.send(ctx, cl)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", cl.path, err)
	}
	return resp.Header, nil
}

func (c *Client) doText(ctx context.Context, cl call) (string, error) {
	resp, err := c.send(ctx, cl)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Time returns the server time as "Y-m-d H:i:s".
func (c *Client) Time(ctx context.Context) (string, error) {
	return c.doText(ctx, call{method: http.MethodGet, path: "time", public: true})
}

// TimeISO returns the server time in ISO 8601.
func (c *Client) TimeISO(ctx context.Context) (string, error) {
	return c.doText(ctx, call{method: http.MethodGet, path: "time/iso", public: true})
}

// DisableAccessToken revokes the current access token on the server.
func (c *Client) DisableAccessToken(ctx context.Context) error {
	_, err := c.doJSON(ctx, call{
		method: http.MethodGet,
		path:   "disable_access_token",
		errs:   statusKinds{http.StatusUnauthorized: ErrBadToken},
	}, nil)
	return err
}
