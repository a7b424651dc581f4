package realdebrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ochronus/godebrid/internal/services/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// deviceGrantType is used for both the initial exchange and refreshes.
const deviceGrantType = "http://oauth.net/grant_type/device/1.0"

// DeviceAuthorization is the answer to a device code request.
type DeviceAuthorization struct {
	DeviceCode            string `json:"device_code"`
	UserCode              string `json:"user_code"`
	Interval              int64  `json:"interval"`
	ExpiresIn             int64  `json:"expires_in"`
	VerificationURL       string `json:"verification_url"`
	DirectVerificationURL string `json:"direct_verification_url"`
}

// ClientCredential is issued once the user approves the device.
type ClientCredential struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// AccessToken is one issued bearer credential.
type AccessToken struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticator runs the OAuth2 device flow.
type Authenticator struct {
	oauthURL   string
	clientID   string
	httpClient *http.Client
	logger     *logrus.Logger
	now        func() time.Time
	sleep      retry.Sleeper
	prompt     func(DeviceAuthorization)
}

// NewAuthenticator creates an Authenticator. It accepts the same options
// as NewClient.
func NewAuthenticator(opts ...Option) *Authenticator {
	o := buildOptions(opts)
	return &Authenticator{
		oauthURL:   o.baseURL + oauthPath,
		clientID:   o.clientID,
		httpClient: o.httpClient,
		logger:     o.logger,
		now:        o.now,
		sleep:      o.sleep,
		prompt:     o.prompt,
	}
}

// Authorize runs the device flow to completion and returns a new session.
// It returns either a complete session or an error, never both.
func (a *Authenticator) Authorize(ctx context.Context) (*RefreshableSession, error) {
	device, err := a.requestDeviceCode(ctx)
	if err != nil {
		return nil, err
	}

	a.prompt(*device)

	cred, err := a.pollCredentials(ctx, device)
	if err != nil {
		return nil, err
	}

	tok, err := exchangeToken(ctx, a.httpClient, a.oauthURL, cred.ClientID, cred.ClientSecret, device.DeviceCode)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: token exchange: %w", ErrAuthFailed, err)
	}

	session := newRefreshableSession(tok, cred, a.now())
	a.logger.WithField("expires_at", session.ExpiresAt().Format(time.RFC3339)).Info("Real-Debrid device authorized")
	return session, nil
}

func (a *Authenticator) requestDeviceCode(ctx context.Context) (*DeviceAuthorization, error) {
	q := url.Values{
		"client_id":       {a.clientID},
		"new_credentials": {"oui"},
	}

	resp, err := a.get(ctx, "device/code", q)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: device code request: %w", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: device code request: %s", ErrAuthFailed, resp.Status)
	}

	var device DeviceAuthorization
	if err := json.NewDecoder(resp.Body).Decode(&device); err != nil {
		return nil, fmt.Errorf("%w: decoding device code: %w", ErrAuthFailed, err)
	}
	return &device, nil
}

// pollCredentials polls until the user approves the device or the device
// code's lifetime is used up. The first poll is immediate.
func (a *Authenticator) pollCredentials(ctx context.Context, device *DeviceAuthorization) (*ClientCredential, error) {
	step := device.Interval
	if step <= 0 {
		step = 1
	}
	interval := time.Duration(step) * time.Second

	q := url.Values{
		"client_id": {a.clientID},
		"code":      {device.DeviceCode},
	}

	for attempts := int64(0); ; attempts++ {
		if attempts*step > device.ExpiresIn {
			return nil, fmt.Errorf("%w: device code expired after %d polls", ErrAuthFailed, attempts)
		}
		if attempts > 0 {
			if err := a.sleep(ctx, interval); err != nil {
				return nil, err
			}
		}

		cred, err := a.checkCredentials(ctx, q, attempts+1)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
	}
}

// checkCredentials makes one poll. It returns nil, nil when the device is
// not approved yet.
func (a *Authenticator) checkCredentials(ctx context.Context, q url.Values, attempt int64) (*ClientCredential, error) {
	resp, err := a.get(ctx, "device/credentials", q)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		a.logger.WithError(err).WithField("attempt", attempt).Warn("Polling Real-Debrid credentials failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		a.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"status":  resp.StatusCode,
		}).Debug("Device not approved yet")
		return nil, nil
	}

	var cred ClientCredential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return nil, fmt.Errorf("%w: decoding credentials: %w", ErrAuthFailed, err)
	}
	return &cred, nil
}

func (a *Authenticator) get(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.oauthURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return a.httpClient.Do(req)
}

// exchangeToken trades code (a device code or a refresh token) for an
// access token. A rejection is reported as *oauth2.RetrieveError.
func exchangeToken(ctx context.Context, client *http.Client, oauthURL, clientID, clientSecret, code string) (*AccessToken, error) {
	form := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code":          {code},
		"grant_type":    {deviceGrantType},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthURL+"token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retrieveErr := &oauth2.RetrieveError{Response: resp, Body: body}
		var eb struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &eb) == nil {
			retrieveErr.ErrorCode = eb.Error
			retrieveErr.ErrorDescription = eb.ErrorDescription
		}
		return nil, retrieveErr
	}

	var tok AccessToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &tok, nil
}

// Refresh exchanges the refresh token for a new access token and publishes
// the rotated session. If Real-Debrid rejects the refresh token the session
// becomes InvalidSession.
func (c *Client) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.adoptStored(ctx)
	return c.refreshLocked(ctx)
}

// RefreshIfExpired refreshes only when the access token has expired. It
// reports whether the session changed.
func (c *Client) RefreshIfExpired(ctx context.Context) (bool, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	expired, err := c.IsExpired()
	if err != nil || !expired {
		return false, err
	}
	if c.adoptStored(ctx) {
		if expired, _ := c.IsExpired(); !expired {
			return true, nil
		}
	}
	if err := c.refreshLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) refreshLocked(ctx context.Context) error {
	box := c.session.Load()
	current, ok := box.Session.(*RefreshableSession)
	if !ok {
		return ErrNotRefreshable
	}

	tok, err := exchangeToken(ctx, c.httpClient, c.oauthURL, current.ClientID, current.ClientSecret, current.RefreshToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// Another process may have spent the token in the meantime.
			if c.adoptStored(ctx) {
				return nil
			}
			if c.session.CompareAndSwap(box, &sessionBox{Session: InvalidSession{}}) {
				c.logger.WithField("status", retrieveErr.Response.StatusCode).Warn("Real-Debrid rejected the refresh token, session invalidated")
			}
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next := current.rotate(tok, c.now())
	if !c.session.CompareAndSwap(box, &sessionBox{Session: next}) {
		c.logger.Warn("Session replaced during the token refresh, dropping the rotated tokens")
		return nil
	}
	c.logger.WithField("expires_at", next.ExpiresAt().Format(time.RFC3339)).Info("Real-Debrid session refreshed")

	if c.onRefresh != nil {
		c.onRefresh(next)
	}
	return nil
}

// adoptStored swaps in the loader's session when it is newer than the
// current OAuth2 session. It reports whether the session changed.
func (c *Client) adoptStored(ctx context.Context) bool {
	if c.loader == nil {
		return false
	}
	box := c.session.Load()
	current, ok := box.Session.(*RefreshableSession)
	if !ok {
		return false
	}

	stored, err := c.loader(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to load the stored Real-Debrid session")
		return false
	}
	if stored == nil || stored.RefreshToken == current.RefreshToken || !stored.IssuedAt.After(current.IssuedAt) {
		return false
	}
	if !c.session.CompareAndSwap(box, &sessionBox{Session: stored}) {
		return false
	}
	c.logger.WithField("expires_at", stored.ExpiresAt().Format(time.RFC3339)).Info("Adopted a Real-Debrid session rotated elsewhere")
	return true
}

func isSuccess(code int) bool {
	return code >= 200 && code <= 299
}
