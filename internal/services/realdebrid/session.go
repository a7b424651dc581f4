package realdebrid

import (
	"time"

	"golang.org/x/oauth2"
)

// Session is the credential a Client authenticates with. It is one of
// StaticSession, *RefreshableSession or InvalidSession.
type Session interface {
	// Bearer returns the Authorization header value, empty when the
	// session can no longer authenticate.
	Bearer() string
	isSession()
}

// StaticSession authenticates with a personal API key. It never expires.
type StaticSession struct {
	APIKey string
}

func (s StaticSession) Bearer() string { return "Bearer " + s.APIKey }

func (StaticSession) isSession() {}

// RefreshableSession is an OAuth2 device-flow session. Values are never
// modified once published to a Client; a refresh publishes a new one.
type RefreshableSession struct {
	TokenType    string
	AccessToken  string
	ClientID     string
	ClientSecret string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresIn    time.Duration
}

func (s *RefreshableSession) Bearer() string { return s.TokenType + " " + s.AccessToken }

func (*RefreshableSession) isSession() {}

// ExpiresAt returns the instant the access token stops being valid.
func (s *RefreshableSession) ExpiresAt() time.Time {
	return s.IssuedAt.Add(s.ExpiresIn)
}

// ExpiredAt reports whether more than ExpiresIn has elapsed at now.
// The exact expiry instant still counts as valid.
func (s *RefreshableSession) ExpiredAt(now time.Time) bool {
	return now.Sub(s.IssuedAt) > s.ExpiresIn
}

// Token exposes the session as an oauth2.Token.
func (s *RefreshableSession) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		RefreshToken: s.RefreshToken,
		Expiry:       s.ExpiresAt(),
	}
}

// rotate builds the successor of s from a refreshed token.
func (s *RefreshableSession) rotate(tok *AccessToken, now time.Time) *RefreshableSession {
	next := *s
	next.AccessToken = tok.AccessToken
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	next.RefreshToken = tok.RefreshToken
	next.IssuedAt = now
	next.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	return &next
}

func newRefreshableSession(tok *AccessToken, cred *ClientCredential, now time.Time) *RefreshableSession {
	return &RefreshableSession{
		TokenType:    tok.TokenType,
		AccessToken:  tok.AccessToken,
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     now,
		ExpiresIn:    time.Duration(tok.ExpiresIn) * time.Second,
	}
}

// InvalidSession is what remains after Real-Debrid rejected a refresh.
// The device flow has to be run again.
type InvalidSession struct{}

func (InvalidSession) Bearer() string { return "" }

func (InvalidSession) isSession() {}

// sessionBox gives atomic.Pointer a single concrete type to hold.
type sessionBox struct {
	Session
}
