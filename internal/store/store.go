// Package store persists rotated Real-Debrid OAuth2 sessions so they
// survive restarts.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ochronus/godebrid/internal/config"
	"github.com/ochronus/godebrid/internal/services/realdebrid"
	"github.com/redis/go-redis/v9"
)

// SessionStore loads and saves refreshable sessions.
type SessionStore interface {
	// Load returns the stored session, or nil when nothing is stored.
	Load(ctx context.Context) (*realdebrid.RefreshableSession, error)
	Save(ctx context.Context, s *realdebrid.RefreshableSession) error
}

// SessionFromConfig builds the session the credentials in rd describe.
// An API key wins over an OAuth2 credential set.
func SessionFromConfig(rd config.RealDebridConfig) realdebrid.Session {
	if rd.APIKey != "" {
		return realdebrid.StaticSession{APIKey: rd.APIKey}
	}
	if !rd.HasOAuth() {
		return realdebrid.InvalidSession{}
	}
	tokenType := rd.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &realdebrid.RefreshableSession{
		TokenType:    tokenType,
		AccessToken:  rd.AccessToken,
		ClientID:     rd.ClientID,
		ClientSecret: rd.ClientSecret,
		RefreshToken: rd.RefreshToken,
		IssuedAt:     rd.IssuedAt,
		ExpiresIn:    time.Duration(rd.ExpiresIn) * time.Second,
	}
}

// ApplySession copies s into the OAuth2 fields of rd and clears the API key.
func ApplySession(rd *config.RealDebridConfig, s *realdebrid.RefreshableSession) {
	rd.APIKey = ""
	rd.ClientID = s.ClientID
	rd.ClientSecret = s.ClientSecret
	rd.RefreshToken = s.RefreshToken
	rd.AccessToken = s.AccessToken
	rd.TokenType = s.TokenType
	rd.IssuedAt = s.IssuedAt.UTC()
	rd.ExpiresIn = int64(s.ExpiresIn / time.Second)
}

// ConfigStore writes sessions back into the TOML config file.
type ConfigStore struct {
	path string

	mu  sync.Mutex
	cfg *config.Config
}

// NewConfigStore returns a store that saves into cfg and persists it at path.
func NewConfigStore(path string, cfg *config.Config) *ConfigStore {
	return &ConfigStore{path: path, cfg: cfg}
}

func (s *ConfigStore) Load(ctx context.Context) (*realdebrid.RefreshableSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rs, ok := SessionFromConfig(s.cfg.RealDebrid).(*realdebrid.RefreshableSession); ok {
		return rs, nil
	}
	return nil, nil
}

func (s *ConfigStore) Save(ctx context.Context, rs *realdebrid.RefreshableSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ApplySession(&s.cfg.RealDebrid, rs)
	// The in-memory config carries environment overrides; only the
	// session fields go back to the file.
	err := config.UpdateFile(s.path, func(c *config.Config) {
		ApplySession(&c.RealDebrid, rs)
	})
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// record is the JSON form of a session kept in Redis.
type record struct {
	TokenType    string    `json:"token_type"`
	AccessToken  string    `json:"access_token"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresIn    int64     `json:"expires_in"`
}

// RedisStore shares one session between several processes through Redis.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to the Redis server at rawURL.
func NewRedisStore(rawURL, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), key), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = config.DefaultSessionKey
	}
	return &RedisStore{client: client, key: key}
}

// CheckHealth verifies Redis connectivity.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*realdebrid.RefreshableSession, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &realdebrid.RefreshableSession{
		TokenType:    r.TokenType,
		AccessToken:  r.AccessToken,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		RefreshToken: r.RefreshToken,
		IssuedAt:     r.IssuedAt,
		ExpiresIn:    time.Duration(r.ExpiresIn) * time.Second,
	}, nil
}

// Save stores rs without expiry; the refresh token outlives the access token.
func (s *RedisStore) Save(ctx context.Context, rs *realdebrid.RefreshableSession) error {
	data, err := json.Marshal(record{
		TokenType:    rs.TokenType,
		AccessToken:  rs.AccessToken,
		ClientID:     rs.ClientID,
		ClientSecret: rs.ClientSecret,
		RefreshToken: rs.RefreshToken,
		IssuedAt:     rs.IssuedAt.UTC(),
		ExpiresIn:    int64(rs.ExpiresIn / time.Second),
	})
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
