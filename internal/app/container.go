package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ochronus/godebrid/internal/config"
	"github.com/ochronus/godebrid/internal/metrics"
	"github.com/ochronus/godebrid/internal/services/arr"
	"github.com/ochronus/godebrid/internal/services/realdebrid"
	"github.com/ochronus/godebrid/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	apiTimeout   = 30 * time.Second
	storeTimeout = 5 * time.Second
)

// Container centralizes the core dependencies used across the application.
// It is intentionally small and uses interfaces so callers (and tests) can
// substitute implementations easily.
type Container struct {
	Config         *config.Config
	ConfigPath     string
	Logger         *logrus.Logger
	Registry       *prometheus.Registry
	Metrics        metrics.Recorder
	Store          store.SessionStore
	Client         realdebrid.ClientAPI
	ArrClients     []ArrServiceClient
	ValidateClient bool
}

// ArrServiceClient couples a service name with its Arr client interface.
type ArrServiceClient struct {
	Name   string
	Client arr.ClientAPI
}

// Option allows customizing the container during construction.
type Option func(*Container) error

// WithLogger overrides the default logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Container) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithConfigPath sets the file rotated sessions are written back to when
// no Redis session store is configured.
func WithConfigPath(path string) Option {
	return func(c *Container) error {
		c.ConfigPath = path
		return nil
	}
}

// WithClient overrides the default Real-Debrid client.
func WithClient(client realdebrid.ClientAPI) Option {
	return func(c *Container) error {
		if client == nil {
			return fmt.Errorf("real-debrid client cannot be nil")
		}
		c.Client = client
		return nil
	}
}

// WithStore overrides the session store.
func WithStore(s store.SessionStore) Option {
	return func(c *Container) error {
		if s == nil {
			return fmt.Errorf("session store cannot be nil")
		}
		c.Store = s
		return nil
	}
}

// WithMetrics overrides the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(c *Container) error {
		if m == nil {
			return fmt.Errorf("metrics recorder cannot be nil")
		}
		c.Metrics = m
		return nil
	}
}

// WithClientValidation enables or disables credential validation (default: enabled).
func WithClientValidation(validate bool) Option {
	return func(c *Container) error {
		c.ValidateClient = validate
		return nil
	}
}

// WithArrClients overrides the default Arr clients.
func WithArrClients(clients []ArrServiceClient) Option {
	return func(c *Container) error {
		c.ArrClients = clients
		return nil
	}
}

// NewContainer builds a Container with sensible defaults derived from cfg.
// Options can be supplied to override specific dependencies (useful in tests).
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	container := &Container{
		Config:         cfg,
		Logger:         buildDefaultLogger(cfg.Loglevel),
		Registry:       prometheus.NewRegistry(),
		ValidateClient: true,
	}

	// Apply options early so tests can inject mocks before defaults are created.
	for _, opt := range opts {
		if err := opt(container); err != nil {
			return nil, err
		}
	}

	if container.Metrics == nil {
		container.Metrics = metrics.New(container.Registry)
	}

	if container.Store == nil {
		s, err := buildStore(cfg, container.ConfigPath)
		if err != nil {
			return nil, err
		}
		container.Store = s
	}

	if container.Client == nil {
		session, err := container.loadSession(ctx)
		if err != nil {
			return nil, err
		}
		container.Client = realdebrid.NewClient(session,
			realdebrid.WithLogger(container.Logger),
			realdebrid.WithHTTPClient(&http.Client{
				Timeout:   apiTimeout,
				Transport: container.Metrics.InstrumentRoundTripper(nil),
			}),
			realdebrid.WithOnRefresh(container.saveSession),
			realdebrid.WithSessionLoader(container.storedSession),
		)
	}

	if container.ArrClients == nil {
		container.ArrClients = buildArrClients(cfg)
	}

	if container.ValidateClient {
		if _, err := container.Client.RefreshIfExpired(ctx); err != nil && !errors.Is(err, realdebrid.ErrNotOAuth2) {
			return nil, fmt.Errorf("failed to refresh Real-Debrid session: %w", err)
		}
		if _, err := container.Client.User(ctx); err != nil {
			return nil, fmt.Errorf("failed to verify Real-Debrid credentials: %w", err)
		}
	}

	return container, nil
}

// loadSession prefers a stored session over the one in the config file,
// since the store holds the most recently rotated tokens.
func (c *Container) loadSession(ctx context.Context) (realdebrid.Session, error) {
	session := store.SessionFromConfig(c.Config.RealDebrid)
	if _, static := session.(realdebrid.StaticSession); static || c.Store == nil {
		return session, nil
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	stored, err := c.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load Real-Debrid session: %w", err)
	}
	if stored != nil {
		return stored, nil
	}
	return session, nil
}

// storedSession reads the store before a refresh, so a token rotated by
// another instance sharing the store is picked up.
func (c *Container) storedSession(ctx context.Context) (*realdebrid.RefreshableSession, error) {
	if c.Store == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return c.Store.Load(ctx)
}

func (c *Container) saveSession(s *realdebrid.RefreshableSession) {
	if c.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.Store.Save(ctx, s); err != nil {
		c.Logger.Errorf("Failed to persist refreshed Real-Debrid session: %v", err)
	}
}

// Close releases the session store's connections.
func (c *Container) Close() error {
	if closer, ok := c.Store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func buildStore(cfg *config.Config, configPath string) (store.SessionStore, error) {
	if cfg.SessionStore.RedisURL != "" {
		s, err := store.NewRedisStore(cfg.SessionStore.RedisURL, cfg.SessionStore.Key)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if configPath != "" {
		return store.NewConfigStore(configPath, cfg), nil
	}
	return nil, nil
}

func buildDefaultLogger(levelStr string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func buildArrClients(cfg *config.Config) []ArrServiceClient {
	arrConfigs := cfg.GetArrConfigs()
	arrClients := make([]ArrServiceClient, 0, len(arrConfigs))
	for _, svc := range arrConfigs {
		arrClients = append(arrClients, ArrServiceClient{
			Name:   svc.Name,
			Client: arr.NewClient(svc.URL, svc.APIKey),
		})
	}
	return arrClients
}
