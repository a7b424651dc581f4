package arr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ochronus/godebrid/internal/services/retry"
	"github.com/sirupsen/logrus"
)

const (
	timeout    = 30 * time.Second
	maxRetries = 3
	pageSize   = 1000

	eventFolderImported = "downloadFolderImported"
)

// Client represents an Arr (Sonarr/Radarr/Whisparr) API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	sleeper    retry.Sleeper
}

var _ ClientAPI = (*Client)(nil)

// NewClient creates a new Arr client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		sleeper: retry.SleepContext,
	}
}

// HTTPError is returned for non-200 responses.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("url: %s, status: %s", e.URL, e.Status)
}

// RetryDelay returns the Retry-After advice of the response.
func (e *HTTPError) RetryDelay() time.Duration {
	return e.RetryAfter
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// HistoryResponse represents the API response for history
type HistoryResponse struct {
	TotalRecords int             `json:"totalRecords"`
	Records      []HistoryRecord `json:"records"`
}

// HistoryRecord represents a single history record
type HistoryRecord struct {
	EventType string            `json:"eventType"`
	Data      map[string]string `json:"data"`
}

func (c *Client) historyURL(page int) string {
	q := url.Values{}
	q.Set("includeSeries", "false")
	q.Set("includeEpisode", "false")
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	return c.baseURL + "/api/v3/history?" + q.Encode()
}

// fetchHistory loads one history page, retrying 429 and 5xx responses.
func (c *Client) fetchHistory(ctx context.Context, page int) (*HistoryResponse, error) {
	u := c.historyURL(page)
	var history HistoryResponse

	cfg := retry.Config{
		MaxRetries: maxRetries,
		Sleep:      c.sleeper,
		ShouldRetry: func(err error) bool {
			var httpErr *HTTPError
			return errors.As(err, &httpErr) && httpErr.retryable()
		},
	}

	err := retry.Do(ctx, cfg, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Api-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &HTTPError{
				URL:        u,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				RetryAfter: retry.RetryAfterDelay(resp.Header.Get("Retry-After"), 0),
			}
		}

		history = HistoryResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
			return fmt.Errorf("url: %s, error decoding response: %w", u, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// CheckImported checks if a file has been imported by checking the history
func (c *Client) CheckImported(ctx context.Context, targetPath string) (bool, error) {
	inspected := 0

	for page := 0; ; page++ {
		history, err := c.fetchHistory(ctx, page)
		if err != nil {
			return false, err
		}

		for _, record := range history.Records {
			if record.EventType == eventFolderImported && record.Data["droppedPath"] == targetPath {
				return true, nil
			}
			inspected++
		}

		if len(history.Records) == 0 || history.TotalRecords <= inspected {
			return false, nil
		}
	}
}

// Service is one configured arr instance.
type Service struct {
	Name   string
	URL    string
	APIKey string
}

// CheckImportedMultiService checks if a file has been imported by any of the configured services
func CheckImportedMultiService(ctx context.Context, targetPath string, services []Service, logger *logrus.Logger) (bool, string, error) {
	for _, svc := range services {
		client := NewClient(svc.URL, svc.APIKey)
		imported, err := client.CheckImported(ctx, targetPath)
		if err != nil {
			if ctx.Err() != nil {
				return false, "", ctx.Err()
			}
			if logger != nil {
				logger.Warnf("%s: checking import of %s: %v", svc.Name, targetPath, err)
			}
			continue
		}
		if imported {
			return true, svc.Name, nil
		}
	}
	return false, "", nil
}
