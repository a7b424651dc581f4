package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ochronus/godebrid/internal/app"
	"github.com/ochronus/godebrid/internal/config"
	"github.com/ochronus/godebrid/internal/metrics"
	"github.com/ochronus/godebrid/internal/services/realdebrid"
	"github.com/ochronus/godebrid/internal/services/transmission"
	"github.com/sirupsen/logrus"
)

const (
	sessionID = "useless-session-id"

	listPageSize = 100
	// maxTorrentFile bounds .torrent files fetched from a URL.
	maxTorrentFile = 10 << 20
)

// Handler contains the HTTP handlers for the Transmission RPC protocol.
type Handler struct {
	config     *config.Config
	client     realdebrid.ClientAPI
	metrics    metrics.Recorder
	httpClient *http.Client
	logger     *logrus.Logger
	now        func() time.Time
}

// NewHandler creates a new HTTP handler.
func NewHandler(container *app.Container) *Handler {
	var recorder metrics.Recorder = metrics.NoopMetrics{}
	if container.Metrics != nil {
		recorder = container.Metrics
	}
	return &Handler{
		config:     container.Config,
		client:     container.Client,
		metrics:    recorder,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     container.Logger,
		now:        time.Now,
	}
}

// RPCPost handles POST requests to the Transmission RPC endpoint.
func (h *Handler) RPCPost(c *gin.Context) {
	if !h.validateUser(c) {
		c.Header("X-Transmission-Session-Id", sessionID)
		c.Status(http.StatusConflict)
		return
	}

	var req transmission.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.Method) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "method is required"})
		return
	}

	ctx := c.Request.Context()
	var (
		arguments any
		err       error
	)

	switch req.Method {
	case "session-get":
		arguments = transmission.DefaultConfig(h.config.DownloadDirectory)

	case "torrent-get":
		arguments, err = h.handleTorrentGet(ctx)
		if err != nil {
			h.logger.Errorf("torrent-get error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

	case "torrent-set", "queue-move-top":
		// Nothing to do here

	case "torrent-remove":
		if err = h.handleTorrentRemove(ctx, &req); err != nil {
			h.logger.Errorf("torrent-remove error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

	case "torrent-add":
		if err = h.handleTorrentAdd(ctx, &req); err != nil {
			h.logger.Errorf("torrent-add error: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

	default:
		h.logger.Warnf("Unknown method: %s", req.Method)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown method"})
		return
	}

	c.JSON(http.StatusOK, transmission.Response{
		Result:    "success",
		Arguments: arguments,
	})
}

// RPCGet handles GET requests to the Transmission RPC endpoint (for authentication).
func (h *Handler) RPCGet(c *gin.Context) {
	if !h.validateUser(c) {
		c.Status(http.StatusForbidden)
		return
	}

	c.Header("X-Transmission-Session-Id", sessionID)
	c.Status(http.StatusConflict)
}

// validateUser validates the Basic Auth credentials.
func (h *Handler) validateUser(c *gin.Context) bool {
	username, password, ok := c.Request.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.config.Password)) == 1
	return userOK && passOK
}

// refreshSession renews an expired OAuth2 session; API key sessions pass through.
func (h *Handler) refreshSession(ctx context.Context) error {
	refreshed, err := h.client.RefreshIfExpired(ctx)
	if errors.Is(err, realdebrid.ErrNotOAuth2) {
		return nil
	}
	if err != nil {
		h.metrics.RecordSessionRefresh(false)
		return err
	}
	if refreshed {
		h.metrics.RecordSessionRefresh(true)
	}
	return nil
}

// listTorrents loads every Real-Debrid torrent. An empty list is answered
// with 204, which is not an error here.
func (h *Handler) listTorrents(ctx context.Context) ([]realdebrid.Torrent, error) {
	if err := h.refreshSession(ctx); err != nil {
		return nil, err
	}

	var all []realdebrid.Torrent
	for page := 1; ; page++ {
		result, err := h.client.Torrents(ctx, realdebrid.Page{Page: page, Limit: listPageSize}, "")
		if errors.Is(err, realdebrid.ErrNoContent) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, result.Items...)
		if len(result.Items) < listPageSize || len(all) >= result.TotalCount {
			return all, nil
		}
	}
}

// handleTorrentGet handles the torrent-get RPC method.
func (h *Handler) handleTorrentGet(ctx context.Context) (*transmission.TorrentGetResponse, error) {
	list, err := h.listTorrents(ctx)
	if err != nil {
		return nil, err
	}

	now := h.now()
	torrents := make([]*transmission.Torrent, 0, len(list))
	for i := range list {
		torrents = append(torrents, transmission.TorrentFromRealDebrid(&list[i], h.config.DownloadDirectory, now))
	}

	return &transmission.TorrentGetResponse{
		Torrents: torrents,
	}, nil
}

// handleTorrentAdd handles the torrent-add RPC method. The torrent is
// started right away by selecting all of its files.
func (h *Handler) handleTorrentAdd(ctx context.Context, req *transmission.Request) error {
	var args transmission.TorrentAddArguments
	if err := bindArguments(req, &args); err != nil {
		return err
	}
	if args.Metainfo == "" && args.Filename == "" {
		return nil
	}

	if err := h.refreshSession(ctx); err != nil {
		return err
	}

	added, name, err := h.addTorrent(ctx, args)
	if err != nil {
		h.metrics.RecordTorrentAdded(false)
		return err
	}

	if err := h.client.SelectFiles(ctx, added, realdebrid.AllFiles); err != nil && !errors.Is(err, realdebrid.ErrActionAlreadyDone) {
		// The manager selects files for waiting torrents on its next poll.
		h.logger.Warnf("[%s: %s]: failed to select files: %v", added.ID, name, err)
	}

	h.metrics.RecordTorrentAdded(true)
	h.logger.Infof("[%s: %s]: torrent added", added.ID, name)
	return nil
}

func (h *Handler) addTorrent(ctx context.Context, args transmission.TorrentAddArguments) (*realdebrid.TorrentAdd, string, error) {
	if args.Metainfo != "" {
		data, err := base64.StdEncoding.DecodeString(args.Metainfo)
		if err != nil {
			return nil, "", err
		}
		added, err := h.client.AddTorrent(ctx, data, "")
		return added, "torrent file", err
	}

	if strings.HasPrefix(args.Filename, "magnet:") {
		added, err := h.client.AddMagnet(ctx, args.Filename, "")
		return added, magnetName(args.Filename), err
	}

	u, err := url.Parse(args.Filename)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", fmt.Errorf("unsupported torrent location %q", args.Filename)
	}
	data, err := h.fetchTorrentFile(ctx, u.String())
	if err != nil {
		return nil, "", err
	}
	added, err := h.client.AddTorrent(ctx, data, "")
	return added, u.Path, err
}

// fetchTorrentFile downloads a .torrent file an indexer links to.
func (h *Handler) fetchTorrentFile(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching torrent file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching torrent file: HTTP error: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentFile+1))
	if err != nil {
		return nil, fmt.Errorf("reading torrent file: %w", err)
	}
	if len(data) > maxTorrentFile {
		return nil, fmt.Errorf("torrent file exceeds %d bytes", maxTorrentFile)
	}
	return data, nil
}

func magnetName(magnet string) string {
	parsed, err := url.Parse(magnet)
	if err != nil {
		return "unknown"
	}
	if dn := parsed.Query().Get("dn"); dn != "" {
		return dn
	}
	return "unknown"
}

// handleTorrentRemove handles the torrent-remove RPC method. Torrents are
// matched by info hash; Real-Debrid drops the hosted files with the torrent.
func (h *Handler) handleTorrentRemove(ctx context.Context, req *transmission.Request) error {
	var args transmission.TorrentRemoveArguments
	if err := bindArguments(req, &args); err != nil {
		return err
	}
	if len(args.IDs) == 0 {
		return nil
	}

	torrents, err := h.listTorrents(ctx)
	if err != nil {
		return err
	}

	hashSet := make(map[string]bool, len(args.IDs))
	for _, id := range args.IDs {
		hashSet[strings.ToLower(id)] = true
	}

	for i := range torrents {
		t := &torrents[i]
		if !hashSet[strings.ToLower(t.Hash)] {
			continue
		}
		if err := h.client.DeleteTorrent(ctx, t); err != nil && !errors.Is(err, realdebrid.ErrUnknownResource) {
			h.logger.Errorf("Failed to remove torrent %s: %v", t.ID, err)
			continue
		}
		h.metrics.RecordTorrentDeleted()
		h.logger.Infof("[%s: %s]: torrent removed", t.ID, t.Filename)
	}

	return nil
}

func bindArguments[T any](req *transmission.Request, dest *T) error {
	if len(req.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(req.Arguments, dest)
}
