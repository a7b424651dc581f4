package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ochronus/godebrid/internal/config"
	"github.com/ochronus/godebrid/internal/metrics"
	"github.com/ochronus/godebrid/internal/services/arr"
	"github.com/ochronus/godebrid/internal/services/realdebrid"
	"github.com/ochronus/godebrid/internal/services/retry"
	"github.com/sirupsen/logrus"
)

const (
	listPageSize   = 100
	statusLogEvery = 60 * time.Second
)

// ArrServiceClient couples a service name with its Arr client.
type ArrServiceClient struct {
	Name   string
	Client arr.ClientAPI
}

// Option customizes a Manager.
type Option func(*Manager)

// WithMetrics records downloads and imports on r.
func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithHTTPClient overrides the client files are fetched with.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithSleeper overrides how retries wait.
func WithSleeper(s retry.Sleeper) Option {
	return func(m *Manager) { m.sleep = s }
}

// Manager handles the download orchestration
type Manager struct {
	config       *config.Config
	client       realdebrid.ClientAPI
	arrClients   []ArrServiceClient
	metrics      metrics.Recorder
	httpClient   *http.Client
	sleep        retry.Sleeper
	transferChan chan TransferMessage
	downloadChan chan DownloadTargetMessage
	seen         map[string]bool
	seenMu       sync.RWMutex
	logger       *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new download manager
func NewManager(cfg *config.Config, logger *logrus.Logger, client realdebrid.ClientAPI, arrClients []ArrServiceClient, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:       cfg,
		client:       client,
		arrClients:   arrClients,
		metrics:      metrics.NoopMetrics{},
		httpClient:   &http.Client{},
		sleep:        retry.SleepContext,
		transferChan: make(chan TransferMessage, 100),
		downloadChan: make(chan DownloadTargetMessage, 100),
		seen:         make(map[string]bool),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the download manager's operations with a background context.
func (m *Manager) Start() error {
	return m.StartWithContext(context.Background())
}

// StartWithContext begins the download manager's operations using the provided parent context.
func (m *Manager) StartWithContext(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	for i := 0; i < m.config.OrchestrationWorkers; i++ {
		m.wg.Add(1)
		go m.orchestrationWorker(i)
	}

	for i := 0; i < m.config.DownloadWorkers; i++ {
		m.wg.Add(1)
		go m.downloadWorker(i)
	}

	m.wg.Add(1)
	go m.produceTransfers()

	return nil
}

// Stop signals all workers to exit and waits for them to finish.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) retryConfig() retry.Config {
	return retry.Config{
		Sleep: m.sleep,
		ShouldRetry: func(err error) bool {
			return retry.IsRetryable(err) || realdebrid.IsTransient(err)
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			m.logger.Debugf("attempt %d failed, retrying in %s: %v", attempt+1, delay, err)
		},
	}
}

// orchestrationWorker handles transfer state transitions
func (m *Manager) orchestrationWorker(id int) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case msg := <-m.transferChan:
			switch msg.Type {
			case MessageQueuedForDownload:
				m.handleQueuedForDownload(msg.Transfer)
			case MessageDownloaded:
				m.wg.Add(1)
				go m.watchForImport(msg.Transfer)
			case MessageImported:
				m.removeTorrent(msg.Transfer)
			}
		}
	}
}

// downloadWorker handles file downloads
func (m *Manager) downloadWorker(id int) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case msg := <-m.downloadChan:
			status := m.downloadTarget(&msg.Target)
			select {
			case <-m.ctx.Done():
				return
			case msg.DoneChan <- status:
			}
		}
	}
}

// handleQueuedForDownload processes a transfer that's ready for download
func (m *Manager) handleQueuedForDownload(transfer *Transfer) {
	m.logger.Infof("%s: download started", transfer)

	targets, err := m.getDownloadTargets(m.ctx, transfer)
	if err != nil {
		m.logger.Errorf("%s: failed to get download targets: %v", transfer, err)
		m.unmarkSeen(transfer.TorrentID)
		return
	}

	doneChans := make([]chan DownloadDoneStatus, len(targets))
	for i, target := range targets {
		doneChans[i] = make(chan DownloadDoneStatus, 1)
		select {
		case <-m.ctx.Done():
			return
		case m.downloadChan <- DownloadTargetMessage{
			Target:   target,
			DoneChan: doneChans[i],
		}:
		}
	}

	allSuccess := true
	for _, doneChan := range doneChans {
		select {
		case <-m.ctx.Done():
			return
		case status := <-doneChan:
			if status != DownloadStatusSuccess {
				allSuccess = false
			}
		}
	}

	if !allSuccess {
		m.logger.Warnf("%s: not all targets downloaded", transfer)
		m.unmarkSeen(transfer.TorrentID)
		return
	}

	m.logger.Infof("%s: download done", transfer)
	transfer.SetTargets(targets)
	select {
	case <-m.ctx.Done():
	case m.transferChan <- TransferMessage{Type: MessageDownloaded, Transfer: transfer}:
	}
}

// downloadTarget downloads a single target (file or directory)
func (m *Manager) downloadTarget(target *DownloadTarget) DownloadDoneStatus {
	switch target.TargetType {
	case TargetTypeDirectory:
		if _, err := os.Stat(target.To); os.IsNotExist(err) {
			if err := os.MkdirAll(target.To, 0755); err != nil {
				m.logger.Errorf("%s: failed to create directory: %v", target, err)
				return DownloadStatusFailed
			}
			m.chown(target, target.To)
			m.logger.Infof("%s: directory created", target)
		}
		return DownloadStatusSuccess

	case TargetTypeFile:
		if _, err := os.Stat(target.To); err == nil {
			m.logger.Infof("%s: already exists", target)
			return DownloadStatusSuccess
		}

		m.logger.Infof("%s: download started", target)
		var written int64
		err := retry.Do(m.ctx, m.retryConfig(), func(attempt int) error {
			if attempt > 0 {
				m.logger.Warnf("%s: retrying download (attempt %d)", target, attempt+1)
			}
			n, err := m.fetchFile(target)
			written = n
			return err
		})
		if err != nil {
			m.logger.Errorf("%s: download failed: %v", target, err)
			return DownloadStatusFailed
		}
		m.metrics.RecordFileDownloaded(written)
		m.logger.Infof("%s: download succeeded", target)
		return DownloadStatusSuccess
	}

	return DownloadStatusFailed
}

// fetchFile downloads a file from its unrestricted link
func (m *Manager) fetchFile(target *DownloadTarget) (int64, error) {
	if target.From == "" {
		return 0, fmt.Errorf("no URL found for target")
	}

	if err := os.MkdirAll(filepath.Dir(target.To), 0755); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(m.ctx, http.MethodGet, target.From, nil)
	if err != nil {
		return 0, err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, &retry.RetryableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP error: %s", resp.Status)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return 0, &retry.RetryableError{Err: err}
		}
		return 0, err
	}

	tmpPath := target.To + ".downloading"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(tmpFile, resp.Body)
	if closeErr := tmpFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, &retry.RetryableError{Err: err}
	}

	m.chown(target, tmpPath)
	if err := os.Rename(tmpPath, target.To); err != nil {
		return 0, err
	}
	return written, nil
}

// chown hands p to the configured uid when running as root.
func (m *Manager) chown(target *DownloadTarget, p string) {
	if os.Getuid() != 0 {
		return
	}
	if err := os.Chown(p, m.config.UID, -1); err != nil {
		m.logger.Warnf("%s: failed to change ownership: %v", target, err)
	}
}

// unrestrict turns a Real-Debrid hoster link into a direct download link.
func (m *Manager) unrestrict(ctx context.Context, link string) (*realdebrid.Unrestrict, error) {
	var result *realdebrid.Unrestrict
	err := retry.Do(ctx, m.retryConfig(), func(int) error {
		u, err := m.client.UnrestrictLink(ctx, link, "", false)
		result = u
		return err
	})
	return result, err
}

// getDownloadTargets builds the list of download targets for a transfer.
// A single root-level file is downloaded as is; anything else goes into a
// directory named after the torrent.
func (m *Manager) getDownloadTargets(ctx context.Context, transfer *Transfer) ([]DownloadTarget, error) {
	m.logger.Infof("%s: generating targets", transfer)

	if len(transfer.Links) == 0 {
		return nil, fmt.Errorf("no links for torrent %s", transfer.TorrentID)
	}

	base := m.config.DownloadDirectory
	hash := transfer.GetHash()

	if transfer.IsSingleFile() && len(transfer.Links) == 1 {
		u, err := m.unrestrict(ctx, transfer.Links[0])
		if err != nil {
			return nil, err
		}
		to, err := safeJoin(base, path.Base(transfer.Files[0].Path))
		if err != nil {
			return nil, err
		}
		return []DownloadTarget{{
			From:         u.Download,
			To:           to,
			Size:         u.Filesize,
			TargetType:   TargetTypeFile,
			TopLevel:     true,
			TransferHash: hash,
		}}, nil
	}

	root, err := safeJoin(base, transfer.Name)
	if err != nil {
		return nil, err
	}
	targets := []DownloadTarget{{
		To:           root,
		TargetType:   TargetTypeDirectory,
		TopLevel:     true,
		TransferHash: hash,
	}}

	// Real-Debrid returns one link per selected file, unless it packed the
	// files into archives.
	perFile := len(transfer.Links) == len(transfer.Files)

	for i, link := range transfer.Links {
		if perFile && ShouldSkipPath(transfer.Files[i].Path, m.config.SkipDirectories) {
			m.logger.Debugf("%s: skipping %s", transfer, transfer.Files[i].Path)
			continue
		}

		u, err := m.unrestrict(ctx, link)
		if err != nil {
			return nil, err
		}

		rel := u.Filename
		if perFile {
			rel = transfer.Files[i].Path
		}
		to, err := safeJoin(root, rel)
		if err != nil {
			return nil, err
		}

		targets = append(targets, DownloadTarget{
			From:         u.Download,
			To:           to,
			Size:         u.Filesize,
			TargetType:   TargetTypeFile,
			TransferHash: hash,
		})
	}

	return targets, nil
}

// safeJoin joins a torrent-relative path below dir, rejecting paths that
// would escape it.
func safeJoin(dir, rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash("/" + strings.TrimLeft(rel, "/")))
	if cleaned == string(filepath.Separator) {
		return "", fmt.Errorf("invalid path %q", rel)
	}
	return filepath.Join(dir, cleaned), nil
}

// watchForImport watches for a transfer to be imported by arr services
func (m *Manager) watchForImport(transfer *Transfer) {
	defer m.wg.Done()
	m.logger.Infof("%s: watching imports", transfer)

	ticker := time.NewTicker(m.pollingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.isImported(m.ctx, transfer) {
				continue
			}
			m.logger.Infof("%s: imported", transfer)
			m.metrics.RecordTorrentImported()
			m.removeLocal(transfer)

			select {
			case <-m.ctx.Done():
			case m.transferChan <- TransferMessage{Type: MessageImported, Transfer: transfer}:
			}
			return
		}
	}
}

// removeLocal deletes the downloaded files of an imported transfer.
func (m *Manager) removeLocal(transfer *Transfer) {
	topLevel := transfer.GetTopLevel()
	if topLevel == nil {
		return
	}
	if _, err := os.Stat(topLevel.To); err != nil {
		return
	}
	if err := os.RemoveAll(topLevel.To); err != nil {
		m.logger.Warnf("%s: failed to delete: %v", topLevel, err)
		return
	}
	m.logger.Infof("%s: deleted", topLevel)
}

// isImported checks if all file targets have been imported by arr services
func (m *Manager) isImported(ctx context.Context, transfer *Transfer) bool {
	fileTargets := transfer.GetFileTargets()
	if len(fileTargets) == 0 || len(m.arrClients) == 0 {
		return false
	}

	for _, target := range fileTargets {
		imported := false
		for _, svc := range m.arrClients {
			ok, err := svc.Client.CheckImported(ctx, target.To)
			if err != nil {
				m.logger.Errorf("Error checking import from %s: %v", svc.Name, err)
				continue
			}
			if ok {
				m.logger.Infof("%s: found imported by %s", &target, svc.Name)
				imported = true
				break
			}
		}
		if !imported {
			return false
		}
	}

	return true
}

// removeTorrent deletes an imported torrent from Real-Debrid.
func (m *Manager) removeTorrent(transfer *Transfer) {
	err := retry.Do(m.ctx, m.retryConfig(), func(int) error {
		return m.client.DeleteTorrent(m.ctx, transfer)
	})
	switch {
	case err == nil:
		m.metrics.RecordTorrentDeleted()
		m.logger.Infof("%s: removed from Real-Debrid", transfer)
	case errors.Is(err, realdebrid.ErrUnknownResource):
		m.logger.Infof("%s: already removed from Real-Debrid", transfer)
	default:
		m.logger.Warnf("%s: failed to remove torrent: %v", transfer, err)
	}
}

// refreshSession renews an expired OAuth2 session before talking to the API.
func (m *Manager) refreshSession(ctx context.Context) error {
	refreshed, err := m.client.RefreshIfExpired(ctx)
	if errors.Is(err, realdebrid.ErrNotOAuth2) {
		return nil
	}
	if err != nil {
		m.metrics.RecordSessionRefresh(false)
		return err
	}
	if refreshed {
		m.metrics.RecordSessionRefresh(true)
	}
	return nil
}

// listTorrents loads every torrent, page by page.
func (m *Manager) listTorrents(ctx context.Context) ([]realdebrid.Torrent, error) {
	var all []realdebrid.Torrent
	for page := 1; ; page++ {
		var result *realdebrid.Torrents
		err := retry.Do(ctx, m.retryConfig(), func(int) error {
			var err error
			result, err = m.client.Torrents(ctx, realdebrid.Page{Page: page, Limit: listPageSize}, "")
			return err
		})
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

// torrentInfo loads a torrent with its files.
func (m *Manager) torrentInfo(ctx context.Context, id string) (*realdebrid.Torrent, error) {
	var torrent *realdebrid.Torrent
	err := retry.Do(ctx, m.retryConfig(), func(int) error {
		var err error
		torrent, err = m.client.TorrentInfo(ctx, realdebrid.ID(id))
		return err
	})
	return torrent, err
}

// selectAllFiles starts a torrent that is waiting for a file selection.
func (m *Manager) selectAllFiles(ctx context.Context, t *realdebrid.Torrent) {
	err := m.client.SelectFiles(ctx, t, realdebrid.AllFiles)
	if err != nil && !errors.Is(err, realdebrid.ErrActionAlreadyDone) {
		m.logger.Warnf("[%s: %s]: failed to select files: %v", shortHash(t.Hash), t.Filename, err)
		return
	}
	m.logger.Infof("[%s: %s]: all files selected", shortHash(t.Hash), t.Filename)
}

// poll runs one pass over the torrent list and returns it.
func (m *Manager) poll(ctx context.Context) ([]realdebrid.Torrent, error) {
	if err := m.refreshSession(ctx); err != nil {
		return nil, fmt.Errorf("refreshing session: %w", err)
	}

	torrents, err := m.listTorrents(ctx)
	if err != nil {
		return nil, err
	}

	active := make(map[string]bool, len(torrents))
	for i := range torrents {
		t := &torrents[i]
		active[t.ID] = true

		switch {
		case t.Status == realdebrid.StatusWaitingFilesSelection:
			m.selectAllFiles(ctx, t)

		case t.IsFailed():
			if !m.isSeen(t.ID) {
				m.logger.Warnf("[%s: %s]: failed on Real-Debrid with status %s", shortHash(t.Hash), t.Filename, t.Status)
				m.markSeen(t.ID)
			}

		case t.IsDownloaded() && !m.isSeen(t.ID):
			info, err := m.torrentInfo(ctx, t.ID)
			if err != nil {
				m.logger.Warnf("[%s: %s]: failed to load torrent: %v", shortHash(t.Hash), t.Filename, err)
				continue
			}

			transfer := NewTransfer(info)
			m.logger.Infof("%s: ready for download", transfer)
			m.markSeen(t.ID)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case m.transferChan <- TransferMessage{Type: MessageQueuedForDownload, Transfer: transfer}:
			}
		}
	}

	m.cleanupSeen(active)
	return torrents, nil
}

// produceTransfers monitors Real-Debrid for finished torrents
func (m *Manager) produceTransfers() {
	defer m.wg.Done()

	m.logger.Info("Checking unfinished transfers")
	m.checkExistingTransfers()
	m.logger.Info("Done checking for unfinished transfers. Starting to monitor transfers.")

	ticker := time.NewTicker(m.pollingInterval())
	defer ticker.Stop()

	lastLogTime := time.Now()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			torrents, err := m.poll(m.ctx)
			if err != nil {
				if m.ctx.Err() != nil {
					return
				}
				m.logger.Warnf("List Real-Debrid torrents failed. Retrying..: %v", err)
				continue
			}

			if time.Since(lastLogTime) >= statusLogEvery {
				m.logger.Infof("Active torrents: %d", len(torrents))
				for _, t := range torrents {
					m.logger.Infof("  [%s: %s] %s %.0f%%", shortHash(t.Hash), t.Filename, t.Status, t.Progress)
				}
				lastLogTime = time.Now()
			}
		}
	}
}

// checkExistingTransfers checks for torrents that may have been imported while we were offline
func (m *Manager) checkExistingTransfers() {
	if err := m.refreshSession(m.ctx); err != nil {
		m.logger.Errorf("Failed to refresh session: %v", err)
		return
	}

	torrents, err := m.listTorrents(m.ctx)
	if err != nil {
		m.logger.Errorf("Failed to list torrents: %v", err)
		return
	}

	for _, t := range torrents {
		if !t.IsDownloaded() {
			continue
		}

		info, err := m.torrentInfo(m.ctx, t.ID)
		if err != nil {
			m.logger.Warnf("Could not load %s: %v", t.Filename, err)
			continue
		}

		transfer := NewTransfer(info)
		m.logger.Infof("Getting download target for %s", transfer.Name)

		targets, err := m.getDownloadTargets(m.ctx, transfer)
		if err != nil {
			m.logger.Warnf("Could not get target for %s: %v", transfer.Name, err)
			continue
		}
		transfer.SetTargets(targets)

		if !m.isImported(m.ctx, transfer) {
			m.logger.Infof("%s: not imported yet", transfer)
			continue
		}

		m.logger.Infof("%s: already imported", transfer)
		m.markSeen(transfer.TorrentID)
		select {
		case <-m.ctx.Done():
			return
		case m.transferChan <- TransferMessage{Type: MessageImported, Transfer: transfer}:
		}
	}
}

func (m *Manager) pollingInterval() time.Duration {
	interval := time.Duration(m.config.PollingInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	return interval
}

// isSeen checks if a torrent ID has been seen
func (m *Manager) isSeen(id string) bool {
	m.seenMu.RLock()
	defer m.seenMu.RUnlock()
	return m.seen[id]
}

// markSeen marks a torrent ID as seen
func (m *Manager) markSeen(id string) {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	m.seen[id] = true
}

// unmarkSeen lets a failed torrent be picked up again on the next poll.
func (m *Manager) unmarkSeen(id string) {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	delete(m.seen, id)
}

// cleanupSeen removes IDs from seen that are no longer in the active list
func (m *Manager) cleanupSeen(activeIDs map[string]bool) {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	for id := range m.seen {
		if !activeIDs[id] {
			delete(m.seen, id)
		}
	}
}
