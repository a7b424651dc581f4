package download

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/ochronus/godebrid/internal/services/realdebrid"
)

// TargetType represents the type of download target
type TargetType int

const (
	TargetTypeDirectory TargetType = iota
	TargetTypeFile
)

// DownloadTarget represents a file or directory to be downloaded
type DownloadTarget struct {
	From         string     `json:"from,omitempty"`
	To           string     `json:"to"`
	Size         int64      `json:"size,omitempty"`
	TargetType   TargetType `json:"target_type"`
	TopLevel     bool       `json:"top_level"`
	TransferHash string     `json:"transfer_hash"`
}

// String returns a formatted string representation of the download target
func (dt *DownloadTarget) String() string {
	hash := dt.TransferHash
	if len(hash) > 4 {
		hash = hash[:4]
	}
	return fmt.Sprintf("[%s: %s]", hash, dt.To)
}

// Transfer is a Real-Debrid torrent being processed
type Transfer struct {
	TorrentID string
	Name      string
	Hash      string
	// Files holds the selected files, in the order Links refers to them.
	Files   []realdebrid.TorrentFile
	Links   []string
	Targets []DownloadTarget
	mu      sync.RWMutex
}

// NewTransfer creates a new Transfer from a Real-Debrid torrent
func NewTransfer(t *realdebrid.Torrent) *Transfer {
	name := t.Filename
	if name == "" {
		name = "Unknown"
	}

	var selected []realdebrid.TorrentFile
	for _, f := range t.Files {
		if f.Selected == 1 {
			selected = append(selected, f)
		}
	}

	return &Transfer{
		TorrentID: t.ID,
		Name:      name,
		Hash:      t.Hash,
		Files:     selected,
		Links:     t.Links,
	}
}

// ResourceID lets a Transfer be passed to Real-Debrid calls directly.
func (t *Transfer) ResourceID() string { return t.TorrentID }

// String returns a formatted string representation of the transfer
func (t *Transfer) String() string {
	return fmt.Sprintf("[%s: %s]", shortHash(t.Hash), t.Name)
}

// GetHash returns the hash or a default value
func (t *Transfer) GetHash() string {
	if t.Hash != "" {
		return t.Hash
	}
	return "0000"
}

func shortHash(hash string) string {
	if len(hash) < 4 {
		return "0000"
	}
	return hash[:4]
}

// SetTargets sets the download targets for this transfer
func (t *Transfer) SetTargets(targets []DownloadTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Targets = targets
}

// GetTargets returns the download targets for this transfer
func (t *Transfer) GetTargets() []DownloadTarget {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Targets
}

// GetTopLevel returns the top-level download target
func (t *Transfer) GetTopLevel() *DownloadTarget {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, target := range t.Targets {
		if target.TopLevel {
			return &target
		}
	}
	return nil
}

// GetFileTargets returns only file targets (not directories)
func (t *Transfer) GetFileTargets() []DownloadTarget {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var fileTargets []DownloadTarget
	for _, target := range t.Targets {
		if target.TargetType == TargetTypeFile {
			fileTargets = append(fileTargets, target)
		}
	}
	return fileTargets
}

// IsSingleFile reports whether the transfer is one file at the torrent root,
// which is downloaded without a wrapping directory.
func (t *Transfer) IsSingleFile() bool {
	return len(t.Files) == 1 && path.Dir(t.Files[0].Path) == "/"
}

// TransferMessage represents a message about transfer state changes
type TransferMessage struct {
	Type     TransferMessageType
	Transfer *Transfer
}

// TransferMessageType represents the type of transfer message
type TransferMessageType int

const (
	// MessageQueuedForDownload indicates the transfer is ready to be downloaded
	MessageQueuedForDownload TransferMessageType = iota
	// MessageDownloaded indicates the transfer has been downloaded
	MessageDownloaded
	// MessageImported indicates the transfer has been imported by arr services
	MessageImported
)

// String returns a string representation of the message type
func (t TransferMessageType) String() string {
	switch t {
	case MessageQueuedForDownload:
		return "QueuedForDownload"
	case MessageDownloaded:
		return "Downloaded"
	case MessageImported:
		return "Imported"
	default:
		return "Unknown"
	}
}

// DownloadTargetMessage represents a message to download a specific target
type DownloadTargetMessage struct {
	Target   DownloadTarget
	DoneChan chan DownloadDoneStatus
}

// DownloadDoneStatus represents the result of a download operation
type DownloadDoneStatus int

const (
	DownloadStatusSuccess DownloadDoneStatus = iota
	DownloadStatusFailed
)

// ShouldSkipDirectory checks if a directory should be skipped based on configuration
func ShouldSkipDirectory(name string, skipDirs []string) bool {
	for _, skipDir := range skipDirs {
		if strings.EqualFold(skipDir, name) {
			return true
		}
	}
	return false
}

// ShouldSkipPath reports whether any directory of a torrent file path
// ("/dir/sub/file.mkv") is skipped.
func ShouldSkipPath(filePath string, skipDirs []string) bool {
	dirs := strings.Split(strings.Trim(path.Dir(filePath), "/"), "/")
	for _, dir := range dirs {
		if dir != "" && ShouldSkipDirectory(dir, skipDirs) {
			return true
		}
	}
	return false
}
