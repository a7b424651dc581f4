package transmission

import (
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/ochronus/godebrid/internal/services/realdebrid"
)

// Response represents a Transmission RPC response
type Response struct {
	Result    string `json:"result"`
	Arguments any    `json:"arguments,omitempty"`
}

// Request represents a Transmission RPC request
type Request struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Config represents Transmission session configuration
type Config struct {
	RPCVersion              string  `json:"rpc-version"`
	Version                 string  `json:"version"`
	DownloadDir             string  `json:"download-dir"`
	SeedRatioLimit          float32 `json:"seedRatioLimit"`
	SeedRatioLimited        bool    `json:"seedRatioLimited"`
	IdleSeedingLimit        uint64  `json:"idle-seeding-limit"`
	IdleSeedingLimitEnabled bool    `json:"idle-seeding-limit-enabled"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig(downloadDir string) *Config {
	return &Config{
		RPCVersion:              "18",
		Version:                 "14.0.0",
		DownloadDir:             downloadDir,
		SeedRatioLimit:          1.0,
		SeedRatioLimited:        true,
		IdleSeedingLimit:        100,
		IdleSeedingLimitEnabled: false,
	}
}

// Torrent represents a Transmission torrent
type Torrent struct {
	ID                 uint64        `json:"id"`
	HashString         *string       `json:"hashString"`
	Name               string        `json:"name"`
	DownloadDir        string        `json:"downloadDir"`
	TotalSize          int64         `json:"totalSize"`
	LeftUntilDone      int64         `json:"leftUntilDone"`
	IsFinished         bool          `json:"isFinished"`
	ETA                int64         `json:"eta"`
	Status             TorrentStatus `json:"status"`
	SecondsDownloading int64         `json:"secondsDownloading"`
	ErrorString        *string       `json:"errorString"`
	DownloadedEver     int64         `json:"downloadedEver"`
	SeedRatioLimit     float32       `json:"seedRatioLimit"`
	SeedRatioMode      uint32        `json:"seedRatioMode"`
	SeedIdleLimit      uint64        `json:"seedIdleLimit"`
	SeedIdleMode       uint32        `json:"seedIdleMode"`
	FileCount          uint32        `json:"fileCount"`
}

// TorrentStatus represents the status of a torrent
type TorrentStatus int

const (
	StatusStopped     TorrentStatus = 0
	StatusCheckWait   TorrentStatus = 1
	StatusCheck       TorrentStatus = 2
	StatusQueued      TorrentStatus = 3
	StatusDownloading TorrentStatus = 4
	StatusSeedingWait TorrentStatus = 5
	StatusSeeding     TorrentStatus = 6
)

// etaUnknown is what Transmission reports when no estimate is available.
const etaUnknown = -1

// StatusFromString converts a Real-Debrid torrent status to a TorrentStatus
func StatusFromString(status string) TorrentStatus {
	switch status {
	case realdebrid.StatusMagnetError, realdebrid.StatusError, realdebrid.StatusVirus, realdebrid.StatusDead:
		return StatusStopped
	case realdebrid.StatusMagnetConversion, realdebrid.StatusWaitingFilesSelection:
		return StatusCheckWait
	case realdebrid.StatusQueued:
		return StatusQueued
	case realdebrid.StatusDownloading, realdebrid.StatusCompressing, realdebrid.StatusUploading:
		return StatusDownloading
	case realdebrid.StatusDownloaded:
		return StatusSeeding
	default:
		return StatusCheckWait
	}
}

// TorrentID derives a stable numeric id from a Real-Debrid torrent id.
func TorrentID(rdID string) uint64 {
	h := fnv.New32a()
	h.Write([]byte(rdID))
	return uint64(h.Sum32())
}

// TorrentFromRealDebrid converts a Real-Debrid torrent to a Transmission Torrent
func TorrentFromRealDebrid(t *realdebrid.Torrent, downloadDir string, now time.Time) *Torrent {
	var secondsDownloading int64
	if added, err := time.Parse(time.RFC3339, t.Added); err == nil && now.After(added) {
		secondsDownloading = int64(now.Sub(added).Seconds())
	}

	name := t.Filename
	if name == "" {
		name = "Unknown"
	}

	totalSize := t.Bytes
	progress := t.Progress
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}
	downloaded := int64(float64(totalSize) * progress / 100)
	leftUntilDone := totalSize - downloaded
	if t.IsDownloaded() {
		downloaded, leftUntilDone = totalSize, 0
	}

	eta := int64(etaUnknown)
	if t.Speed != nil && *t.Speed > 0 {
		eta = leftUntilDone / *t.Speed
	}

	var errorString *string
	if t.IsFailed() {
		status := t.Status
		errorString = &status
	}

	var fileCount uint32
	for _, f := range t.Files {
		if f.Selected == 1 {
			fileCount++
		}
	}
	if fileCount == 0 {
		fileCount = 1
	}

	hash := t.Hash

	return &Torrent{
		ID:                 TorrentID(t.ID),
		HashString:         &hash,
		Name:               name,
		DownloadDir:        downloadDir,
		TotalSize:          totalSize,
		LeftUntilDone:      leftUntilDone,
		IsFinished:         t.Ended != nil || t.IsDownloaded(),
		ETA:                eta,
		Status:             StatusFromString(t.Status),
		SecondsDownloading: secondsDownloading,
		ErrorString:        errorString,
		DownloadedEver:     downloaded,
		FileCount:          fileCount,
	}
}

// TorrentAddArguments represents arguments for torrent-add method
type TorrentAddArguments struct {
	Metainfo string `json:"metainfo,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// TorrentRemoveArguments represents arguments for torrent-remove method
type TorrentRemoveArguments struct {
	IDs             []string `json:"ids"`
	DeleteLocalData bool     `json:"delete-local-data"`
}

// TorrentGetResponse represents the response for torrent-get method
type TorrentGetResponse struct {
	Torrents []*Torrent `json:"torrents"`
}
