package realdebrid

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
)

// Torrent statuses reported by Real-Debrid.
const (
	StatusMagnetError           = "magnet_error"
	StatusMagnetConversion      = "magnet_conversion"
	StatusWaitingFilesSelection = "waiting_files_selection"
	StatusQueued                = "queued"
	StatusDownloading           = "downloading"
	StatusDownloaded            = "downloaded"
	StatusError                 = "error"
	StatusVirus                 = "virus"
	StatusCompressing           = "compressing"
	StatusUploading             = "uploading"
	StatusDead                  = "dead"
)

// TorrentFile is one file inside a torrent.
type TorrentFile struct {
	ID int `json:"id"`
	// Path starts with "/".
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

// Torrent represents a Real-Debrid torrent
type Torrent struct {
	ID               string        `json:"id"`
	Filename         string        `json:"filename"`
	OriginalFilename *string       `json:"original_filename"`
	Hash             string        `json:"hash"`
	Bytes            int64         `json:"bytes"`
	OriginalBytes    *int64        `json:"original_bytes"`
	Host             string        `json:"host"`
	Split            int           `json:"split"`
	Progress         float64       `json:"progress"`
	Status           string        `json:"status"`
	Added            string        `json:"added"`
	Files            []TorrentFile `json:"files"`
	Links            []string      `json:"links"`
	Ended            *string       `json:"ended"`
	Speed            *int64        `json:"speed"`
	Seeders          *int          `json:"seeders"`
}

func (t Torrent) ResourceID() string { return t.ID }

// IsDownloaded returns true once Real-Debrid holds every selected file
func (t *Torrent) IsDownloaded() bool {
	return t.Status == StatusDownloaded
}

// IsFailed returns true if the torrent can never complete
func (t *Torrent) IsFailed() bool {
	switch t.Status {
	case StatusMagnetError, StatusError, StatusVirus, StatusDead:
		return true
	}
	return false
}

// Torrents is one page of the torrent list.
type Torrents struct {
	Items      []Torrent
	TotalCount int
}

// TorrentCount is the number of active torrents and the account limit.
type TorrentCount struct {
	Nb    int `json:"nb"`
	Limit int `json:"limit"`
}

// TorrentHost is a host torrents can be added to.
type TorrentHost struct {
	Host        string `json:"host"`
	MaxFileSize int64  `json:"max_file_size"`
}

// TorrentAdd is the result of adding a torrent.
type TorrentAdd struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

func (t TorrentAdd) ResourceID() string { return t.ID }

var addTorrentErrs = premiumErrs.with(statusKinds{
	http.StatusBadRequest:         ErrBadRequest,
	http.StatusServiceUnavailable: ErrServiceUnavailable,
})

// Torrents lists the user's torrents. filter may be "active" or empty.
// An empty list yields ErrNoContent.
func (c *Client) Torrents(ctx context.Context, page Page, filter string) (*Torrents, error) {
	q := page.values()
	if filter != "" {
		q.Set("filter", filter)
	}

	var items []Torrent
	header, err := c.doJSON(ctx, call{
		method: http.MethodGet,
		path:   "torrents",
		query:  q,
		errs:   authErrs.with(statusKinds{http.StatusNoContent: ErrNoContent}),
	}, &items)
	if err != nil {
		return nil, err
	}
	return &Torrents{Items: items, TotalCount: totalCount(header, len(items))}, nil
}

// TorrentInfo returns a torrent with its files.
func (c *Client) TorrentInfo(ctx context.Context, torrent Resource) (*Torrent, error) {
	var result Torrent
	_, err := c.doJSON(ctx, call{
		method: http.MethodGet,
		path:   resourcePath("torrents/info/", torrent),
		errs: authErrs.with(statusKinds{
			http.StatusNoContent: ErrNoContent,
			http.StatusNotFound:  ErrUnknownResource,
		}),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ActiveTorrentCount returns the number of torrents currently active.
func (c *Client) ActiveTorrentCount(ctx context.Context) (*TorrentCount, error) {
	var count TorrentCount
	if _, err := c.doJSON(ctx, call{method: http.MethodGet, path: "torrents/activeCount", errs: authErrs}, &count); err != nil {
		return nil, err
	}
	return &count, nil
}

// AvailableHosts lists the hosts torrents can be added to.
func (c *Client) AvailableHosts(ctx context.Context) ([]TorrentHost, error) {
	var hosts []TorrentHost
	if _, err := c.doJSON(ctx, call{method: http.MethodGet, path: "torrents/availableHosts", errs: authErrs}, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// AddTorrentFile uploads the .torrent file at path.
func (c *Client) AddTorrentFile(ctx context.Context, path, host string) (*TorrentAdd, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPathNotRight, err)
	}
	return c.AddTorrent(ctx, data, host)
}

// AddTorrent uploads torrent metainfo. host may be empty.
func (c *Client) AddTorrent(ctx context.Context, data []byte, host string) (*TorrentAdd, error) {
	q := url.Values{}
	if host != "" {
		q.Set("host", host)
	}

	var added TorrentAdd
	_, err := c.doJSON(ctx, call{
		method:      http.MethodPut,
		path:        "torrents/addTorrent",
		query:       q,
		body:        bytes.NewReader(data),
		contentType: "application/x-bittorrent",
		errs:        addTorrentErrs,
	}, &added)
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// AddMagnet adds a magnet link. host may be empty.
func (c *Client) AddMagnet(ctx context.Context, magnet, host string) (*TorrentAdd, error) {
	form := url.Values{"magnet": {magnet}}
	if host != "" {
		form.Set("host", host)
	}

	var added TorrentAdd
	_, err := c.doJSON(ctx, call{
		method: http.MethodPost,
		path:   "torrents/addMagnet",
		form:   form,
		errs:   addTorrentErrs,
	}, &added)
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// SelectFiles starts the torrent with the selected files. Selecting twice
// yields ErrActionAlreadyDone.
func (c *Client) SelectFiles(ctx context.Context, torrent Resource, files FileSelection) error {
	_, err := c.doJSON(ctx, call{
		method: http.MethodPost,
		path:   resourcePath("torrents/selectFiles/", torrent),
		form:   url.Values{"files": {files.formValue()}},
		errs: premiumErrs.with(statusKinds{
			http.StatusBadRequest: ErrBadRequest,
			http.StatusNotFound:   ErrUnknownResource,
			http.StatusAccepted:   ErrActionAlreadyDone,
		}),
	}, nil)
	return err
}

// DeleteTorrent removes a torrent from the torrent list.
func (c *Client) DeleteTorrent(ctx context.Context, torrent Resource) error {
	_, err := c.doJSON(ctx, call{
		method: http.MethodDelete,
		path:   resourcePath("torrents/delete/", torrent),
		errs:   authErrs.with(statusKinds{http.StatusNotFound: ErrUnknownResource}),
	}, nil)
	return err
}
