package realdebrid

import "context"

// ClientAPI defines the methods required to interact with Real-Debrid.
// It mirrors the subset of the concrete client the proxy uses so it can be
// mocked in tests.
type ClientAPI interface {
	User(ctx context.Context) (*User, error)
	Torrents(ctx context.Context, page Page, filter string) (*Torrents, error)
	TorrentInfo(ctx context.Context, torrent Resource) (*Torrent, error)
	AddMagnet(ctx context.Context, magnet, host string) (*TorrentAdd, error)
	AddTorrent(ctx context.Context, data []byte, host string) (*TorrentAdd, error)
	SelectFiles(ctx context.Context, torrent Resource, files FileSelection) error
	DeleteTorrent(ctx context.Context, torrent Resource) error
	UnrestrictLink(ctx context.Context, link, password string, remote bool) (*Unrestrict, error)
	RefreshIfExpired(ctx context.Context) (bool, error)
}
