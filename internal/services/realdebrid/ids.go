package realdebrid

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Resource is anything that identifies a Real-Debrid object: a record
// returned by the API or a bare ID.
type Resource interface {
	ResourceID() string
}

// ID is a bare Real-Debrid identifier.
type ID string

func (id ID) ResourceID() string { return string(id) }

func resourcePath(prefix string, r Resource) string {
	return prefix + url.PathEscape(r.ResourceID())
}

// FileSelection picks the files of a torrent to download.
type FileSelection interface {
	formValue() string
}

type allFiles struct{}

func (allFiles) formValue() string { return "all" }

// AllFiles selects every file of a torrent.
var AllFiles FileSelection = allFiles{}

// FileIDs selects files by their numeric ID.
type FileIDs []string

func (ids FileIDs) formValue() string { return strings.Join(ids, ",") }

// FilesOf selects the given torrent files.
func FilesOf(files ...TorrentFile) FileSelection {
	ids := make(FileIDs, 0, len(files))
	for _, f := range files {
		ids = append(ids, strconv.Itoa(f.ID))
	}
	return ids
}

// Page restricts list endpoints. Zero fields are not sent.
type Page struct {
	Offset int
	Page   int
	Limit  int
}

func (p Page) values() url.Values {
	q := url.Values{}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

// totalCount reads X-Total-Count, falling back when it is absent.
func totalCount(h http.Header, fallback int) int {
	n, err := strconv.Atoi(h.Get("X-Total-Count"))
	if err != nil {
		return fallback
	}
	return n
}
