package realdebrid

import (
	"context"
	"net/http"
)

// Download is an entry of the downloads history.
type Download struct {
	ID         string  `json:"id"`
	Filename   string  `json:"filename"`
	MimeType   *string `json:"mimeType"`
	Filesize   int64   `json:"filesize"`
	Link       string  `json:"link"`
	Host       string  `json:"host"`
	HostIcon   *string `json:"host_icon"`
	Chunks     int     `json:"chunks"`
	Download   string  `json:"download"`
	Streamable int     `json:"streamable"`
	Generated  string  `json:"generated"`
	Type       *string `json:"type"`
}

func (d Download) ResourceID() string { return d.ID }

// Downloads is one page of the downloads history.
type Downloads struct {
	Items      []Download
	TotalCount int
}

// Downloads lists the downloads history. An empty history yields ErrNoContent.
func (c *Client) Downloads(ctx context.Context, page Page) (*Downloads, error) {
	var items []Download
	header, err := c.doJSON(ctx, call{
		method: http.MethodGet,
		path:   "downloads",
		query:  page.values(),
		errs:   authErrs.with(statusKinds{http.StatusNoContent: ErrNoContent}),
	}, &items)
	if err != nil {
		return nil, err
	}
	return &Downloads{Items: items, TotalCount: totalCount(header, len(items))}, nil
}

// DeleteDownload removes a link from the downloads history.
func (c *Client) DeleteDownload(ctx context.Context, download Resource) error {
	_, err := c.doJSON(ctx, call{
		method: http.MethodDelete,
		path:   resourcePath("downloads/delete/", download),
		errs:   authErrs.with(statusKinds{http.StatusNotFound: ErrUnknownResource}),
	}, nil)
	return err
}
