package realdebrid

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
)

// UnrestrictCheck describes a hoster link before unrestricting it.
type UnrestrictCheck struct {
	Host      string `json:"host"`
	Link      string `json:"link"`
	Filename  string `json:"filename"`
	Filesize  int64  `json:"filesize"`
	Supported int    `json:"supported"`
}

// UnrestrictAlternative is another quality of an unrestricted file.
type UnrestrictAlternative struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Download string `json:"download"`
	Type     string `json:"type"`
}

// Unrestrict is a generated download link.
type Unrestrict struct {
	ID          string                  `json:"id"`
	Filename    string                  `json:"filename"`
	MimeType    string                  `json:"mimeType"`
	Filesize    int64                   `json:"filesize"`
	Link        string                  `json:"link"`
	Host        string                  `json:"host"`
	Chunks      int                     `json:"chunks"`
	CRC         int                     `json:"crc"`
	Download    string                  `json:"download"`
	Streamable  int                     `json:"streamable"`
	Type        *string                 `json:"type"`
	Alternative []UnrestrictAlternative `json:"alternative"`
}

func (u Unrestrict) ResourceID() string { return u.ID }

// CheckLink checks whether a link is supported and available.
func (c *Client) CheckLink(ctx context.Context, link, password string) (*UnrestrictCheck, error) {
	form := url.Values{"link": {link}}
	if password != "" {
		form.Set("password", password)
	}

	var check UnrestrictCheck
	_, err := c.doJSON(ctx, call{
		method: http.MethodPost,
		path:   "unrestrict/check",
		form:   form,
		errs: statusKinds{
			http.StatusServiceUnavailable: ErrFileUnavailable,
			http.StatusBadRequest:         ErrBadRequest,
		},
	}, &check)
	if err != nil {
		return nil, err
	}
	return &check, nil
}

// UnrestrictLink turns a hoster link into a direct download link.
func (c *Client) UnrestrictLink(ctx context.Context, link, password string, remote bool) (*Unrestrict, error) {
	form := url.Values{"link": {link}}
	if password != "" {
		form.Set("password", password)
	}
	if remote {
		form.Set("remote", "1")
	}

	var result Unrestrict
	if _, err := c.doJSON(ctx, call{method: http.MethodPost, path: "unrestrict/link", form: form, errs: authErrs}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UnrestrictFolder lists the links inside a hoster folder.
func (c *Client) UnrestrictFolder(ctx context.Context, link string) ([]string, error) {
	var links []string
	_, err := c.doJSON(ctx, call{
		method: http.MethodPost,
		path:   "unrestrict/folder",
		form:   url.Values{"link": {link}},
		errs:   authErrs,
	}, &links)
	return links, err
}

// DecryptContainerFile decrypts a container file (RSDF, CCF, CCF3, DLC).
func (c *Client) DecryptContainerFile(ctx context.Context, data []byte) ([]string, error) {
	var links []string
	_, err := c.doJSON(ctx, call{
		method:      http.MethodPut,
		path:        "unrestrict/containerFile",
		body:        bytes.NewReader(data),
		contentType: "application/octet-stream",
		errs: premiumErrs.with(statusKinds{
			http.StatusBadRequest:         ErrBadRequest,
			http.StatusServiceUnavailable: ErrServiceUnavailable,
		}),
	}, &links)
	return links, err
}

// DecryptContainerLink decrypts a container file hosted at link.
func (c *Client) DecryptContainerLink(ctx context.Context, link string) ([]string, error) {
	var links []string
	_, err := c.doJSON(ctx, call{
		method: http.MethodPost,
		path:   "unrestrict/containerLink",
		form:   url.Values{"link": {link}},
		errs:   authErrs,
	}, &links)
	return links, err
}
