package realdebrid

import (
	"context"
	"net/http"
)

type HostStatus struct {
	Status    string `json:"status"`
	CheckTime string `json:"check_time"`
}

// Host is a supported hoster, keyed by its main domain.
type Host struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Image     string  `json:"image"`
	ImageBig  string  `json:"image_big"`
	Supported *int    `json:"supported"`
	Status    *string `json:"status"`
	CheckTime *string `json:"check_time"`
	// CompetitorsStatus is keyed by competitor domain.
	CompetitorsStatus map[string]HostStatus `json:"competitors_status"`
}

// Hosts lists the supported hosters.
func (c *Client) Hosts(ctx context.Context) (map[string]Host, error) {
	return c.hosts(ctx, call{method: http.MethodGet, path: "hosts", public: true})
}

// HostsStatus lists the supported hosters with their current status.
func (c *Client) HostsStatus(ctx context.Context) (map[string]Host, error) {
	return c.hosts(ctx, call{
		method: http.MethodGet,
		path:   "hosts/status",
		errs:   statusKinds{http.StatusUnauthorized: ErrBadToken},
	})
}

func (c *Client) hosts(ctx context.Context, cl call) (map[string]Host, error) {
	var hosts map[string]Host
	if _, err := c.doJSON(ctx, cl, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// HostRegex returns the regexes matching supported links.
func (c *Client) HostRegex(ctx context.Context) ([]string, error) {
	return c.stringList(ctx, "hosts/regex")
}

// HostRegexFolder returns the regexes matching supported folder links.
func (c *Client) HostRegexFolder(ctx context.Context) ([]string, error) {
	return c.stringList(ctx, "hosts/regexFolder")
}

// HostDomains returns the supported hoster domains.
func (c *Client) HostDomains(ctx context.Context) ([]string, error) {
	return c.stringList(ctx, "hosts/domains")
}

func (c *Client) stringList(ctx context.Context, path string) ([]string, error) {
	var values []string
	if _, err := c.doJSON(ctx, call{method: http.MethodGet, path: path, public: true}, &values); err != nil {
		return nil, err
	}
	return values, nil
}
