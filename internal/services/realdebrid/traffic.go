package realdebrid

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Traffic is the remaining quota on one hoster.
type Traffic struct {
	Left  *int64 `json:"left"`
	Bytes *int64 `json:"bytes"`
	Links *int   `json:"links"`
	Limit *int64 `json:"limit"`
	// Type is "links", "gigabytes" or "bytes".
	Type  string `json:"type"`
	Extra *int64 `json:"extra"`
	// Reset is "daily", "weekly" or "monthly".
	Reset *string `json:"reset"`
}

// TrafficPeriod is the traffic of one day.
type TrafficPeriod struct {
	Host  map[string]int64 `json:"host"`
	Bytes int64            `json:"bytes"`
}

const trafficDateLayout = "2006-01-02"

// Traffic returns the traffic left per hoster.
func (c *Client) Traffic(ctx context.Context) (map[string]Traffic, error) {
	var traffic map[string]Traffic
	if _, err := c.doJSON(ctx, call{method: http.MethodGet, path: "traffic", errs: authErrs}, &traffic); err != nil {
		return nil, err
	}
	return traffic, nil
}

// TrafficDetails returns downloaded bytes per day between start and end.
// Zero times are left to the server default (the last 7 days).
func (c *Client) TrafficDetails(ctx context.Context, start, end time.Time) (map[string]TrafficPeriod, error) {
	q := url.Values{}
	if !start.IsZero() {
		q.Set("start", start.Format(trafficDateLayout))
	}
	if !end.IsZero() {
		q.Set("end", end.Format(trafficDateLayout))
	}

	var periods map[string]TrafficPeriod
	if _, err := c.doJSON(ctx, call{method: http.MethodGet, path: "traffic/details", query: q, errs: authErrs}, &periods); err != nil {
		return nil, err
	}
	return periods, nil
}
