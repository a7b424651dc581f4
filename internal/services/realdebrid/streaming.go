package realdebrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// StreamingTranscode maps quality to stream URL per format.
type StreamingTranscode struct {
	Apple    map[string]string `json:"apple"`
	Dash     map[string]string `json:"dash"`
	LiveMP4  map[string]string `json:"liveMP4"`
	H264WebM map[string]string `json:"h264WebM"`
}

type VideoDetails struct {
	Stream     string `json:"stream"`
	Lang       string `json:"lang"`
	LangISO    string `json:"lang_iso"`
	Codec      string `json:"codec"`
	Colorspace string `json:"colorspace"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type AudioDetails struct {
	Stream   string  `json:"stream"`
	Lang     string  `json:"lang"`
	LangISO  string  `json:"lang_iso"`
	Codec    string  `json:"codec"`
	Sampling int     `json:"sampling"`
	Channels float64 `json:"channels"`
}

type SubtitleDetails struct {
	Stream  string `json:"stream"`
	Lang    string `json:"lang"`
	LangISO string `json:"lang_iso"`
	Type    string `json:"type"`
}

// Subtitles is sent either as a list of names or as tracks keyed by stream.
type Subtitles struct {
	Names  []string
	Tracks map[string]SubtitleDetails
}

func (s *Subtitles) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &s.Names); err == nil {
			return nil
		}
		var tracks []SubtitleDetails
		if err := json.Unmarshal(data, &tracks); err != nil {
			return fmt.Errorf("subtitles: %w", err)
		}
		s.Names = nil
		s.Tracks = make(map[string]SubtitleDetails, len(tracks))
		for _, t := range tracks {
			s.Tracks[t.Stream] = t
		}
		return nil
	case '{':
		return json.Unmarshal(data, &s.Tracks)
	default:
		return fmt.Errorf("subtitles: unexpected JSON %q", data)
	}
}

func (s Subtitles) MarshalJSON() ([]byte, error) {
	if s.Tracks != nil {
		return json.Marshal(s.Tracks)
	}
	if s.Names == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Names)
}

type MediaDetails struct {
	Video     map[string]VideoDetails `json:"video"`
	Audio     map[string]AudioDetails `json:"audio"`
	Subtitles Subtitles               `json:"subtitles"`
}

// MediaInfo describes a streamable file.
type MediaInfo struct {
	Filename string `json:"filename"`
	Hoster   string `json:"hoster"`
	Link     string `json:"link"`
	// Type is "movie", "show" or "audio".
	Type    string  `json:"type"`
	Season  *string `json:"season"`
	Episode *string `json:"episode"`
	// Year arrives as a number or a numeric string.
	Year               *json.Number      `json:"year"`
	Duration           float64           `json:"duration"`
	Bitrate            int64             `json:"bitrate"`
	Size               int64             `json:"size"`
	Details            MediaDetails      `json:"details"`
	PosterPath         *string           `json:"poster_path"`
	AudioImage         *string           `json:"audio_image"`
	BackdropPath       *string           `json:"backdrop_path"`
	BaseURL            *string           `json:"baseUrl"`
	AvailableFormats   map[string]string `json:"availableFormats"`
	AvailableQualities map[string]string `json:"availableQualities"`
	ModelURL           *string           `json:"modelUrl"`
	Host               *string           `json:"host"`
}

// StreamingTranscode returns the transcoding links of a generated file.
func (c *Client) StreamingTranscode(ctx context.Context, file Resource) (*StreamingTranscode, error) {
	var transcode StreamingTranscode
	_, err := c.doJSON(ctx, call{
		method: http.MethodGet,
		path:   resourcePath("streaming/transcode/", file),
		errs:   authErrs,
	}, &transcode)
	if err != nil {
		return nil, err
	}
	return &transcode, nil
}

// StreamingMediaInfo returns the media details of a generated file.
func (c *Client) StreamingMediaInfo(ctx context.Context, file Resource) (*MediaInfo, error) {
	var info MediaInfo
	_, err := c.doJSON(ctx, call{
		method: http.MethodGet,
		path:   resourcePath("streaming/mediaInfos/", file),
		errs:   authErrs.with(statusKinds{http.StatusServiceUnavailable: ErrProblemFindingMetadata}),
	}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
