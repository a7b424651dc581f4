package realdebrid

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newAPIServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(StaticSession{APIKey: "test-key"}, WithBaseURL(server.URL), WithLogger(testLogger()))
	return client, server
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(nil)
	if client.apiURL != "https://api.real-debrid.com/rest/1.0/" {
		t.Errorf("unexpected api URL: %s", client.apiURL)
	}
	if client.oauthURL != "https://api.real-debrid.com/oauth/v2/" {
		t.Errorf("unexpected oauth URL: %s", client.oauthURL)
	}
	if client.httpClient == nil || client.httpClient.Timeout != 10*time.Second {
		t.Error("expected default http client with 10s timeout")
	}
	if _, ok := client.Session().(InvalidSession); !ok {
		t.Errorf("expected InvalidSession for nil session, got %T", client.Session())
	}
}

func TestUserSendsBearer(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/1.0/user" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %s", got)
		}
		_, _ = io.WriteString(w, `{"id":42,"username":"alice","email":"a@example.com","points":10,"locale":"en","avatar":"","type":"premium","premium":3600,"expiration":"2025-01-01T00:00:00.000Z"}`)
	})

	user, err := client.User(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &User{
		ID:         42,
		Username:   "alice",
		Email:      "a@example.com",
		Points:     10,
		Locale:     "en",
		Type:       "premium",
		Premium:    3600,
		Expiration: "2025-01-01T00:00:00.000Z",
	}
	if diff := cmp.Diff(want, user); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
	if !user.IsPremium() {
		t.Error("expected premium user")
	}
}

func TestUserStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "bad token", status: http.StatusUnauthorized, want: ErrBadToken},
		{name: "permission denied", status: http.StatusForbidden, want: ErrPermissionDenied},
		{name: "unmapped status", status: http.StatusTeapot, want: ErrUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, errorBody{Error: "bad_token", ErrorCode: 8})
			})

			_, err := client.User(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != "bad_token" || apiErr.Code != 8 {
				t.Errorf("unexpected APIError: %+v", apiErr)
			}
		})
	}
}

func TestInvalidSessionSendsNoAuthorization(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("expected no Authorization header")
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	client.store(InvalidSession{})

	if _, err := client.User(context.Background()); !errors.Is(err, ErrBadToken) {
		t.Fatalf("expected ErrBadToken, got %v", err)
	}
}

func TestTorrentsPaging(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("limit") != "50" || q.Get("filter") != "active" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Has("offset") {
			t.Error("zero offset must not be sent")
		}
		w.Header().Set("X-Total-Count", "123")
		_, _ = io.WriteString(w, `[{"id":"T1","filename":"a","hash":"h1","status":"downloaded","progress":100,"links":["https://real-debrid.com/d/1"]},{"id":"T2","filename":"b","hash":"h2","status":"downloading","progress":45.5,"speed":1000,"seeders":3,"links":[]}]`)
	})

	torrents, err := client.Torrents(context.Background(), Page{Page: 2, Limit: 50}, "active")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if torrents.TotalCount != 123 {
		t.Errorf("expected total count 123, got %d", torrents.TotalCount)
	}
	if len(torrents.Items) != 2 {
		t.Fatalf("expected 2 torrents, got %d", len(torrents.Items))
	}
	if !torrents.Items[0].IsDownloaded() || torrents.Items[1].IsDownloaded() {
		t.Error("unexpected IsDownloaded results")
	}
	if torrents.Items[1].Progress != 45.5 || torrents.Items[1].Seeders == nil || *torrents.Items[1].Seeders != 3 {
		t.Errorf("unexpected second torrent: %+v", torrents.Items[1])
	}
}

func TestTorrentsEmptyList(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if _, err := client.Torrents(context.Background(), Page{}, ""); !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestDownloadsTotalCountFallback(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/1.0/downloads" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `[{"id":"D1","filename":"f.mkv","filesize":10,"link":"l","host":"h","chunks":32,"download":"d","streamable":1,"generated":"2024-05-07T00:28:35.000Z"}]`)
	})

	downloads, err := client.Downloads(context.Background(), Page{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if downloads.TotalCount != 1 || downloads.Items[0].ResourceID() != "D1" {
		t.Errorf("unexpected downloads: %+v", downloads)
	}
}

func TestSelectFiles(t *testing.T) {
	tests := []struct {
		name      string
		selection FileSelection
		status    int
		wantFiles string
		wantErr   error
	}{
		{name: "all files", selection: AllFiles, status: http.StatusNoContent, wantFiles: "all"},
		{name: "file ids", selection: FileIDs{"1", "3"}, status: http.StatusNoContent, wantFiles: "1,3"},
		{
			name:      "torrent files",
			selection: FilesOf(TorrentFile{ID: 2}, TorrentFile{ID: 5}),
			status:    http.StatusNoContent,
			wantFiles: "2,5",
		},
		{name: "already selected", selection: AllFiles, status: http.StatusAccepted, wantFiles: "all", wantErr: ErrActionAlreadyDone},
		{name: "not premium", selection: AllFiles, status: http.StatusForbidden, wantFiles: "all", wantErr: ErrNotPremium},
		{name: "unknown torrent", selection: AllFiles, status: http.StatusNotFound, wantFiles: "all", wantErr: ErrUnknownResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/rest/1.0/torrents/selectFiles/T1" {
					t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
				}
				if got := r.FormValue("files"); got != tt.wantFiles {
					t.Errorf("expected files %q, got %q", tt.wantFiles, got)
				}
				w.WriteHeader(tt.status)
			})

			err := client.SelectFiles(context.Background(), ID("T1"), tt.selection)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAddTorrent(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/rest/1.0/torrents/addTorrent" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("host"); got != "real-debrid.com" {
			t.Errorf("unexpected host: %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "d8:announce0:e" {
			t.Errorf("unexpected body: %q", body)
		}
		writeJSON(w, http.StatusCreated, TorrentAdd{ID: "T9", URI: "https://api.real-debrid.com/rest/1.0/torrents/info/T9"})
	})

	added, err := client.AddTorrent(context.Background(), []byte("d8:announce0:e"), "real-debrid.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added.ResourceID() != "T9" {
		t.Errorf("unexpected id: %s", added.ID)
	}
}

func TestAddTorrentFileMissingPath(t *testing.T) {
	client := NewClient(StaticSession{APIKey: "k"}, WithLogger(testLogger()))
	_, err := client.AddTorrentFile(context.Background(), filepath.Join(t.TempDir(), "missing.torrent"), "")
	if !errors.Is(err, ErrPathNotRight) {
		t.Fatalf("expected ErrPathNotRight, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist in chain, got %v", err)
	}
}

func TestAddMagnet(t *testing.T) {
	const magnet = "magnet:?xt=urn:btih:abc"
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/1.0/torrents/addMagnet" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.FormValue("magnet"); got != magnet {
			t.Errorf("unexpected magnet: %q", got)
		}
		if r.Form.Has("host") {
			t.Error("empty host must not be sent")
		}
		writeJSON(w, http.StatusCreated, TorrentAdd{ID: "T1"})
	})

	added, err := client.AddMagnet(context.Background(), magnet, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added.ID != "T1" {
		t.Errorf("unexpected id: %s", added.ID)
	}
}

func TestDeleteTorrent(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		switch r.URL.Path {
		case "/rest/1.0/torrents/delete/T1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	if err := client.DeleteTorrent(context.Background(), Torrent{ID: "T1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.DeleteTorrent(context.Background(), ID("nope")); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("expected ErrUnknownResource, got %v", err)
	}
}

func TestUnrestrictLink(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("link") != "https://real-debrid.com/d/1" || r.FormValue("remote") != "1" {
			t.Errorf("unexpected form: %v", r.Form)
		}
		if r.Form.Has("password") {
			t.Error("empty password must not be sent")
		}
		writeJSON(w, http.StatusOK, Unrestrict{ID: "U1", Filename: "f.mkv", Filesize: 99, Download: "https://dl/f.mkv"})
	})

	result, err := client.UnrestrictLink(context.Background(), "https://real-debrid.com/d/1", "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Download != "https://dl/f.mkv" || result.ResourceID() != "U1" {
		t.Errorf("unexpected unrestrict: %+v", result)
	}
}

func TestCheckLinkUnavailable(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.CheckLink(context.Background(), "https://host/file", "secret")
	if !errors.Is(err, ErrFileUnavailable) {
		t.Fatalf("expected ErrFileUnavailable, got %v", err)
	}
}

func TestDecryptContainerFile(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/rest/1.0/unrestrict/containerFile" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "container" {
			t.Errorf("unexpected body: %q", body)
		}
		writeJSON(w, http.StatusCreated, []string{"https://host/a", "https://host/b"})
	})

	links, err := client.DecryptContainerFile(context.Background(), []byte("container"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"https://host/a", "https://host/b"}, links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
}

func TestTrafficDetailsDates(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("start") != "2024-05-01" || q.Get("end") != "2024-05-07" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"2024-05-01":{"host":{"rapidgator.net":100},"bytes":100}}`)
	})

	start := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)
	periods, err := client.TrafficDetails(context.Background(), start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]TrafficPeriod{"2024-05-01": {Host: map[string]int64{"rapidgator.net": 100}, Bytes: 100}}
	if diff := cmp.Diff(want, periods); diff != "" {
		t.Errorf("traffic mismatch (-want +got):\n%s", diff)
	}
}

func TestHostsArePublic(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("hosts must be requested without Authorization")
		}
		switch r.URL.Path {
		case "/rest/1.0/hosts":
			_, _ = io.WriteString(w, `{"rapidgator.net":{"id":"rg","name":"Rapidgator","image":"i","image_big":"ib"}}`)
		case "/rest/1.0/hosts/domains":
			_, _ = io.WriteString(w, `["rapidgator.net","1fichier.com"]`)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	hosts, err := client.Hosts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hosts["rapidgator.net"].Name != "Rapidgator" {
		t.Errorf("unexpected hosts: %+v", hosts)
	}

	domains, err := client.HostDomains(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(domains) != 2 {
		t.Errorf("expected 2 domains, got %v", domains)
	}
}

func TestTime(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "2024-05-07 12:00:00\n")
	})

	got, err := client.Time(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2024-05-07 12:00:00" {
		t.Errorf("unexpected time: %q", got)
	}
}

func TestMediaInfoDecoding(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		wantYear      string
		wantNames     []string
		wantTrackLang string
	}{
		{
			name:      "numeric year and subtitle list",
			payload:   `{"filename":"f","type":"movie","year":2019,"details":{"subtitles":["eng","fre"]}}`,
			wantYear:  "2019",
			wantNames: []string{"eng", "fre"},
		},
		{
			name:          "string year and subtitle tracks",
			payload:       `{"filename":"f","type":"show","year":"2021","details":{"subtitles":{"eng1":{"stream":"0:2","lang":"English","lang_iso":"eng","type":"SRT"}}}}`,
			wantYear:      "2021",
			wantTrackLang: "English",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var info MediaInfo
			if err := json.Unmarshal([]byte(tt.payload), &info); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if info.Year == nil || info.Year.String() != tt.wantYear {
				t.Errorf("unexpected year: %v", info.Year)
			}
			if diff := cmp.Diff(tt.wantNames, info.Details.Subtitles.Names); diff != "" {
				t.Errorf("subtitle names mismatch (-want +got):\n%s", diff)
			}
			if tt.wantTrackLang != "" && info.Details.Subtitles.Tracks["eng1"].Lang != tt.wantTrackLang {
				t.Errorf("unexpected subtitle tracks: %+v", info.Details.Subtitles.Tracks)
			}
		})
	}
}

func TestStreamingMediaInfoMetadataError(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/1.0/streaming/mediaInfos/D1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.StreamingMediaInfo(context.Background(), Download{ID: "D1"})
	if !errors.Is(err, ErrProblemFindingMetadata) {
		t.Fatalf("expected ErrProblemFindingMetadata, got %v", err)
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limited", err: &APIError{StatusCode: http.StatusTooManyRequests, Kind: ErrUndefined}, want: true},
		{name: "bad gateway", err: &APIError{StatusCode: http.StatusBadGateway, Kind: ErrUndefined}, want: true},
		{name: "gateway timeout", err: &APIError{StatusCode: http.StatusGatewayTimeout, Kind: ErrUndefined}, want: true},
		{name: "service unavailable", err: &APIError{StatusCode: http.StatusServiceUnavailable, Kind: ErrServiceUnavailable}, want: true},
		{name: "bad token", err: &APIError{StatusCode: http.StatusUnauthorized, Kind: ErrBadToken}, want: false},
		{name: "network", err: timeoutError{}, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAPIErrorRetryAfter(t *testing.T) {
	client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.User(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.RetryAfter != 7*time.Second {
		t.Errorf("expected 7s retry-after, got %v", apiErr.RetryAfter)
	}
	if !IsTransient(err) {
		t.Error("expected 429 to be transient")
	}
}

func ptr[T any](v T) *T { return &v }

func TestEndpointRouting(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		form     string
		status   int
		body     string
		wantAuth bool
		call     func(*Client) (any, error)
		want     any
	}{
		{
			name: "time iso", method: http.MethodGet, path: "/rest/1.0/time/iso",
			body: "2024-05-07T12:00:00+0200\n",
			call: func(c *Client) (any, error) { return c.TimeISO(context.Background()) },
			want: "2024-05-07T12:00:00+0200",
		},
		{
			name: "disable access token", method: http.MethodGet, path: "/rest/1.0/disable_access_token",
			status: http.StatusNoContent, wantAuth: true,
			call: func(c *Client) (any, error) { return nil, c.DisableAccessToken(context.Background()) },
		},
		{
			name: "unrestrict folder", method: http.MethodPost, path: "/rest/1.0/unrestrict/folder",
			form: "link=https%3A%2F%2Fhoster.example%2Ffolder%2F1", body: `["https://hoster.example/a","https://hoster.example/b"]`, wantAuth: true,
			call: func(c *Client) (any, error) {
				return c.UnrestrictFolder(context.Background(), "https://hoster.example/folder/1")
			},
			want: []string{"https://hoster.example/a", "https://hoster.example/b"},
		},
		{
			name: "decrypt container link", method: http.MethodPost, path: "/rest/1.0/unrestrict/containerLink",
			form: "link=https%3A%2F%2Fhoster.example%2Fx.dlc", body: `["https://hoster.example/a"]`, wantAuth: true,
			call: func(c *Client) (any, error) {
				return c.DecryptContainerLink(context.Background(), "https://hoster.example/x.dlc")
			},
			want: []string{"https://hoster.example/a"},
		},
		{
			name: "traffic", method: http.MethodGet, path: "/rest/1.0/traffic",
			body: `{"remote_traffic":{"left":1024,"type":"bytes","reset":"daily"}}`, wantAuth: true,
			call: func(c *Client) (any, error) { return c.Traffic(context.Background()) },
			want: map[string]Traffic{"remote_traffic": {Left: ptr(int64(1024)), Type: "bytes", Reset: ptr("daily")}},
		},
		{
			name: "streaming transcode", method: http.MethodGet, path: "/rest/1.0/streaming/transcode/FILE1",
			body: `{"apple":{"full":"https://s.example/f.m3u8"}}`, wantAuth: true,
			call: func(c *Client) (any, error) { return c.StreamingTranscode(context.Background(), ID("FILE1")) },
			want: &StreamingTranscode{Apple: map[string]string{"full": "https://s.example/f.m3u8"}},
		},
		{
			name: "delete download", method: http.MethodDelete, path: "/rest/1.0/downloads/delete/DL1",
			status: http.StatusNoContent, wantAuth: true,
			call: func(c *Client) (any, error) { return nil, c.DeleteDownload(context.Background(), ID("DL1")) },
		},
		{
			name: "active torrent count", method: http.MethodGet, path: "/rest/1.0/torrents/activeCount",
			body: `{"nb":3,"limit":25}`, wantAuth: true,
			call: func(c *Client) (any, error) { return c.ActiveTorrentCount(context.Background()) },
			want: &TorrentCount{Nb: 3, Limit: 25},
		},
		{
			name: "available hosts", method: http.MethodGet, path: "/rest/1.0/torrents/availableHosts",
			body: `[{"host":"real-debrid.com","max_file_size":2000}]`, wantAuth: true,
			call: func(c *Client) (any, error) { return c.AvailableHosts(context.Background()) },
			want: []TorrentHost{{Host: "real-debrid.com", MaxFileSize: 2000}},
		},
		{
			name: "host regex", method: http.MethodGet, path: "/rest/1.0/hosts/regex",
			body: `["/(https?:\\/\\/)?hoster\\.example\\/.+/"]`,
			call: func(c *Client) (any, error) { return c.HostRegex(context.Background()) },
			want: []string{`/(https?:\/\/)?hoster\.example\/.+/`},
		},
		{
			name: "host folder regex", method: http.MethodGet, path: "/rest/1.0/hosts/regexFolder",
			body: `["/hoster\\.example\\/folder\\/.+/"]`,
			call: func(c *Client) (any, error) { return c.HostRegexFolder(context.Background()) },
			want: []string{`/hoster\.example\/folder\/.+/`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != tt.method || r.URL.Path != tt.path {
					t.Errorf("request = %s %s, want %s %s", r.Method, r.URL.Path, tt.method, tt.path)
				}
				if hasAuth := r.Header.Get("Authorization") != ""; hasAuth != tt.wantAuth {
					t.Errorf("Authorization sent = %v, want %v", hasAuth, tt.wantAuth)
				}
				if tt.form != "" {
					body, _ := io.ReadAll(r.Body)
					if string(body) != tt.form {
						t.Errorf("form = %q, want %q", body, tt.form)
					}
				}
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = io.WriteString(w, tt.body)
			})

			got, err := tt.call(client)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
