package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ochronus/godebrid/internal/config"
	"github.com/ochronus/godebrid/internal/services/realdebrid"
	"github.com/sirupsen/logrus"
)

var issued = time.Date(2024, 5, 7, 12, 0, 0, 0, time.UTC)

// newOAuthServer answers the device flow, approving the device on the
// second credentials poll.
func newOAuthServer(t *testing.T, deviceStatus int) *httptest.Server {
	t.Helper()
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/device/code", func(w http.ResponseWriter, r *http.Request) {
		if deviceStatus != http.StatusOK {
			w.WriteHeader(deviceStatus)
			return
		}
		json.NewEncoder(w).Encode(realdebrid.DeviceAuthorization{
			DeviceCode:      "device-123",
			UserCode:        "ABCD1234",
			Interval:        5,
			ExpiresIn:       600,
			VerificationURL: "https://real-debrid.com/device",
		})
	})
	mux.HandleFunc("/oauth/v2/device/credentials", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 2 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(realdebrid.ClientCredential{ClientID: "cid", ClientSecret: "csecret"})
	})
	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "device-123" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(realdebrid.AccessToken{
			AccessToken: "access", ExpiresIn: 3600, TokenType: "Bearer", RefreshToken: "refresh",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func authOptions(server *httptest.Server) []realdebrid.Option {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return []realdebrid.Option{
		realdebrid.WithBaseURL(server.URL),
		realdebrid.WithLogger(logger),
		realdebrid.WithClock(func() time.Time { return issued }),
		realdebrid.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	}
}

func wantRealDebrid() config.RealDebridConfig {
	return config.RealDebridConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RefreshToken: "refresh",
		AccessToken:  "access",
		TokenType:    "Bearer",
		IssuedAt:     issued,
		ExpiresIn:    3600,
	}
}

func TestConfigTemplateContent(t *testing.T) {
	requiredSections := []string{
		"username", "password", "download_directory", "bind_address", "port", "loglevel", "uid",
		"polling_interval", "skip_directories", "orchestration_workers", "download_workers",
		"[realdebrid]", "[sonarr]", "[radarr]", "[whisparr]",
		"{{CLIENT_ID}}", "{{CLIENT_SECRET}}", "{{REFRESH_TOKEN}}", "{{ACCESS_TOKEN}}",
		"{{TOKEN_TYPE}}", "{{ISSUED_AT}}", "{{EXPIRES_IN}}",
	}

	for _, section := range requiredSections {
		if !strings.Contains(configTemplate, section) {
			t.Errorf("configTemplate missing required section: %s", section)
		}
	}
}

func TestRenderConfigParses(t *testing.T) {
	content := renderConfig(&realdebrid.RefreshableSession{
		TokenType: "Bearer", AccessToken: "access", ClientID: "cid", ClientSecret: "csecret",
		RefreshToken: "refresh", IssuedAt: issued, ExpiresIn: time.Hour,
	})
	if strings.Contains(content, "{{") {
		t.Fatalf("unreplaced placeholder in:\n%s", content)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	if diff := cmp.Diff(wantRealDebrid(), cfg.RealDebrid); diff != "" {
		t.Errorf("realdebrid section mismatch (-want +got):\n%s", diff)
	}
	defaults := config.DefaultConfig()
	if cfg.Port != defaults.Port || cfg.PollingInterval != defaults.PollingInterval || cfg.DownloadWorkers != defaults.DownloadWorkers {
		t.Errorf("template defaults differ from DefaultConfig: %+v", cfg)
	}
	if cfg.Sonarr == nil || cfg.Radarr == nil || cfg.Whisparr == nil {
		t.Error("expected all arr sections")
	}
}

func TestRenderDevicePrompt(t *testing.T) {
	out := RenderDevicePrompt(realdebrid.DeviceAuthorization{
		UserCode:        "ABCD1234",
		VerificationURL: "https://real-debrid.com/device",
		ExpiresIn:       600,
	})

	for _, want := range []string{"ABCD1234", "https://real-debrid.com/device", "10m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q:\n%s", want, out)
		}
	}
}

func TestGenerateConfig(t *testing.T) {
	server := newOAuthServer(t, http.StatusOK)
	configPath := filepath.Join(t.TempDir(), "subdir", "nested", "config.toml")
	var out bytes.Buffer

	if err := GenerateConfig(context.Background(), configPath, &out, authOptions(server)...); err != nil {
		t.Fatalf("GenerateConfig() error = %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	if diff := cmp.Diff(wantRealDebrid(), cfg.RealDebrid); diff != "" {
		t.Errorf("realdebrid section mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config permissions = %o, want 600", perm)
	}
	if !strings.Contains(out.String(), "ABCD1234") {
		t.Errorf("expected the user code to be shown, got:\n%s", out.String())
	}
}

func TestGenerateConfigBacksUpExisting(t *testing.T) {
	server := newOAuthServer(t, http.StatusOK)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := GenerateConfig(context.Background(), configPath, &bytes.Buffer{}, authOptions(server)...); err != nil {
		t.Fatalf("GenerateConfig() error = %v", err)
	}

	backup, err := os.ReadFile(configPath + ".bak")
	if err != nil || string(backup) != "old" {
		t.Errorf("expected the old config to be backed up, got %q: %v", backup, err)
	}
}

func TestGenerateConfigAuthFailure(t *testing.T) {
	server := newOAuthServer(t, http.StatusInternalServerError)
	configPath := filepath.Join(t.TempDir(), "config.toml")

	err := GenerateConfig(context.Background(), configPath, &bytes.Buffer{}, authOptions(server)...)
	if !errors.Is(err, realdebrid.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Error("expected no config to be written")
	}
}

func TestRunDeviceAuthKeepsSettings(t *testing.T) {
	server := newOAuthServer(t, http.StatusOK)
	configPath := filepath.Join(t.TempDir(), "config.toml")

	existing := config.DefaultConfig()
	existing.Username = "admin"
	existing.DownloadDirectory = "/data"
	existing.RealDebrid.APIKey = "private-token"
	existing.Sonarr = &config.ArrConfig{URL: "http://sonarr:8989", APIKey: "key"}
	if err := config.Save(configPath, existing); err != nil {
		t.Fatal(err)
	}

	if err := RunDeviceAuth(context.Background(), configPath, &bytes.Buffer{}, authOptions(server)...); err != nil {
		t.Fatalf("RunDeviceAuth() error = %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	if diff := cmp.Diff(wantRealDebrid(), cfg.RealDebrid); diff != "" {
		t.Errorf("realdebrid section mismatch (-want +got):\n%s", diff)
	}
	if cfg.Username != "admin" || cfg.DownloadDirectory != "/data" || cfg.Sonarr == nil {
		t.Errorf("other settings were lost: %+v", cfg)
	}
}

func TestRunDeviceAuthKeepsEnvironmentSecretsOutOfFile(t *testing.T) {
	t.Setenv("GODEBRID_PASSWORD", "env-only-secret")
	t.Setenv("GODEBRID_USERNAME", "env-only-user")
	server := newOAuthServer(t, http.StatusOK)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("username = \"admin\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := RunDeviceAuth(context.Background(), configPath, &bytes.Buffer{}, authOptions(server)...); err != nil {
		t.Fatalf("RunDeviceAuth() error = %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, value := range []string{"env-only-secret", "env-only-user"} {
		if strings.Contains(string(data), value) {
			t.Errorf("config file contains environment value %q:\n%s", value, data)
		}
	}
	if !strings.Contains(string(data), `username = "admin"`) {
		t.Errorf("config file lost its settings:\n%s", data)
	}
}

func TestRunDeviceAuthCreatesConfig(t *testing.T) {
	server := newOAuthServer(t, http.StatusOK)
	configPath := filepath.Join(t.TempDir(), "new", "config.toml")

	if err := RunDeviceAuth(context.Background(), configPath, &bytes.Buffer{}, authOptions(server)...); err != nil {
		t.Fatalf("RunDeviceAuth() error = %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	if !cfg.RealDebrid.HasOAuth() {
		t.Errorf("expected oauth credentials, got %+v", cfg.RealDebrid)
	}
}

func TestRunDeviceAuthCanceled(t *testing.T) {
	server := newOAuthServer(t, http.StatusOK)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := RunDeviceAuth(ctx, configPath, &bytes.Buffer{}, authOptions(server)...); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Error("expected no config to be written")
	}
}
