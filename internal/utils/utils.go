package utils

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/ochronus/godebrid/internal/config"
	"github.com/ochronus/godebrid/internal/services/realdebrid"
	"github.com/ochronus/godebrid/internal/store"
)

const configTemplate = `# Required. Username and password that sonarr/radarr use to connect to the proxy
username = "myusername"
password = "mypassword"

# Required. Directory where the proxy will download files to. This directory has to be readable by
# sonarr/radarr in order to import downloads
download_directory = "/path/to/downloads"

# Optional bind address, default "0.0.0.0"
bind_address = "0.0.0.0"

# Optional TCP port, default 9091
port = 9091

# Optional log level, default "info"
loglevel = "info"

# Optional UID, default 1000. Change the owner of the downloaded files to this UID. Requires root.
uid = 1000

# Optional polling interval in secs, default 10.
polling_interval = 10

# Optional skip directories when downloading, default ["sample", "extras"]
skip_directories = ["sample", "extras"]

# Optional number of orchestration workers, default 10.
orchestration_workers = 10

# Optional number of download workers, default 4. This controls how many downloads we run in parallel.
download_workers = 4

[realdebrid]
# Written by 'godebrid auth'. Set api_key instead to use your private API token.
client_id = "{{CLIENT_ID}}"
client_secret = "{{CLIENT_SECRET}}"
refresh_token = "{{REFRESH_TOKEN}}"
access_token = "{{ACCESS_TOKEN}}"
token_type = "{{TOKEN_TYPE}}"
issued_at = {{ISSUED_AT}}
expires_in = {{EXPIRES_IN}}

# Optional. Share the rotated session between several instances through Redis.
# [session_store]
# redis_url = "redis://localhost:6379/0"
# key = "godebrid:session"

# Both [sonarr] and [radarr] are optional, but you'll need at least one of them
[sonarr]
url = "http://mysonarrhost:8989/sonarr"
# Can be found in Settings -> General
api_key = "MYSONARRAPIKEY"

[radarr]
url = "http://myradarrhost:7878/radarr"
# Can be found in Settings -> General
api_key = "MYRADARRAPIKEY"

[whisparr]
url = "http://mywhisparrhost:6969/radarr"
# Can be found in Settings -> General
api_key = "MYWHISPARRAPIKEY"
`

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	urlStyle   = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
	codeStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("0")).Background(lipgloss.Color("212"))
	boxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).Padding(1, 2)
)

// RenderDevicePrompt formats the instructions for approving a device.
func RenderDevicePrompt(d realdebrid.DeviceAuthorization) string {
	lines := []string{
		titleStyle.Render("Authorize godebrid on Real-Debrid"),
		"",
		"1. Open " + urlStyle.Render(d.VerificationURL),
		"2. Enter the code " + codeStyle.Render(d.UserCode),
	}
	if d.ExpiresIn > 0 {
		lines = append(lines, "", fmt.Sprintf("The code expires in %s.", time.Duration(d.ExpiresIn)*time.Second))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// DevicePrompt returns a prompt hook that writes the instructions to w.
func DevicePrompt(w io.Writer) func(realdebrid.DeviceAuthorization) {
	return func(d realdebrid.DeviceAuthorization) {
		fmt.Fprintln(w, RenderDevicePrompt(d))
		fmt.Fprintln(w, "Waiting for approval...")
	}
}

// Authorize runs the device flow, prompting on w.
func Authorize(ctx context.Context, w io.Writer, opts ...realdebrid.Option) (*realdebrid.RefreshableSession, error) {
	opts = append(opts, realdebrid.WithPrompt(DevicePrompt(w)))
	session, err := realdebrid.NewAuthenticator(opts...).Authorize(ctx)
	if err != nil {
		return nil, fmt.Errorf("authorizing device: %w", err)
	}
	return session, nil
}

// RunDeviceAuth authorizes a device and stores the credentials in the
// config at configPath, keeping its other settings.
func RunDeviceAuth(ctx context.Context, configPath string, w io.Writer, opts ...realdebrid.Option) error {
	// Fail on a broken config before the user approves the device.
	if _, err := config.LoadOrDefault(configPath); err != nil {
		return err
	}

	session, err := Authorize(ctx, w, opts...)
	if err != nil {
		return err
	}

	err = config.UpdateFile(configPath, func(c *config.Config) {
		store.ApplySession(&c.RealDebrid, session)
	})
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(w, "Credentials saved to %s\n", configPath)
	return nil
}

// GenerateConfig authorizes a device and writes a commented config file
// holding its credentials.
func GenerateConfig(ctx context.Context, configPath string, w io.Writer, opts ...realdebrid.Option) error {
	fmt.Fprintf(w, "Generating config %s\n", configPath)

	session, err := Authorize(ctx, w, opts...)
	if err != nil {
		return err
	}

	content := renderConfig(session)

	// Check if config file already exists and back it up
	if _, err := os.Stat(configPath); err == nil {
		backupPath := configPath + ".bak"
		fmt.Fprintf(w, "Backing up config %s\n", configPath)
		if err := os.Rename(configPath, backupPath); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	fmt.Fprintf(w, "Writing %s\n", configPath)
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func renderConfig(s *realdebrid.RefreshableSession) string {
	return strings.NewReplacer(
		"{{CLIENT_ID}}", s.ClientID,
		"{{CLIENT_SECRET}}", s.ClientSecret,
		"{{REFRESH_TOKEN}}", s.RefreshToken,
		"{{ACCESS_TOKEN}}", s.AccessToken,
		"{{TOKEN_TYPE}}", s.TokenType,
		"{{ISSUED_AT}}", s.IssuedAt.UTC().Format(time.RFC3339),
		"{{EXPIRES_IN}}", strconv.FormatInt(int64(s.ExpiresIn/time.Second), 10),
	).Replace(configTemplate)
}
