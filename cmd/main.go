package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/joho/godotenv"
	"github.com/ochronus/godebrid/internal/app"
	"github.com/ochronus/godebrid/internal/config"
	"github.com/ochronus/godebrid/internal/download"
	"github.com/ochronus/godebrid/internal/http"
	"github.com/ochronus/godebrid/internal/services/realdebrid"
	"github.com/ochronus/godebrid/internal/utils"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, envFile string

	defaultConfigPath, err := config.DefaultConfigPath()
	if err != nil {
		defaultConfigPath = "./config.toml"
	}

	rootCmd := &cobra.Command{
		Use:   "godebrid",
		Short: "Real-Debrid to sonarr/radarr/whisparr proxy",
		Long:  "Proxy that allows Real-Debrid to be used as a download client for sonarr/radarr/whisparr. The proxy uses the Transmission protocol.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(envFile)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with GODEBRID_* overrides")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxy(cmd.Context(), configPath)
		},
	}

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize this device on Real-Debrid and save the credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return utils.RunDeviceAuth(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the Real-Debrid access token now",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, client, err := newClient(cmd.Context(), configPath, false)
			if err != nil {
				return err
			}
			defer container.Close()
			if err := client.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Access token refreshed")
			return nil
		},
	}

	generateConfigCmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return utils.GenerateConfig(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	}

	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Show the Real-Debrid account",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, client, err := newClient(cmd.Context(), configPath, true)
			if err != nil {
				return err
			}
			defer container.Close()
			user, err := client.User(cmd.Context())
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), user)
			return nil
		},
	}

	var limit int
	torrentsCmd := &cobra.Command{
		Use:   "torrents",
		Short: "List Real-Debrid torrents",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, client, err := newClient(cmd.Context(), configPath, true)
			if err != nil {
				return err
			}
			defer container.Close()
			torrents, err := client.Torrents(cmd.Context(), realdebrid.Page{Limit: limit}, "")
			if errors.Is(err, realdebrid.ErrNoContent) {
				fmt.Fprintln(cmd.OutOrStdout(), "No torrents")
				return nil
			}
			if err != nil {
				return err
			}
			printTorrents(cmd.OutOrStdout(), torrents.Items)
			return nil
		},
	}
	torrentsCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of torrents to show")

	hostsCmd := &cobra.Command{
		Use:   "hosts",
		Short: "List supported hosters and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, client, err := newClient(cmd.Context(), configPath, true)
			if err != nil {
				return err
			}
			defer container.Close()
			hosts, err := client.HostsStatus(cmd.Context())
			if err != nil {
				return err
			}
			printHosts(cmd.OutOrStdout(), hosts)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "godebrid version %s\n", version)
		},
	}

	rootCmd.AddCommand(runCmd, authCmd, refreshCmd, generateConfigCmd, userCmd, torrentsCmd, hostsCmd, versionCmd)
	return rootCmd
}

// loadEnvFile applies a dotenv file; a missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func runProxy(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	container, err := app.NewContainer(ctx, cfg, app.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	defer container.Close()

	container.Logger.Infof("Starting godebrid, version %s", version)

	arrClients := make([]download.ArrServiceClient, 0, len(container.ArrClients))
	for _, c := range container.ArrClients {
		arrClients = append(arrClients, download.ArrServiceClient{Name: c.Name, Client: c.Client})
	}

	downloadManager := download.NewManager(cfg, container.Logger, container.Client, arrClients,
		download.WithMetrics(container.Metrics))
	if err := downloadManager.StartWithContext(ctx); err != nil {
		return fmt.Errorf("failed to start download manager: %w", err)
	}
	defer downloadManager.Stop()

	server := http.NewServer(container)
	return server.StartWithContext(ctx)
}

// newClient builds a Real-Debrid client from the config, persisting rotated
// sessions the way the proxy does. The caller closes the container.
func newClient(ctx context.Context, configPath string, refresh bool) (*app.Container, *realdebrid.Client, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	container, err := app.NewContainer(ctx, cfg,
		app.WithConfigPath(configPath),
		app.WithClientValidation(false),
	)
	if err != nil {
		return nil, nil, err
	}

	client, ok := container.Client.(*realdebrid.Client)
	if !ok {
		container.Close()
		return nil, nil, fmt.Errorf("unexpected client type %T", container.Client)
	}
	if !refresh {
		return container, client, nil
	}
	if _, err := client.RefreshIfExpired(ctx); err != nil && !errors.Is(err, realdebrid.ErrNotOAuth2) {
		container.Close()
		return nil, nil, err
	}
	return container, client, nil
}

func printUser(w io.Writer, u *realdebrid.User) {
	t := table.New().Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Row("Username", u.Username).
		Row("Email", u.Email).
		Row("Type", u.Type).
		Row("Points", strconv.Itoa(u.Points)).
		Row("Premium until", u.Expiration)
	fmt.Fprintln(w, t.Render())
}

func printTorrents(w io.Writer, torrents []realdebrid.Torrent) {
	t := table.New().Border(lipgloss.RoundedBorder()).
		Headers("ID", "NAME", "STATUS", "PROGRESS", "SIZE")
	for _, tr := range torrents {
		t.Row(tr.ID, tr.Filename, tr.Status, fmt.Sprintf("%.0f%%", tr.Progress), humanBytes(tr.Bytes))
	}
	fmt.Fprintln(w, t.Render())
}

func printHosts(w io.Writer, hosts map[string]realdebrid.Host) {
	names := make([]string, 0, len(hosts))
	for name := range hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.New().Border(lipgloss.RoundedBorder()).Headers("HOST", "NAME", "STATUS")
	for _, name := range names {
		h := hosts[name]
		status := "unknown"
		if h.Status != nil {
			status = *h.Status
		}
		t.Row(name, h.Name, status)
	}
	fmt.Fprintln(w, t.Render())
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
