// Package commands implements the fsp command line client.
package commands

import (
	"errors"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Pablu23/fsp/internal/client"
	"github.com/Pablu23/fsp/internal/config"
	"github.com/Pablu23/fsp/internal/metrics"
)

var (
	cfg        *config.Config
	collectors metrics.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "fsp",
	Short: "File Service Protocol client",
	Long: `fsp talks to FSP servers over UDP.

Targets are written as fsp://host:port/path or host[:port]/path. The port
defaults to 21.

Settings are read from fsp.yaml in the working directory or in
$XDG_CONFIG_HOME/fsp, and from FSP_* environment variables, for example
FSP_CLIENT_TIMEOUT=60s.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func Execute() error {
	return rootCmd.Execute()
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Request timeout, overrides the config")

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(grabCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(rmdirCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(proCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Client.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			ForceColors: true,
		})
	}

	if cfg.Metrics.Enabled {
		serveMetrics(cfg.Metrics.Listen)
	}
	return nil
}

// serveMetrics exposes the session metrics while the command runs.
func serveMetrics(listen string) {
	registry := prometheus.NewRegistry()
	collectors = metrics.NewPrometheus(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		err := http.ListenAndServe(listen, mux)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).WithField("Address", listen).Error("Could not serve metrics")
		}
	}()
	log.WithField("Address", listen).Info("Serving metrics")
}

// open starts a session to the server of target and returns the remote path.
func open(target string) (*client.Session, string, error) {
	t, err := parseTarget(target, cfg.Client.Port)
	if err != nil {
		return nil, "", err
	}

	opts := []func(*client.Options){cfg.Client.Options()}
	if collectors != nil {
		opts = append(opts, client.WithMetrics(collectors))
	}
	s, err := client.New(t.Host, t.Port, opts...)
	if err != nil {
		return nil, "", err
	}
	return s, t.Path, nil
}

func closeSession(s *client.Session) {
	if err := s.Close(); err != nil {
		log.WithError(err).Error("Could not close session")
	}
}
