package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/netra-systems/zen-sub295/internal/config"
	"github.com/netra-systems/zen-sub295/internal/storage/sqlite"
	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

// errCheckFailed signals a completed check that found problems.
// main maps it to exit code 1 without printing it.
var errCheckFailed = errors.New("event sequence check failed")

var (
	configPath string
	dbPath     string
	logLevel   string
	logJSON    bool
	noColor    bool

	profile *config.Profile
	logger  = slog.Default()

	rootCmd = &cobra.Command{
		Use:   "eventseq",
		Short: "Validate the order of agent run events",
		Long: `eventseq checks that the events emitted during an agent run arrive in a
valid order: each declared event type at most once, only after its
dependencies, and never earlier in time than the last accepted event.

Events are read as JSON lines from files, stdin, a growing log file or a
websocket feed. Every run ID is validated independently.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Profile YAML file (default: $"+config.EnvConfigPath+" or the canonical graph)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database for stored runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errCheckFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// setup configures logging and color and loads the profile
func setup(cmd *cobra.Command, args []string) error {
	if noColor {
		color.NoColor = true
	}

	l, err := newLogger(cmd.ErrOrStderr(), logLevel, logJSON)
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(logger)

	p, err := config.Load(configPath)
	if err != nil {
		return err
	}
	profile = p
	logger.Debug("profile loaded", "version", p.Version, "events", len(p.Events))
	return nil
}

func newLogger(w io.Writer, level string, asJSON bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// newMonitor builds a monitor from the profile
func newMonitor(p *config.Profile, observers ...watchdog.Observer) (*watchdog.Monitor, error) {
	cfg, err := p.MonitorConfig()
	if err != nil {
		return nil, err
	}
	cfg.Observers = observers
	cfg.Logger = logger
	return watchdog.NewMonitor(cfg), nil
}

// openStore opens the --db database
func openStore() (*sqlite.Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("no database: pass --db")
	}
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}
