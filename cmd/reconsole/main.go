// reconsole drives a reconnaissance scan backend from the terminal: it
// submits scans, follows them live and fetches what they produce.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hugh/reconsole/internal/api/client"
	"github.com/hugh/reconsole/internal/console"
	"github.com/hugh/reconsole/internal/models"
	"github.com/hugh/reconsole/pkg/config"
	"github.com/hugh/reconsole/pkg/util"
)

// Version information (set during build)
var version = "dev"

const dnsTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	backendURL string
	envFile    string
	verbose    bool
	preflight  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "reconsole",
		Short:   "Terminal console for the reconnaissance scan service",
		Version: version,
		Long: `reconsole submits reconnaissance scans to the scan service, follows the
tracked scan until it finishes, and fetches its results and output files.

Configuration comes from the environment and an optional .env file; see
BACKEND_URL, POLL_INTERVAL_MS and RENDER_CONFIG.`,
		Example: `  # Start a scan and follow it in the dashboard
  reconsole scan example.com --type cool --watch

  # Browse recent scans
  reconsole watch

  # Save a finished scan's record as YAML
  reconsole results scan-42 --format yaml --out ./reports`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.backendURL, "backend", "", "Scan service base URL (overrides BACKEND_URL)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", "", "Load environment from this file instead of ./.env")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")

	cmd.AddCommand(
		newScanCmd(opts),
		newWatchCmd(opts),
		newViewCmd(opts),
		newListCmd(opts),
		newFilesCmd(opts),
		newFileCmd(opts),
		newResultsCmd(opts),
		newToolsCmd(opts),
		newScheduleCmd(opts),
	)
	return cmd
}

// app is everything one command invocation works with.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *client.Client
	renderer  *console.LogRenderer
	board     *console.Board
	ctrl      *console.Controller
	finalized chan *models.ScanRecord
}

// newApp loads configuration and wires the engine. Logs go to logOut.
func newApp(ctx context.Context, opts *rootOptions, logOut io.Writer) (*app, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", opts.envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.backendURL != "" {
		cfg.Backend.URL = opts.backendURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger := util.NewLoggerTo(logOut, cfg.Server.Env)

	overrides, err := config.LoadRenderOverrides(cfg.Render.Path)
	if err != nil {
		return nil, err
	}
	renderer := console.NewLogRenderer(console.DefaultRenderConfig().WithOverrides(overrides), console.PlainMarkup{})

	apiClient := client.New(cfg.Backend.URL,
		client.WithTimeout(cfg.Backend.Timeout()),
		client.WithRateLimit(cfg.Backend.RequestsPerSecond, cfg.Backend.RequestBurst),
		client.WithLogger(logger),
	)
	if err := apiClient.WaitHealthy(ctx, cfg.Backend.HealthMaxWait()); err != nil {
		return nil, fmt.Errorf("scan service at %s is not available: %w", apiClient.BaseURL(), err)
	}

	var resolver console.Resolver
	if opts.preflight {
		resolver = console.NewDNSResolver(cfg.DNS.Resolver, dnsTimeout)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		client:    apiClient,
		renderer:  renderer,
		board:     console.NewBoard(renderer),
		finalized: make(chan *models.ScanRecord, 1),
	}
	a.ctrl = console.NewController(apiClient, a.board, console.Options{
		Interval:             cfg.Poll.Interval(),
		Renderer:             renderer,
		Logger:               logger,
		ToolWarningThreshold: cfg.Poll.ToolWarningThreshold,
		Resolver:             resolver,
		OnFinalized: func(rec *models.ScanRecord) {
			select {
			case a.finalized <- rec:
			default:
			}
		},
	})
	return a, nil
}

func (a *app) Close() {
	a.ctrl.Close()
}

// setup builds the app for a command, logging to stderr only with --verbose.
func setup(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	var logOut io.Writer = io.Discard
	if opts.verbose {
		logOut = cmd.ErrOrStderr()
	}
	return newApp(cmd.Context(), opts, logOut)
}
