package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
	"github.com/briefcasehub/briefcase-manager/internal/config"
	"github.com/briefcasehub/briefcase-manager/internal/events"
	"github.com/briefcasehub/briefcase-manager/internal/hub"
	"github.com/briefcasehub/briefcase-manager/internal/index"
	"github.com/briefcasehub/briefcase-manager/internal/manager"
	"github.com/briefcasehub/briefcase-manager/internal/nativedb"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagCacheRoot  string
	flagLogLevel   string
	flagQuiet      bool
	flagJSON       bool
)

// skipManagerAnnotation marks a command that manages its own config/index
// lifecycle instead of going through loadManager, mirroring the teacher's
// skipConfigAnnotation escape hatch from PersistentPreRunE.
const skipManagerAnnotation = "skip-manager"

// CLIContext bundles the constructed Manager and logger a subcommand's RunE
// needs, created once in PersistentPreRunE and stashed on the command's
// context, mirroring the teacher's root.go CLIContext.
type CLIContext struct {
	Mgr    *manager.Manager
	Cfg    *config.Config
	Logger *slog.Logger
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — loadManager must run in PersistentPreRunE before RunE")
	}
	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "briefcasectl",
		Short:         "Briefcase manager CLI",
		Long:          "A command-line front end over the briefcase manager's download/pull/push/delete surface.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipManagerAnnotation] == "true" {
				return nil
			}
			return loadManager(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc := cliContextFrom(cmd.Context()); cc != nil {
				return cc.Mgr.Wait()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: platform config dir)")
	cmd.PersistentFlags().StringVar(&flagCacheRoot, "cache-root", "", "override the configured cache root")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, or error (default: warn)")
	cmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "suppress status messages on stderr")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON output where supported")

	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newPushCmd())
	cmd.AddCommand(newReverseCmd())
	cmd.AddCommand(newReinstateCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newPurgeCmd())
	cmd.AddCommand(newBootstrapCmd())

	return cmd
}

// newDbFactory returns the index.DbFactory every command wires through the
// manager and the offline bootstrap scan. No real native storage engine
// ships in this tree (SPEC_FULL.md §4.K: it is an out-of-process
// collaborator specified only by its interface); a production build links
// a real nativedb.Db behind this same factory signature.
func newDbFactory() nativedb.Db {
	return nativedb.NewFake("", "", briefcase.Standalone)
}

// loadConfigAndLayout resolves the config file and cache-root layout common
// to every subcommand, applying --config/--cache-root/--log-level overrides.
func loadConfigAndLayout() (*config.Config, *briefcase.Layout, *slog.Logger, error) {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	logger := buildLogger()

	cfg, err := config.LoadOrDefault(path, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if flagCacheRoot != "" {
		cfg.CacheRoot = flagCacheRoot
	}

	layout := briefcase.NewLayout(cfg.CacheRoot, briefcase.LayoutVersion{Major: cfg.LayoutMajor, Minor: cfg.LayoutMinor})
	if err := layout.EnsureDir(layout.VersionDir()); err != nil {
		return nil, nil, nil, fmt.Errorf("preparing cache root: %w", err)
	}
	return cfg, layout, logger, nil
}

// loadManager resolves configuration, builds a logger, constructs the hub
// client and a fresh Manager via manager.Initialize, and stores the result
// on the command's context for use by subcommands.
func loadManager(cmd *cobra.Command) error {
	cfg, layout, logger, err := loadConfigAndLayout()
	if err != nil {
		return err
	}

	hubClient := hub.NewClient(cfg.Hub.BaseURL, &http.Client{Timeout: cfg.Hub.RequestTimeoutDuration()}, tokenSourceFromEnv(), logger, "briefcasectl/"+version)

	idx := index.New()
	if err := index.Bootstrap(cmd.Context(), idx, layout, newDbFactory, logger); err != nil {
		logger.Warn("offline bootstrap failed, starting with an empty index", "err", err)
	}

	mgr, err := manager.Initialize(idx, layout, hubClient, newDbFactory, events.New(logger), cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing manager: %w", err)
	}

	cc := &CLIContext{Mgr: mgr, Cfg: cfg, Logger: logger}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))
	return nil
}

// tokenSourceFromEnv adapts golang.org/x/oauth2 onto hub.TokenSource using a
// bearer token read from BRIEFCASECTL_HUB_TOKEN. A real deployment swaps
// this for a proper OAuth2 flow (client-credentials, device code, ...);
// this CLI only needs the adapter shape to exercise the hub client.
func tokenSourceFromEnv() hub.TokenSource {
	return oauthTokenSource{src: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: os.Getenv("BRIEFCASECTL_HUB_TOKEN")})}
}

type oauthTokenSource struct {
	src oauth2.TokenSource
}

func (o oauthTokenSource) Token(_ context.Context) (string, error) {
	tok, err := o.src.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// buildLogger returns an slog.Logger writing text to a terminal and JSON
// otherwise, mirroring the teacher's format.go/buildLogger split of
// config-driven level with a TTY-driven handler choice.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn
	switch flagLogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
