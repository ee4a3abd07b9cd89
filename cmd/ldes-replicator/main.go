package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/internal/pipeline"
	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/registry"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
	"github.com/ajitpratap0/ldes-replicator/pkg/observability"
	"github.com/ajitpratap0/ldes-replicator/pkg/state"

	// Import all available connectors to register them
	_ "github.com/ajitpratap0/ldes-replicator/pkg/connector/destinations"
)

var version = "0.1.0"

const (
	defaultConfigFile = "replicator.yaml"
	stopTimeout       = 30 * time.Second
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. Flags can also be set through LDES_*
// environment variables, e.g. LDES_CONFIG or LDES_LOG_LEVEL.
func newRootCommand(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix("ldes")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "ldes-replicator",
		Short: "Replicate linked data event streams into sink connectors",
		Long: `ldes-replicator reads versioned members from event streams and writes
them to graph stores, document stores, message brokers and files. Progress is
checkpointed per stream so a restart resumes at the last page.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigFile, "Path to the replicator YAML configuration")
	root.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newRunCommand(v),
		newResetCommand(v),
		newValidateCommand(v),
		newListCommand(),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision all streams and replicate them until they end or a signal arrives",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReplicator(ctx, v)
		},
	}
	cmd.Flags().String("metrics-address", "", "Serve Prometheus metrics on this address (overrides metrics.address)")
	_ = v.BindPFlag("metrics-address", cmd.Flags().Lookup("metrics-address"))
	return cmd
}

func newResetCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the checkpoints of every configured stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(v)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			orch, err := pipeline.New(cfg, pipeline.WithLogger(log))
			if err != nil {
				return err
			}
			resetErr := orch.Reset(cmd.Context())
			stopErr := orch.Stop(context.Background())
			if err := errors.Join(resetErr, stopErr); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset state of %d streams\n", len(cfg.Streams))
			return nil
		},
	}
}

func newValidateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and resolve every connector type",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadReplicatorConfig(v.GetString("config"))
			if err != nil {
				return err
			}
			if _, err := pipeline.New(cfg, pipeline.WithLogger(zap.NewNop())); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s is valid: %d streams, %d connectors\n",
				cfg.Name, len(cfg.Streams), len(cfg.Connectors))
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available connector and state store types",
		Run: func(cmd *cobra.Command, args []string) {
			printCatalog(cmd.OutOrStdout())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ldes-replicator v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func printCatalog(w io.Writer) {
	fmt.Fprintln(w, "Available Connectors:")
	for _, info := range registry.GetRegistry().Catalog() {
		fmt.Fprintf(w, "  - %s: %s\n", info.Type, info.Description)
		if len(info.Capabilities) > 0 {
			fmt.Fprintf(w, "      capabilities: %s\n", strings.Join(info.Capabilities, ", "))
		}
		keys := make([]string, 0, len(info.Settings))
		for k := range info.Settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "      %s: %s\n", k, info.Settings[k])
		}
	}
	fmt.Fprintln(w, "\nAvailable State Stores:")
	for _, t := range state.Types() {
		fmt.Fprintf(w, "  - %s\n", t)
	}
}

// setup loads the configuration and initializes the global logger from it
func setup(v *viper.Viper) (*config.ReplicatorConfig, *zap.Logger, error) {
	cfg, err := config.LoadReplicatorConfig(v.GetString("config"))
	if err != nil {
		return nil, nil, err
	}
	if level := v.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := v.GetString("metrics-address"); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = addr
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	return cfg, logger.Get(), nil
}

func runReplicator(ctx context.Context, v *viper.Viper) error {
	cfg, log, err := setup(v)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing, version, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("failed to shut down tracing", zap.Error(err))
		}
	}()

	if cfg.Metrics.Enabled {
		srv := serveMetrics(cfg.Metrics.Address, log)
		defer func() { _ = srv.Close() }()
	}

	orch, err := pipeline.New(cfg, pipeline.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := orch.Stop(stopCtx); err != nil {
			log.Error("failed to stop replicator", zap.Error(err))
		}
	}()

	log.Info("starting replicator",
		zap.String("name", cfg.Name),
		zap.String("version", version),
		zap.Int("streams", len(cfg.Streams)),
		zap.Int("connectors", len(cfg.Connectors)))

	// streams that failed to provision are reported and the rest keep going
	provisionErr := orch.Provision(ctx)

	runErr := orch.Run(ctx)
	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		log.Info("replication interrupted")
		runErr = stripCanceled(runErr)
	}

	for name, status := range orch.Status() {
		log.Info("stream finished", zap.String("stream", name), zap.String("status", string(status)))
	}
	return errors.Join(provisionErr, runErr)
}

// stripCanceled drops the context cancellation from a joined run error so
// an interrupted run with otherwise healthy streams exits cleanly
func stripCanceled(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	var kept []error
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, context.Canceled) {
			kept = append(kept, e)
		}
	}
	return errors.Join(kept...)
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("serving metrics", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
