package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:           "renderproxy",
		Short:         "Forward HTML render requests with bootstrapped session credentials",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	}

	flags := root.PersistentFlags()
	flags.String("listen-addr", "", "listen address (env LISTEN_ADDR)")
	flags.String("log-level", "", "log level: debug, info, warn, error (env LOG_LEVEL)")
	flags.String("credential-policy", "", "lenient or strict (env CREDENTIAL_POLICY)")
	_ = v.BindPFlag("listen_addr", flags.Lookup("listen-addr"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("credential_policy", flags.Lookup("credential-policy"))

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return root
}

func serve(ctx context.Context, v *viper.Viper) error {
	cfg, err := LoadConfig(v)
	if err != nil {
		return err
	}

	logger, err := setupLogging(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sources, proxies := loadResources(cfg, logger)
	forwarder := NewForwarder(cfg, NewIdentitySynthesizer(sources, cfg.SpoofForwardedFor), proxies)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewServer(forwarder, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("policy", string(cfg.Policy)),
			zap.String("field_defaults", string(cfg.FieldDefaults)),
			zap.String("version", version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadResources loads the optional user agent list and proxy pool. Failures
// are logged and the feature is disabled; they never stop startup.
func loadResources(cfg *Config, logger *zap.Logger) (UserAgentSource, *ProxyPool) {
	var sources UserAgentSource
	if cfg.UserAgentSource != "" {
		list, err := LoadUserAgents(cfg.UserAgentSource, cfg.ConnectTimeout)
		if err != nil {
			logger.Warn("user agent source unavailable, using static pool", zap.Error(err))
		} else {
			logger.Info("loaded user agents", zap.Int("count", list.Count()))
			sources = list
		}
	}

	var proxies *ProxyPool
	if cfg.ProxyFile != "" {
		pool, err := LoadProxyPool(cfg.ProxyFile)
		if err != nil {
			logger.Warn("proxy pool unavailable, connecting directly", zap.Error(err))
		} else {
			logger.Info("loaded proxies", zap.Int("count", pool.Count()))
			proxies = pool
		}
	}

	return sources, proxies
}
