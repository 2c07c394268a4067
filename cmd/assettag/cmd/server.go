package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmcleod/assettag/api"
	"github.com/jmcleod/assettag/config"
	"github.com/jmcleod/assettag/credential"
	"github.com/jmcleod/assettag/registry"
	"github.com/jmcleod/assettag/scan"
	"github.com/jmcleod/assettag/session"
)

var (
	envFile         string
	port            int
	dataDir         string
	storageDriver   string
	baseURL         string
	tlsCert         string
	tlsKey          string
	trustedProxies  []string
	logLevel        string
	assetSessionTTL time.Duration
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the asset tracking server",
	Long: `Starts the web server. Settings come from the environment (and an optional
.env file); flags given on the command line take precedence.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.StringVar(&envFile, "env-file", ".env", "Optional .env file to load")
	f.IntVarP(&port, "port", "p", config.DefaultPort, "Port to listen on")
	f.StringVar(&dataDir, "data-dir", config.DefaultDataDir, "Directory for persistent data")
	f.StringVar(&storageDriver, "storage", config.DriverFile, "Snapshot backend: file, bbolt, sqlite, postgres or memory")
	f.StringVar(&baseURL, "base-url", "", "Externally reachable URL encoded into asset codes")
	f.StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	f.StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	f.StringSliceVar(&trustedProxies, "trusted-proxies", nil, "CIDRs whose forwarding headers are trusted")
	f.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error")
	f.DurationVar(&assetSessionTTL, "asset-session-ttl", 0, "Lifetime of asset verification sessions (0 = until restart)")
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("storage") {
		cfg.StorageDriver = strings.ToLower(storageDriver)
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if flags.Changed("tls-cert") {
		cfg.TLSCert = tlsCert
	}
	if flags.Changed("tls-key") {
		cfg.TLSKey = tlsKey
	}
	if flags.Changed("trusted-proxies") {
		cfg.TrustedProxies = trustedProxies
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(logLevel)
	}
	if flags.Changed("asset-session-ttl") {
		cfg.AssetSessionTTL = assetSessionTTL
	}
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.StorageDriver, err)
	}
	defer store.Close()

	reg := registry.New(ctx, store, registry.WithLogger(logger))
	sessions := session.NewTable(session.WithAssetTTL(cfg.AssetSessionTTL))

	admin, err := credential.NewAdmin(cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return err
	}
	defer admin.Destroy()

	recorderOpts := []scan.Option{scan.WithLogger(logger)}
	if cfg.WebhookURL != "" {
		hook := scan.NewWebhook(cfg.WebhookURL, cfg.WebhookAuthHeader, logger)
		defer hook.Close()
		recorderOpts = append(recorderOpts, scan.WithNotifier(hook))
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithBaseURL(cfg.BaseURL),
		api.WithRecorder(scan.NewRecorder(reg, recorderOpts...)),
		api.WithSecureCookies(cfg.TLSCert != "" || strings.HasPrefix(cfg.BaseURL, "https://")),
	}
	if len(cfg.TrustedProxies) > 0 {
		opt, err := api.WithTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			return err
		}
		opts = append(opts, opt)
	}
	a, err := api.New(reg, sessions, admin, opts...)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.TLSCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan error, 1)
	go func() {
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	printBanner(cmd.OutOrStdout())
	logger.Info("server started",
		"port", cfg.Port,
		"base_url", cfg.BaseURL,
		"storage", cfg.StorageDriver,
		"assets", reg.Len(),
		"tls", server.TLSConfig != nil)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}
