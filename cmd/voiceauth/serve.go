package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benaskins/voiceauth/internal/api"
	"github.com/benaskins/voiceauth/internal/config"
	"github.com/benaskins/voiceauth/internal/journal"
	"github.com/benaskins/voiceauth/internal/native"
	"github.com/benaskins/voiceauth/internal/presenter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the native module behind the local API",
	Long:  "Run the native module and expose launch, events and credential operations over a Unix socket for bridges in other processes.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var (
	apiAddr     string
	serveSocket string
	headless    bool
)

func init() {
	serveCmd.Flags().StringVar(&apiAddr, "api-addr", "", "Optional TCP address for API (e.g. 127.0.0.1:9090)")
	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "API socket (default ~/.voiceauth/voiceauth.sock)")
	serveCmd.Flags().BoolVar(&headless, "headless", false, "Run without a presentation surface")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	st, err := openStack(ctx, "bridge-host")
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.vault.EnsureKey(ctx); err != nil {
		return err
	}

	perSecond, burst := st.cfg.RateLimitOrDefault()
	opts := []native.Option{
		native.WithCredentials(st.vault),
		native.WithRateLimit(perSecond, burst),
	}
	if !headless {
		opts = append(opts, native.WithPresenter(presenter.NewTUI(nil, nil)))
	}
	mod := native.New(opts...)
	defer mod.Close()

	ring := journal.New(journal.DefaultSize)
	go ring.Follow(ctx, mod.Events())

	srv := api.NewServer(mod, ring, ctx)
	srv.SetDefaults(st.cfg.Defaults)

	go func() {
		err := config.Watch(ctx, resolvedConfigPath(), func(cfg *config.Config) {
			applyLogLevel(cfg)
			mod.SetRateLimit(cfg.RateLimitOrDefault())
			srv.SetDefaults(cfg.Defaults)
		})
		if err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()

	socketPath := serveSocket
	if socketPath == "" {
		socketPath = defaultSocketPath()
	}
	// Remove stale socket
	os.Remove(socketPath)
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenUnix(socketPath)
	}()

	addr := apiAddr
	if addr == "" {
		addr = st.cfg.APIAddr
	}
	if addr != "" {
		go func() {
			if err := srv.ListenTCP(addr); err != nil {
				slog.Error("TCP API error", "error", err)
			}
		}()
	}

	slog.Info("voiceauth ready", "socket", socketPath, "store", st.cfg.StoreBackend(), "headless", headless)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			slog.Error("API server error", "error", err)
		}
	}

	cancel()
	srv.Shutdown(context.Background())
	os.Remove(socketPath)

	slog.Info("voiceauth stopped")
	return nil
}
