package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/voiceauth/internal/api"
	"github.com/benaskins/voiceauth/internal/authconfig"
	"github.com/benaskins/voiceauth/internal/bridge"
	"github.com/benaskins/voiceauth/internal/config"
	"github.com/benaskins/voiceauth/internal/native"
	"github.com/benaskins/voiceauth/internal/presenter"
)

var authenticateCmd = &cobra.Command{
	Use:   "authenticate",
	Short: "Present the credential form and print the result",
	Long: `Present the credential form and print the authentication result as JSON.

By default the form runs in this terminal. With --remote the request is sent
to a running "voiceauth serve" over its socket and the form is presented there.`,
	Args: cobra.NoArgs,
	RunE: runAuthenticate,
}

var (
	authRemote     bool
	authSocket     string
	authTitle      string
	authConfigJSON string
	authTimeout    time.Duration
)

func init() {
	authenticateCmd.Flags().BoolVar(&authRemote, "remote", false, "Send the request to a running voiceauth serve")
	authenticateCmd.Flags().StringVar(&authSocket, "socket", "", "API socket (default ~/.voiceauth/voiceauth.sock)")
	authenticateCmd.Flags().StringVar(&authTitle, "title", "", "Form title")
	authenticateCmd.Flags().StringVar(&authConfigJSON, "config-json", "", "Form config as a JSON object (unknown keys pass through)")
	authenticateCmd.Flags().DurationVar(&authTimeout, "timeout", 0, "Give up after this long (0 waits indefinitely)")
	rootCmd.AddCommand(authenticateCmd)
}

func runAuthenticate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if authTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, authTimeout)
		defer cancel()
	}

	var partial authconfig.Partial
	if authConfigJSON != "" {
		if err := json.Unmarshal([]byte(authConfigJSON), &partial); err != nil {
			return fmt.Errorf("parsing --config-json: %w", err)
		}
	}
	if authTitle != "" {
		partial.Title = authconfig.String(authTitle)
	}

	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return err
	}

	reg := native.NewRegistry()
	if authRemote {
		socket := authSocket
		if socket == "" {
			socket = defaultSocketPath()
		}
		client := api.DialUnix(socket)
		defer client.Close()
		reg.Register(native.ModuleName, client)
	} else {
		st, err := openStack(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close()

		perSecond, burst := cfg.RateLimitOrDefault()
		mod := native.New(
			native.WithPresenter(presenter.NewTUI(os.Stdin, os.Stderr)),
			native.WithCredentials(st.vault),
			native.WithRateLimit(perSecond, burst),
		)
		defer mod.Close()
		reg.Register(native.ModuleName, mod)
	}

	b, err := bridge.Link(reg, bridge.WithDefaults(cfg.Defaults), bridge.WithDebug(debug))
	if err != nil {
		return err
	}
	defer b.Cleanup()

	res, err := b.AuthenticateAndWait(ctx, partial, bridge.Options{
		OnProgress: func(status string) {
			if debug {
				fmt.Fprintln(os.Stderr, status)
			}
		},
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
