package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/voiceauth/internal/api"
	"github.com/benaskins/voiceauth/internal/bridge"
	"github.com/benaskins/voiceauth/internal/native"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionRemote bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI and native module versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var module bridge.NativeModule = native.New()
		if versionRemote {
			client := api.DialUnix(defaultSocketPath())
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := client.Health(ctx); err != nil {
				return err
			}
			module = client
		}
		fmt.Printf("voiceauth %s\n", version)
		fmt.Printf("%s %s\n", native.ModuleName, bridge.New(module, nil).Version())
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionRemote, "remote", false, "Report the version of the running voiceauth serve")
	rootCmd.AddCommand(versionCmd)
}
