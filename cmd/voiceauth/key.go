package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the vault key",
}

var keyEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Load the vault key, generating it on first use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStack(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.vault.EnsureKey(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Vault key %q ready\n", st.keyring.Alias())
		return nil
	},
}

var keyInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show when the vault key was created and last loaded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStack(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer st.Close()

		alias := st.keyring.Alias()
		meta := st.keyStore.Metadata().Get(alias)
		if meta == nil {
			fmt.Printf("Vault key %q has not been provisioned by this host\n", alias)
			return nil
		}
		fmt.Printf("Alias:       %s\n", alias)
		fmt.Printf("Created:     %s\n", formatTime(meta.CreatedAt))
		fmt.Printf("Last loaded: %s\n", formatTime(meta.LastLoaded))
		return nil
	},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func init() {
	keyCmd.AddCommand(keyEnsureCmd)
	keyCmd.AddCommand(keyInfoCmd)
	rootCmd.AddCommand(keyCmd)
}
