package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/benaskins/voiceauth/internal/vault"
)

var credentialCmd = &cobra.Command{
	Use:     "credential",
	Aliases: []string{"cred"},
	Short:   "Manage encrypted credentials",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <identifier> [secret]",
	Short: "Encrypt and store a credential",
	Long:  "Store a credential. If secret is omitted, reads from stdin (useful for piping).",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStack(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer st.Close()

		var secret string
		if len(args) == 2 {
			secret = args[1]
		} else {
			// Read from stdin
			if term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Print("Enter secret: ")
				b, err := term.ReadPassword(int(os.Stdin.Fd()))
				if err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
				fmt.Println()
				secret = string(b)
			} else {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				secret = strings.TrimRight(string(b), "\n")
			}
		}

		if err := st.vault.Store(cmd.Context(), args[0], secret); err != nil {
			return err
		}
		fmt.Printf("Credential %q stored\n", args[0])
		return nil
	},
}

var credentialGetCmd = &cobra.Command{
	Use:   "get <identifier>",
	Short: "Decrypt and print a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStack(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer st.Close()

		secret, ok, err := st.vault.Retrieve(cmd.Context(), args[0])
		if err != nil {
			var de *vault.DecryptionError
			if errors.As(err, &de) {
				return fmt.Errorf("%w (delete it with: voiceauth credential delete %s)", err, args[0])
			}
			return err
		}
		if !ok {
			return fmt.Errorf("no credential stored for %q", args[0])
		}
		fmt.Println(secret)
		return nil
	},
}

var credentialListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List identifiers with a stored credential",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStack(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer st.Close()

		ids, err := st.vault.List(cmd.Context())
		if err != nil {
			return err
		}

		if len(ids) == 0 {
			fmt.Println("No credentials stored")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IDENTIFIER")
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
		w.Flush()
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:     "delete <identifier>",
	Short:   "Remove a stored credential",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStack(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer st.Close()

		existed, err := st.vault.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !existed {
			fmt.Printf("No credential stored for %q\n", args[0])
			return nil
		}
		fmt.Printf("Credential %q deleted\n", args[0])
		return nil
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd)
	credentialCmd.AddCommand(credentialGetCmd)
	credentialCmd.AddCommand(credentialListCmd)
	credentialCmd.AddCommand(credentialDeleteCmd)
	rootCmd.AddCommand(credentialCmd)
}
