package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/guard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newGuardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Approval token management",
	}

	cmd.AddCommand(newGuardEnableCmd())
	cmd.AddCommand(newGuardGenerateCmd())
	cmd.AddCommand(newGuardListCmd())
	cmd.AddCommand(newGuardCleanupCmd())
	return cmd
}

func guardFromConfig(configPath string) (*guard.Guard, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return guard.New(cfg.Guard.TokenFile, cfg.Guard.JournalFile), nil
}

func newGuardEnableCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable command execution with interactive confirmation",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The confirmation flow must be typed by a human at a terminal.
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("guard enable requires an interactive terminal")
			}

			g, err := guardFromConfig(configPath)
			if err != nil {
				return err
			}

			ok, err := g.Enable(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("confirmation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to bridge config file")
	return cmd
}

func newGuardGenerateCmd() *cobra.Command {
	var (
		configPath string
		ttl        int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a single-use approval token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Getenv(guard.EnvFlag) != "1" {
				return fmt.Errorf("%s not enabled; set %s=1 first", guard.EnvFlag, guard.EnvFlag)
			}

			g, err := guardFromConfig(configPath)
			if err != nil {
				return err
			}

			lifetime := time.Duration(ttl) * time.Second
			token, err := g.Generate(lifetime)
			if err != nil {
				return err
			}
			// Generate substitutes the default for nonpositive TTLs; report
			// the lifetime the token actually has.
			if lifetime <= 0 {
				lifetime = guard.DefaultTokenTTL
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Approval token generated")
			fmt.Fprintf(out, "  Token: %s\n", token)
			fmt.Fprintf(out, "  Valid for: %d seconds\n", int(lifetime.Seconds()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to bridge config file")
	cmd.Flags().IntVar(&ttl, "ttl", 300, "token lifetime in seconds")
	return cmd
}

func newGuardListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active (unused, unexpired) tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := guardFromConfig(configPath)
			if err != nil {
				return err
			}

			active, err := g.Active()
			if err != nil {
				return err
			}
			if len(active) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active tokens.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN\tCREATED\tEXPIRES\tTTL")
			for _, t := range active {
				fmt.Fprintf(w, "%s\t%s\t%s\t%ds\n",
					t.Preview, t.CreatedAt.Format(time.RFC3339),
					t.ExpiresAt.Format(time.RFC3339), t.TTLSeconds)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to bridge config file")
	return cmd
}

func newGuardCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := guardFromConfig(configPath)
			if err != nil {
				return err
			}

			removed, err := g.Cleanup()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired token(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to bridge config file")
	return cmd
}
