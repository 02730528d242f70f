package main

import (
	"fmt"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/guard"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/sweeper"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var (
		configPath string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired conversations and approval tokens",
		Long: `Runs one cleanup pass over the conversation store and the approval-token
store. With --watch, keeps sweeping on the configured cron schedule until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			g := guard.New(cfg.Guard.TokenFile, cfg.Guard.JournalFile)
			s, err := sweeper.New(gormDB, g)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if watch {
				fmt.Fprintf(out, "Sweeping on schedule %q (ctrl-c to stop)\n", cfg.Sweep.Schedule)
				return s.Run(cmd.Context(), cfg.Sweep.Schedule, out)
			}

			report, err := s.Sweep()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Purged %d conversation(s), %d token(s)\n",
				report.ConversationsPurged, report.TokensPurged)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to bridge config file")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep sweeping on the configured schedule")
	return cmd
}
