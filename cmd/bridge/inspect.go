package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/store"
	"github.com/spf13/cobra"
)

func newConversationsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			convs, err := store.ListConversations(gormDB)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tROLE A\tROLE B\tCREATED\tEXPIRES")
			for _, c := range convs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					c.ID, c.SessionARole, c.SessionBRole,
					c.CreatedAt.Format(time.RFC3339), c.ExpiresAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to bridge config file")
	return cmd
}

func newMessagesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "Show all messages in a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			msgs, err := store.ConversationMessages(gormDB, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages.")
				return nil
			}

			for _, m := range msgs {
				read := "unread"
				if m.Read {
					read = "read"
				}
				fmt.Fprintf(out, "[%d] %s -> %s (%s, %s)\n%s\n\n",
					m.ID, m.FromSession, m.ToSession,
					m.Timestamp.Format(time.RFC3339), read, m.Body)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to bridge config file")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			entries, err := store.RecentAudit(gormDB, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit entries.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tCONVERSATION\tSESSION\tACTION\tDETAILS")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.ConversationID, e.SessionID, e.Action, e.Details)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to bridge config file")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}
