package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the most recently active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), flags, func(e *env) error {
				sessions, err := e.service.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions found")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tMESSAGES\tCREATED\tLAST ACTIVITY")
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.ID, s.MessageCount,
						s.CreatedAt.Format(time.DateTime), s.LastActivityAt.Format(time.DateTime))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "max sessions to list (0 for all)")
	return cmd
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <session-id>",
		Short: "Show message and token counts for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), flags, func(e *env) error {
				stats, err := e.service.GetStats(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session:            %s\n", args[0])
				fmt.Fprintf(out, "Total messages:     %d\n", stats.TotalMessages)
				fmt.Fprintf(out, "User messages:      %d\n", stats.UserMessages)
				fmt.Fprintf(out, "Assistant messages: %d\n", stats.AssistantMessages)
				fmt.Fprintf(out, "Total tokens:       %d\n", stats.TotalTokens)
				if stats.CreatedAt != nil {
					fmt.Fprintf(out, "Created:            %s\n", stats.CreatedAt.Format(time.DateTime))
					fmt.Fprintf(out, "Last activity:      %s\n", stats.LastActivityAt.Format(time.DateTime))
				}
				return nil
			})
		},
	}
}

func newClearCmd(flags *globalFlags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [session-id]",
		Short: "Delete conversation messages, keeping each session's persona",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := targetArgs(args, all); err != nil {
				return err
			}
			return withEnv(cmd.Context(), flags, func(e *env) error {
				ids := args
				if all {
					sessions, err := e.service.ListSessions(cmd.Context(), 0)
					if err != nil {
						return err
					}
					ids = ids[:0]
					for _, s := range sessions {
						ids = append(ids, s.ID)
					}
				}
				for _, id := range ids {
					if err := e.service.ClearConversation(cmd.Context(), id); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d session(s)\n", len(ids))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every session")
	return cmd
}

func newWipeCmd(flags *globalFlags) *cobra.Command {
	var all, yes bool
	cmd := &cobra.Command{
		Use:   "wipe [session-id]",
		Short: "Delete sessions permanently and retire their ids",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := targetArgs(args, all); err != nil {
				return err
			}
			if all && !yes {
				return errors.New("wiping every session needs --yes")
			}
			return withEnv(cmd.Context(), flags, func(e *env) error {
				if all {
					n, err := e.service.WipeAll(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Wiped %d session(s)\n", n)
					return nil
				}
				if err := e.service.WipeSession(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wiped session %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "wipe every session")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm wiping every session")
	return cmd
}

func targetArgs(args []string, all bool) error {
	switch {
	case all && len(args) > 0:
		return errors.New("give a session id or --all, not both")
	case !all && len(args) == 0:
		return errors.New("a session id or --all is required")
	}
	return nil
}
