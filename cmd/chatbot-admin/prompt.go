package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPromptCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Inspect or change the persona used for new sessions",
		Long: `Inspect or change the system prompt seeded into new sessions.

Existing sessions keep the persona they were created with.`,
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current persona",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), flags, func(e *env) error {
				prompt, err := e.service.SystemPrompt(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), prompt)
				return nil
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <prompt>",
		Short: "Replace the persona",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			return withEnv(cmd.Context(), flags, func(e *env) error {
				if err := e.service.SetSystemPrompt(cmd.Context(), prompt); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "System prompt updated")
				return nil
			})
		},
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}
