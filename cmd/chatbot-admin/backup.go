package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/backup"
)

func newBackupCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "backup [path]",
		Short: "Write a database snapshot",
		Long: `Write a consistent snapshot of the database.

Without a path the snapshot goes to the configured backup directory as
backup_chatbot_YYYYMMDD_HHMMSS.db. Only SQLite databases can be snapshotted;
use pg_dump for Postgres.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), flags, func(e *env) error {
				dest := ""
				if len(args) == 1 {
					dest = args[0]
				}
				path, err := backup.NewBackuper(e.store, e.cfg.BackupDir, nil, nil).Run(cmd.Context(), dest)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s\n", path)
				return nil
			})
		},
	}
}
