package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/MarcoPoloResearchLab/stickynotes/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	successColor = color.New(color.FgGreen)
	noticeColor  = color.New(color.FgYellow)
	detailColor  = color.New(color.FgCyan)
)

func newBackupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a snapshot of every note to the backup store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			snapshot, err := app.pipeline.Backup(cmd.Context())
			if err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "Backed up %d notes at %s\n",
				len(snapshot.Notes), formatMillis(snapshot.Timestamp))
			return nil
		},
	}
}

func newRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Replace every note with the contents of the stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			restored, err := app.pipeline.Restore(cmd.Context())
			if err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "Restored %d notes\n", restored)
			return nil
		},
	}
}

func newExportCommand() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write every note to a timestamped JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			artifact, err := app.pipeline.Export(cmd.Context())
			if err != nil {
				return err
			}
			if err := os.MkdirAll(app.config.ExportDirectory, 0o755); err != nil {
				return err
			}
			outputPath := filepath.Join(app.config.ExportDirectory, artifact.Filename)
			if err := os.WriteFile(outputPath, artifact.Data, 0o644); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "Exported notes to %s\n", outputPath)
			return nil
		},
	}

	exportCmd.Flags().String("output-dir", config.NewViper().GetString("export.dir"), "Directory the export file is written to")
	if err := viper.BindPFlag("export.dir", exportCmd.Flags().Lookup("output-dir")); err != nil {
		panic(err)
	}
	return exportCmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace every note with the contents of an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			imported, err := app.pipeline.ImportFrom(cmd.Context(), file)
			if err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "Imported %d notes from %s\n", imported, args[0])
			return nil
		},
	}
}

func newBackupInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup-info",
		Short: "Describe the stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			exists, err := app.pipeline.HasBackup(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !exists {
				noticeColor.Fprintf(out, "No backup stored under %q\n", app.pipeline.StorageKey())
				return nil
			}

			info, err := app.pipeline.Info(cmd.Context())
			if err != nil {
				return err
			}
			detailColor.Fprintf(out, "Key:       %s\n", app.pipeline.StorageKey())
			detailColor.Fprintf(out, "Version:   %s\n", info.Version)
			detailColor.Fprintf(out, "Taken at:  %s\n", formatMillis(info.Timestamp))
			detailColor.Fprintf(out, "Notes:     %d\n", info.NoteCount)
			return nil
		},
	}
}

func formatMillis(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}
