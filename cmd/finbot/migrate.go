package main

import (
	"fmt"

	"github.com/Veraticus/finbot/internal/cli"
	"github.com/Veraticus/finbot/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply ledger schema migrations",
		RunE:  runMigrate,
	}

	cmd.Flags().Bool("status", false, "show the schema version without migrating")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStorage(store)

	before, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if status, _ := cmd.Flags().GetBool("status"); status {
		fmt.Fprintf(out, "Database: %s\n", cfg.Database.Path)
		fmt.Fprintf(out, "Schema version: %d (latest %d)\n", before, storage.ExpectedSchemaVersion)
		if before < storage.ExpectedSchemaVersion {
			fmt.Fprintln(out, cli.FormatWarning("Migrations pending; run 'finbot migrate'"))
		}
		return nil
	}

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if before == storage.ExpectedSchemaVersion {
		fmt.Fprintln(out, cli.FormatSuccess("Schema already up to date"))
		return nil
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Migrated schema from version %d to %d", before, storage.ExpectedSchemaVersion)))
	return nil
}
