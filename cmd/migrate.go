package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/billing-sync/internal/billing"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply billing schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := billing.Migrate(ctx, pool); err != nil {
			return err
		}
		fmt.Println("Billing schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
