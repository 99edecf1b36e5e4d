package main

import (
	"fmt"
	"querypilot-ai/internal/di"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var refreshSchema bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema description given to the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, container, cleanup, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		manager, err := di.GetSchemaManager(container)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}

		if refreshSchema {
			if err := manager.Invalidate(ctx); err != nil {
				pterm.Warning.Printf("Shared schema copy not removed: %v\n", err)
			}
		}

		description, err := manager.GetSchema(ctx, refreshSchema)
		if err != nil {
			return err
		}

		pterm.Println(description)
		if info := manager.Info(); info != nil {
			pterm.Success.Printf("%d tables, %d relationships\n", len(info.Tables), len(info.Relationships))
		}
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&refreshSchema, "refresh", false, "Ignore cached copies and introspect the database again")
}
