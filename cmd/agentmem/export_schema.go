package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sl4m3/agentmem/internal/schema"
)

var exportSchemaCmd = &cobra.Command{
	Use:   "export-schema",
	Short: "Dump every RPC operation's JSON Schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(schema.Table); err != nil {
			return fmt.Errorf("export-schema: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportSchemaCmd)
}
