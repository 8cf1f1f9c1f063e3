package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sl4m3/agentmem/internal/configstore"
	"github.com/sl4m3/agentmem/internal/facade"
)

// exportedRecord is one line of the export/import JSONL stream.
type exportedRecord struct {
	ID      string `json:"id"`
	Event   any    `json:"event"`
	Content any    `json:"content"`
}

var exportCmd = &cobra.Command{
	Use:   "export <jsonl-path>",
	Short: "Export every decision record as a JSONL stream",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <jsonl-path>",
	Short: "Import decision records from a JSONL stream (admin-only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func openMemoryForCLI(role facade.Role) (*facade.Memory, error) {
	storagePath := viper.GetString("path")
	doc, err := configstore.Load(storagePath + "/policy.toml")
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return facade.New(facade.Config{
		StoragePath:      storagePath,
		Role:             role,
		TrustBoundary:    doc.TrustBoundaryValue(),
		ReflectionPolicy: doc.ReflectionPolicy(),
		DecayPolicy:      doc.DecayPolicy(),
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	memory, err := openMemoryForCLI(facade.RoleViewer)
	if err != nil {
		return err
	}
	defer func() { _ = memory.Close() }()

	ctx := context.Background()
	decisions, err := memory.ExportDecisions(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("export: create %s: %w", args[0], err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	defer func() { _ = w.Flush() }()
	enc := json.NewEncoder(w)
	for _, d := range decisions {
		if err := enc.Encode(exportedRecord{ID: d.ID, Event: d.Event, Content: d.Content}); err != nil {
			return fmt.Errorf("export: encode %s: %w", d.ID, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d decision records to %s\n", len(decisions), args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	memory, err := openMemoryForCLI(facade.RoleAdmin)
	if err != nil {
		return err
	}
	defer func() { _ = memory.Close() }()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("import: open %s: %w", args[0], err)
	}
	defer func() { _ = f.Close() }()

	ctx := context.Background()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec exportedRecord
		var raw struct {
			Event json.RawMessage `json:"event"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("import: decode: %w", err)
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return fmt.Errorf("import: decode event: %w", err)
		}
		event, err := decodeImportedEvent(raw.Event)
		if err != nil {
			return fmt.Errorf("import: decode event: %w", err)
		}
		if _, err := memory.ImportDecision(ctx, event); err != nil {
			return fmt.Errorf("import: %s: %w", rec.ID, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("import: scan: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d decision records from %s\n", count, args[0])
	return nil
}
