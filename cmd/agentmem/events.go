package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/sl4m3/agentmem/internal/facade"
)

var eventsParser *when.Parser

func init() {
	eventsParser = when.New(nil)
	eventsParser.Add(en.All...)
	eventsParser.Add(common.All...)
}

var (
	eventsLimit           int
	eventsIncludeArchived bool
	eventsSince           string
	eventsUntil           string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent episodic rows, optionally bounded by a natural-language time window",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum rows to return, 0 means no limit")
	eventsCmd.Flags().BoolVar(&eventsIncludeArchived, "include-archived", false, "include archived rows")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "lower bound, e.g. \"3 days ago\" or \"2026-07-01\"")
	eventsCmd.Flags().StringVar(&eventsUntil, "until", "", "upper bound, e.g. \"yesterday\"")
	rootCmd.AddCommand(eventsCmd)
}

// resolveWhen parses expr as an RFC3339 timestamp, or, failing that, as a
// natural-language time expression relative to now.
func resolveWhen(expr string, now time.Time) (*time.Time, error) {
	if expr == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return &t, nil
	}
	r, err := eventsParser.Parse(expr, now)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", expr, err)
	}
	if r == nil {
		return nil, fmt.Errorf("parse %q: no match", expr)
	}
	return &r.Time, nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	memory, err := openMemoryForCLI(facade.RoleViewer)
	if err != nil {
		return err
	}
	defer func() { _ = memory.Close() }()

	now := time.Now()
	since, err := resolveWhen(eventsSince, now)
	if err != nil {
		return fmt.Errorf("events: --since: %w", err)
	}
	until, err := resolveWhen(eventsUntil, now)
	if err != nil {
		return fmt.Errorf("events: --until: %w", err)
	}

	ctx := context.Background()
	rows, err := memory.GetRecentEvents(ctx, eventsLimit, eventsIncludeArchived, since, until)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("events: encode: %w", err)
		}
	}
	return nil
}
