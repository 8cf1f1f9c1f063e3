package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sl4m3/agentmem/internal/configstore"
	"github.com/sl4m3/agentmem/internal/facade"
	"github.com/sl4m3/agentmem/internal/rpc"
	"github.com/sl4m3/agentmem/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the memory daemon, serving RPC requests over stdio",
	RunE:  runMemoryDaemon,
}

func init() {
	runCmd.Flags().String("name", "", "agent identity this process records events as")
	runCmd.Flags().String("role", "agent", "trust tier: viewer, agent, or admin")
	runCmd.Flags().String("log-file", "", "path to a rotating log file (defaults to stderr)")
	_ = viper.BindPFlag("name", runCmd.Flags().Lookup("name"))
	_ = viper.BindPFlag("role", runCmd.Flags().Lookup("role"))
	rootCmd.AddCommand(runCmd)
}

func runMemoryDaemon(cmd *cobra.Command, args []string) error {
	storagePath := viper.GetString("path")
	role := facade.Role(viper.GetString("role"))
	name := viper.GetString("name")
	logFile, _ := cmd.Flags().GetString("log-file")

	logger := newLogger(logFile)
	logger.Info("starting agentmem", "path", storagePath, "role", role, "name", name)

	switch role {
	case facade.RoleViewer, facade.RoleAgent, facade.RoleAdmin:
	default:
		return fmt.Errorf("invalid --role %q: must be viewer, agent, or admin", role)
	}

	policyPath := filepath.Join(storagePath, "policy.toml")
	doc, err := configstore.Load(policyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	source := types.SourceAgent
	if role == facade.RoleAdmin {
		source = types.SourceUser
	}

	memory, err := facade.New(facade.Config{
		StoragePath:      storagePath,
		Role:             role,
		Source:           source,
		TrustBoundary:    doc.TrustBoundaryValue(),
		ReflectionPolicy: doc.ReflectionPolicy(),
		DecayPolicy:      doc.DecayPolicy(),
	})
	if err != nil {
		logger.Error("failed to open memory store", "error", err)
		return err
	}
	defer func() {
		if cerr := memory.Close(); cerr != nil {
			logger.Error("failed to close memory store", "error", cerr)
		}
	}()

	logger.Info("memory store ready, serving RPC on stdio")
	server := rpc.NewServer(memory)
	return server.Serve(os.Stdin, os.Stdout)
}

// newLogger mirrors the teacher's daemon logging setup: structured JSON logs
// through a rotating writer when a log file is configured, stderr otherwise.
func newLogger(logFile string) *slog.Logger {
	var handler slog.Handler
	if logFile != "" {
		writer := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		handler = slog.NewJSONHandler(writer, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
