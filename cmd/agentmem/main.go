// Command agentmem launches the memory daemon or dumps its RPC schema.
// Grounded on the teacher's cmd/bd package layout (one cobra command per
// file, a persistent root command wiring global flags through viper).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "agentmem",
	Short: "A durable, version-controlled knowledge-memory store for autonomous agents",
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("path", "", "storage root directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default .agentmem/config.yaml)")
	_ = viper.BindPFlag("path", rootCmd.PersistentFlags().Lookup("path"))
}

// initConfig mirrors the teacher's internal/config precedence chain: project
// dir, then user config dir, then environment variables prefixed AGENTMEM_.
func initConfig() {
	if cf, _ := rootCmd.PersistentFlags().GetString("config"); cf != "" {
		viper.SetConfigFile(cf)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")

		configFileSet := false
		if cwd, err := os.Getwd(); err == nil {
			for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
				candidate := filepath.Join(dir, ".agentmem", "config.yaml")
				if _, err := os.Stat(candidate); err == nil {
					viper.SetConfigFile(candidate)
					configFileSet = true
					break
				}
			}
		}
		if !configFileSet {
			if configDir, err := os.UserConfigDir(); err == nil {
				viper.AddConfigPath(filepath.Join(configDir, "agentmem"))
			}
		}
	}

	viper.SetEnvPrefix("AGENTMEM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("path", ".agentmem/store")
	viper.SetDefault("role", "agent")
	viper.SetDefault("name", "")

	_ = viper.ReadInConfig() // absence is not fatal; defaults + env + flags still apply
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentmem:", err)
		os.Exit(1)
	}
}
