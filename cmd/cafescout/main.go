// Command cafescout searches Naver Cafe posts, filters them by keyword and
// AI relevance, and streams what it finds.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cafescout/cafescout/pkg/config"
	"github.com/cafescout/cafescout/pkg/logging"
)

var (
	configPath string
	logLevel   string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cafescout",
	Short: "Search, filter and classify Naver Cafe posts",
	Long: `cafescout collects Naver Cafe search results for a keyword, keeps the posts
matching keyword filters, asks an AI model about the rest, and prints every
post it finds. Settings come from an optional YAML file and CAFESCOUT_*
environment variables; flags override both.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd, validateKeyCmd, watchCmd)
}

// setup loads configuration and builds the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}
