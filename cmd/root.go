package cmd

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/problem"
)

const defaultTimeout = 5 * time.Minute

var (
	cfgFile string
	timeout time.Duration

	config problem.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:              "zeroelim [command]",
	Short:            "zeroelim - simplify iteration domains and lift nonzeroness conditions out of tensor expressions",
	TraverseChildren: true,
	SilenceUsage:     true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if config, err = problem.ParseConfigurationFile(configPath()); err != nil {
			return err
		}
		logger, err = newLogger(config.LogLevel)
		return err
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file (default "+problem.ConfigFileName+" if present)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "Timeout for a whole run")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(domainCmd)
	rootCmd.AddCommand(optimizeCmd)
}

// configPath returns the configuration file to load, or "" for the
// defaults.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if _, err := os.Stat(problem.ConfigFileName); err == nil {
		return problem.ConfigFileName
	}
	return ""
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log_level")
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	return cfg.Build()
}
