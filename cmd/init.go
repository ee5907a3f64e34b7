package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/problem"
)

// initCmd: zeroelim init
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	// The file may not exist yet, so only the logger is set up.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(problem.DefaultConfig().LogLevel)
		return err
	},
	Run: func(cmd *cobra.Command, args []string) {
		path, err := initConfigurationFile(cfgFile)
		if err != nil {
			logger.Error("Error initializing config file", zap.Error(err))
			return
		}
		fmt.Printf("Configuration file created/updated: %s\n", path)
	},
}

func initConfigurationFile(path string) (string, error) {
	if path == "" {
		path = problem.ConfigFileName
	}
	return path, problem.WriteConfigurationFile(path, problem.DefaultConfig())
}
