package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harunnryd/kangae/internal/config"
	"github.com/harunnryd/kangae/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

// Sentinels classifying top-level failures into exit codes.
var (
	errConfig     = stderrors.New("configuration error")
	errMissingEnv = stderrors.New("missing required environment")
)

const (
	exitOK         = 0
	exitConfig     = 2
	exitMissingEnv = 3
	exitInternal   = 4
)

var rootCmd = &cobra.Command{
	Use:   "kangae",
	Short: "Kangae cognitive orchestration engine",
	Long:  `Kangae turns free-form problems into structured multi-step reasoning by orchestrating remote model providers with fallback, token budgeting, and caching.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

func exitCode(err error) int {
	switch {
	case stderrors.Is(err, errMissingEnv):
		return exitMissingEnv
	case stderrors.Is(err, errConfig):
		return exitConfig
	default:
		return exitInternal
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kangae/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
}
