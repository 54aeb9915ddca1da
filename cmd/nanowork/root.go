package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const Version = "0.1.0"

var (
	cfgFile string
	verbose bool

	config *Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nanowork",
	Short: "Nano proof of work generator",
	Long: `nanowork generates and verifies Nano proof of work with CPU, OpenCL,
remote (DPoW/BPoW) and node backends, racing every configured backend.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		zapConf := zap.NewProductionConfig()
		zapConf.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		logger, err = zapConf.Build()
	}
	return err
}
