package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootCmdConfig struct {
	verbose    bool
	configFile string
	model      modelConfig
}

func main() {
	if err := cliParser().Execute(); err != nil {
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	return rootCmd(&rootCmdConfig{model: defaultModelConfig()})
}

func rootCmd(config *rootCmdConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mra",
		Short: "mra is a tool to fit spatial Gaussian processes to large data sets",
		Long:  `A tool to compute likelihoods, fit kernels and predict with the multi-resolution approximation to a spatial Gaussian process`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.load(cmd); err != nil {
				return fmt.Errorf("loading configuration: %v", err)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&(config.verbose), "verbose", "v", false, "log progress and per-step diagnostics to STDERR")
	cmd.PersistentFlags().StringVarP(&(config.configFile), "config", "c", "", "path to a YAML file with tree, kernel and noise settings (flags take precedence)")
	config.model.bindFlags(cmd.PersistentFlags())
	cmd.AddCommand(
		versionCmd(),
		predictCmd(config),
		likelihoodCmd(config),
		fitCmd(config),
		simulateCmd(config),
		layoutCmd(config),
	)
	return cmd
}
