package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type likelihoodCmdConfig struct {
	*rootCmdConfig
	dataInput string
}

func likelihoodCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &likelihoodCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "likelihood",
		Short: "Print the log-likelihood of a data set",
		Long:  `Build the tree over a data set and print the approximate Gaussian log-likelihood of its observations`,
		Run: func(cmd *cobra.Command, args []string) {
			ds, err := loadDataSet(config.dataInput)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			tree, _, err := config.build(ds)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(3)
			}
			config.logger().Info("likelihood computed", "observed", tree.NumObserved())
			fmt.Println(tree.LogLikelihood())
		},
	}
	cmd.PersistentFlags().StringVarP(&(config.dataInput), "input", "i", "", "path to an input CSV file with coordinate columns and an obs column (defaults to STDIN)")
	return cmd
}
