package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type layoutCmdConfig struct {
	*rootCmdConfig
	dataInput string
	output    string
}

func layoutCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &layoutCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Describe the regions and knots of the tree",
		Long:  `Build the tree over a data set and write every node's region, role, locations and knots as YAML. Regions are in normalized coordinates`,
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
			err = writeOutput(config.output, func(w io.Writer) error {
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				if err := enc.Encode(tree.Nodes()); err != nil {
					return err
				}
				return enc.Close()
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "writing layout: %v\n", err)
				os.Exit(4)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&(config.dataInput), "input", "i", "", "path to an input CSV file with coordinate columns and an obs column (defaults to STDIN)")
	cmd.PersistentFlags().StringVarP(&(config.output), "output", "o", "", "path to a YAML file to which the layout will be written (defaults to STDOUT)")
	return cmd
}
