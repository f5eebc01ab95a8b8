package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"
	"gopkg.in/yaml.v3"

	"github.com/btracey/mra"
)

type fitCmdConfig struct {
	*rootCmdConfig
	dataInput string
	output    string
	fitNoise  bool
	maxEvals  int
}

func fitCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &fitCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit the kernel to a data set",
		Long:  `Maximize the likelihood of a data set over the kernel variance and length, starting from the configured kernel, and write the fitted configuration as YAML`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			ds, err := loadDataSet(config.dataInput)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			fitted, ll, err := config.fit(ds)
			if err != nil {
				fmt.Fprintf(os.Stderr, "fitting kernel: %v\n", err)
				os.Exit(3)
			}
			config.logger().Info("kernel fitted", "logLikelihood", ll, "variance", fitted.Kernel.Variance, "length", fitted.Kernel.Length, "noise", fitted.Noise)
			err = writeOutput(config.output, func(w io.Writer) error {
				enc := yaml.NewEncoder(w)
				if err := enc.Encode(fitted); err != nil {
					return err
				}
				return enc.Close()
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "writing configuration: %v\n", err)
				os.Exit(4)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&(config.dataInput), "input", "i", "", "path to an input CSV file with coordinate columns and an obs column (defaults to STDIN)")
	cmd.PersistentFlags().StringVarP(&(config.output), "output", "o", "", "path to a YAML file to which the fitted configuration will be written (defaults to STDOUT)")
	cmd.PersistentFlags().BoolVar(&(config.fitNoise), "fit-noise", false, "also fit the measurement-error variance")
	cmd.PersistentFlags().IntVar(&(config.maxEvals), "max-evals", 200, "limit to likelihood evaluations (0: no limit)")
	return cmd
}

func (fcc *fitCmdConfig) Validate() error {
	if fcc.maxEvals < 0 {
		return fmt.Errorf("max-evals must not be negative")
	}
	return nil
}

// fit returns the model configuration with the fitted kernel and noise, and
// its log-likelihood.
func (fcc *fitCmdConfig) fit(ds *dataSet) (modelConfig, float64, error) {
	logger := fcc.logger()
	cfg, err := fcc.model.mraConfig(logger)
	if err != nil {
		return fcc.model, 0, err
	}
	ker, err := fcc.model.kernel()
	if err != nil {
		return fcc.model, 0, err
	}
	if _, err := fcc.model.noise(); err != nil {
		return fcc.model, 0, err
	}
	x, y, _ := ds.prepared()
	l := &mra.Likelihood{
		Shape:    ker.Shape,
		Noise:    fcc.model.Noise,
		OptNoise: fcc.fitNoise,
		X:        x,
		Y:        y,
		Config:   cfg,
	}
	init := ker.Hyper(nil)
	if fcc.fitNoise {
		init = append(init, math.Log(fcc.model.Noise))
	}
	settings := &optimize.Settings{FuncEvaluations: fcc.maxEvals}
	hyper, neg, err := l.Train(init, settings)
	if hyper == nil {
		return fcc.model, 0, err
	}
	if err != nil {
		logger.Warn("optimization stopped early", "err", err)
	}
	fittedKer, noise := l.Split(hyper)
	fitted := fcc.model
	fitted.Kernel.Variance = fittedKer.Variance
	fitted.Kernel.Length = fittedKer.Length
	fitted.Noise = noise
	return fitted, -neg, nil
}
