package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/btracey/mra"
)

type predictCmdConfig struct {
	*rootCmdConfig
	dataInput string
	output    string
}

func predictCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &predictCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the process at every location of a data set",
		Long:  `Build the tree over a data set and write the posterior mean and standard deviation of the latent process at every location, observed or not`,
		Run: func(cmd *cobra.Command, args []string) {
			logger := config.logger()
			ds, err := loadDataSet(config.dataInput)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			tree, mean, err := config.build(ds)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(3)
			}
			mu, sd := tree.Predict()
			for i := range mu {
				mu[i] += mean
			}
			if ds.truth != nil {
				rmse, cover := score(ds.truth, mu, sd)
				logger.Info("prediction scored against truth", "rmse", rmse, "coverage95", cover)
			}
			err = writeOutput(config.output, func(w io.Writer) error {
				return ds.write(w, []string{"mean", "sd"}, mu, sd)
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "writing predictions: %v\n", err)
				os.Exit(4)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&(config.dataInput), "input", "i", "", "path to an input CSV file with coordinate columns and an obs column, NA marking missing values (defaults to STDIN)")
	cmd.PersistentFlags().StringVarP(&(config.output), "output", "o", "", "path to a CSV file to which the predictions will be written (defaults to STDOUT)")
	return cmd
}

// build normalizes the data set and conditions a tree on it. It returns the
// tree and the mean removed from the observations.
func (rcc *rootCmdConfig) build(ds *dataSet) (*mra.Tree, float64, error) {
	logger := rcc.logger()
	cfg, err := rcc.model.mraConfig(logger)
	if err != nil {
		return nil, 0, err
	}
	ker, err := rcc.model.kernel()
	if err != nil {
		return nil, 0, err
	}
	noise, err := rcc.model.noise()
	if err != nil {
		return nil, 0, err
	}
	x, y, mean := ds.prepared()
	logger.Debug("building tree", "locations", len(y), "kernel", ker.Shape, "variance", ker.Variance, "length", ker.Length, "noise", float64(noise))
	tree, err := mra.Build(x, y, noise, ker, cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("building tree: %v", err)
	}
	return tree, mean, nil
}

// score returns the root mean squared error of mean against the non-NaN
// entries of truth, and the fraction of them inside the 95% interval.
func score(truth, mean, sd []float64) (rmse, coverage float64) {
	z := distuv.UnitNormal.Quantile(0.975)
	var n int
	for i, v := range truth {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean[i]
		rmse += d * d
		if math.Abs(d) <= z*sd[i] {
			coverage++
		}
		n++
	}
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	return math.Sqrt(rmse / float64(n)), coverage / float64(n)
}
