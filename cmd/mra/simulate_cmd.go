package main

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/btracey/mra"
)

type simulateCmdConfig struct {
	*rootCmdConfig
	dataInput string
	output    string
	grid      int
	missing   float64
}

func simulateCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &simulateCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a data set from the configured kernel",
		Long:  `Draw a Gaussian process with the configured kernel and noise at the locations of a CSV file or on a regular grid in the unit square, and write it with obs and truth columns`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			ds, err := config.locations()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			if err := config.simulate(ds); err != nil {
				fmt.Fprintf(os.Stderr, "simulating: %v\n", err)
				os.Exit(3)
			}
			err = writeOutput(config.output, func(w io.Writer) error {
				return ds.write(w, nil)
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "writing data set: %v\n", err)
				os.Exit(4)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&(config.dataInput), "input", "i", "", "path to a CSV file with the coordinate columns of the locations to simulate at (overrides grid)")
	cmd.PersistentFlags().StringVarP(&(config.output), "output", "o", "", "path to a CSV file to which the data set will be written (defaults to STDOUT)")
	cmd.PersistentFlags().IntVarP(&(config.grid), "grid", "g", 20, "number of grid points per axis of the unit square")
	cmd.PersistentFlags().Float64Var(&(config.missing), "missing", 0, "fraction of the observations to replace by NA")
	return cmd
}

func (scc *simulateCmdConfig) Validate() error {
	if scc.dataInput == "" && scc.grid < 1 {
		return fmt.Errorf("grid must be positive")
	}
	if scc.missing < 0 || scc.missing > 1 {
		return fmt.Errorf("missing must be in [0, 1]")
	}
	return nil
}

func (scc *simulateCmdConfig) locations() (*dataSet, error) {
	if scc.dataInput != "" {
		return loadDataSet(scc.dataInput)
	}
	return gridDataSet(scc.grid), nil
}

// gridDataSet returns an n×n grid over the unit square.
func gridDataSet(n int) *dataSet {
	ticks := make([]float64, n)
	if n == 1 {
		ticks[0] = 0.5
	} else {
		floats.Span(ticks, 0, 1)
	}
	x := mat.NewDense(n*n, 2, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x.Set(i*n+j, 0, ticks[i])
			x.Set(i*n+j, 1, ticks[j])
		}
	}
	return &dataSet{coords: []string{"x", "y"}, x: x}
}

// simulate fills the obs and truth columns of ds. The kernel length is taken
// in the units of ds's locations.
func (scc *simulateCmdConfig) simulate(ds *dataSet) error {
	ker, err := scc.model.kernel()
	if err != nil {
		return err
	}
	noise, err := scc.model.noise()
	if err != nil {
		return err
	}
	seed := scc.model.Tree.Seed
	truth, obs, err := mra.Simulate(ds.x, ker, float64(noise), seed)
	if err != nil {
		return err
	}
	rnd := rand.New(rand.NewPCG(seed, math.Float64bits(scc.missing)))
	for i := range obs {
		if rnd.Float64() < scc.missing {
			obs[i] = math.NaN()
		}
	}
	ds.truth = truth
	ds.obs = obs
	scc.logger().Info("data set simulated", "locations", len(obs), "kernel", ker.Shape, "seed", seed)
	return nil
}
