package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/btracey/mra"
	"github.com/btracey/mra/kernel"
	"github.com/btracey/mra/region"
)

type treeConfig struct {
	Levels    int    `yaml:"levels"`
	Branching int    `yaml:"branching"`
	Knots     int    `yaml:"knots"`
	CritDepth int    `yaml:"critDepth"`
	Selector  string `yaml:"selector"`
	Seed      uint64 `yaml:"seed"`
}

type kernelConfig struct {
	Family   string  `yaml:"family"`
	Variance float64 `yaml:"variance"`
	Length   float64 `yaml:"length"`
}

// modelConfig is the layout of the YAML configuration file. Kernel lengths
// are in the units of the normalized locations, which span [0, 1] on every
// axis.
type modelConfig struct {
	Tree   treeConfig   `yaml:"tree"`
	Kernel kernelConfig `yaml:"kernel"`
	Noise  float64      `yaml:"noise"`
}

func defaultModelConfig() modelConfig {
	c := mra.DefaultConfig()
	return modelConfig{
		Tree: treeConfig{
			Levels:    c.Levels,
			Branching: c.Branching,
			Knots:     c.Knots,
			CritDepth: c.CritDepth,
			Selector:  "halton",
		},
		Kernel: kernelConfig{
			Family:   kernel.Exponential.String(),
			Variance: 1,
			Length:   0.3,
		},
		Noise: 0.05,
	}
}

// modelFlags maps each model flag to the field it sets, so values given on
// the command line can be reapplied over a configuration file.
var modelFlags = map[string]func(dst, src *modelConfig){
	"levels":     func(dst, src *modelConfig) { dst.Tree.Levels = src.Tree.Levels },
	"branching":  func(dst, src *modelConfig) { dst.Tree.Branching = src.Tree.Branching },
	"knots":      func(dst, src *modelConfig) { dst.Tree.Knots = src.Tree.Knots },
	"crit-depth": func(dst, src *modelConfig) { dst.Tree.CritDepth = src.Tree.CritDepth },
	"selector":   func(dst, src *modelConfig) { dst.Tree.Selector = src.Tree.Selector },
	"seed":       func(dst, src *modelConfig) { dst.Tree.Seed = src.Tree.Seed },
	"kernel":     func(dst, src *modelConfig) { dst.Kernel.Family = src.Kernel.Family },
	"variance":   func(dst, src *modelConfig) { dst.Kernel.Variance = src.Kernel.Variance },
	"length":     func(dst, src *modelConfig) { dst.Kernel.Length = src.Kernel.Length },
	"noise":      func(dst, src *modelConfig) { dst.Noise = src.Noise },
}

func (mc *modelConfig) bindFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&(mc.Tree.Levels), "levels", "M", mc.Tree.Levels, "number of resolution levels below the root")
	fs.IntVarP(&(mc.Tree.Branching), "branching", "J", mc.Tree.Branching, "number of children of every non-leaf region")
	fs.IntVarP(&(mc.Tree.Knots), "knots", "r", mc.Tree.Knots, "knot budget per region")
	fs.IntVar(&(mc.Tree.CritDepth), "crit-depth", mc.Tree.CritDepth, "level at which observations enter the tree (levels+1 for leaf knots only)")
	fs.StringVar(&(mc.Tree.Selector), "selector", mc.Tree.Selector, "knot selection strategy, the following are valid: halton, random")
	fs.Uint64Var(&(mc.Tree.Seed), "seed", mc.Tree.Seed, "seed for random knot selection and simulation")
	fs.StringVarP(&(mc.Kernel.Family), "kernel", "k", mc.Kernel.Family, "kernel family, the following are valid: exponential, matern32, matern52, sqexp")
	fs.Float64Var(&(mc.Kernel.Variance), "variance", mc.Kernel.Variance, "kernel marginal variance")
	fs.Float64VarP(&(mc.Kernel.Length), "length", "l", mc.Kernel.Length, "kernel length scale in normalized units")
	fs.Float64VarP(&(mc.Noise), "noise", "n", mc.Noise, "measurement-error variance")
}

// load reads the configuration file, if one was given, and reapplies the
// model flags set on the command line over it.
func (rcc *rootCmdConfig) load(cmd *cobra.Command) error {
	if rcc.configFile == "" {
		return nil
	}
	flagged := rcc.model
	file, err := readModelConfig(rcc.configFile, defaultModelConfig())
	if err != nil {
		return err
	}
	rcc.model = file
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if set, ok := modelFlags[f.Name]; ok {
			set(&rcc.model, &flagged)
		}
	})
	return nil
}

// readModelConfig decodes the YAML file at path over base, so keys missing
// from the file keep their value in base.
func readModelConfig(path string, base modelConfig) (modelConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, err
	}
	defer f.Close()
	mc := base
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&mc); err != nil {
		return base, fmt.Errorf("decoding %s: %v", path, err)
	}
	return mc, nil
}

func (mc modelConfig) mraConfig(logger *slog.Logger) (mra.Config, error) {
	c := mra.Config{
		Levels:    mc.Tree.Levels,
		Branching: mc.Tree.Branching,
		Knots:     mc.Tree.Knots,
		CritDepth: mc.Tree.CritDepth,
		Logger:    logger,
	}
	switch mc.Tree.Selector {
	case "", "halton":
		c.Selector = region.Halton{}
	case "random":
		c.Selector = region.Random{Seed: mc.Tree.Seed}
	default:
		return c, fmt.Errorf("unknown knot selector %q", mc.Tree.Selector)
	}
	return c, c.Validate()
}

func (mc modelConfig) shape() (kernel.Shape, error) {
	s, ok := kernel.ParseShape(mc.Kernel.Family)
	if !ok {
		return 0, fmt.Errorf("unknown kernel family %q", mc.Kernel.Family)
	}
	return s, nil
}

func (mc modelConfig) kernel() (kernel.Isotropic, error) {
	s, err := mc.shape()
	if err != nil {
		return kernel.Isotropic{}, err
	}
	if !(mc.Kernel.Variance > 0) || !(mc.Kernel.Length > 0) {
		return kernel.Isotropic{}, fmt.Errorf("kernel variance and length must be positive, got %v and %v", mc.Kernel.Variance, mc.Kernel.Length)
	}
	return kernel.Isotropic{Shape: s, Variance: mc.Kernel.Variance, Length: mc.Kernel.Length}, nil
}

func (mc modelConfig) noise() (mra.ScalarNoise, error) {
	n := mra.ScalarNoise(mc.Noise)
	return n, n.Validate(1)
}
