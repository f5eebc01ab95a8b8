package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btracey/mra/kernel"
	"github.com/btracey/mra/region"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "mra.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadModelConfig(t *testing.T) {
	path := writeConfig(t, "tree:\n  levels: 3\n  selector: random\n  seed: 7\nkernel:\n  family: matern32\n")
	mc, err := readModelConfig(path, defaultModelConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, mc.Tree.Levels)
	assert.Equal(t, defaultModelConfig().Tree.Branching, mc.Tree.Branching)
	assert.Equal(t, 1.0, mc.Kernel.Variance)

	cfg, err := mc.mraConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, region.Random{Seed: 7}, cfg.Selector)
	ker, err := mc.kernel()
	require.NoError(t, err)
	assert.Equal(t, kernel.Matern32, ker.Shape)

	_, err = readModelConfig(writeConfig(t, "tree:\n  depth: 3\n"), defaultModelConfig())
	assert.Error(t, err, "unknown keys are rejected")
}

func TestModelConfigErrors(t *testing.T) {
	mc := defaultModelConfig()
	mc.Tree.Selector = "grid"
	_, err := mc.mraConfig(nil)
	assert.Error(t, err)

	mc = defaultModelConfig()
	mc.Tree.CritDepth = mc.Tree.Levels + 2
	_, err = mc.mraConfig(nil)
	assert.Error(t, err)

	mc = defaultModelConfig()
	mc.Kernel.Family = "rational"
	_, err = mc.kernel()
	assert.Error(t, err)

	mc = defaultModelConfig()
	mc.Kernel.Length = 0
	_, err = mc.kernel()
	assert.Error(t, err)

	mc = defaultModelConfig()
	mc.Noise = -1
	_, err = mc.noise()
	assert.Error(t, err)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := writeConfig(t, "tree:\n  levels: 3\n  knots: 5\nnoise: 0.2\n")
	config := &rootCmdConfig{model: defaultModelConfig()}
	root := rootCmd(config)
	for _, c := range root.Commands() {
		if c.Name() == "version" {
			c.Run = func(cmd *cobra.Command, args []string) {}
		}
	}
	root.SetArgs([]string{"version", "--config", path, "--knots", "9", "--length", "0.7"})
	require.NoError(t, root.Execute())

	assert.Equal(t, 3, config.model.Tree.Levels)
	assert.Equal(t, 9, config.model.Tree.Knots)
	assert.Equal(t, 0.2, config.model.Noise)
	assert.Equal(t, 0.7, config.model.Kernel.Length)
	assert.Equal(t, defaultModelConfig().Tree.Branching, config.model.Tree.Branching)
}
