package mra

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/btracey/mra/region"
)

// maxNodes bounds the number of nodes in a tree, J^0 + J^1 + ... + J^M.
const maxNodes = 1 << 24

// Config holds the tree shape.
type Config struct {
	// Levels is the number of resolution levels below the root (M).
	Levels int `yaml:"levels"`
	// Branching is the number of children of every non-leaf node (J).
	Branching int `yaml:"branching"`
	// Knots is the knot budget per node (r0).
	Knots int `yaml:"knots"`
	// CritDepth is the level at which raw observations enter the tree. Nodes
	// at CritDepth keep the exact remainder at all of their locations; nodes
	// below it are empty. CritDepth == Levels+1 means observations only enter
	// through the leaf knots.
	CritDepth int `yaml:"critDepth"`

	// Selector chooses the knots of each node. Halton is used if nil.
	Selector region.KnotSelector `yaml:"-"`
	// Logger receives build diagnostics. Nothing is logged if nil.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns a two-level quadtree with two knots per node and
// observations entering through the leaf knots.
func DefaultConfig() Config {
	return Config{
		Levels:    2,
		Branching: 4,
		Knots:     2,
		CritDepth: 3,
	}
}

// Validate checks the tree shape parameters.
func (c Config) Validate() error {
	if c.Levels < 0 {
		return fmt.Errorf("%w: %d", ErrLevels, c.Levels)
	}
	if c.Branching < 1 || (c.Levels > 0 && c.Branching < 2) {
		return fmt.Errorf("%w: %d with %d levels", ErrBranching, c.Branching, c.Levels)
	}
	if c.Knots <= 0 {
		return fmt.Errorf("%w: %d", ErrKnots, c.Knots)
	}
	if c.CritDepth < 0 || c.CritDepth > c.Levels+1 {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrCritDepth, c.CritDepth, c.Levels+1)
	}
	total, width := 0, 1
	for m := 0; m <= c.Levels; m++ {
		total += width
		if total > maxNodes {
			return fmt.Errorf("%w: more than %d nodes", ErrTreeSize, maxNodes)
		}
		width *= c.Branching
	}
	return nil
}

func (c Config) selector() region.KnotSelector {
	if c.Selector == nil {
		return region.Halton{}
	}
	return c.Selector
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}
