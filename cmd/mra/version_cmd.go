package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	// VersionMajor is the major number in mra's version
	VersionMajor = 0
	// VersionMinor is the minor number in mra's version
	VersionMinor = 1
	// VersionPatch is the patch number in mra's version
	VersionPatch = 0
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of mra",
		Long:  `All software has versions. This is mra's`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mra v%d.%d.%d\n", VersionMajor, VersionMinor, VersionPatch)
		},
	}
}
