package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/relaycrm/skillengine/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of skillengine",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skillengine version %s\n", version.Version)
		fmt.Printf("go version %s\n", runtime.Version())
	},
}
