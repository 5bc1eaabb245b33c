package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaycrm/skillengine/pkg/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate [workflow.yaml]",
	Short: "Validate a workflow definition",
	Long: `Parse a workflow YAML file and check it for structural errors: duplicate
step ids, unknown dependencies, missing tier specs, and dependency cycles.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := workflow.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("workflow %s is valid (%d steps)\n", wf.ID, len(wf.Steps))
		return nil
	},
}
