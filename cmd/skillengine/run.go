package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/relaycrm/skillengine/pkg/config"
	"github.com/relaycrm/skillengine/pkg/engine"
	"github.com/relaycrm/skillengine/pkg/guardrail"
	"github.com/relaycrm/skillengine/pkg/llm"
	"github.com/relaycrm/skillengine/pkg/llm/anthropic"
	"github.com/relaycrm/skillengine/pkg/llm/google"
	"github.com/relaycrm/skillengine/pkg/llm/openai"
	"github.com/relaycrm/skillengine/pkg/runstore"
	"github.com/relaycrm/skillengine/pkg/runstore/sqlite"
	"github.com/relaycrm/skillengine/pkg/tools"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
	"github.com/relaycrm/skillengine/pkg/workflow"
)

// RunCmdOptions contains all options for the run command.
type RunCmdOptions struct {
	tenantID   string
	paramsJSON string
	dbPath     string
}

var runOptions = &RunCmdOptions{}

var runCmd = &cobra.Command{
	Use:   "run [workflow.yaml]",
	Short: "Execute a workflow for a tenant",
	Long: `Execute a workflow YAML file for a tenant. Providers, credentials and
budgets come from the skillengine config file; run parameters are passed as a
JSON object and exposed to templates under the params scope. The finished run
record is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		wf, err := workflow.Load(args[0])
		if err != nil {
			return err
		}

		var params map[string]any
		if runOptions.paramsJSON != "" {
			if err := json.Unmarshal([]byte(runOptions.paramsJSON), &params); err != nil {
				return errors.Wrap(err, "failed to parse --params JSON")
			}
		}

		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		source := config.NewSource(cfg)

		router := llm.NewRouter(source, []llm.ProviderAdapter{
			anthropic.New(),
			openai.New(),
			google.New(),
		})

		var store runstore.Store = runstore.LogStore{}
		if runOptions.dbPath != "" {
			sqliteStore, err := sqlite.NewStore(ctx, runOptions.dbPath)
			if err != nil {
				return err
			}
			defer sqliteStore.Close()
			store = sqliteStore
		}

		eng := engine.New(router, tools.NewBuiltinRegistry(),
			engine.WithRunStore(store),
			engine.WithGuardrail(guardrail.New(source.GuardrailLimits(runOptions.tenantID))),
		)

		record, err := eng.Execute(ctx, wf, runOptions.tenantID, params)
		if err != nil {
			return err
		}

		encoded, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode run record")
		}
		fmt.Println(string(encoded))

		if record.Status == skilltypes.RunStatusFailed {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runOptions.tenantID, "tenant", "default", "tenant to execute as")
	runCmd.Flags().StringVar(&runOptions.paramsJSON, "params", "", "run parameters as a JSON object")
	runCmd.Flags().StringVar(&runOptions.dbPath, "db", "", "persist run records to this SQLite database")
}
