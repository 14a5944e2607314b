package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sofmeright/imagebuild/src/build"
)

var planCmd = &cobra.Command{
	Use:   "plan [KEY=VALUE...]",
	Short: "Print the build plans as YAML or JSON",
	Long: `Render every build variant and print the plans without contacting a
container engine. The output is the input of an external builder.`,
	Args: cobra.ArbitraryArgs,
	RunE: runPlan,
}

func init() {
	addPlanFlags(planCmd.Flags())
	planCmd.Flags().StringP("output", "o", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	format := settings.GetString("output")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("invalid output format %q: must be yaml or json", format)
	}

	_, plans, err := plan(cmd.Context(), args)
	if err != nil {
		return err
	}
	if plans == nil {
		plans = []build.BuildPlan{}
	}

	w := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plans)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plans); err != nil {
		return err
	}
	return enc.Close()
}
