package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sofmeright/imagebuild/src/build"
	_ "github.com/sofmeright/imagebuild/src/build/engines"
	"github.com/sofmeright/imagebuild/src/config"
	"github.com/sofmeright/imagebuild/src/gitver"
	"github.com/sofmeright/imagebuild/src/output"
	"github.com/sofmeright/imagebuild/src/value"
	"github.com/sofmeright/imagebuild/src/vars"
)

var buildCmd = &cobra.Command{
	Use:   "build [KEY=VALUE...]",
	Short: "Render, build, push and export images",
	Long: `Render every build variant and build the resulting images.

With --dry-run nothing is built: the rendered Dockerfiles, tags and build
context files are printed instead. --push pushes every tag after the
variants of a build are built; --export writes them to
<namespace>_<name>.tar.gz.`,
	Args: cobra.ArbitraryArgs,
	RunE: runBuild,
}

func init() {
	addBuildFlags(buildCmd.Flags())
	rootCmd.AddCommand(buildCmd)
}

// addPlanFlags registers the flags that shape plan assembly.
func addPlanFlags(fs *pflag.FlagSet) {
	fs.StringP("select", "s", "", "selector string matched against tag selectors")
	fs.BoolP("ignore-empty", "i", false, "drop variants without applicable tags")
	fs.StringSlice("env-file", nil, "dotenv files with template variables (below KEY=VALUE arguments)")
	fs.IntP("jobs", "j", 0, "variants rendered concurrently (default: number of CPUs)")
}

func addBuildFlags(fs *pflag.FlagSet) {
	addPlanFlags(fs)
	fs.BoolP("dry-run", "d", false, "print the plan without building")
	fs.BoolP("push", "p", false, "push every tag after building")
	fs.BoolP("export", "e", false, "export each build's images to a gzipped archive")
	fs.String("export-dir", ".", "directory for exported archives")
	fs.String("junit-dir", "", "write a JUnit XML build report to this directory")
}

// variables collects command-line template variables: dotenv files first,
// then KEY=VALUE arguments, later sources winning.
func variables(envFiles, args []string) (*value.Map, error) {
	out := value.NewMap()
	if len(envFiles) > 0 {
		env, err := godotenv.Read(envFiles...)
		if err != nil {
			return nil, fmt.Errorf("reading env file: %w", err)
		}
		out = vars.FromEnv(env)
	}

	assigned, err := vars.ParseAssignments(args)
	if err != nil {
		return nil, err
	}
	for _, k := range assigned.Keys() {
		v, _ := assigned.Get(k)
		out.Set(k, v)
	}
	return out, nil
}

// plan loads the configuration and assembles its plans.
func plan(ctx context.Context, args []string) (*config.Config, []build.BuildPlan, error) {
	cliVars, err := variables(settings.GetStringSlice("env-file"), args)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	opts := build.Options{
		Select:      settings.GetString("select"),
		IgnoreEmpty: settings.GetBool("ignore-empty"),
		Variables:   cliVars,
		Timestamp:   vars.Timestamp(time.Now()),
		Jobs:        settings.GetInt("jobs"),
	}
	info, err := gitver.Detect(cfg.Dir)
	if err != nil {
		log.Warn().Err(err).Msg("git metadata unavailable, _git is undefined")
	}
	opts.Git = info.Value()

	plans, err := build.NewPlanner(os.DirFS(cfg.Dir), opts).Plan(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, plans, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	color := output.UseColor()
	dryRun := settings.GetBool("dry-run")
	ignoreEmpty := settings.GetBool("ignore-empty")

	output.SectionStartCollapsed(w, "plan", "Plan")
	cfg, plans, err := plan(ctx, args)
	output.SectionEnd(w, "plan")
	if err != nil {
		return err
	}

	output.ContextBlock(w, append([]output.KV{
		{Key: "config", Value: cfg.Path},
		{Key: "engine", Value: settings.GetString("engine")},
		{Key: "select", Value: settings.GetString("select")},
		{Key: "plans", Value: fmt.Sprint(len(plans))},
	}, output.CIContext()...))

	var unapplied []string
	if !ignoreEmpty {
		unapplied = build.Unapplied(cfg, plans)
	}

	if dryRun {
		for i := range plans {
			bc, err := build.NewBuildContext(cfg, &plans[i])
			if err != nil {
				return err
			}
			output.PlanSection(w, &plans[i], bc, color)
		}
		output.PlanSummary(w, plans, unapplied, color)
		return nil
	}

	if len(unapplied) > 0 {
		return fmt.Errorf("no applicable destination for any source tag: %s", strings.Join(unapplied, ", "))
	}

	engine, err := build.Get(settings.GetString("engine"), build.EngineOptions{
		Verbose: settings.GetBool("verbose"),
		Stdout:  cmd.ErrOrStderr(),
		Stderr:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	runner := build.NewRunner(engine, cfg)
	runner.Push = settings.GetBool("push")
	runner.Export = settings.GetBool("export")
	runner.ExportDir = settings.GetString("export-dir")

	output.SectionStart(w, "build", "Build")
	result, runErr := runner.Run(ctx, plans)
	output.SectionEnd(w, "build")
	if result != nil {
		output.BuildSummary(w, result, color)
		if dir := settings.GetString("junit-dir"); dir != "" {
			path, err := output.WriteBuildJUnit(dir, result)
			if err != nil {
				log.Warn().Err(err).Msg("writing junit report")
			} else {
				log.Info().Str("path", path).Msg("junit report written")
			}
		}
	}
	return runErr
}
