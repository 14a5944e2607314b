package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sofmeright/imagebuild/src/config"
)

// EnvPrefix prefixes the environment variables bound to flags:
// --ignore-empty is IMAGE_BUILD_IGNORE_EMPTY.
const EnvPrefix = "IMAGE_BUILD"

var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "image-build",
	Short: "Build container images from templated Dockerfiles",
	Long: `image-build renders a Dockerfile template and a set of tag templates for
every source tag of every build in image-build.yml, then builds, tags,
pushes or exports the resulting images.

Positional KEY=VALUE arguments set template variables with the highest
precedence. Without a subcommand, image-build runs "build".`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: setup,
	RunE:              runBuild,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("file", "f", config.DefaultConfigFile, "configuration file")
	pf.String("engine", "docker", "container engine: docker or buildx")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: console or json (default: console on a terminal)")
	pf.BoolP("verbose", "v", false, "stream engine output")

	addBuildFlags(rootCmd.Flags())
}

// setup binds flags and IMAGE_BUILD_* environment variables, then
// configures logging.
func setup(cmd *cobra.Command, _ []string) error {
	settings.SetEnvPrefix(EnvPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	if err := settings.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	return setupLogging(os.Stderr, settings.GetString("log-level"), settings.GetString("log-format"))
}

func setupLogging(w io.Writer, level, format string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	switch format {
	case "json":
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	case "", "console":
		if format == "" && !isTerminal(w) {
			log.Logger = zerolog.New(w).With().Timestamp().Logger()
			return nil
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	default:
		return fmt.Errorf("invalid log format %q: must be console or json", format)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// loadConfig loads the configuration named by --file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(settings.GetString("file"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command. ctx is canceled on interrupt.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}
