package cmd

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sofmeright/imagebuild/src/build"
	"github.com/sofmeright/imagebuild/src/selector"
)

// Count comparison modes.
const (
	modeMin   = "min"
	modeMax   = "max"
	modeEqual = "equal"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Inspect and prune local images",
	Long:  "Count or remove local images whose repo:tag reference matches a regular expression.",
}

var imagesCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Check the number of matching local images",
	Long: `Print the local image references matching --regex and check how many
there are. An untagged image is matched as the empty string and printed by ID.

--mode min fails when fewer than --expected images match, max when more
match, equal when the count differs.`,
	Args: cobra.NoArgs,
	RunE: runImagesCount,
}

var imagesRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove matching local images",
	Args:  cobra.NoArgs,
	RunE:  runImagesRemove,
}

func init() {
	imagesCountCmd.Flags().StringP("regex", "r", "^.*$", "regular expression searched in repo:tag references")
	imagesCountCmd.Flags().BoolP("negate", "n", false, "select references that do not match")
	imagesCountCmd.Flags().IntP("expected", "e", 1, "expected number of matching references")
	imagesCountCmd.Flags().String("mode", modeMin, "comparison with --expected: min, max or equal")

	imagesRemoveCmd.Flags().StringP("regex", "r", "", "regular expression searched in repo:tag references (required)")
	imagesRemoveCmd.Flags().BoolP("negate", "n", false, "select references that do not match")
	_ = imagesRemoveCmd.MarkFlagRequired("regex")

	imagesCmd.AddCommand(imagesCountCmd, imagesRemoveCmd)
	rootCmd.AddCommand(imagesCmd)
}

// FilterImages returns the images rule selects, sorted by reference. An
// untagged image is matched as the empty string.
func FilterImages(images []build.LocalImage, rule *selector.Rule) []build.LocalImage {
	var out []build.LocalImage
	for _, img := range images {
		if rule.Match(img.Ref) != rule.Negate() {
			out = append(out, img)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ref != out[j].Ref {
			return out[i].Ref < out[j].Ref
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CheckCount compares a match count against the expected one.
func CheckCount(count, expected int, mode string) error {
	var ok bool
	switch mode {
	case modeMin:
		ok = count >= expected
	case modeMax:
		ok = count <= expected
	case modeEqual:
		ok = count == expected
	default:
		return fmt.Errorf("invalid mode %q: must be min, max or equal", mode)
	}
	if !ok {
		return fmt.Errorf("found %d matching images, expected %s %d", count, mode, expected)
	}
	return nil
}

func matchingImages(cmd *cobra.Command) (build.Engine, []build.LocalImage, error) {
	rule, err := selector.Compile([]string{settings.GetString("regex")}, settings.GetBool("negate"), false)
	if err != nil {
		return nil, nil, err
	}

	engine, err := build.Get(settings.GetString("engine"), build.EngineOptions{
		Verbose: settings.GetBool("verbose"),
		Stdout:  cmd.ErrOrStderr(),
		Stderr:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, err
	}

	images, err := engine.Images(cmd.Context())
	if err != nil {
		engine.Close()
		return nil, nil, err
	}
	return engine, FilterImages(images, rule), nil
}

func runImagesCount(cmd *cobra.Command, _ []string) error {
	engine, images, err := matchingImages(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, img := range images {
		fmt.Fprintln(cmd.OutOrStdout(), img.Name())
	}
	log.Debug().Int("count", len(images)).Msg("matched images")
	return CheckCount(len(images), settings.GetInt("expected"), settings.GetString("mode"))
}

func runImagesRemove(cmd *cobra.Command, _ []string) error {
	engine, images, err := matchingImages(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, img := range images {
		if err := engine.Remove(cmd.Context(), img.Name()); err != nil {
			return err
		}
		log.Info().Str("image", img.Name()).Msg("removed")
		fmt.Fprintln(cmd.OutOrStdout(), img.Name())
	}
	return nil
}
