// Package output renders plans and build results for the terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sofmeright/imagebuild/src/build"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// maxListedFiles caps the context file rows shown per plan.
const maxListedFiles = 10

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// UseColor returns true if colored output should be used.
// Respects NO_COLOR env, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal() || IsCI()
}

func colorize(text, code string, color bool) string {
	if !color {
		return text
	}
	return code + text + colorReset
}

// PlanSection renders one plan: source, destination references, base
// images, build context files and the rendered Dockerfile. bc may be nil
// when the context was not collected.
func PlanSection(w io.Writer, plan *build.BuildPlan, bc *build.BuildContext, color bool) {
	sec := NewSection(w, plan.Source, 0, color)

	source := plan.Source
	if plan.Primary {
		source += " " + Dimmed("(primary)", color)
	}
	sec.Field("source", source)

	refs := plan.Refs()
	for i, ref := range refs {
		refs[i] = colorize(ref, colorCyan, color)
	}
	sec.Field("tags", refs...)
	sec.Field("from", plan.BaseImages()...)

	if plan.VariantDir != "" {
		sec.Field("variant", plan.VariantDir)
	}
	if bc != nil {
		sec.Field("base files", capList(bc.RootFiles, color)...)
		if plan.VariantDir != "" {
			sec.Field("var. files", capList(bc.VariantFiles, color)...)
		}
	}

	sec.Separator()
	sec.Block(plan.Dockerfile)
	sec.Close()
}

// capList returns at most maxListedFiles entries plus a count of the rest.
func capList(files []string, color bool) []string {
	if len(files) <= maxListedFiles {
		return files
	}
	out := append([]string{}, files[:maxListedFiles]...)
	return append(out, Dimmed(fmt.Sprintf("… %d more", len(files)-maxListedFiles), color))
}

// PlanSummary lists every plan on one line and the builds without any
// applicable destination.
func PlanSummary(w io.Writer, plans []build.BuildPlan, unapplied []string, color bool) {
	sec := NewSection(w, "Plan", 0, color)
	for i := range plans {
		p := &plans[i]
		status := "success"
		detail := strings.Join(p.Tags, ", ")
		if len(p.Tags) == 0 {
			status = "skipped"
			detail = Dimmed("no applicable tags", color)
		}
		SummaryRow(w, p.Source, status, detail, color)
	}
	for _, name := range unapplied {
		SummaryRow(w, name, "failed", "no applicable destination for any source tag", color)
	}
	sec.Close()
}

// BuildSummary renders the per-step results, the layer timings of each
// step and the export archives.
func BuildSummary(w io.Writer, result *build.BuildResult, color bool) {
	sec := NewSection(w, "Build", result.Duration, color)

	overall := "success"
	for i, step := range result.Steps {
		if i > 0 && len(step.Layers) > 0 {
			sec.Row("")
		}
		detail := strings.Join(step.Images, ", ")
		switch step.Status {
		case "failed":
			overall = "failed"
			if step.Error != nil {
				detail = step.Error.Error()
			}
		case "skipped":
			detail = Dimmed("no applicable tags", color)
		}
		SummaryRow(w, step.Name, step.Status, detail, color)

		for _, layer := range step.Layers {
			sec.Row("  %-8s %-44s %s",
				layer.Instruction,
				truncate(build.FormatLayerInstruction(layer), 44),
				Dimmed(build.FormatLayerTiming(layer), color))
		}
	}

	if len(result.Exports) > 0 {
		sec.Separator()
		sec.Field("exported", result.Exports...)
	}

	sec.Separator()
	SummaryTotal(w, result.Duration, overall, color)
	sec.Close()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
