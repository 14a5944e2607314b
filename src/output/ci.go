package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sofmeright/imagebuild/src/build"
)

// CI environment detection.

func IsCI() bool {
	return os.Getenv("CI") == "true"
}

func IsGitLabCI() bool {
	return os.Getenv("GITLAB_CI") == "true"
}

// GitLab collapsible section helpers.

func SectionStart(w io.Writer, id, name string) {
	if !IsGitLabCI() {
		return
	}
	fmt.Fprintf(w, "\033[0Ksection_start:%d:%s\r\033[0K%s\n", time.Now().Unix(), id, name)
}

func SectionEnd(w io.Writer, id string) {
	if !IsGitLabCI() {
		return
	}
	fmt.Fprintf(w, "\033[0Ksection_end:%d:%s\r\033[0K\n", time.Now().Unix(), id)
}

// SectionStartCollapsed starts a section that is collapsed by default.
func SectionStartCollapsed(w io.Writer, id, name string) {
	if !IsGitLabCI() {
		return
	}
	fmt.Fprintf(w, "\033[0Ksection_start:%d:%s[collapsed=true]\r\033[0K%s\n", time.Now().Unix(), id, name)
}

// SectionID turns a display name into a GitLab section identifier.
func SectionID(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}

// CIContext returns the pipeline identity fields present in the
// environment, for ContextBlock.
func CIContext() []KV {
	var kv []KV
	if tag := os.Getenv("CI_COMMIT_TAG"); tag != "" {
		kv = append(kv, KV{"tag", tag})
	}
	if sha := os.Getenv("CI_COMMIT_SHORT_SHA"); sha != "" {
		kv = append(kv, KV{"sha", sha})
	} else if sha := os.Getenv("CI_COMMIT_SHA"); len(sha) >= 8 {
		kv = append(kv, KV{"sha", sha[:8]})
	}
	if pipe := os.Getenv("CI_PIPELINE_ID"); pipe != "" {
		kv = append(kv, KV{"pipeline", pipe})
	}
	if runner := os.Getenv("CI_RUNNER_DESCRIPTION"); runner != "" {
		kv = append(kv, KV{"runner", runner})
	}
	return kv
}

// JUnit XML types for CI test reporting.

type JUnitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []JUnitTestCase `xml:"testcase"`
}

type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr"`
}

// WriteBuildJUnit writes build steps as JUnit XML to dir/image-build.xml.
// Every step is a test case; failed steps carry the error as the failure.
func WriteBuildJUnit(dir string, result *build.BuildResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}

	suite := JUnitTestSuite{
		Name: "image-build",
		Time: fmt.Sprintf("%.3f", result.Duration.Seconds()),
	}
	for _, step := range result.Steps {
		tc := JUnitTestCase{
			Name:      step.Name,
			Classname: "image-build.build",
			Time:      fmt.Sprintf("%.3f", step.Duration.Seconds()),
		}
		switch step.Status {
		case "failed":
			msg := "build failed"
			if step.Error != nil {
				msg = step.Error.Error()
			}
			tc.Failure = &JUnitFailure{Message: msg, Type: "build", Body: layerReport(step.Layers)}
			suite.Failures++
		case "skipped":
			tc.Skipped = &JUnitSkipped{Message: "no applicable tags"}
			suite.Skipped++
		}
		suite.Cases = append(suite.Cases, tc)
		suite.Tests++
	}

	root := JUnitTestSuites{
		Name:     "image-build",
		Tests:    suite.Tests,
		Failures: suite.Failures,
		Skipped:  suite.Skipped,
		Time:     suite.Time,
		Suites:   []JUnitTestSuite{suite},
	}

	path := filepath.Join(dir, "image-build.xml")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, xml.Header); err != nil {
		return "", err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("encoding junit xml: %w", err)
	}
	if _, err := io.WriteString(f, "\n"); err != nil {
		return "", err
	}
	return path, f.Close()
}

func layerReport(layers []build.LayerEvent) string {
	lines := make([]string, 0, len(layers))
	for _, l := range layers {
		lines = append(lines, fmt.Sprintf("%s %s %s", l.StageStep, build.FormatLayerInstruction(l), build.FormatLayerTiming(l)))
	}
	return strings.Join(lines, "\n")
}
