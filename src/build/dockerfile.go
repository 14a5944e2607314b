package build

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

var (
	// FROM [--platform=...] <image> [AS <name>]
	fromRe = regexp.MustCompile(`(?i)^FROM\s+(?:--platform=\S+\s+)?(\S+)(?:\s+AS\s+(\S+))?`)
	// ARG <name>[=<default>]
	argRe = regexp.MustCompile(`(?i)^ARG\s+(\S+?)(?:=.*)?$`)
)

// DockerfileInfo describes a rendered Dockerfile.
type DockerfileInfo struct {
	Stages []Stage
	Args   []string
}

// Stage describes a single FROM stage in a Dockerfile.
type Stage struct {
	Name      string // alias from "AS name", empty if unnamed
	BaseImage string // the FROM image reference
	Line      int    // line number of the FROM instruction
}

// ParseDockerfile extracts stages and args from Dockerfile text.
// Regex-based, not a full parser: continuation lines and heredocs are not
// followed. Sufficient for plan display.
func ParseDockerfile(r io.Reader) *DockerfileInfo {
	info := &DockerfileInfo{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := fromRe.FindStringSubmatch(line); m != nil {
			info.Stages = append(info.Stages, Stage{
				BaseImage: m[1],
				Name:      m[2],
				Line:      lineNum,
			})
			continue
		}
		if m := argRe.FindStringSubmatch(line); m != nil {
			info.Args = append(info.Args, m[1])
		}
	}
	return info
}
