package build

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LayerEvent is a completed build step parsed from buildx plain progress.
type LayerEvent struct {
	Stage       string // "builder", "stage-1", ""
	StageStep   string // "1/7"
	Instruction string // "FROM", "COPY", "RUN", ...
	Detail      string // instruction arguments, truncated
	Image       string // FROM only: base image without digest
	Cached      bool
	Duration    time.Duration // zero for cached steps
}

// Regex patterns for buildx --progress=plain output.
var (
	// #N [stage M/N] INSTRUCTION args...
	layerStartRe = regexp.MustCompile(`^#(\d+) \[([^\]]*?) ?(\d+/\d+)\] (\w+)\s*(.*)`)
	// #N CACHED
	cachedRe = regexp.MustCompile(`^#(\d+) CACHED`)
	// #N DONE 44.8s
	doneRe = regexp.MustCompile(`^#(\d+) DONE (\d+\.?\d*)s`)
	// image[@sha256:...] [AS name]
	fromImageRe = regexp.MustCompile(`^(\S+?)(?:@sha256:[a-f0-9]+)?(?:\s+AS\s+\S+)?$`)
)

const maxDetail = 60

// ParseBuildxOutput returns the completed Dockerfile steps found in plain
// progress output, in step order. Internal steps (loading the definition,
// exporting) have no stage counter and are not matched.
func ParseBuildxOutput(output string) []LayerEvent {
	type pending struct {
		event LayerEvent
		done  bool
	}
	steps := map[int]*pending{}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if m := layerStartRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			ev := LayerEvent{
				Stage:       m[2],
				StageStep:   m[3],
				Instruction: strings.ToUpper(m[4]),
				Detail:      m[5],
			}
			if ev.Instruction == "FROM" {
				if fm := fromImageRe.FindStringSubmatch(ev.Detail); fm != nil {
					ev.Image = fm[1]
				}
			}
			if len(ev.Detail) > maxDetail {
				ev.Detail = ev.Detail[:maxDetail-3] + "..."
			}
			steps[n] = &pending{event: ev}
			continue
		}

		if m := cachedRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			if p, ok := steps[n]; ok {
				p.event.Cached = true
				p.done = true
			}
			continue
		}

		if m := doneRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			if p, ok := steps[n]; ok {
				secs, _ := strconv.ParseFloat(m[2], 64)
				p.event.Duration = time.Duration(secs * float64(time.Second))
				p.done = true
			}
		}
	}

	ids := make([]int, 0, len(steps))
	for id, p := range steps {
		if p.done {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	events := make([]LayerEvent, 0, len(ids))
	for _, id := range ids {
		events = append(events, steps[id].event)
	}
	return events
}

// FormatLayerTiming returns "cached" for cache hits or the step duration.
func FormatLayerTiming(e LayerEvent) string {
	switch {
	case e.Cached:
		return "cached"
	case e.Duration >= time.Minute:
		return strconv.FormatFloat(e.Duration.Minutes(), 'f', 1, 64) + "m"
	case e.Duration > 0:
		return strconv.FormatFloat(e.Duration.Seconds(), 'f', 1, 64) + "s"
	}
	return ""
}

// FormatLayerInstruction shows the base image for FROM and the instruction
// with its arguments otherwise.
func FormatLayerInstruction(e LayerEvent) string {
	if e.Instruction == "FROM" && e.Image != "" {
		return e.Image
	}
	if e.Detail != "" {
		return e.Instruction + " " + e.Detail
	}
	return e.Instruction
}
