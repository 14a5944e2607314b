package build

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/imagebuild/src/config"
)

func TestRefs(t *testing.T) {
	p := BuildPlan{
		Repository: "library/alpine",
		Tags:       []string{"3.15", "latest", "ghcr.io/acme/alpine:3.15"},
	}
	assert.Equal(t, []string{
		"library/alpine:3.15",
		"library/alpine:latest",
		"ghcr.io/acme/alpine:3.15",
	}, p.Refs())
	assert.Empty(t, (&BuildPlan{Repository: "x"}).Refs())
}

func TestUnapplied(t *testing.T) {
	cfg := &config.Config{Builds: []config.BuildSpec{{Name: "a"}, {Name: "b"}, {Name: "c"}}}
	plans := []BuildPlan{
		{BuildIndex: 0, Tags: []string{"1"}},
		{BuildIndex: 1, Tags: []string{}},
	}
	assert.Equal(t, []string{"b", "c"}, Unapplied(cfg, plans))
	assert.Empty(t, Unapplied(&config.Config{}, nil))
}

func TestByBuild(t *testing.T) {
	plans := []BuildPlan{
		{BuildIndex: 0, SourceTag: "1"},
		{BuildIndex: 0, SourceTag: "2"},
		{BuildIndex: 2, SourceTag: "x"},
	}
	groups := ByBuild(plans)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, "x", groups[1][0].SourceTag)
	assert.Empty(t, ByBuild(nil))
}

func TestParseDockerfile(t *testing.T) {
	info := ParseDockerfile(strings.NewReader(`# syntax=docker/dockerfile:1
ARG VERSION=1.0
FROM --platform=$BUILDPLATFORM golang:1.22 AS builder
RUN go build ./...

from alpine:3.15
ARG USER
COPY --from=builder /out /usr/bin/
`))
	require.Len(t, info.Stages, 2)
	assert.Equal(t, Stage{Name: "builder", BaseImage: "golang:1.22", Line: 3}, info.Stages[0])
	assert.Equal(t, "alpine:3.15", info.Stages[1].BaseImage)
	assert.Equal(t, 6, info.Stages[1].Line)
	assert.Equal(t, []string{"VERSION", "USER"}, info.Args)

	p := BuildPlan{Dockerfile: "FROM a:1 AS x\nFROM x\n"}
	assert.Equal(t, []string{"a:1", "x"}, p.BaseImages())
}

func TestParseBuildxOutput(t *testing.T) {
	output := `#1 [internal] load build definition from Dockerfile
#1 DONE 0.0s
#5 [builder 1/3] FROM docker.io/library/golang:1.22@sha256:abc123
#5 DONE 1.5s
#6 [builder 2/3] COPY . .
#6 CACHED
#7 [builder 3/3] RUN go build -o /out/app ./cmd/app && strip /out/app && echo built everything here
#7 DONE 72.0s
#8 [stage-1 1/1] COPY --from=builder /out/app /app
#9 exporting to image
#9 DONE 0.2s
`
	events := ParseBuildxOutput(output)
	require.Len(t, events, 3, "step 8 never finished")

	assert.Equal(t, "builder", events[0].Stage)
	assert.Equal(t, "1/3", events[0].StageStep)
	assert.Equal(t, "FROM", events[0].Instruction)
	assert.Equal(t, "docker.io/library/golang:1.22", events[0].Image)
	assert.Equal(t, 1500*time.Millisecond, events[0].Duration)
	assert.Equal(t, "docker.io/library/golang:1.22", FormatLayerInstruction(events[0]))
	assert.Equal(t, "1.5s", FormatLayerTiming(events[0]))

	assert.True(t, events[1].Cached)
	assert.Equal(t, "cached", FormatLayerTiming(events[1]))
	assert.Equal(t, "COPY . .", FormatLayerInstruction(events[1]))

	assert.Len(t, events[2].Detail, maxDetail)
	assert.True(t, strings.HasSuffix(events[2].Detail, "..."))
	assert.Equal(t, "1.2m", FormatLayerTiming(events[2]))
}

func TestFormatLayerTimingEmpty(t *testing.T) {
	assert.Equal(t, "", FormatLayerTiming(LayerEvent{}))
	assert.Equal(t, "RUN", FormatLayerInstruction(LayerEvent{Instruction: "RUN"}))
}

func TestBuildxArgs(t *testing.T) {
	bx := NewBuildx(false)
	args := bx.buildArgs(BuildRequest{
		Refs:   []string{"library/alpine:3.15", "library/alpine:latest"},
		Labels: map[string]string{LabelRunID: "r1", LabelBuild: "alpine"},
	}, "/tmp/iid")
	assert.Equal(t, []string{
		"buildx", "build", "--progress=plain", "--load", "--iidfile", "/tmp/iid",
		"--label", LabelBuild + "=alpine",
		"--label", LabelRunID + "=r1",
		"--tag", "library/alpine:3.15",
		"--tag", "library/alpine:latest",
		"-",
	}, args)
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c\nd", lastLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", lastLines("a", 5))
}

func TestParseImageList(t *testing.T) {
	out := "sha256:aaa library/alpine:3.15\n" +
		"sha256:aaa library/alpine:latest\n" +
		"sha256:bbb <none>:<none>\n" +
		"\n"
	images, err := parseImageList(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, []LocalImage{
		{ID: "sha256:aaa", Ref: "library/alpine:3.15"},
		{ID: "sha256:aaa", Ref: "library/alpine:latest"},
		{ID: "sha256:bbb"},
	}, images)
	assert.Equal(t, "sha256:bbb", images[2].Name())
	assert.Equal(t, "library/alpine:3.15", images[0].Name())
}
