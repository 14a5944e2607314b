package build

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// BuilderName is the buildx builder created when none is usable.
const BuilderName = "image-build"

// Buildx wraps the docker CLI and its buildx plugin.
type Buildx struct {
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewBuildx creates a Buildx runner with default output writers.
func NewBuildx(verbose bool) *Buildx {
	return &Buildx{
		Verbose: verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Build runs docker buildx build with the context tar on stdin and loads
// the result into the local image store.
func (bx *Buildx) Build(ctx context.Context, req BuildRequest) (*StepResult, error) {
	start := time.Now()
	result := &StepResult{Name: req.Name}

	iidDir, err := os.MkdirTemp("", "image-build-iid-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(iidDir)
	iidFile := filepath.Join(iidDir, "iid")

	var progress bytes.Buffer
	stderr := io.Writer(&progress)
	if bx.Verbose {
		stderr = io.MultiWriter(&progress, bx.Stderr)
	}

	cmd := bx.command(ctx, bx.buildArgs(req, iidFile)...)
	cmd.Stdin = req.Context
	cmd.Stdout = bx.Stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	result.Duration = time.Since(start)
	result.Layers = ParseBuildxOutput(progress.String())
	if err != nil {
		result.Status = "failed"
		result.Error = fmt.Errorf("docker buildx build failed: %w: %s", err, lastLines(progress.String(), 5))
		return result, result.Error
	}

	if id, readErr := os.ReadFile(iidFile); readErr == nil {
		result.ImageID = strings.TrimSpace(string(id))
	}
	result.Status = "success"
	result.Images = req.Refs
	return result, nil
}

// buildArgs constructs the docker buildx build argument list.
func (bx *Buildx) buildArgs(req BuildRequest, iidFile string) []string {
	args := []string{"buildx", "build", "--progress=plain", "--load", "--iidfile", iidFile}

	labels := make([]string, 0, len(req.Labels))
	for k := range req.Labels {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	for _, k := range labels {
		args = append(args, "--label", k+"="+req.Labels[k])
	}

	for _, ref := range req.Refs {
		args = append(args, "--tag", ref)
	}

	// Context tar on stdin.
	return append(args, "-")
}

// EnsureBuilder checks that a buildx builder is available and creates one if needed.
func (bx *Buildx) EnsureBuilder(ctx context.Context) error {
	if err := bx.command(ctx, "buildx", "inspect").Run(); err != nil {
		create := bx.command(ctx, "buildx", "create", "--use", "--name", BuilderName)
		create.Stdout = bx.Stderr
		create.Stderr = bx.Stderr
		if createErr := create.Run(); createErr != nil {
			return fmt.Errorf("creating buildx builder: %w", createErr)
		}
	}
	return nil
}

// Push runs docker push for one reference.
func (bx *Buildx) Push(ctx context.Context, ref string) error {
	cmd := bx.command(ctx, "push", ref)
	cmd.Stdout = bx.Stderr
	cmd.Stderr = bx.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker push %s: %w", ref, err)
	}
	return nil
}

// Save runs docker save and streams the archive to w.
func (bx *Buildx) Save(ctx context.Context, refs []string, w io.Writer) error {
	cmd := bx.command(ctx, append([]string{"save"}, refs...)...)
	cmd.Stdout = w
	cmd.Stderr = bx.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker save: %w", err)
	}
	return nil
}

// Images lists local images. Untagged images are reported with an empty
// Ref.
func (bx *Buildx) Images(ctx context.Context) ([]LocalImage, error) {
	var out bytes.Buffer
	cmd := bx.command(ctx, "image", "ls", "--no-trunc", "--format", "{{.ID}} {{.Repository}}:{{.Tag}}")
	cmd.Stdout = &out
	cmd.Stderr = bx.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("docker image ls: %w", err)
	}
	return parseImageList(&out)
}

func parseImageList(r io.Reader) ([]LocalImage, error) {
	var images []LocalImage
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		id, ref, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if id == "" {
			continue
		}
		if strings.Contains(ref, "<none>") {
			ref = ""
		}
		images = append(images, LocalImage{ID: id, Ref: ref})
	}
	return images, scanner.Err()
}

// Remove force-removes one reference or image ID.
func (bx *Buildx) Remove(ctx context.Context, ref string) error {
	cmd := bx.command(ctx, "image", "rm", "--force", ref)
	cmd.Stdout = io.Discard
	cmd.Stderr = bx.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker image rm %s: %w", ref, err)
	}
	return nil
}

func (bx *Buildx) command(ctx context.Context, args ...string) *exec.Cmd {
	if bx.Verbose {
		fmt.Fprintf(bx.Stderr, "exec: docker %s\n", strings.Join(args, " "))
	}
	return exec.CommandContext(ctx, "docker", args...)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
