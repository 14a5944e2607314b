// Package engines holds the container backends. Importing it registers
// them with the build package.
package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"

	"github.com/sofmeright/imagebuild/src/build"
)

func init() {
	build.Register("docker", func(opts build.EngineOptions) (build.Engine, error) {
		return NewDocker(opts)
	})
}

// Docker talks to the Docker Engine API. Connection settings come from the
// standard DOCKER_HOST / DOCKER_CERT_PATH / DOCKER_TLS_VERIFY variables.
type Docker struct {
	client  *client.Client
	verbose bool
	out     io.Writer
}

// NewDocker creates a Docker engine client.
func NewDocker(opts build.EngineOptions) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	out := opts.Stderr
	if out == nil {
		out = io.Discard
	}
	return &Docker{client: cli, verbose: opts.Verbose, out: out}, nil
}

func (d *Docker) Name() string { return "docker" }

// jsonMessage is one line of a build or push progress stream.
type jsonMessage struct {
	Stream      string          `json:"stream"`
	Status      string          `json:"status"`
	Progress    string          `json:"progress"`
	Error       string          `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
	Aux json.RawMessage `json:"aux"`
}

func (d *Docker) Build(ctx context.Context, req build.BuildRequest) (*build.StepResult, error) {
	start := time.Now()
	result := &build.StepResult{Name: req.Name}

	resp, err := d.client.ImageBuild(ctx, req.Context, types.ImageBuildOptions{
		Dockerfile:  build.DockerfileName,
		Remove:      true,
		ForceRemove: true,
		PullParent:  true,
		Labels:      req.Labels,
	})
	if err != nil {
		result.Status = "failed"
		result.Error = fmt.Errorf("docker build failed: %w", err)
		return result, result.Error
	}
	defer resp.Body.Close()

	imageID, err := d.streamBuildOutput(ctx, resp.Body)
	result.Duration = time.Since(start)
	if err == nil && imageID == "" {
		err = errors.New("build finished without an image ID")
	}
	if err != nil {
		result.Status = "failed"
		result.Error = err
		return result, err
	}
	result.ImageID = imageID

	for _, ref := range req.Refs {
		if err := d.client.ImageTag(ctx, imageID, ref); err != nil {
			result.Status = "failed"
			result.Error = fmt.Errorf("failed to tag image %s: %w", ref, err)
			return result, result.Error
		}
		result.Images = append(result.Images, ref)
	}

	log.Info().
		Str("image", imageID).
		Strs("tags", result.Images).
		Dur("duration", result.Duration).
		Msg("docker build completed")

	result.Status = "success"
	return result, nil
}

// streamBuildOutput consumes the build stream and returns the image ID
// reported in the aux message.
func (d *Docker) streamBuildOutput(ctx context.Context, r io.Reader) (string, error) {
	decoder := json.NewDecoder(r)
	var imageID string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		var msg jsonMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return imageID, nil
			}
			return "", fmt.Errorf("failed to decode build output: %w", err)
		}

		if msg.Error != "" {
			detail := msg.ErrorDetail.Message
			if detail == "" {
				detail = msg.Error
			}
			return "", fmt.Errorf("build error: %s", detail)
		}
		if len(msg.Aux) > 0 {
			var aux struct {
				ID string `json:"ID"`
			}
			if json.Unmarshal(msg.Aux, &aux) == nil && aux.ID != "" {
				imageID = aux.ID
			}
		}
		if msg.Stream != "" {
			if d.verbose {
				fmt.Fprint(d.out, msg.Stream)
			}
			log.Debug().Str("output", strings.TrimSpace(msg.Stream)).Msg("build output")
		}
	}
}

func (d *Docker) Push(ctx context.Context, ref string) error {
	rc, err := d.client.ImagePush(ctx, ref, image.PushOptions{})
	if err != nil {
		return fmt.Errorf("failed to push image: %w", err)
	}
	defer rc.Close()

	decoder := json.NewDecoder(rc)
	for {
		var msg jsonMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to decode push output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("push error: %s", msg.Error)
		}
		if msg.Status != "" {
			log.Debug().Str("image", ref).Str("status", msg.Status).Str("progress", msg.Progress).Msg("push progress")
		}
	}

	log.Info().Str("image", ref).Msg("image pushed")
	return nil
}

func (d *Docker) Save(ctx context.Context, refs []string, w io.Writer) error {
	rc, err := d.client.ImageSave(ctx, refs)
	if err != nil {
		return fmt.Errorf("failed to save images: %w", err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("failed to save images: %w", err)
	}
	return nil
}

func (d *Docker) Images(ctx context.Context) ([]build.LocalImage, error) {
	summaries, err := d.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	var images []build.LocalImage
	for _, s := range summaries {
		tagged := false
		for _, tag := range s.RepoTags {
			if tag != "" && !strings.Contains(tag, "<none>") {
				images = append(images, build.LocalImage{ID: s.ID, Ref: tag})
				tagged = true
			}
		}
		if !tagged {
			images = append(images, build.LocalImage{ID: s.ID})
		}
	}
	return images, nil
}

func (d *Docker) Remove(ctx context.Context, ref string) error {
	if _, err := d.client.ImageRemove(ctx, ref, image.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove image %s: %w", ref, err)
	}
	return nil
}

func (d *Docker) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
