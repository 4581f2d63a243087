package sandbox

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"runbox/internal/dockerstream"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// artifactMount is the read-only directory inside the container where the
// artifact's host directory is bound.
const artifactMount = "/artifact"

// removeTimeout bounds the forced container removal on each exit path.
const removeTimeout = 10 * time.Second

// DockerRunner implements Runner using the Docker SDK.
type DockerRunner struct {
	client  *client.Client
	image   string
	command []string
}

// NewDockerRunner creates a Docker-based runner. The runtime image is fixed;
// command is the base invocation the artifact path is appended to
// (e.g. ["dart", "run"]).
func NewDockerRunner(image string, command []string) (*DockerRunner, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRunner{client: cli, image: image, command: command}, nil
}

// Run executes the artifact and collects combined stdout/stderr. The
// container is removed on every exit path; on context expiry it is killed
// by the forced removal rather than left running.
func (r *DockerRunner) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	if err := r.ensureImage(ctx); err != nil {
		return nil, &InfraError{Op: "pull image", Err: err}
	}

	containerPath := path.Join(artifactMount, filepath.Base(spec.ArtifactPath))
	cfg := &container.Config{
		Image:           r.image,
		Cmd:             append(append([]string{}, r.command...), containerPath),
		NetworkDisabled: true,
		Labels:          map[string]string{"runbox.job": spec.JobID},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{filepath.Dir(spec.ArtifactPath) + ":" + artifactMount + ":ro"},
	}

	created, err := r.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, &InfraError{Op: "create container", Err: err}
	}
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()
		r.client.ContainerRemove(removeCtx, created.ID, container.RemoveOptions{Force: true})
	}()

	if err := r.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, &InfraError{Op: "start container", Err: err}
	}

	statusCh, errCh := r.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)

	var exitCode int
	select {
	case err := <-errCh:
		return nil, &InfraError{Op: "wait", Err: err}
	case status := <-statusCh:
		if status.Error != nil {
			return nil, &InfraError{Op: "wait", Err: fmt.Errorf("%s", status.Error.Message)}
		}
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		// Deadline hit: the deferred forced removal terminates the container.
		return nil, fmt.Errorf("execution aborted: %w", ctx.Err())
	}

	output, err := r.collectOutput(created.ID)
	if err != nil {
		return nil, &InfraError{Op: "collect output", Err: err}
	}

	return &RunResult{ExitCode: exitCode, Output: output}, nil
}

func (r *DockerRunner) ensureImage(ctx context.Context) error {
	// Check locally first to save time.
	if _, _, err := r.client.ImageInspectWithRaw(ctx, r.image); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// collectOutput reads the container's multiplexed log stream after exit and
// demuxes it into plain text.
func (r *DockerRunner) collectOutput(containerID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	rc, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var demux dockerstream.Demuxer
	var sb strings.Builder
	buf := make([]byte, 32*1024)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			for _, payload := range demux.Write(buf[:n]) {
				sb.Write(payload)
			}
		}
		if err != nil {
			if err == io.EOF {
				return sb.String(), nil
			}
			return sb.String(), err
		}
	}
}
