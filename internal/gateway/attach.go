package gateway

import (
	"context"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Stream is a bidirectional byte stream to an attached container. Reads
// return the raw multiplexed stdout/stderr stream; writes go to stdin.
type Stream interface {
	io.ReadWriteCloser
}

// Attacher opens a stream to a running container's stdio.
type Attacher interface {
	Attach(ctx context.Context, containerID string) (Stream, error)
}

// DockerAttacher implements Attacher using the Docker SDK's hijacked
// attach connection.
type DockerAttacher struct {
	client *client.Client
}

// NewDockerAttacher creates an attacher from the standard environment.
func NewDockerAttacher() (*DockerAttacher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerAttacher{client: cli}, nil
}

type hijackedStream struct {
	resp types.HijackedResponse
}

func (s *hijackedStream) Read(p []byte) (int, error)  { return s.resp.Reader.Read(p) }
func (s *hijackedStream) Write(p []byte) (int, error) { return s.resp.Conn.Write(p) }
func (s *hijackedStream) Close() error {
	s.resp.Close()
	return nil
}

// Attach hijacks the container's stdio. The container must run without a
// TTY so the read side stays multiplexed per stream.
func (a *DockerAttacher) Attach(ctx context.Context, containerID string) (Stream, error) {
	resp, err := a.client.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, err
	}
	return &hijackedStream{resp: resp}, nil
}
