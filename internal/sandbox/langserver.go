package sandbox

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// LangServerLauncher starts long-lived language-server containers for
// interactive sessions. The container speaks the protocol over stdin/stdout,
// so it runs without a TTY and with stdin held open.
type LangServerLauncher struct {
	client *client.Client
	image  string
}

// NewLangServerLauncher creates a launcher for the given language-server image.
func NewLangServerLauncher(image string) (*LangServerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &LangServerLauncher{client: cli, image: image}, nil
}

// Start launches a language-server container for one session. hostDir (the
// session's uploaded files) is bound at workspaceRoot inside the container.
// The returned container ID is meant to be bound to the session record.
func (l *LangServerLauncher) Start(ctx context.Context, sessionID, hostDir, workspaceRoot string) (string, error) {
	cfg := &container.Config{
		Image:     l.image,
		OpenStdin: true,
		Labels:    map[string]string{"runbox.session": sessionID},
	}
	hostCfg := &container.HostConfig{
		Binds: []string{hostDir + ":" + workspaceRoot},
	}

	created, err := l.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", &InfraError{Op: "create language server", Err: err}
	}

	if err := l.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		removeCtx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()
		l.client.ContainerRemove(removeCtx, created.ID, container.RemoveOptions{Force: true})
		return "", &InfraError{Op: "start language server", Err: err}
	}

	return created.ID, nil
}

// Stop forcibly removes a session's language-server container.
func (l *LangServerLauncher) Stop(ctx context.Context, containerID string) error {
	return l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}
