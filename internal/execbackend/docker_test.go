package execbackend

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAPIClient embeds the real client.APIClient so it satisfies every
// method the SDK interface declares, then overrides only the handful
// DockerBackend actually calls — the teacher's own internal/docker mock
// instead implements a narrower hand-written wrapper interface, since that
// package never needs the real SDK's full surface the way this backend's
// ContainerExecInspect call does.
type mockAPIClient struct {
	client.APIClient

	execStdout string
	execExit   int
	createErr  error
}

func (m *mockAPIClient) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (m *mockAPIClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error) {
	if m.createErr != nil {
		return container.CreateResponse{}, m.createErr
	}
	return container.CreateResponse{ID: "mock-id"}, nil
}

func (m *mockAPIClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return nil
}

func (m *mockAPIClient) ContainerExecCreate(ctx context.Context, containerID string, config container.ExecOptions) (types.IDResponse, error) {
	return types.IDResponse{ID: "exec-id"}, nil
}

func (m *mockAPIClient) ContainerExecAttach(ctx context.Context, execID string, config container.ExecStartOptions) (types.HijackedResponse, error) {
	return types.HijackedResponse{
		Reader: bufio.NewReader(strings.NewReader(m.execStdout)),
		Conn:   &net.TCPConn{},
	}, nil
}

func (m *mockAPIClient) ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error) {
	return container.ExecInspect{ExitCode: m.execExit}, nil
}

func (m *mockAPIClient) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	return nil
}

func (m *mockAPIClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	return nil
}

func newMockBackend(m *mockAPIClient) *DockerBackend {
	return &DockerBackend{api: m, cfg: DockerConfig{Image: "node:20"}}
}

func TestDockerBackend_RequiresImage(t *testing.T) {
	_, err := NewDockerBackend(DockerConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an image")
}

func TestDockerBackend_Run_CreateError(t *testing.T) {
	mock := &mockAPIClient{createErr: assert.AnError}
	b := newMockBackend(mock)

	_, err := b.Run(context.Background(), Spec{Command: "echo", Dir: t.TempDir()}, func(string) {}, noStop)
	require.Error(t, err)
}
