package execbackend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// DockerConfig is the docker-backend slice of the execution configuration.
type DockerConfig struct {
	Image   string
	Network string
	Env     []string
}

// DockerBackend runs one container per session, grounded on the teacher's
// internal/orchestrator.DockerSpawner and internal/docker.Client: pull the
// image best-effort, bind-mount the working copy at /workspace, exec the
// agent command inside, then tear the container down.
type DockerBackend struct {
	api client.APIClient
	cfg DockerConfig
}

func NewDockerBackend(cfg DockerConfig) (*DockerBackend, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("execbackend: docker backend requires an image")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("execbackend: docker client: %w", err)
	}
	return &DockerBackend{api: cli, cfg: cfg}, nil
}

func (b *DockerBackend) Run(ctx context.Context, spec Spec, onLine func(string), stop func() bool) (string, error) {
	imageRef := spec.Image
	if imageRef == "" {
		imageRef = b.cfg.Image
	}

	if reader, err := b.api.ImagePull(ctx, imageRef, image.PullOptions{}); err == nil {
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	hostCfg := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:/workspace", spec.Dir)},
	}
	if b.cfg.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(b.cfg.Network)
	}

	created, err := b.api.ContainerCreate(ctx,
		&container.Config{
			Image:      imageRef,
			Tty:        false,
			WorkingDir: "/workspace",
			Cmd:        []string{"/bin/sh", "-c", "sleep 86400"},
			Env:        append(append([]string{}, b.cfg.Env...), spec.Env...),
		},
		hostCfg, nil, (*specs.Platform)(nil), "")
	if err != nil {
		return "", fmt.Errorf("execbackend: create container: %w", err)
	}
	containerID := created.ID
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = b.api.ContainerStop(cleanupCtx, containerID, container.StopOptions{})
		_ = b.api.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true})
	}()

	if err := b.api.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("execbackend: start container: %w", err)
	}

	execCfg := container.ExecOptions{
		Cmd:          append([]string{spec.Command}, spec.Args...),
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   "/workspace",
	}
	execID, err := b.api.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return "", fmt.Errorf("execbackend: create exec: %w", err)
	}
	attach, err := b.api.ContainerExecAttach(ctx, execID.ID, container.ExecStartOptions{})
	if err != nil {
		return "", fmt.Errorf("execbackend: attach exec: %w", err)
	}
	defer attach.Close()

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	copyDone := make(chan error, 1)
	go func() {
		_, cErr := stdcopy.StdCopy(stdoutW, stderrW, attach.Reader)
		stdoutW.Close()
		stderrW.Close()
		copyDone <- cErr
	}()

	var stderrTail strings.Builder
	lineDone := make(chan struct{})
	go func() {
		defer close(lineDone)
		scanner := bufio.NewScanner(stdoutR)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
	}()
	go func() {
		scanner := bufio.NewScanner(stderrR)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if stderrTail.Len() > 0 {
				stderrTail.WriteByte('\n')
			}
			stderrTail.WriteString(scanner.Text())
		}
	}()

	ticker := time.NewTicker(subprocessPollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-copyDone:
			<-lineDone
			if err != nil && err != io.EOF {
				return stderrTail.String(), err
			}
			inspect, inspectErr := b.api.ContainerExecInspect(ctx, execID.ID)
			if inspectErr == nil && inspect.ExitCode != 0 {
				return stderrTail.String(), fmt.Errorf("execbackend: command exited %d", inspect.ExitCode)
			}
			return stderrTail.String(), nil
		case <-ticker.C:
			if stop() {
				return stderrTail.String(), ctx.Err()
			}
		case <-ctx.Done():
			return stderrTail.String(), ctx.Err()
		}
	}
}
