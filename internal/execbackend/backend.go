// Package execbackend abstracts *how* an agent command line actually
// executes, behind the bare local subprocess the Agent Executor uses by
// default. Grounded on the teacher's internal/orchestrator spawner family
// (spawner_docker.go, spawner_k8s.go), narrowed from "spawn a whole
// project-cloning agent binary" to "run one already-built command line
// against an existing working copy and stream its stdout back".
package execbackend

import (
	"context"
	"fmt"
)

// Spec is everything a Backend needs to start one command.
type Spec struct {
	Command string
	Args    []string
	Dir     string   // working directory / working-copy mount source
	Env     []string // key=value pairs
	Image   string   // container image, ignored by the subprocess backend
}

// Backend starts spec, feeds every stdout line to onLine as it arrives,
// and blocks until the command finishes or stop reports true (in which
// case the backend cancels the underlying execution and returns). It
// returns the captured stderr text, unbounded (callers trim it), and the
// command's exit error, if any.
type Backend interface {
	Run(ctx context.Context, spec Spec, onLine func(line string), stop func() bool) (stderrTail string, err error)
}

// New selects a Backend by configuration name. docker and k8s backends
// are constructed lazily by their own packages' clients; construction
// failures here are configuration errors, not per-run errors.
func New(name string, cfg Config) (Backend, error) {
	switch name {
	case "", "subprocess":
		return NewSubprocessBackend(), nil
	case "docker":
		return NewDockerBackend(cfg.Docker)
	case "k8s":
		return NewK8sBackend(cfg.K8s)
	default:
		return nil, fmt.Errorf("execbackend: unknown backend %q", name)
	}
}

// Config carries the per-backend settings decoded from the project
// configuration file's execution block.
type Config struct {
	Docker DockerConfig
	K8s    K8sConfig
}
