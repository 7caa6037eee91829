package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	workspaceMount = "/workspace"
	// per stream; anything past this is discarded before it reaches memory
	maxStreamBytes = 64 * 1024
)

var (
	sandboxRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "sandbox",
		Name:      "runs_total",
		Help:      "Sandbox runs by outcome.",
	}, []string{"outcome"})

	sandboxDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "sandbox",
		Name:      "run_duration_seconds",
		Help:      "Wall time of sandbox runs, container start to exit.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

// Executor runs a command inside an isolated container.
type Executor interface {
	Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// ExecutionRequest describes one sandbox run. Workspace is bind-mounted
// read-only at /workspace, which is also the working directory.
type ExecutionRequest struct {
	Image         string
	Cmd           []string
	Env           []string
	Workspace     string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
}

// ExecutionResult is the captured outcome of a run.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Config holds executor defaults applied when a request leaves them unset.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	Logger        zerolog.Logger
}

type containerAPI interface {
	CreateContainer(ctx context.Context, cfg *container.Config, host *container.HostConfig) (string, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

type dockerClient struct {
	*client.Client
}

func (d dockerClient) CreateContainer(ctx context.Context, cfg *container.Config, host *container.HostConfig) (string, error) {
	resp, err := d.ContainerCreate(ctx, cfg, host, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// DockerExecutor runs submissions in throwaway containers with no network,
// a read-only root filesystem and all capabilities dropped.
type DockerExecutor struct {
	api    containerAPI
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor connects to the Docker daemon at cfg.Host, or the
// environment default when empty.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return newExecutor(dockerClient{Client: cli}, cfg), nil
}

func newExecutor(api containerAPI, cfg Config) *DockerExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &DockerExecutor{
		api:    api,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/dsa-autograder/pkg/docker"),
		logger: cfg.Logger.With().Str("component", "sandbox").Logger(),
	}
}

// Run creates, starts and reaps one container. A timeout kills the container
// and is reported via TimedOut together with an error.
func (e *DockerExecutor) Run(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	if req.Image == "" {
		return ExecutionResult{}, errors.New("image is required")
	}

	ctx, span := e.tracer.Start(parent, "sandbox.run", trace.WithAttributes(attribute.String("sandbox.image", req.Image)))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	containerID, err := e.api.CreateContainer(runCtx, e.containerConfig(req), e.hostConfig(req))
	if err != nil {
		return ExecutionResult{}, e.fail(span, fmt.Errorf("container create: %w", err))
	}
	defer e.remove(containerID)

	start := time.Now()
	if err := e.api.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		return ExecutionResult{}, e.fail(span, fmt.Errorf("container start: %w", err))
	}

	result := ExecutionResult{}
	statusCh, errCh := e.api.ContainerWait(runCtx, containerID, container.WaitConditionNextExit)
	select {
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case err := <-errCh:
		if runCtx.Err() == nil {
			return ExecutionResult{}, e.fail(span, fmt.Errorf("container wait: %w", err))
		}
		result.TimedOut = true
	case <-runCtx.Done():
		result.TimedOut = true
	}
	result.Duration = time.Since(start)
	sandboxDuration.Observe(result.Duration.Seconds())

	if result.TimedOut {
		e.kill(containerID)
	}

	// logs are read with the parent context so a timed-out run still reports partial output
	result.Stdout, result.Stderr = e.collectOutput(ctx, containerID)

	if result.TimedOut {
		sandboxRuns.WithLabelValues("timeout").Inc()
		span.SetStatus(codes.Error, "execution timed out")
		return result, fmt.Errorf("execution timed out after %s", timeout)
	}

	sandboxRuns.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("sandbox.exit_code", result.ExitCode))
	return result, nil
}

func (e *DockerExecutor) containerConfig(req ExecutionRequest) *container.Config {
	return &container.Config{
		Image:           req.Image,
		Cmd:             req.Cmd,
		Env:             req.Env,
		WorkingDir:      workspaceMount,
		User:            "nobody",
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}
}

func (e *DockerExecutor) hostConfig(req ExecutionRequest) *container.HostConfig {
	memory := req.MemoryLimitMB
	if memory <= 0 {
		memory = e.cfg.MemoryLimitMB
	}
	shares := req.CPUShares
	if shares <= 0 {
		shares = e.cfg.CPUShares
	}

	host := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=16m"},
		Resources: container.Resources{
			Memory:    memory * 1024 * 1024,
			CPUShares: shares,
		},
	}
	if req.Workspace != "" {
		host.Mounts = []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   req.Workspace,
			Target:   workspaceMount,
			ReadOnly: true,
		}}
	}
	return host
}

func (e *DockerExecutor) collectOutput(ctx context.Context, containerID string) (string, string) {
	logs, err := e.api.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		e.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
		return "", ""
	}
	defer logs.Close()

	stdout := &cappedBuffer{limit: maxStreamBytes}
	stderr := &cappedBuffer{limit: maxStreamBytes}
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		e.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to demultiplex container logs")
	}
	return stdout.String(), stderr.String()
}

func (e *DockerExecutor) kill(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.api.ContainerKill(ctx, containerID, "KILL"); err != nil {
		e.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
	}
}

func (e *DockerExecutor) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
	}
}

func (e *DockerExecutor) fail(span trace.Span, err error) error {
	sandboxRuns.WithLabelValues("error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Close releases the Docker client.
func (e *DockerExecutor) Close() error {
	return e.api.Close()
}

// cappedBuffer keeps the first limit bytes and silently drops the rest.
type cappedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
