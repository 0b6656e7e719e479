package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/signalnine/motifsweep/internal/config"
	"github.com/signalnine/motifsweep/internal/docker"
	"github.com/signalnine/motifsweep/internal/gateway"
)

// SessionURLEnv tells a containerised worker where to dial back to.
const SessionURLEnv = "MOTIFSWEEP_SESSION_URL"

// ProcessLauncher runs the worker as a local process speaking the protocol
// over its stdin and stdout.
type ProcessLauncher struct {
	Command []string
	Dir     string
	Env     map[string]string
	Stderr  io.Writer
}

func (l *ProcessLauncher) Launch(ctx context.Context) (Backend, error) {
	if len(l.Command) == 0 {
		return nil, errors.New("no worker command")
	}
	cmd := exec.Command(l.Command[0], l.Command[1:]...)
	cmd.Dir = l.Dir
	cmd.Env = os.Environ()
	for k, v := range l.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker %s: %w", l.Command[0], err)
	}
	conn := newStreamConn(stdout, stdin, func() error {
		return waitOrKill(cmd, 10*time.Second)
	})
	return NewSession(conn), nil
}

func waitOrKill(cmd *exec.Cmd, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("worker exited: %w", err)
		}
		return nil
	case <-time.After(grace):
		cmd.Process.Kill()
		<-done
		return errors.New("worker did not exit, killed")
	}
}

// DockerLauncher runs the worker in a container that dials the gateway.
type DockerLauncher struct {
	Image       string
	Command     []string
	WorkDir     string
	Env         map[string]string
	Gateway     *gateway.Gateway
	Timeout     time.Duration
	CPULimit    float64
	MemoryLimit int64
	// ConnectTimeout bounds the wait for the worker to dial back.
	ConnectTimeout time.Duration
}

type containerExit struct {
	res *docker.RunResult
	err error
}

func (l *DockerLauncher) Launch(ctx context.Context) (Backend, error) {
	if l.Gateway == nil {
		return nil, errors.New("docker workers need a gateway")
	}
	token := uuid.NewString()
	ch := l.Gateway.Expect(token)

	env := map[string]string{SessionURLEnv: l.Gateway.SessionURL("host.docker.internal", token)}
	for k, v := range l.Env {
		env[k] = v
	}

	runCtx, cancel := context.WithCancel(ctx)
	exited := make(chan containerExit, 1)
	go func() {
		res, err := docker.RunContainer(runCtx, &docker.RunOpts{
			Image:       l.Image,
			Command:     l.Command,
			WorkDir:     l.WorkDir,
			Env:         env,
			Timeout:     l.Timeout,
			CPULimit:    l.CPULimit,
			MemoryLimit: l.MemoryLimit,
			UserID:      fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
			HostGateway: true,
		})
		exited <- containerExit{res, err}
	}()

	connectTimeout := l.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Minute
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, connectTimeout)
	defer waitCancel()

	type dialIn struct {
		c   *websocket.Conn
		err error
	}
	connected := make(chan dialIn, 1)
	go func() {
		c, err := l.Gateway.Wait(waitCtx, token, ch)
		connected <- dialIn{c, err}
	}()

	select {
	case in := <-connected:
		if in.err != nil {
			cancel()
			<-exited
			return nil, in.err
		}
		return NewSession(NewWSConn(in.c, func() error { return awaitExit(exited, cancel) })), nil
	case ex := <-exited:
		waitCancel()
		if in := <-connected; in.err == nil {
			in.c.Close(websocket.StatusGoingAway, "worker exited")
		}
		cancel()
		if ex.err != nil {
			return nil, fmt.Errorf("running worker container: %w", ex.err)
		}
		return nil, fmt.Errorf("worker container exited with code %d before connecting: %s", ex.res.ExitCode, tail(ex.res.Logs))
	}
}

func awaitExit(exited <-chan containerExit, cancel context.CancelFunc) error {
	defer cancel()
	select {
	case ex := <-exited:
		if ex.err != nil {
			return ex.err
		}
		if ex.res.ExitCode != 0 {
			log.Printf("warning: worker container exited with code %d: %s", ex.res.ExitCode, tail(ex.res.Logs))
		}
		return nil
	case <-time.After(30 * time.Second):
		cancel()
		<-exited
		return errors.New("worker container did not exit, killed")
	}
}

func tail(logs []byte) string {
	const max = 2000
	if len(logs) > max {
		logs = logs[len(logs)-max:]
	}
	return string(logs)
}

// Env is the environment handed to every worker: the secrets file first,
// then the trainer's own env entries.
func Env(cfg *config.Config) (map[string]string, error) {
	env := make(map[string]string)
	if cfg.Secrets.EnvFile != "" {
		secrets, err := gateway.ParseEnvFile(cfg.Secrets.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("reading secrets: %w", err)
		}
		for k, v := range secrets {
			env[k] = v
		}
	}
	for k, v := range cfg.Trainer.Env {
		env[k] = v
	}
	return env, nil
}

// NewLauncher builds the launcher for the configured backend. workDir is
// the checked-out model zoo, or empty to run in the current directory.
func NewLauncher(t *config.Trainer, env map[string]string, workDir string, gw *gateway.Gateway) (Launcher, error) {
	switch t.Backend {
	case config.BackendProcess:
		return &ProcessLauncher{Command: t.Command, Dir: workDir, Env: env}, nil
	case config.BackendDocker:
		if gw == nil {
			return nil, errors.New("docker backend requires a gateway")
		}
		return &DockerLauncher{
			Image:       t.Image,
			Command:     t.Command,
			WorkDir:     workDir,
			Env:         env,
			Gateway:     gw,
			Timeout:     time.Duration(t.TimeoutMinutes) * time.Minute,
			CPULimit:    t.CPULimit,
			MemoryLimit: t.MemoryLimitMB << 20,
		}, nil
	default:
		return nil, fmt.Errorf("unknown trainer backend %q", t.Backend)
	}
}
