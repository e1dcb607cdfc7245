package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf-project/aiperf-core/pkg/aierrors"
)

// ServiceSpec describes one OS process the controller must spawn, one per
// service type. The worker subcommand spawns its own pool of in-process
// workers rather than grandchild OS processes, so the controller only waits
// for its own registration, not for any per-worker signal.
type ServiceSpec struct {
	ServiceType string
	Binary      string
	Args        []string
	Env         []string
}

// serviceProcess manages one spawned service's OS process: start, graceful
// stop (SIGTERM, then SIGKILL after a timeout), and exit notification.
// Reworked from a test harness's polling API into the run-time exit channel
// the controller selects on to detect a service dying before it registers.
type serviceProcess struct {
	spec   ServiceSpec
	logger zerolog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	exit chan error
}

func newServiceProcess(spec ServiceSpec, logger zerolog.Logger) *serviceProcess {
	return &serviceProcess{
		spec:   spec,
		logger: logger.With().Str("service_type", spec.ServiceType).Logger(),
		exit:   make(chan error, 1),
	}
}

// Start launches the process, piping its stdout/stderr into the controller's
// structured log under the spawned service's type.
func (p *serviceProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return aierrors.NewInvalidStateError("service process already started: " + p.spec.ServiceType)
	}

	cmd := exec.CommandContext(ctx, p.spec.Binary, p.spec.Args...)
	cmd.Env = append(os.Environ(), p.spec.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("controller: failed to open stdout pipe for %s: %w", p.spec.ServiceType, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("controller: failed to open stderr pipe for %s: %w", p.spec.ServiceType, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("controller: failed to start %s: %w", p.spec.ServiceType, err)
	}
	p.cmd = cmd

	go p.captureLogs("stdout", stdout)
	go p.captureLogs("stderr", stderr)
	go func() { p.exit <- cmd.Wait() }()

	return nil
}

// Exited returns a channel that receives the process's wait error (nil on
// clean exit) exactly once, when it terminates for any reason.
func (p *serviceProcess) Exited() <-chan error {
	return p.exit
}

// Stop sends SIGTERM and waits up to timeout for a clean exit before
// escalating to SIGKILL, the standard graceful-shutdown behavior expected
// of every long-running task.
func (p *serviceProcess) Stop(timeout time.Duration) error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("controller: failed to signal %s: %w", p.spec.ServiceType, err)
	}

	select {
	case <-p.exit:
		return nil
	case <-time.After(timeout):
		p.logger.Warn().Msg("service did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("controller: failed to kill %s: %w", p.spec.ServiceType, err)
		}
		<-p.exit
		return nil
	}
}

func (p *serviceProcess) captureLogs(source string, reader io.Reader) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		p.logger.Info().Str("stream", source).Msg(scanner.Text())
	}
}
