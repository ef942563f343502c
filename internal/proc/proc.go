// Package proc runs the capture helper programs used by CLI driven backends
// and stops them the way those tools expect: an interrupt first, a kill when
// they do not exit in time.
package proc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultStopTimeout bounds how long Interrupt waits before killing.
const DefaultStopTimeout = 5 * time.Second

// Process is a running helper program.
type Process struct {
	name string
	cmd  *exec.Cmd
	done chan error

	mu     sync.Mutex
	stderr strings.Builder
}

// Start launches name with args. Output is forwarded to the debug log and the
// tail of stderr is kept for error reports.
func Start(name string, args []string, env ...string) (*Process, error) {
	cmd := exec.Command(name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	slog.Debug("Starting helper process", "command", strings.Join(append([]string{name}, args...), " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &Process{name: name, cmd: cmd, done: make(chan error, 1)}

	var readers sync.WaitGroup
	readers.Add(2)
	go p.readOutput(&readers, stdout, "stdout")
	go p.readOutput(&readers, stderr, "stderr")
	go func() {
		readers.Wait()
		p.done <- cmd.Wait()
	}()

	return p, nil
}

func (p *Process) readOutput(wg *sync.WaitGroup, pipe io.Reader, label string) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		if label == "stderr" {
			p.mu.Lock()
			p.stderr.WriteString(line + "\n")
			p.mu.Unlock()
		}
		slog.Debug("Helper output", "process", p.name, "stream", label, "line", line)
	}
}

// Stderr returns what the process wrote to stderr so far.
func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr.String()
}

// Exited reports whether the process already terminated, without blocking.
func (p *Process) Exited() (bool, error) {
	select {
	case err := <-p.done:
		p.done <- err
		return true, err
	default:
		return false, nil
	}
}

// Interrupt sends SIGINT and waits up to timeout for a clean exit before
// killing the process. Exits caused by the signal are not errors.
func (p *Process) Interrupt(timeout time.Duration) error {
	if p.cmd.Process == nil {
		return nil
	}

	slog.Debug("Sending SIGINT to helper process", "process", p.name)
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to send interrupt, falling back to SIGKILL", "process", p.name, "error", err)
		_ = p.cmd.Process.Kill()
	}

	select {
	case err := <-p.done:
		p.done <- err
		return p.exitError(err)
	case <-time.After(timeout):
		slog.Warn("Helper process did not exit within timeout, force killing", "process", p.name, "timeout", timeout)
		_ = p.cmd.Process.Kill()
		err := <-p.done
		p.done <- err
		return nil
	}
}

// Kill terminates the process immediately and waits for it.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if exited, _ := p.Exited(); exited {
		return nil
	}
	_ = p.cmd.Process.Kill()
	err := <-p.done
	p.done <- err
	return nil
}

func (p *Process) exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// 255 is what most capture tools return after a graceful interrupt.
		if exitErr.ExitCode() == 255 {
			return nil
		}
		if exitErr.ProcessState != nil {
			state := exitErr.ProcessState.String()
			if state == "signal: interrupt" || state == "signal: killed" {
				return nil
			}
		}
	}
	slog.Debug("Helper stderr", "process", p.name, "output", p.Stderr())
	return fmt.Errorf("%s failed: %w", p.name, err)
}
