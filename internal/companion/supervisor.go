// SPDX-License-Identifier: MIT

package companion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsift/streamsift/internal/log"
	"github.com/streamsift/streamsift/internal/procgroup"
)

const (
	// termGrace is how long the child gets between terminate and kill.
	termGrace = 3 * time.Second
	// reapWait bounds the final wait for the killed child.
	reapWait = 2 * time.Second
)

// ProcessDialer spawns the companion binary and exposes its stdio as one
// bidirectional byte stream. Each Dial starts a fresh process; the
// transport's reconnect loop is the respawn policy.
type ProcessDialer struct {
	bin    string
	args   []string
	logger zerolog.Logger
}

func NewProcessDialer(bin string, args ...string) *ProcessDialer {
	return &ProcessDialer{
		bin:    bin,
		args:   args,
		logger: log.WithComponent("companion"),
	}
}

func (d *ProcessDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	cmd := exec.CommandContext(ctx, d.bin, d.args...) // #nosec G204 -- binary path comes from validated configuration
	procgroup.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("companion stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("companion stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("companion stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start companion %s: %w", d.bin, err)
	}
	d.logger.Info().
		Int("pid", cmd.Process.Pid).
		Str("bin", d.bin).
		Str(log.FieldEvent, "companion.spawned").
		Msg("companion process started")

	go d.drainStderr(stderr)

	return &procConn{
		stdin:  stdin,
		stdout: stdout,
		cmd:    cmd,
		logger: d.logger,
	}, nil
}

// drainStderr forwards the child's stderr lines into the daemon log.
func (d *ProcessDialer) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		d.logger.Debug().Str("stderr", line).Msg("companion output")
	}
}

// procConn adapts the child's stdio pipes to io.ReadWriteCloser. Close
// terminates the child's process group: term, grace period, then kill, so
// downloader children die with their parent.
type procConn struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
	cmd    *exec.Cmd
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (p *procConn) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *procConn) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *procConn) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		_ = p.stdout.Close()
		p.closeErr = p.terminate()
	})
	return p.closeErr
}

func (p *procConn) terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	pid := p.cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	_ = procgroup.Terminate(pid)
	select {
	case err := <-done:
		p.logExit(pid, err)
		return nil
	case <-time.After(termGrace):
	}

	p.logger.Warn().Int("pid", pid).Msg("companion ignored terminate, killing group")
	_ = procgroup.Kill(pid)
	select {
	case err := <-done:
		p.logExit(pid, err)
		return nil
	case <-time.After(reapWait):
		return errors.New("companion process did not exit")
	}
}

func (p *procConn) logExit(pid int, err error) {
	ev := p.logger.Info()
	if err != nil {
		ev = p.logger.Warn().Err(err)
	}
	ev.Int("pid", pid).
		Str(log.FieldEvent, "companion.exited").
		Msg("companion process exited")
}
