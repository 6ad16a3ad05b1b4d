package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// ProcessLauncher runs every job in its own child process. The job document
// is written to the child's stdin and the child prints its terminal snapshot
// as a single JSON document on stdout.
type ProcessLauncher struct {
	Path   string
	Args   []string
	Env    []string
	Stderr io.Writer
}

// NewProcessLauncher returns a launcher that starts exe with the hidden unit
// subcommand for the given pipeline.
func NewProcessLauncher(exe, pipelineName string) *ProcessLauncher {
	return &ProcessLauncher{
		Path: exe,
		Args: []string{"unit", "--pipeline", pipelineName},
	}
}

// Launch starts the child process. It does not wait for it.
func (l *ProcessLauncher) Launch(_ context.Context, job models.Job) (Unit, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	cmd := exec.Command(l.Path, l.Args...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("unit stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start unit process: %w", err)
	}

	u := &processUnit{
		jobID:  job.ID,
		cmd:    cmd,
		done:   make(chan struct{}),
		result: make(chan models.Job, 1),
	}
	go u.wait(stdout)

	slog.Debug("execution unit started", "job_id", job.ID, "pid", cmd.Process.Pid)
	return u, nil
}

type processUnit struct {
	jobID  string
	cmd    *exec.Cmd
	done   chan struct{}
	result chan models.Job

	mu         sync.Mutex
	exitStatus string
}

func (u *processUnit) wait(stdout io.Reader) {
	var snap models.Job
	if err := json.NewDecoder(stdout).Decode(&snap); err == nil {
		u.result <- snap
	} else if !errors.Is(err, io.EOF) {
		slog.Warn("decode unit result", "job_id", u.jobID, "error", err)
	}
	// At most one snapshot is ever sent; closing tells the reaper not to wait.
	close(u.result)
	// Wait closes the pipe, so drain it first.
	_, _ = io.Copy(io.Discard, stdout)

	err := u.cmd.Wait()
	status := "unknown"
	switch {
	case u.cmd.ProcessState != nil:
		status = u.cmd.ProcessState.String()
	case err != nil:
		status = err.Error()
	}

	u.mu.Lock()
	u.exitStatus = status
	u.mu.Unlock()
	close(u.done)
}

func (u *processUnit) JobID() string { return u.jobID }

func (u *processUnit) Done() <-chan struct{} { return u.done }

func (u *processUnit) Result() <-chan models.Job { return u.result }

func (u *processUnit) ExitStatus() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.exitStatus
}

func (u *processUnit) Kill() error {
	if u.cmd.Process == nil {
		return nil
	}
	if err := u.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill unit process %d: %w", u.cmd.Process.Pid, err)
	}
	return nil
}

// Release drops any undelivered snapshot. The process itself is already
// reaped by the time Done is closed.
func (u *processUnit) Release() {
	select {
	case <-u.done:
	default:
		_ = u.Kill()
	}
	select {
	case <-u.result:
	default:
	}
}
