// Package proc runs codeforge commands inside containers and hands the
// output back line by line. Non-zero exits are results, not errors;
// only a command that never ran (or was torn down mid-flight) comes
// back as an error.
package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ContainerWorkdir is where the workspace is mounted inside the container.
const ContainerWorkdir = "/workspace"

type Options struct {
	RemoveAfterRun bool
	MountWorkspace bool
	AdditionalArgs []string
}

type Request struct {
	Workspace    string
	ContainerRef string
	Command      string
	Shell        string // defaults to /bin/bash
	Options      Options
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// LineFunc receives one output line, newline stripped, as it arrives.
type LineFunc func(line string)

type Runner interface {
	Run(ctx context.Context, req Request, onStdout, onStderr LineFunc) (Result, error)
}

// SpawnError means the process never produced a usable exit: the binary
// was missing, the pipes could not be set up, or the context killed it.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// DockerRunner executes requests as docker run invocations.
type DockerRunner struct {
	logger *zap.Logger
}

func NewDockerRunner(logger *zap.Logger) *DockerRunner {
	return &DockerRunner{logger: logger.Named("proc")}
}

func (r *DockerRunner) Run(ctx context.Context, req Request, onStdout, onStderr LineFunc) (Result, error) {
	args := dockerArgs(req)
	cmdStr := CommandString(req)

	cmd := exec.CommandContext(ctx, "docker", args...)

	r.logger.Debug("Running container command", zap.String("command", cmdStr))

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, &SpawnError{Command: cmdStr, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, &SpawnError{Command: cmdStr, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return Result{}, &SpawnError{Command: cmdStr, Err: err}
	}

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			line := scanner.Text()
			stdoutBuf.WriteString(line)
			stdoutBuf.WriteByte('\n')
			if onStdout != nil {
				onStdout(line)
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			line := scanner.Text()
			stderrBuf.WriteString(line)
			stderrBuf.WriteByte('\n')
			if onStderr != nil {
				onStderr(line)
			}
		}
	}()

	// Drain both pipes before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return Result{}, &SpawnError{Command: cmdStr, Err: ctx.Err()}
	}

	result := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return Result{}, &SpawnError{Command: cmdStr, Err: waitErr}
		}
		// Non-zero exit: the caller decides what it means.
	}

	r.logger.Debug("Container command finished",
		zap.String("command", cmdStr),
		zap.Int("exit_code", result.ExitCode))

	return result, nil
}

func dockerArgs(req Request) []string {
	args := []string{"run"}
	if req.Options.RemoveAfterRun {
		args = append(args, "--rm")
	}
	if req.Options.MountWorkspace {
		args = append(args, "-v", req.Workspace+":"+ContainerWorkdir, "-w", ContainerWorkdir)
	}
	args = append(args, req.Options.AdditionalArgs...)
	shell := req.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	args = append(args, req.ContainerRef, shell, "-c", req.Command)
	return args
}

// CommandString renders the full docker invocation for diagnostics.
func CommandString(req Request) string {
	return "docker " + strings.Join(dockerArgs(req), " ")
}
