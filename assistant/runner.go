package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/fixdesk/remotedesk/shared"
	"go.uber.org/zap"
)

type ExecResult struct {
	Stdout   string `json:"stdout" yaml:"stdout"`
	Stderr   string `json:"stderr" yaml:"stderr"`
	ExitCode int    `json:"exitCode" yaml:"exitCode"`
}

// Approver asks the operator whether command may run.
type Approver func(ctx context.Context, command string) (bool, error)

// Runner executes operator-approved shell commands.
type Runner struct {
	logger  shared.LoggerAdapter
	approve Approver
	timeout time.Duration
	shell   []string
}

func NewRunner(logger shared.LoggerAdapter, approve Approver, timeout time.Duration) (*Runner, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if approve == nil {
		return nil, errors.New("no approver provided")
	}
	shell := []string{"sh", "-c"}
	if runtime.GOOS == "windows" {
		shell = []string{"cmd", "/C"}
	}
	return &Runner{
		logger:  logger.With(zap.String("component", "runner")),
		approve: approve,
		timeout: timeout,
		shell:   shell,
	}, nil
}

// Execute runs command once approved. A non-zero exit status is reported
// in the result, not as an error.
func (r *Runner) Execute(ctx context.Context, command string) (ExecResult, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return ExecResult{}, errors.New("empty command")
	}
	ok, err := r.approve(ctx, command)
	if err != nil {
		return ExecResult{}, fmt.Errorf("asking for approval: %w", err)
	}
	if !ok {
		r.logger.Info("command declined", zap.String("command", command))
		return ExecResult{}, shared.ErrNotApproved
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.shell[0], append(r.shell[1:], command)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	r.logger.Info("running command", zap.String("command", command))
	err = cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return res, fmt.Errorf("running %q: %w", command, ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("running %q: %w", command, err)
	}
	r.logger.Info("command finished", zap.String("command", command), zap.Int("exitCode", res.ExitCode))
	return res, nil
}
