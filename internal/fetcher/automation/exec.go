package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ExecRunner runs an external automation worker per navigation. The worker
// reads one JSON Request on stdin and writes one JSON Result on stdout.
type ExecRunner struct {
	command string
	args    []string
	// grace is added to the request timeout before the process is killed.
	grace time.Duration
}

// NewExec builds a runner for command.
func NewExec(command string, args ...string) *ExecRunner {
	return &ExecRunner{command: command, args: args, grace: 5 * time.Second}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, req Request) (Result, error) {
	if r.command == "" {
		return Result{}, errors.New("automation command not configured")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode automation request: %w", err)
	}
	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout+r.grace)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.command, r.args...) //nolint:gosec // command comes from operator config
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Result{TimedOut: true, ElapsedMs: elapsed, Error: "automation worker timed out"}, nil
	}

	var res Result
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &res); err != nil {
		if runErr != nil {
			return Result{}, fmt.Errorf("automation worker failed: %w: %s", runErr, bytes.TrimSpace(stderr.Bytes()))
		}
		return Result{}, fmt.Errorf("decode automation result: %w", err)
	}
	if res.ElapsedMs == 0 {
		res.ElapsedMs = elapsed
	}
	if runErr != nil && res.Error == "" {
		res.Error = runErr.Error()
		res.OK = false
	}
	return res, nil
}
