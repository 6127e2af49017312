// Package bash is a unary, non-interactive demo activation: it runs a shell
// command to completion and streams its combined output as a single Data
// event. It exercises spec §8 scenario 2 ("Non-interactive degradation")
// by never touching the bidirectional channel at all — the simplest
// possible activation shape.
package bash

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/hypermemetic/plexus-substrate/internal/activation"
	"github.com/hypermemetic/plexus-substrate/internal/schema"
)

// Activation implements activation.Activation for the "bash" namespace.
type Activation struct {
	// Shell is the interpreter used to run commands, defaulting to
	// /bin/sh when empty.
	Shell string
	// Timeout bounds how long a single run may take before it's killed.
	Timeout time.Duration
}

func (a *Activation) Namespace() string   { return "bash" }
func (a *Activation) Description() string { return "run a shell command to completion" }

func (a *Activation) Methods() []activation.Method {
	return []activation.Method{
		{
			Describe: schema.Method{
				Name:        "run",
				Description: "execute a shell command and return its combined stdout/stderr",
				Params: []schema.Param{
					{Name: "command", Type: "string", Description: "the shell command line to execute"},
				},
				Returns:       "RunResult",
				Streaming:     false,
				Bidirectional: false,
			},
			Handler: activation.HandlerFunc(a.run),
		},
	}
}

type runParams struct {
	Command string `json:"command"`
}

// RunResult is the payload carried by the Data event this method emits.
type RunResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

func (a *Activation) run(ctx context.Context, rc *activation.RunContext, params json.RawMessage) error {
	var p runParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("bash: decode params: %w", err)
	}
	if p.Command == "" {
		return fmt.Errorf("bash: command must not be empty")
	}

	shell := a.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_ = rc.Progress(ctx, "running command", nil)

	cmd := exec.CommandContext(runCtx, shell, "-c", p.Command)
	out, runErr := cmd.CombinedOutput()

	result := RunResult{Output: string(out)}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return fmt.Errorf("bash: run command: %w", runErr)
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("bash: encode result: %w", err)
	}
	return rc.Data(ctx, "bash.run_result", payload)
}
