package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
)

// AgentConfig describes one invocable agent: the command run to drive it
// and, for the review phase, how its verdict is parsed from output.
type AgentConfig struct {
	Name    string
	Command string
	Args    []string
}

// AgentInvoker runs an agent against a workspace and prompt, returning its
// raw output. Implementations must respect ctx cancellation as a timeout
// signal (spec §5: every external invocation has a per-call timeout).
type AgentInvoker interface {
	Invoke(ctx context.Context, agent AgentConfig, workspaceDir, prompt string) (output string, err error)
}

// PTYInvoker runs the agent command with its stdout/stderr attached to a
// PTY, generalized from the teacher's engine.invokeAgent: a PTY keeps line
// buffering predictable for agents that behave differently under a
// terminal than under a plain pipe, and lets output be tailed in real
// time by a log-following command.
type PTYInvoker struct {
	// Output, when non-nil, additionally receives a copy of agent output
	// (e.g. a per-WP log file). Optional.
	Output io.Writer
}

func (p *PTYInvoker) Invoke(ctx context.Context, agent AgentConfig, workspaceDir, prompt string) (string, error) {
	promptFile := workspaceDir + "/.spec-kitty-prompt"
	if err := os.WriteFile(promptFile, []byte(prompt), 0o644); err != nil {
		return "", fmt.Errorf("writing prompt file: %w", err)
	}
	defer os.Remove(promptFile)

	args := append(append([]string{}, agent.Args...), promptFile)
	cmd := exec.CommandContext(ctx, agent.Command, args...)
	cmd.Dir = workspaceDir

	ptmx, pts, err := pty.Open()
	if err != nil {
		return "", fmt.Errorf("opening pty: %w", err)
	}
	defer ptmx.Close()

	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = pts
	cmd.Stderr = pts

	if err := cmd.Start(); err != nil {
		pts.Close()
		return "", fmt.Errorf("starting agent %s: %w", agent.Name, err)
	}
	pts.Close()

	var sb strings.Builder
	var dest io.Writer = &sb
	if p.Output != nil {
		dest = io.MultiWriter(&sb, p.Output)
	}
	if _, err := io.Copy(dest, ptmx); err != nil {
		var pathErr *os.PathError
		if !(errors.As(err, &pathErr) && pathErr.Err == syscall.EIO) {
			return sb.String(), fmt.Errorf("reading agent output: %w", err)
		}
	}

	if err := cmd.Wait(); err != nil {
		return sb.String(), fmt.Errorf("agent %s exited with error: %w", agent.Name, err)
	}
	return sb.String(), nil
}

// ReviewVerdict is the parsed outcome of a review-phase agent invocation.
type ReviewVerdict struct {
	Approved bool
	Feedback string
}

// ParseReviewVerdict reports approval when the agent output contains
// `VERDICT: approved` anywhere (case-insensitive). Any other output,
// including `VERDICT: changes_requested`, is not approved, and the whole
// trimmed output is returned as feedback.
func ParseReviewVerdict(output string) ReviewVerdict {
	lower := strings.ToLower(output)
	if strings.Contains(lower, "verdict: approved") {
		return ReviewVerdict{Approved: true}
	}
	return ReviewVerdict{Approved: false, Feedback: strings.TrimSpace(output)}
}
