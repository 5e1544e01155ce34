package coordinator

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/tether/pkg/errors"
	"github.com/odvcencio/tether/pkg/metrics"
	"github.com/odvcencio/tether/pkg/protocol"
)

// handleTaskRequest normalizes the request into an ordered step list and
// executes it in the requested mode. Terminal mode is fire-and-forget line
// injection; process mode runs each step as a streamed subprocess.
func (c *Coordinator) handleTaskRequest(m protocol.TaskRequest) {
	steps := m.Steps()
	if len(steps) == 0 {
		c.bus.Log("task-request carried no runnable commands", "warn")
		return
	}

	if m.Mode == protocol.ModeProcess {
		// Run off the bus delivery path so a long sequence never stalls the
		// socket read loop.
		go c.runProcessSequence(m.ActionID, steps, m.Cwd)
		return
	}
	c.runTerminalSequence(m.ActionID, steps, m.Cwd, m.TerminalName)
}

// runTerminalSequence injects each command line into a shell session. No
// exit-code feedback exists in this mode, so the action completes
// successfully as soon as every line is dispatched.
func (c *Coordinator) runTerminalSequence(actionID string, steps []protocol.TaskStep, cwd, terminalName string) {
	sess, err := c.terminals.Ensure(terminalName)
	if err != nil {
		c.bus.Log(fmt.Sprintf("terminal unavailable: %v", err), "error")
		if actionID != "" {
			c.completeAction(actionID, protocol.StatusError, fmt.Sprintf("terminal unavailable: %v", err))
		}
		return
	}

	if cwd != "" {
		if err := sess.SendLine(`cd "` + escapeCD(cwd) + `"`); err != nil {
			c.failTerminal(actionID, err)
			return
		}
	}
	for _, step := range steps {
		line := commandLine(step)
		if err := sess.SendLine(line); err != nil {
			c.failTerminal(actionID, err)
			return
		}
		c.bus.Log(fmt.Sprintf("terminal %s: %s", sess.Name(), line), "info")
		metrics.ObserveTaskStep("terminal")
	}

	if actionID != "" {
		c.completeAction(actionID, protocol.StatusSuccess,
			fmt.Sprintf("dispatched %d command(s) to terminal", len(steps)))
	}
}

func (c *Coordinator) failTerminal(actionID string, err error) {
	c.bus.Log(fmt.Sprintf("terminal write failed: %v", err), "error")
	if actionID != "" {
		c.completeAction(actionID, protocol.StatusError, fmt.Sprintf("terminal write failed: %v", err))
	}
}

// runProcessSequence executes steps strictly in order, aborting the rest of
// the sequence on the first failure.
func (c *Coordinator) runProcessSequence(actionID string, steps []protocol.TaskStep, cwd string) {
	for i, step := range steps {
		c.bus.Log(fmt.Sprintf("running %s (step %d/%d)", commandLine(step), i+1, len(steps)), "info")
		metrics.ObserveTaskStep("process")
		if err := c.runProcessStep(step, cwd); err != nil {
			c.bus.Log(err.Error(), "error")
			if actionID != "" {
				c.completeAction(actionID, protocol.StatusError, err.Error())
			}
			return
		}
	}

	if actionID != "" {
		c.completeAction(actionID, protocol.StatusSuccess,
			fmt.Sprintf("%d step(s) completed", len(steps)))
	}
}

// runProcessStep spawns one child process and forwards its output line by
// line: stdout at info, stderr at warn.
func (c *Coordinator) runProcessStep(step protocol.TaskStep, cwd string) error {
	cmd := exec.Command(step.Command, step.Args...)
	if cwd != "" {
		cmd.Dir = cwd
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeProcessFailed, "open stdout for "+commandLine(step))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeProcessFailed, "open stderr for "+commandLine(step))
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.ErrCodeProcessFailed, "spawn "+commandLine(step))
	}

	var g errgroup.Group
	g.Go(func() error {
		c.forwardLines(stdout, "info")
		return nil
	})
	g.Go(func() error {
		c.forwardLines(stderr, "warn")
		return nil
	})
	_ = g.Wait()

	if err := cmd.Wait(); err != nil {
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return errors.New(errors.ErrCodeProcessFailed,
			fmt.Sprintf("%s exited with code %d", commandLine(step), code))
	}
	return nil
}

// forwardLines streams non-empty output lines to the bus at the given level.
func (c *Coordinator) forwardLines(r io.Reader, level string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.bus.Log(line, level)
	}
}

// commandLine renders a step for shells and logs.
func commandLine(step protocol.TaskStep) string {
	if len(step.Args) == 0 {
		return step.Command
	}
	return step.Command + " " + strings.Join(step.Args, " ")
}

// escapeCD escapes backticks and double quotes so a path can sit inside a
// double-quoted cd argument.
func escapeCD(path string) string {
	path = strings.ReplaceAll(path, "`", "\\`")
	return strings.ReplaceAll(path, `"`, `\"`)
}
