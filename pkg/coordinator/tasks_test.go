package coordinator

import (
	"strings"
	"testing"

	"github.com/odvcencio/tether/pkg/protocol"
)

func TestTaskRequest_EmptySequenceWarns(t *testing.T) {
	h := newHarness(t, nil)

	h.inject(t, protocol.TypeTaskRequest, protocol.TaskRequest{Mode: protocol.ModeProcess})

	if !h.events.hasLog("warn", "no runnable commands") {
		t.Error("Expected a warning for an empty task request")
	}
}

func TestTaskRequest_ProcessSuccess(t *testing.T) {
	h := newHarness(t, nil)
	h.registerActions(t, protocol.RemoteActionDescriptor{ID: "build"})
	h.coord.InvokeRemoteAction("build")

	h.inject(t, protocol.TypeTaskRequest, protocol.TaskRequest{
		ActionID: "build",
		Mode:     protocol.ModeProcess,
		Sequence: []protocol.TaskStep{{Command: "true"}},
	})

	st := h.events.waitStatus(t, StatusIdle)
	if !strings.Contains(st.Detail, "1 step(s) completed") {
		t.Errorf("Expected step count in completion detail, got %q", st.Detail)
	}
	if h.coord.InFlightCount() != 0 {
		t.Error("Completed action must leave the in-flight set")
	}
}

func TestTaskRequest_ProcessFailureAbortsSequence(t *testing.T) {
	h := newHarness(t, nil)
	h.registerActions(t, protocol.RemoteActionDescriptor{ID: "build"})
	h.coord.InvokeRemoteAction("build")

	h.inject(t, protocol.TypeTaskRequest, protocol.TaskRequest{
		ActionID: "build",
		Mode:     protocol.ModeProcess,
		Sequence: []protocol.TaskStep{
			{Command: "false"},
			{Command: "echo", Args: []string{"should-never-run"}},
		},
	})

	st := h.events.waitStatus(t, StatusError)
	if !strings.Contains(st.Detail, "exited with code 1") {
		t.Errorf("Expected exit code in failure detail, got %q", st.Detail)
	}
	if h.events.hasLog("info", "should-never-run") {
		t.Error("Second step must not run after the first fails")
	}
}

func TestTaskRequest_ProcessStreamsOutput(t *testing.T) {
	h := newHarness(t, nil)

	h.inject(t, protocol.TypeTaskRequest, protocol.TaskRequest{
		ActionID: "noise",
		Mode:     protocol.ModeProcess,
		Sequence: []protocol.TaskStep{
			{Command: "sh", Args: []string{"-c", "echo from-stdout; echo from-stderr 1>&2"}},
		},
	})

	h.events.waitStatus(t, StatusIdle)
	if !h.events.hasLog("info", "from-stdout") {
		t.Error("Expected stdout forwarded at info level")
	}
	if !h.events.hasLog("warn", "from-stderr") {
		t.Error("Expected stderr forwarded at warn level")
	}
}

func TestTaskRequest_ProcessLegacyCommandForm(t *testing.T) {
	h := newHarness(t, nil)

	h.inject(t, protocol.TypeTaskRequest, protocol.TaskRequest{
		ActionID: "legacy",
		Mode:     protocol.ModeProcess,
		Command:  "true",
	})

	h.events.waitStatus(t, StatusIdle)
}

func TestTaskRequest_ProcessSpawnError(t *testing.T) {
	h := newHarness(t, nil)

	h.inject(t, protocol.TypeTaskRequest, protocol.TaskRequest{
		ActionID: "missing",
		Mode:     protocol.ModeProcess,
		Sequence: []protocol.TaskStep{{Command: "definitely-not-a-binary-xyz"}},
	})

	st := h.events.waitStatus(t, StatusError)
	if !strings.Contains(st.Detail, "definitely-not-a-binary-xyz") {
		t.Errorf("Expected failing command named in detail, got %q", st.Detail)
	}
}

func TestTaskRequest_TerminalDispatch(t *testing.T) {
	h := newHarness(t, nil)
	h.registerActions(t, protocol.RemoteActionDescriptor{ID: "serve"})
	h.coord.InvokeRemoteAction("serve")

	h.inject(t, protocol.TypeTaskRequest, protocol.TaskRequest{
		ActionID:     "serve",
		Mode:         protocol.ModeTerminal,
		Cwd:          "/tmp",
		TerminalName: "dev",
		Sequence: []protocol.TaskStep{
			{Command: "npm", Args: []string{"start"}},
		},
	})

	if !h.events.hasLog("info", "terminal dev: npm start") {
		t.Error("Expected the dispatched line logged")
	}
	st, _ := h.events.lastStatus()
	if st.Status != StatusIdle || !strings.Contains(st.Detail, "dispatched 1 command(s)") {
		t.Errorf("Terminal mode completes immediately after dispatch, got %+v", st)
	}
}

func TestTaskRequest_DefaultsToTerminalMode(t *testing.T) {
	h := newHarness(t, nil)

	h.inject(t, protocol.TypeTaskRequest, protocol.TaskRequest{
		Sequence: []protocol.TaskStep{{Command: "ls"}},
	})

	if !h.events.hasLog("info", "terminal "+"tether"+": ls") {
		t.Error("Expected dispatch into the default terminal")
	}
}

func TestEscapeCD(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/plain/path", "/plain/path"},
		{`/has "quotes"`, `/has \"quotes\"`},
		{"/has `ticks`", "/has \\`ticks\\`"},
	}
	for _, tt := range tests {
		if got := escapeCD(tt.in); got != tt.want {
			t.Errorf("escapeCD(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCommandLine(t *testing.T) {
	if got := commandLine(protocol.TaskStep{Command: "go"}); got != "go" {
		t.Errorf("commandLine = %q", got)
	}
	if got := commandLine(protocol.TaskStep{Command: "go", Args: []string{"test", "./..."}}); got != "go test ./..." {
		t.Errorf("commandLine = %q", got)
	}
}
