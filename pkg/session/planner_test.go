package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanResolvesConfiguredAgent(t *testing.T) {
	p := NewCommandPlanner(map[string]AgentCommand{
		"shell": {
			Command:    "/bin/sh",
			Args:       []string{"-l"},
			Env:        map[string]string{"LANG": "C"},
			Cols:       120,
			Rows:       40,
			TerminalFg: "#fff",
		},
	})

	spec, err := p.Plan("shell", nil, "/work/app")
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", spec.Command)
	assert.Equal(t, []string{"-l"}, spec.Args)
	assert.Equal(t, "C", spec.Env["LANG"])
	assert.Equal(t, "/work/app", spec.Cwd)
	assert.Equal(t, 120, spec.InitialCols)
	assert.Equal(t, "#fff", spec.TerminalFg)
}

func TestPlanUnknownAgent(t *testing.T) {
	p := NewCommandPlanner(map[string]AgentCommand{"shell": {Command: "/bin/sh"}})

	_, err := p.Plan("mystery", nil, "")
	assert.Error(t, err)
}

func TestPlanFallbackAgent(t *testing.T) {
	p := NewCommandPlanner(map[string]AgentCommand{
		"":      {Command: "/bin/sh"},
		"shell": {Command: "/bin/bash"},
	})

	spec, err := p.Plan("mystery", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", spec.Command)

	spec, err = p.Plan("shell", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "/bin/bash", spec.Command)
}

func TestPlanAdapterStateOverrides(t *testing.T) {
	p := NewCommandPlanner(map[string]AgentCommand{
		"shell": {Command: "/bin/sh", Args: []string{"-l"}, Env: map[string]string{"A": "1"}},
	})

	state := map[string]any{
		"command": "/usr/bin/python3",
		"args":    []any{"-q", "repl.py"},
		"env":     map[string]any{"B": "2"},
	}
	spec, err := p.Plan("shell", state, "")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/python3", spec.Command)
	assert.Equal(t, []string{"-q", "repl.py"}, spec.Args)
	assert.Equal(t, "1", spec.Env["A"], "template env survives")
	assert.Equal(t, "2", spec.Env["B"])
}

func TestPlanAdapterStateRejectsNonStrings(t *testing.T) {
	p := NewCommandPlanner(map[string]AgentCommand{"shell": {Command: "/bin/sh"}})

	_, err := p.Plan("shell", map[string]any{"args": []any{"-c", 42}}, "")
	assert.Error(t, err)

	_, err = p.Plan("shell", map[string]any{"env": map[string]any{"N": 7}}, "")
	assert.Error(t, err)
}

func TestPlanEmptyCommand(t *testing.T) {
	p := NewCommandPlanner(map[string]AgentCommand{"broken": {}})

	_, err := p.Plan("broken", nil, "")
	assert.Error(t, err)
}
