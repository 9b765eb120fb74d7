package session

import (
	"fmt"

	"github.com/devharness/harnessd/pkg/models"
)

// AgentCommand is one configured agent launch template.
type AgentCommand struct {
	Command    string
	Args       []string
	Env        map[string]string
	Cols       int
	Rows       int
	TerminalFg string
	TerminalBg string
}

// CommandPlanner maps agent types to configured launch templates. Adapter
// state can override the command line per conversation.
type CommandPlanner struct {
	agents   map[string]AgentCommand
	fallback *AgentCommand
}

// NewCommandPlanner builds a planner from configured agents. The agent keyed
// by the empty string, when present, serves unknown agent types.
func NewCommandPlanner(agents map[string]AgentCommand) *CommandPlanner {
	p := &CommandPlanner{agents: make(map[string]AgentCommand, len(agents))}
	for name, agent := range agents {
		if name == "" {
			a := agent
			p.fallback = &a
			continue
		}
		p.agents[name] = agent
	}
	return p
}

// Plan resolves the launch spec for an agent type. Adapter state keys
// "command", "args" and "env" override the template.
func (p *CommandPlanner) Plan(agentType string, adapterState map[string]any, cwd string) (models.LaunchSpec, error) {
	agent, ok := p.agents[agentType]
	if !ok {
		if p.fallback == nil {
			return models.LaunchSpec{}, fmt.Errorf("unknown agent type %q", agentType)
		}
		agent = *p.fallback
	}

	spec := models.LaunchSpec{
		Command:     agent.Command,
		Args:        append([]string(nil), agent.Args...),
		Env:         cloneEnv(agent.Env),
		Cwd:         cwd,
		InitialCols: agent.Cols,
		InitialRows: agent.Rows,
		TerminalFg:  agent.TerminalFg,
		TerminalBg:  agent.TerminalBg,
	}

	if cmd, ok := adapterState["command"].(string); ok && cmd != "" {
		spec.Command = cmd
	}
	if args, ok := adapterState["args"].([]any); ok {
		spec.Args = spec.Args[:0]
		for _, a := range args {
			s, ok := a.(string)
			if !ok {
				return models.LaunchSpec{}, fmt.Errorf("adapter state args must be strings, got %T", a)
			}
			spec.Args = append(spec.Args, s)
		}
	}
	if env, ok := adapterState["env"].(map[string]any); ok {
		if spec.Env == nil {
			spec.Env = make(map[string]string, len(env))
		}
		for k, v := range env {
			s, ok := v.(string)
			if !ok {
				return models.LaunchSpec{}, fmt.Errorf("adapter state env values must be strings, got %T for %s", v, k)
			}
			spec.Env[k] = s
		}
	}

	if spec.Command == "" {
		return models.LaunchSpec{}, fmt.Errorf("agent type %q resolves to an empty command", agentType)
	}
	return spec, nil
}

func cloneEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
