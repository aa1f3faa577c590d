package desktop

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/koscakluka/luna/core/tools"
	"github.com/koscakluka/luna/internal/utils"
)

const SystemCommandToolName = "execute_system_command"

// allowedCommands maps the names the model may use to fixed argument lists.
var allowedCommands = map[string][]string{
	"date":        {"date"},
	"uptime":      {"uptime"},
	"whoami":      {"whoami"},
	"pwd":         {"pwd"},
	"ls":          {"ls", "-la"},
	"disk_usage":  {"df", "-h"},
	"memory_info": {"free", "-h"},
	"system_info": {"uname", "-a"},
}

type SystemCommandInput struct {
	Command string `json:"command" jsonschema:"description=System command to execute,enum=date,enum=uptime,enum=whoami,enum=pwd,enum=ls,enum=disk_usage,enum=memory_info,enum=system_info"`
}

func (in *SystemCommandInput) Validate() error {
	if _, ok := allowedCommands[in.Command]; !ok {
		names := make([]string, 0, len(allowedCommands))
		for name := range allowedCommands {
			names = append(names, name)
		}
		slices.Sort(names)
		return fmt.Errorf("command not allowed: %q, expected one of %s", in.Command, strings.Join(names, ", "))
	}
	return nil
}

// NewSystemCommandTool runs allow-listed informational commands.
func NewSystemCommandTool(run Runner) tools.Tool {
	if run == nil {
		run = utils.ExecRunner
	}
	return tools.New(SystemCommandToolName,
		"Execute safe system commands to get system information",
		"system",
		func(ctx context.Context, input SystemCommandInput) (tools.Result, error) {
			argv := allowedCommands[input.Command]
			output, err := run(ctx, argv[0], argv[1:]...)
			if err != nil {
				return tools.Result{}, fmt.Errorf("command execution failed: %w", err)
			}
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Command '%s' executed successfully", input.Command),
				Data:    map[string]any{"command": input.Command, "output": output},
			}, nil
		},
		"system", "command", "info",
	)
}

// Tools returns every desktop tool backed by run.
func Tools(run Runner) []tools.Tool {
	return []tools.Tool{NewNotificationTool(run), NewSystemCommandTool(run)}
}
