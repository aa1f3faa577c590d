package desktop

import (
	"context"
	"fmt"
	"strconv"

	"github.com/koscakluka/luna/core/tools"
	"github.com/koscakluka/luna/internal/utils"
)

const NotificationToolName = "send_desktop_notification"

type NotificationInput struct {
	Title   string `json:"title" jsonschema:"description=Notification title,maxLength=100"`
	Message string `json:"message" jsonschema:"description=Notification message,maxLength=500"`
	Urgency string `json:"urgency,omitempty" jsonschema:"description=Notification urgency level,enum=low,enum=normal,enum=critical,default=normal"`
	Timeout *int   `json:"timeout,omitempty" jsonschema:"description=Timeout in milliseconds,minimum=0,maximum=30000"`
}

func (in *NotificationInput) Validate() error {
	if in.Title == "" || len(in.Title) > 100 {
		return fmt.Errorf("title must be between 1 and 100 characters")
	}
	if in.Message == "" || len(in.Message) > 500 {
		return fmt.Errorf("message must be between 1 and 500 characters")
	}
	switch in.Urgency {
	case "":
		in.Urgency = "normal"
	case "low", "normal", "critical":
	default:
		return fmt.Errorf("urgency must be one of low, normal or critical")
	}
	if in.Timeout != nil && (*in.Timeout < 0 || *in.Timeout > 30000) {
		return fmt.Errorf("timeout must be between 0 and 30000 milliseconds")
	}
	return nil
}

// NewNotificationTool sends notifications through notify-send.
func NewNotificationTool(run Runner) tools.Tool {
	if run == nil {
		run = utils.ExecRunner
	}
	return tools.New(NotificationToolName,
		"Send a desktop notification to the user using the system notification daemon",
		"desktop",
		func(ctx context.Context, input NotificationInput) (tools.Result, error) {
			args := []string{"-u", input.Urgency}
			if input.Timeout != nil {
				args = append(args, "-t", strconv.Itoa(*input.Timeout))
			}
			args = append(args, input.Title, input.Message)

			if _, err := run(ctx, "notify-send", args...); err != nil {
				return tools.Result{}, fmt.Errorf("failed to send notification: %w", err)
			}
			logger.DebugContext(ctx, "sent desktop notification", "title", input.Title)
			return tools.Result{
				Success: true,
				Message: fmt.Sprintf("Successfully sent notification: '%s'", input.Title),
				Data:    map[string]any{"title": input.Title, "message": input.Message},
			}, nil
		},
		"notification", "desktop", "alert",
	)
}
