package actions

import (
	"context"

	"github.com/sentraops/sentra/pkg/schema"
)

// SendNotificationAction delivers a message through the notification
// collaborator and records the delivery acknowledgement.
type SendNotificationAction struct {
	notifier Notifier
}

// NewSendNotificationAction creates the send_notification action.
func NewSendNotificationAction(notifier Notifier) *SendNotificationAction {
	return &SendNotificationAction{notifier: notifier}
}

func (a *SendNotificationAction) Kind() schema.ActionKind { return schema.ActionSendNotification }

func (a *SendNotificationAction) Validate(params map[string]any) error {
	if _, ok := params["channel"]; !ok {
		return schema.NewError(schema.ErrCodeValidation, "send_notification: channel parameter is required")
	}
	if _, ok := params["message"]; !ok {
		return schema.NewError(schema.ErrCodeValidation, "send_notification: message parameter is required")
	}
	return nil
}

func (a *SendNotificationAction) Execute(ctx context.Context, in Input) (*Result, error) {
	channel := stringParam(in.Params, "channel", "")
	message := stringParam(in.Params, "message", "")
	if channel == "" {
		return nil, schema.NewError(schema.ErrCodeAction, "send_notification: channel is empty")
	}

	ack, err := a.notifier.Send(ctx, channel, message)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"notification to %q failed: %s", channel, err.Error()).WithCause(err)
	}

	return &Result{Output: map[string]any{
		"notified_channel": channel,
		"delivery_ack":     ack,
	}}, nil
}
