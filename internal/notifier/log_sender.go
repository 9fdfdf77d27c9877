package notifier

import (
	"context"

	logx "lightup/pkg/logx"
)

// LogSender only logs. The daemon uses it when no chat is configured.
type LogSender struct{ Log logx.Logger }

func (l LogSender) SendText(_ context.Context, text string) error {
	l.Log.Info("notification", logx.String("text", text))
	return nil
}
