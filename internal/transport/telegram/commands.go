package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"lightup/internal/alarm"
	logx "lightup/pkg/logx"
)

const (
	commandTimeout = 5 * time.Second
	slowCommand    = 750 * time.Millisecond
)

// Queries is the read-only view the commands need.
type Queries interface {
	AllAlarms(ctx context.Context) ([]*alarm.Alarm, error)
	NextAlarm(ctx context.Context) (*alarm.Alarm, int, error)
	RunningAlarms() []*alarm.Alarm
}

func registerCommands(b *tele.Bot, q Queries, log logx.Logger) {
	handle := func(cmd string, fn func(ctx context.Context) (string, error)) {
		b.Handle(cmd, func(c tele.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			start := time.Now()
			text, err := fn(ctx)
			var from int64
			if u := c.Sender(); u != nil {
				from = u.ID
			}
			fields := []logx.Field{
				logx.String("cmd", cmd),
				logx.Int64("from_id", from),
				logx.Duration("dur", time.Since(start)),
			}
			switch {
			case err != nil:
				log.Warn("command failed", append(fields, logx.Err(err))...)
				text = "Error: " + err.Error()
			case time.Since(start) >= slowCommand:
				log.Info("command ok", fields...)
			default:
				log.Debug("command ok", fields...)
			}
			return c.Send(text)
		})
	}
	handle("/alarms", func(ctx context.Context) (string, error) { return listText(ctx, q) })
	handle("/next", func(ctx context.Context) (string, error) { return nextText(ctx, q) })
	handle("/running", func(context.Context) (string, error) { return runningText(q), nil })
	handle("/help", func(context.Context) (string, error) { return helpText(), nil })
	handle("/start", func(context.Context) (string, error) { return helpText(), nil })
}

var commandHelp = [][2]string{
	{"/alarms", "list every alarm"},
	{"/next", "show the alarm that rings next"},
	{"/running", "list alarms with a live task"},
	{"/help", "this message"},
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range commandHelp {
		fmt.Fprintf(&b, "\n%s  %s", c[0], c[1])
	}
	return b.String()
}

func listText(ctx context.Context, q Queries) (string, error) {
	as, err := q.AllAlarms(ctx)
	if err != nil {
		return "", err
	}
	if len(as) == 0 {
		return "No alarms.", nil
	}
	var b strings.Builder
	for i, a := range as {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(a.String())
		if l := a.Label(); l != "" {
			b.WriteString(" | " + l)
		}
	}
	return b.String(), nil
}

func nextText(ctx context.Context, q Queries) (string, error) {
	a, mins, err := q.NextAlarm(ctx)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "No active alarms.", nil
	}
	return fmt.Sprintf("Next alarm in %s\n%s", formatMinutes(mins), a.String()), nil
}

func runningText(q Queries) string {
	as := q.RunningAlarms()
	if len(as) == 0 {
		return "No alarm tasks running."
	}
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = fmt.Sprint(a.ID())
	}
	return "Running alarm tasks: " + strings.Join(parts, ", ")
}

func formatMinutes(m int) string {
	d, h, mm := m/(24*60), m/60%24, m%60
	switch {
	case d > 0:
		return fmt.Sprintf("%dd %dh %dm", d, h, mm)
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, mm)
	default:
		return fmt.Sprintf("%dm", mm)
	}
}
