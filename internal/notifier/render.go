package notifier

import (
	"fmt"
	"strings"

	"lightup/internal/task/runner"
)

// FromFiring builds the notification for an alarm firing.
func FromFiring(f runner.Firing) Notification {
	n := Notification{FiringID: f.ID, At: f.At, Kind: KindAlarm}
	if f.Alarm != nil {
		n.AlarmID = f.Alarm.ID()
	}
	if f.Kind == runner.KindOffset {
		n.Kind = KindPostalert
		if f.Offset < 0 {
			n.Kind = KindPrealert
		}
	}
	n.Text = describe(f)
	return n
}

func describe(f runner.Firing) string {
	if f.Alarm == nil {
		return ""
	}
	a := f.Alarm
	name := fmt.Sprintf("Alarm %d", a.ID())
	if l := strings.TrimSpace(a.Label()); l != "" {
		name += " (" + l + ")"
	}
	at := fmt.Sprintf("%02d:%02d", a.Hour(), a.Minute())
	switch {
	case f.Kind != runner.KindOffset:
		return fmt.Sprintf("%s is ringing: %s", name, at)
	case f.Offset < 0:
		return fmt.Sprintf("%s rings in %d min at %s", name, -f.Offset, at)
	default:
		return fmt.Sprintf("%s rang %d min ago at %s", name, f.Offset, at)
	}
}

// Render returns the text sent for n, prefixed by kind.
func Render(n Notification) string {
	text := strings.TrimSpace(n.Text)
	if text == "" {
		return ""
	}
	switch n.Kind {
	case KindAlarm:
		return "⏰ " + text
	case KindPrealert:
		return "🔔 " + text
	case KindPostalert:
		return "☑️ " + text
	default:
		return text
	}
}
