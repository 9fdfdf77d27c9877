package logx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const (
	maxChatText  = 3500
	maxChatField = 600
	maxChatStack = 900
)

// chatWriter is the zerolog sink feeding the chat queue. It never blocks.
type chatWriter struct{ svc *Service }

func (w *chatWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *chatWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	chatID, threadID := s.chatID, s.threadID
	lim, minLevel := s.limiter, s.minLevel
	hasSender := s.sender != nil
	s.mu.Unlock()

	if chatID == 0 || !hasSender || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	text := formatChatLine(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case s.chatQueue <- chatLine{chatID: chatID, threadID: threadID, text: text}:
	default:
		s.dropped.Add(1)
	}
	return len(p), nil
}

// formatChatLine renders a zerolog JSON line as "[LEVEL] msg" followed by
// one "- key=value" line per field, sorted by key.
func formatChatLine(p []byte) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(string(p), maxChatText)
	}

	lvl, _ := m[zerolog.LevelFieldName].(string)
	msg, _ := m[zerolog.MessageFieldName].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(m[k])
		if k == "stack" {
			b.WriteString("\n- stack=\n" + truncate(v, maxChatStack))
			continue
		}
		b.WriteString("\n- " + k + "=" + truncate(v, maxChatField))
	}
	return truncate(b.String(), maxChatText)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
