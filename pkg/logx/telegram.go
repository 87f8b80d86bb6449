package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"maps"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	kit "numwatch/internal/transport"
)

const (
	telegramQueueSize = 256
	telegramMaxLen    = 3500
	fieldMaxLen       = 600
	stackMaxLen       = 900
)

type telegramItem struct {
	to  kit.ChatTarget
	msg string
}

var levelBadge = map[string]string{
	"debug": "🐞",
	"info":  "ℹ️",
	"warn":  "⚠️",
	"error": "🔥",
}

func (s *Service) telegramWorker(ctx context.Context) {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.tgQueue:
			_, _ = s.sender.SendText(ctx, it.to, it.msg, opt)
		}
	}
}

// telegramWriter forwards log lines at or above minLevel to the log chat.
// It never blocks: lines over the rate limit or beyond the queue are dropped.
type telegramWriter struct{ svc *Service }

func (w *telegramWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *telegramWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	to, lim, minLevel := s.target, s.limiter, s.minLevel
	s.mu.Unlock()

	if to.ChatID == 0 || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	if msg := formatTelegramLine(p); msg != "" {
		select {
		case s.tgQueue <- telegramItem{to: to, msg: msg}:
		default:
		}
	}
	return len(p), nil
}

// formatTelegramLine renders a zerolog JSON line as HTML: a level badge with the
// bold message, then one "key: value" line per field in key order.
func formatTelegramLine(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return html.EscapeString(truncate(raw, telegramMaxLen))
	}

	var b strings.Builder
	lvl, _ := m["level"].(string)
	if badge := levelBadge[lvl]; badge != "" {
		b.WriteString(badge + " ")
	}
	msg, _ := m["message"].(string)
	b.WriteString("<b>" + html.EscapeString(msg) + "</b>")

	for _, k := range slices.Sorted(maps.Keys(m)) {
		switch k {
		case "time", "level", "message", zerolog.CallerFieldName:
			continue
		}
		limit := fieldMaxLen
		if k == "stack" {
			limit = stackMaxLen
		}
		line := "\n<code>" + html.EscapeString(k) + "</code>: " + html.EscapeString(truncate(fmt.Sprint(m[k]), limit))
		if b.Len()+len(line) > telegramMaxLen {
			b.WriteString("\n…")
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n < 10 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
