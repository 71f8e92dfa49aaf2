package logger

import (
	"strings"

	"github.com/fatih/color"
)

var (
	levelColors = map[string]*color.Color{
		LevelDebug: color.New(color.FgHiBlack),
		LevelInfo:  color.New(color.FgCyan),
		LevelWarn:  color.New(color.FgYellow),
		LevelError: color.New(color.FgRed, color.Bold),
		LevelFatal: color.New(color.FgHiRed, color.Bold),
	}
	eventColor = color.New(color.Bold)
	keyColor   = color.New(color.FgHiBlack)
)

// formatPrettyLine renders a KV line for terminals: "ts LEVEL component event k=v...".
// Colors are dropped automatically when stdout is not a TTY (color.NoColor).
func formatPrettyLine(fields map[string]any, order []string) []byte {
	var b strings.Builder

	ts, _ := stringField(fields, "ts")
	level, _ := stringField(fields, "level")
	component, _ := stringField(fields, "component")
	event, _ := stringField(fields, "event")

	b.WriteString(ts)
	b.WriteByte(' ')
	if c, ok := levelColors[level]; ok {
		b.WriteString(c.Sprintf("%-5s", level))
	} else {
		b.WriteString(level)
	}
	b.WriteByte(' ')
	b.WriteString(component)
	b.WriteByte(' ')
	b.WriteString(eventColor.Sprint(event))

	for _, key := range orderedKeys(fields, order) {
		switch key {
		case "ts", "level", "component", "event", "ts_unix_nano", "rid_full":
			continue
		}
		b.WriteByte(' ')
		b.WriteString(keyColor.Sprint(key + "="))
		b.WriteString(formatValueKV(fields[key]))
	}
	return []byte(b.String())
}
