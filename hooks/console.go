package hooks

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Skryldev/photo-compressor/core"
)

// ConsoleLogger is a core.Logger on top of zerolog's ConsoleWriter, used by
// the CLI when a person is watching the terminal.
type ConsoleLogger struct {
	log zerolog.Logger
}

// NewConsoleLogger creates a human-readable logger writing to w.
func NewConsoleLogger(w io.Writer, level string) *ConsoleLogger {
	cw := zerolog.NewConsoleWriter(func(c *zerolog.ConsoleWriter) {
		c.Out = w
		c.TimeFormat = time.Kitchen
	})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return &ConsoleLogger{log: zerolog.New(cw).Level(lvl).With().Timestamp().Logger()}
}

func (c *ConsoleLogger) Debug(msg string, fields ...interface{}) {
	withFields(c.log.Debug(), fields).Msg(msg)
}
func (c *ConsoleLogger) Info(msg string, fields ...interface{}) {
	withFields(c.log.Info(), fields).Msg(msg)
}
func (c *ConsoleLogger) Warn(msg string, fields ...interface{}) {
	withFields(c.log.Warn(), fields).Msg(msg)
}
func (c *ConsoleLogger) Error(msg string, fields ...interface{}) {
	withFields(c.log.Error(), fields).Msg(msg)
}

// withFields adds slog-style alternating key/value pairs to a zerolog event.
func withFields(e *zerolog.Event, fields []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprint(fields[i])
		}
		e = e.Interface(key, fields[i+1])
	}
	if len(fields)%2 == 1 {
		e = e.Interface("!BADKEY", fields[len(fields)-1])
	}
	return e
}

var _ core.Logger = (*ConsoleLogger)(nil)
