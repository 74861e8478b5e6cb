package logging

import (
	"strings"
)

// Printer adapts the facade to the Printf-style logger interface expected by
// the container library. Everything it receives is logged at debug level
// under the given subsystem.
type Printer struct {
	Subsystem string
}

// Printf implements the Printf logger interface.
func (p Printer) Printf(format string, v ...interface{}) {
	Debug(p.Subsystem, strings.TrimRight(format, "\n"), v...)
}

// LineLogger logs each line handed to it at info level. It is used to follow
// container output while a test environment runs.
type LineLogger struct {
	Subsystem string
}

// Line logs a single line of output, dropping trailing newlines and blank lines.
func (l LineLogger) Line(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	Info(l.Subsystem, "%s", line)
}
