package procs

import (
	"bufio"
	"io"

	"github.com/smazurov/streamproc/internal/logging"
)

// LineParser maps an output line to a log level and message.
// Levels: "fatal", "error", "warning", "info", "debug", "trace".
type LineParser func(line string) (level, msg string)

// LogOutput logs every line read from r until EOF. Typically r is the
// caller-side stdout or stderr end returned by StartControlled. A nil parser
// logs every line at info level. Returns the number of lines read.
func LogOutput(r io.Reader, source string, logger logging.Logger, parser LineParser) int {
	scanner := bufio.NewScanner(r)
	lines := 0
	for scanner.Scan() {
		lines++
		line := scanner.Text()

		level, msg := "info", line
		if parser != nil {
			level, msg = parser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg, "source", source)
		case "warning":
			logger.Warn(msg, "source", source)
		case "debug", "trace":
			logger.Debug(msg, "source", source)
		default:
			logger.Info(msg, "source", source)
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("Error reading output", "source", source, "error", err)
	}
	return lines
}
