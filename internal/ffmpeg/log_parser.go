// Package ffmpeg interprets diagnostics written by ffmpeg helper processes.
package ffmpeg

import "strings"

// ParseLogLevel maps a line written by ffmpeg running with
// -loglevel level+<lvl> to a log level and message. Lines look like
// "[error] message" or "[component @ 0x...] [warning] message"; the level
// tag is stripped, a component prefix is kept. ffmpeg-only levels are folded
// into the ones the logger knows: panic becomes fatal, verbose becomes debug.
func ParseLogLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	tag, rest, ok := cutTag(line)
	if !ok {
		return "info", line
	}
	if lvl, isLevel := normalizeLevel(tag); isLevel {
		return lvl, rest
	}

	// [component @ 0x...] [level] message
	if nextTag, nextRest, found := cutTag(rest); found {
		if lvl, isLevel := normalizeLevel(nextTag); isLevel {
			return lvl, line[:len(line)-len(rest)] + nextRest
		}
	}

	return "info", line
}

// cutTag splits "[tag] rest" into its parts.
func cutTag(s string) (tag, rest string, ok bool) {
	if len(s) < 3 || s[0] != '[' {
		return "", s, false
	}
	end := strings.Index(s, "] ")
	if end == -1 {
		return "", s, false
	}
	return s[1:end], s[end+2:], true
}

func normalizeLevel(s string) (string, bool) {
	switch s {
	case "panic", "fatal":
		return "fatal", true
	case "error", "warning", "info", "debug", "trace":
		return s, true
	case "verbose":
		return "debug", true
	case "quiet":
		return "info", true
	}
	return "", false
}
