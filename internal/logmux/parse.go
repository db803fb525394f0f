package logmux

import (
	"regexp"
	"strings"
)

// Level is a normalized severity tag as it appears in the process log.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Kind discriminates the two parse outcomes for a child output line.
type Kind int

const (
	// Untagged means the line carried no recognizable timestamp+severity
	// pair; the supervisor stamps it itself.
	Untagged Kind = iota
	// Timestamped means the line already carries its own timestamp and
	// severity; the supervisor preserves both and only tags the service.
	Timestamped
)

// Parsed is the classification result for one raw output line.
type Parsed struct {
	Kind  Kind
	Level Level  // normalized severity (after downgrade mapping)
	Text  string // the line to emit, unmodified for Timestamped
}

var (
	// A timestamp is either an ISO-like date-time or a bare HH:MM:SS clock,
	// optionally bracketed. Matches the formats emitted by the services the
	// suite launches (uvicorn, node, next dev).
	tsRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}|\b\d{2}:\d{2}:\d{2}\b`)

	severityRe = regexp.MustCompile(`(?i)\b(debug|info|warning|warn|error|critical)\b`)
)

// ParseLine classifies one raw line of child output. The heuristic is kept
// behind this pure function so it can be tested in isolation.
func ParseLine(line string) Parsed {
	if tsRe.MatchString(line) {
		if m := severityRe.FindString(line); m != "" {
			return Parsed{Kind: Timestamped, Level: normalize(m), Text: line}
		}
	}
	lvl := LevelInfo
	if m := severityRe.FindString(line); m != "" {
		lvl = normalize(m)
	}
	return Parsed{Kind: Untagged, Level: lvl, Text: line}
}

// normalize maps a raw severity token to the fixed log vocabulary,
// downgrading debug to info and critical to error.
func normalize(tok string) Level {
	switch strings.ToLower(tok) {
	case "debug", "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarning
	case "error", "critical":
		return LevelError
	default:
		return LevelInfo
	}
}
