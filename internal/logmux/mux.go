package logmux

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Mux routes supervised output lines to the persistent process log and to
// the console. One line per event, format: [timestamp] [LEVEL] [SERVICE] msg.
type Mux struct {
	mu      sync.Mutex
	file    io.WriteCloser // append-only process log; nil disables persistence
	console io.Writer
	now     func() time.Time
	closed  bool
}

func New(file io.WriteCloser, console io.Writer) *Mux {
	return &Mux{file: file, console: console, now: time.Now}
}

// Emit classifies and writes one raw child output line for a service.
// defLevel applies to untagged lines that carry no severity token of their
// own (info for stdout, error for stderr).
func (m *Mux) Emit(service string, defLevel Level, raw string) {
	raw = strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(raw) == "" {
		return
	}
	p := ParseLine(raw)
	switch p.Kind {
	case Timestamped:
		// The line carries its own time; only the severity and service
		// tags are prepended.
		m.write(fmt.Sprintf("[%s] [%s] %s", p.Level, service, p.Text))
	default:
		lvl := p.Level
		if lvl == LevelInfo && defLevel != "" {
			// An untagged line with no severity token inherits the
			// stream's default.
			if !severityRe.MatchString(p.Text) {
				lvl = defLevel
			}
		}
		m.write(fmt.Sprintf("[%s] [%s] [%s] %s", m.now().Format(time.RFC3339), lvl, service, p.Text))
	}
}

// Event logs a supervisor-originated operational event (start, restart,
// shutdown) under the given service tag.
func (m *Mux) Event(service string, lvl Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.write(fmt.Sprintf("[%s] [%s] [%s] %s", m.now().Format(time.RFC3339), lvl, service, msg))
}

// Pump drains r line by line into Emit until EOF. Intended to run in its own
// goroutine per child stream.
func (m *Mux) Pump(service string, defLevel Level, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m.Emit(service, defLevel, sc.Text())
	}
}

func (m *Mux) write(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.console != nil {
		_, _ = fmt.Fprintln(m.console, line)
	}
	if m.file != nil {
		_, _ = fmt.Fprintln(m.file, line)
	}
}

// Close closes the persistent log stream. Further writes are dropped.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}

// SetClock overrides the timestamp source. Test hook.
func (m *Mux) SetClock(now func() time.Time) { m.now = now }
