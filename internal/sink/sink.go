// Package sink is the single output seam between the engine and
// whatever is watching it. Coordinators stream tool output and status
// lines into an OutputSink; callers decide where those lines land.
package sink

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pterm/pterm"
	"go.uber.org/zap"
)

type OutputSink interface {
	Write(text string)
}

// Linef writes one formatted line to the sink.
func Linef(s OutputSink, format string, args ...any) {
	s.Write(fmt.Sprintf(format, args...))
}

// LoggerSink forwards every line to a zap logger at info level.
type LoggerSink struct {
	log *zap.Logger
}

func NewLoggerSink(log *zap.Logger) *LoggerSink {
	return &LoggerSink{log: log}
}

func (s *LoggerSink) Write(text string) {
	s.log.Info(text)
}

// TerminalSink renders lines with pterm, styling the tool's own
// [+] / [!] markers without altering the text.
type TerminalSink struct{}

func NewTerminalSink() *TerminalSink {
	return &TerminalSink{}
}

func (s *TerminalSink) Write(text string) {
	switch {
	case strings.HasPrefix(text, "[!]"):
		pterm.Warning.Println(text)
	case strings.HasPrefix(text, "[+]"):
		pterm.Info.Println(text)
	default:
		pterm.Println(text)
	}
}

// BufferSink collects lines in memory. Safe for concurrent writers.
type BufferSink struct {
	mu    sync.Mutex
	lines []string
}

func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

func (s *BufferSink) Write(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *BufferSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *BufferSink) String() string {
	return strings.Join(s.Lines(), "\n")
}

// MultiSink fans each line out to every child sink in order.
type MultiSink struct {
	sinks []OutputSink
}

func NewMultiSink(sinks ...OutputSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Write(text string) {
	for _, child := range s.sinks {
		child.Write(text)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Write(string) {}
