// Package cli formats lotteryd command output.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
)

// Printer writes status lines, colored when the writer is a terminal.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewPrinter wraps w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: isTerminal(w)}
}

func (p *Printer) line(color, mark, format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if p.color {
		fmt.Fprintf(p.w, "%s%s%s %s\n", color, mark, ColorReset, msg)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", mark, msg)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...interface{}) {
	p.line(ColorGreen, "✓", format, args...)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...interface{}) { p.line(ColorRed, "✗", format, args...) }

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...interface{}) {
	p.line(ColorYellow, "⚠", format, args...)
}

// Info prints an info message
func (p *Printer) Info(format string, args ...interface{}) { p.line(ColorBlue, "ℹ", format, args...) }

// Table prints rows aligned under headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// Spinner animates a long running step such as an upload or a migration.
type Spinner struct {
	p       *Printer
	frames  []string
	current int
	prefix  string
	mu      sync.Mutex
	active  bool
	started time.Time
	done    chan struct{}
}

// NewSpinner creates a new spinner
func (p *Printer) NewSpinner(prefix string) *Spinner {
	return &Spinner{
		p:      p,
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix: prefix,
		done:   make(chan struct{}),
	}
}

// Start starts the spinner. Non-terminal output gets no animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.started = time.Now()
	s.mu.Unlock()
	if !s.p.color {
		return
	}

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if s.active {
					s.p.mu.Lock()
					fmt.Fprintf(s.p.w, "\r%s%s%s %s", ColorCyan, s.frames[s.current], ColorReset, s.prefix)
					s.p.mu.Unlock()
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// stop halts the animation and returns the elapsed time.
func (s *Spinner) stop() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0
	}
	s.active = false
	close(s.done)
	if s.p.color {
		s.p.mu.Lock()
		fmt.Fprint(s.p.w, "\r"+strings.Repeat(" ", 80)+"\r")
		s.p.mu.Unlock()
	}
	return time.Since(s.started)
}

// Success stops the spinner and shows a success message
func (s *Spinner) Success(message string) {
	elapsed := s.stop()
	s.p.Success("%s (%s)", message, FormatDuration(elapsed))
}

// Error stops the spinner and shows an error message
func (s *Spinner) Error(message string) {
	s.stop()
	s.p.Error("%s", message)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
