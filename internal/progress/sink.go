package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// Display shows progress. Implementations are not safe for concurrent use and
// are driven from a single goroutine.
type Display interface {
	Show(u domain.ProgressUpdate)
}

// UISink reports to a Display through a Dispatcher, so the batch goroutine
// never touches display state directly.
type UISink struct {
	Dispatcher *Dispatcher
	Display    Display
}

// Report shows u on the UI goroutine and waits until it is shown. Updates
// after the dispatcher stopped are dropped. Report goes through
// Dispatcher.Invoke, so it is for the batch goroutine only; a Display must
// not report from Show.
func (s UISink) Report(u domain.ProgressUpdate) {
	_ = s.Dispatcher.Invoke(func() { s.Display.Show(u) })
}

// Recorder keeps the most recent update for readers on other goroutines.
type Recorder struct {
	mu       sync.Mutex
	last     domain.ProgressUpdate
	reported bool
}

// Report stores u.
func (r *Recorder) Report(u domain.ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = u
	r.reported = true
}

// Last returns the latest update and whether there has been one.
func (r *Recorder) Last() (domain.ProgressUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.reported
}

// Sink is anything that accepts progress updates.
type Sink interface {
	Report(u domain.ProgressUpdate)
}

// Tee forwards each update to every sink in order.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Report(u domain.ProgressUpdate) {
	for _, s := range t {
		if s != nil {
			s.Report(u)
		}
	}
}

// Styles used by the console display.
var (
	counterStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	FailureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const barWidth = 20

// Console writes one styled line per update.
type Console struct {
	Out io.Writer
}

// Show writes "[i/n] ####---- name".
func (c Console) Show(u domain.ProgressUpdate) {
	fmt.Fprintln(c.Out, FormatLine(u))
}

// FormatLine renders one progress line.
func FormatLine(u domain.ProgressUpdate) string {
	filled := 0
	if u.Total > 0 {
		filled = (u.Index + 1) * barWidth / u.Total
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	return fmt.Sprintf("%s %s %s",
		counterStyle.Render(fmt.Sprintf("[%d/%d]", u.Index+1, u.Total)),
		barStyle.Render(bar),
		nameStyle.Render(u.ItemName),
	)
}
