// Package printer renders research progress events for a terminal.
package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/smhanov/dossier"
)

// Styles used by Console.
type Styles struct {
	Phase   lipgloss.Style
	Pending lipgloss.Style
	Done    lipgloss.Style
	Failed  lipgloss.Style
	Trace   lipgloss.Style
}

// DefaultStyles returns the console styles.
func DefaultStyles() Styles {
	return Styles{
		Phase:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Width(11),
		Pending: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Done:    lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")),
		Trace:   lipgloss.NewStyle().Faint(true),
	}
}

// Console writes one styled line per event. Lines are only appended, never
// rewritten, so output stays readable when redirected.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	styles Styles
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, styles: DefaultStyles()}
}

// Update implements dossier.Printer.
func (c *Console) Update(ev dossier.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, c.render(ev))
}

func (c *Console) render(ev dossier.Event) string {
	phase := c.styles.Phase.Render(ev.Phase.String())
	msg := ev.Message
	switch {
	case ev.Key == "trace_id":
		return phase + " " + c.styles.Trace.Render(msg)
	case isFailure(ev):
		return phase + " " + c.styles.Failed.Render("✗ "+msg)
	case ev.Done:
		return phase + " " + c.styles.Done.Render("✓ "+msg)
	default:
		return phase + " " + c.styles.Pending.Render("… "+msg)
	}
}

func isFailure(ev dossier.Event) bool {
	return ev.Key == "error" || (strings.HasPrefix(ev.Key, "search:") && strings.Contains(ev.Message, "failed"))
}

// JSONLines writes every event as one JSON object per line.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLines returns a printer that encodes events to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

// Update implements dossier.Printer.
func (j *JSONLines) Update(ev dossier.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(ev)
}
