package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	runewidth "github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"graphseed/internal/ledger"
)

// Printer renders rich terminal fragments used by the CLI.
type Printer struct {
	out          io.Writer
	colorEnabled bool
	success      *color.Color
	info         *color.Color
	warn         *color.Color
	error        *color.Color
	header       *color.Color
}

// NewPrinter constructs a Printer writing to out, with colour enabled for
// terminals unless NO_COLOR is set.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	enabled := IsTerminal(out) && os.Getenv("NO_COLOR") == ""

	p := &Printer{
		out:          out,
		colorEnabled: enabled,
		success:      color.New(color.FgGreen, color.Bold),
		info:         color.New(color.FgBlue, color.Bold),
		warn:         color.New(color.FgYellow, color.Bold),
		error:        color.New(color.FgRed, color.Bold),
		header:       color.New(color.Bold, color.Underline),
	}
	if !enabled {
		for _, c := range []*color.Color{p.success, p.info, p.warn, p.error, p.header} {
			c.DisableColor()
		}
	}
	return p
}

// PrintBanner renders the application banner.
func (p *Printer) PrintBanner(version string) {
	lines := []string{
		"=================================================",
		"   ___ _ __ __ _ _ __ | |__  ___  ___  ___  __| |",
		"  / _` | '__/ _` | '_ \\| '_ \\/ __|/ _ \\/ _ \\/ _` |",
		" | (_| | | | (_| | |_) | | | \\__ \\  __/  __/ (_| |",
		"  \\__, |_|  \\__,_| .__/|_| |_|___/\\___|\\___|\\__,_|",
		"  |___/          |_|                              ",
		"",
		"GraphDB bootstrap and RDF loader " + version,
		"=================================================",
	}
	for _, line := range lines {
		p.success.Fprintln(p.out, line)
	}
}

// PrintSeparator prints a repeated character separator.
func (p *Printer) PrintSeparator(char string, length int) {
	if length <= 0 {
		return
	}
	fmt.Fprintln(p.out, strings.Repeat(char, length))
}

// PrintStep announces step n of total.
func (p *Printer) PrintStep(n, total int, name string) {
	fmt.Fprintf(p.out, "%s %s\n", p.info.Sprintf("[%d/%d]", n, total), name)
}

// PrintServerStatus renders the readiness indicator line.
func (p *Printer) PrintServerStatus(url string, ready bool, detail string) {
	mark, text := p.error.Sprint("✕"), "not ready"
	if ready {
		mark, text = p.success.Sprint("✓"), "ready"
	}
	if detail != "" {
		text += ": " + detail
	}
	fmt.Fprintf(p.out, "[ %s ] %s (%s)\n", mark, url, text)
}

// RepositoryRow is one line of the status table.
type RepositoryRow struct {
	ID         string
	State      string
	Statements int64
	// SizeErr is set when the size request failed.
	SizeErr error
}

// PrintRepositories renders the repository table.
func (p *Printer) PrintRepositories(rows []RepositoryRow) {
	if len(rows) == 0 {
		fmt.Fprintln(p.out, "No repositories.")
		return
	}
	table := [][]string{{"REPOSITORY", "STATE", "STATEMENTS"}}
	for _, r := range rows {
		size := fmt.Sprintf("%d", r.Statements)
		if r.SizeErr != nil {
			size = "?"
		}
		table = append(table, []string{r.ID, r.State, size})
	}
	p.printTable(table)
}

// PrintHistory renders ledger records, newest first.
func (p *Printer) PrintHistory(records []ledger.LoadRecord) {
	if len(records) == 0 {
		fmt.Fprintln(p.out, "No loads recorded.")
		return
	}
	table := [][]string{{"WHEN", "STATUS", "REPOSITORY", "CONTEXT", "FILE", "SIZE", "SHA256"}}
	for _, r := range records {
		table = append(table, []string{
			r.LoadedAt.Local().Format(time.DateTime),
			p.statusText(r.Status),
			r.Repository,
			dash(r.Context),
			r.Path,
			fmt.Sprintf("%d", r.Size),
			shortHash(r.SHA256),
		})
	}
	p.printTable(table)
}

// Summary is the aggregate printed after a load.
type Summary struct {
	Loaded, Skipped, Failed, Planned int
	Bytes                            int64
	Duration                         time.Duration
}

// PrintSummary renders the load totals.
func (p *Printer) PrintSummary(s Summary) {
	parts := []string{
		p.success.Sprintf("%d loaded", s.Loaded),
		fmt.Sprintf("%d skipped", s.Skipped),
	}
	if s.Planned > 0 {
		parts = append(parts, p.info.Sprintf("%d planned", s.Planned))
	}
	if s.Failed > 0 {
		parts = append(parts, p.error.Sprintf("%d failed", s.Failed))
	}
	fmt.Fprintf(p.out, "%s (%d bytes in %s)\n", strings.Join(parts, ", "), s.Bytes, s.Duration.Round(time.Millisecond))
}

func (p *Printer) statusText(status string) string {
	switch status {
	case ledger.LoadLoaded:
		return p.success.Sprint(status)
	case ledger.LoadFailed:
		return p.error.Sprint(status)
	case ledger.LoadSkipped:
		return p.warn.Sprint(status)
	default:
		return status
	}
}

// printTable aligns columns by display width so colour codes and wide
// runes do not skew the layout.
func (p *Printer) printTable(rows [][]string) {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := displayWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	for r, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if r == 0 {
				b.WriteString(p.header.Sprint(cell))
			} else {
				b.WriteString(cell)
			}
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-displayWidth(cell)))
			}
		}
		fmt.Fprintln(p.out, b.String())
	}
}

func displayWidth(s string) int {
	return runewidth.StringWidth(stripANSI(s))
}

func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape && r == 'm':
			inEscape = false
		case !inEscape:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return dash(h)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
