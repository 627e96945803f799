package commands

import (
	"fmt"
	"io"
	"strings"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// Every command prints through these so stage output lines up
// ═══════════════════════════════════════════════════════════

const (
	singleLine = "───────────────────────────────────────────────────────────"
	doubleLine = "═══════════════════════════════════════════════════════════"
)

// StageHeader holds what a command prints before it starts
type StageHeader struct {
	Title   string
	Scope   string
	DBPath  string
	Ruleset string // Optional
}

// PrintStageHeader prints a formatted stage header
func PrintStageHeader(w io.Writer, h StageHeader) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", h.Title)
	fmt.Fprintln(w, singleLine)
	fmt.Fprintf(w, "  Scope     : %s\n", h.Scope)
	fmt.Fprintf(w, "  Database  : %s\n", h.DBPath)
	if h.Ruleset != "" {
		fmt.Fprintf(w, "  Ruleset   : %s\n", h.Ruleset)
	}
	fmt.Fprintln(w, singleLine)
}

// PrintSection prints a titled block between double separators
func PrintSection(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, doubleLine)
}

// PrintSeparator prints a visual separator
func PrintSeparator(w io.Writer) {
	fmt.Fprintln(w, singleLine)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(w io.Writer, message string) {
	fmt.Fprintf(w, "❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(w io.Writer, columns []string, widths []int) {
	PrintTableRow(w, columns, widths)

	totalWidth := 0
	for _, width := range widths {
		totalWidth += width + 2
	}
	fmt.Fprintln(w, strings.Repeat("─", totalWidth-2))
}

// PrintTableRow prints a table row
func PrintTableRow(w io.Writer, values []string, widths []int) {
	for i, val := range values {
		fmt.Fprintf(w, "%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)
}

// PrintKeyValue prints a key-value pair
func PrintKeyValue(w io.Writer, key string, value interface{}) {
	fmt.Fprintf(w, "  %-14s: %v\n", key, value)
}

// FormatCount renders an integer with thousands separators
// Example: 1234567 → "1,234,567"
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatBytes renders a byte count in MiB
func FormatBytes(n int64) string {
	return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
}
