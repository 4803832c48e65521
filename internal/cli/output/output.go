// Package output renders command results as aligned tables, JSON, or
// YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Info prints a status line to stdout.
func Info(format string, a ...any) {
	fmt.Printf(format+"\n", a...)
}

// Errorf prints an error line to stderr.
func Errorf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", a...)
}

// JSON writes v as indented JSON to stdout.
func JSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes v as YAML to stdout.
func YAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(v)
}

// Render writes v in the requested format, falling back to the table
// when format is empty or unrecognized.
func Render(format string, v any, table *Table) error {
	switch format {
	case "json":
		return JSON(v)
	case "yaml":
		return YAML(v)
	default:
		table.Render()
		return nil
	}
}

// Table is a column-aligned plain-text table.
type Table struct {
	headers []string
	rows    [][]string
	w       io.Writer
}

// NewTable creates a table writing to stdout.
func NewTable(headers []string) *Table {
	return &Table{headers: headers, w: os.Stdout}
}

// AddRow appends one row. Rows shorter than the header are padded.
func (t *Table) AddRow(cells ...string) {
	for len(cells) < len(t.headers) {
		cells = append(cells, "")
	}
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows added so far.
func (t *Table) Len() int { return len(t.rows) }

// Render prints the table.
func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range t.headers {
		fmt.Fprintf(&b, "%-*s  ", widths[i], h)
	}
	b.WriteByte('\n')
	for i := range t.headers {
		b.WriteString(strings.Repeat("-", widths[i]))
		b.WriteString("  ")
	}
	b.WriteByte('\n')
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
			}
		}
		b.WriteByte('\n')
	}
	fmt.Fprint(t.w, b.String())
}
