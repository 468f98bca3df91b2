// Package render writes command results as json, yaml or a plain table.
//
// Without --format the table is used when stdout is a terminal and json
// otherwise. --no-color only affects the table; TUI views style themselves.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/scriptrun/cli/tui"
)

// Format names an output encoding.
type Format string

// Output formats accepted by --format.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

var formats = []Format{FormatJSON, FormatTable, FormatYAML}

// ParseFormat parses a --format value. The empty string is returned as is
// so the caller can pick a default.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" || slices.Contains(formats, f) {
		return f, nil
	}
	return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
}

// Tabular values supply their own label/value rows for table output.
type Tabular interface {
	Rows() [][2]string
}

// Renderer writes values in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer builds a renderer from the --format and --no-color flags.
// Output goes to the app's writer.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	if format == "" {
		format = FormatJSON
		if isTerminal(out) {
			format = FormatTable
		}
	}
	return &Renderer{format: format, noColor: c.Bool("no-color"), out: out}, nil
}

// NewRendererWithWriter creates a renderer writing to out.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected format.
func (r *Renderer) Format() Format { return r.format }

// Writer returns the output destination.
func (r *Renderer) Writer() io.Writer { return r.out }

// Render writes data in the selected format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.table(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI opens the interactive view for data.
func (r *Renderer) RenderTUI(view string, data any) error {
	if !tui.IsTUISupported(view) {
		return fmt.Errorf("--tui is not supported for %s", view)
	}
	return tui.Run(view, data)
}

func (r *Renderer) table(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if t, ok := data.(Tabular); ok {
		r.writeRows(w, t.Rows())
		return nil
	}

	v := indirect(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		r.writeList(w, v)
	case reflect.Struct, reflect.Map:
		rows := make([][2]string, 0)
		for _, c := range columnsOf(v) {
			rows = append(rows, [2]string{c.name, formatValue(c.get(v))})
		}
		r.writeRows(w, rows)
	default:
		_, _ = fmt.Fprintf(w, "%v\n", data)
	}
	return nil
}

// writeRows prints label/value pairs. A multi-line value continues under
// an empty label.
func (r *Renderer) writeRows(w io.Writer, rows [][2]string) {
	bold := lipgloss.NewStyle().Bold(!r.noColor)
	for _, row := range rows {
		for i, line := range strings.Split(row[1], "\n") {
			label := ""
			if i == 0 {
				label = bold.Render(row[0] + ":")
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\n", label, line)
		}
	}
}

// writeList prints one header line and one line per element, with columns
// taken from the first element.
func (r *Renderer) writeList(w io.Writer, v reflect.Value) {
	if v.Len() == 0 {
		_, _ = fmt.Fprintln(w, "(no results)")
		return
	}
	cols := columnsOf(indirect(v.Index(0)))
	if len(cols) == 0 {
		for i := range v.Len() {
			_, _ = fmt.Fprintln(w, formatValue(v.Index(i)))
		}
		return
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	_, _ = fmt.Fprintln(w, strings.Join(names, "\t"))

	cells := make([]string, len(cols))
	for i := range v.Len() {
		elem := indirect(v.Index(i))
		for j, c := range cols {
			cells[j] = formatValue(c.get(elem))
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

// column reads one named cell from a struct or map value.
type column struct {
	name string
	get  func(reflect.Value) reflect.Value
}

// columnsOf lists exported struct fields in declaration order, or map keys
// in sorted order. Fields tagged json:"-" are skipped.
func columnsOf(v reflect.Value) []column {
	var cols []column
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			name, ok := fieldName(f)
			if !ok {
				continue
			}
			cols = append(cols, column{name: name, get: func(s reflect.Value) reflect.Value { return s.Field(i) }})
		}
	case reflect.Map:
		keys := v.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		})
		for _, k := range keys {
			cols = append(cols, column{name: fmt.Sprint(k.Interface()), get: func(m reflect.Value) reflect.Value { return m.MapIndex(k) }})
		}
	}
	return cols
}

func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch tag {
	case "-":
		return "", false
	case "":
		return strings.ToLower(f.Name), true
	}
	return tag, true
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// formatValue renders one table cell.
func formatValue(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}
	if t, ok := v.Interface().(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	if d, ok := v.Interface().(time.Duration); ok {
		return d.String()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		switch {
		case v.Len() == 0:
			return "[]"
		case v.Type().Elem().Kind() == reflect.String && v.Len() <= 3:
			parts := make([]string, v.Len())
			for i := range parts {
				parts[i] = v.Index(i).String()
			}
			return strings.Join(parts, ", ")
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	}
	return fmt.Sprint(v.Interface())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
