package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Renderer formats diagnostics in the caret style, with the source line
// when the diagnostic names a position in a textual IR file.
type Renderer struct {
	filename string
	lines    []string
}

func NewRenderer(filename, source string) *Renderer {
	return &Renderer{filename: filename, lines: strings.Split(source, "\n")}
}

// Render writes every diagnostic to out.
func (r *Renderer) Render(out io.Writer, diagnostics []Diagnostic) {
	for _, d := range diagnostics {
		r.renderOne(out, d)
	}
}

func (r *Renderer) renderOne(out io.Writer, d Diagnostic) {
	levelColor := r.levelColor(d.Level)
	dim := color.New(color.Faint).SprintFunc()

	if d.Code != "" {
		fmt.Fprintf(out, "%s[%s]: %s\n", levelColor(string(d.Level)), d.Code, d.Message)
	} else {
		fmt.Fprintf(out, "%s: %s\n", levelColor(string(d.Level)), d.Message)
	}
	if d.Loc != "" {
		fmt.Fprintf(out, " %s %s\n", dim("-->"), d.Loc)
	}
}

func (r *Renderer) levelColor(level Level) func(a ...interface{}) string {
	switch level {
	case Error:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}

// RenderParseError prints a caret-style syntax error for line/column
// positions in the textual IR.
func (r *Renderer) RenderParseError(out io.Writer, line, column int, message string) {
	color.New(color.FgRed, color.Bold).Fprintf(out, "error: syntax error in %s at line %d, column %d:\n", r.filename, line, column)
	if line > 0 && line <= len(r.lines) {
		fmt.Fprintln(out, r.lines[line-1])
		caret := strings.Repeat(" ", max(0, column-1)) + "^"
		color.New(color.FgHiRed).Fprintln(out, caret)
	}
	fmt.Fprintf(out, "→ %s\n", message)
}
