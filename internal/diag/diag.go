package diag

import "fmt"

// Level is the severity of a diagnostic.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Diagnostic is one collected finding. Verifier diagnostics carry a code
// like V0042; the location is optional free text (function or block name).
type Diagnostic struct {
	Level   Level
	Code    string
	Message string
	Loc     string
}

// Emitter collects diagnostics so one compile surfaces every finding at
// once; the pipeline keeps running through verification.
type Emitter struct {
	diagnostics []Diagnostic
}

func NewEmitter() *Emitter { return &Emitter{} }

// Errorf satisfies the verifier's sink.
func (e *Emitter) Errorf(code string, format string, args ...any) {
	e.diagnostics = append(e.diagnostics, Diagnostic{
		Level:   Error,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func (e *Emitter) Warningf(code string, format string, args ...any) {
	e.diagnostics = append(e.diagnostics, Diagnostic{
		Level:   Warning,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func (e *Emitter) Diagnostics() []Diagnostic { return e.diagnostics }

func (e *Emitter) HasErrors() bool {
	for _, d := range e.diagnostics {
		if d.Level == Error {
			return true
		}
	}
	return false
}
