package agent

import (
	"errors"

	"github.com/dhamidi/handlerforge/instrument"
	"github.com/dhamidi/handlerforge/loader"
)

// Severity distinguishes a hard plan-construction failure from an
// advisory, independent of how it is ultimately surfaced (a CLI exit
// code, an LSP PublishDiagnostics notification).
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one plan-construction problem found while diagnosing a
// Manifest, independent of the frontend surfacing it.
type Diagnostic struct {
	Class     string
	Operation string
	Message   string
	Severity  Severity
}

// Diagnose builds the Instrumentation Plan implied by manifest's setups,
// without instrumenting anything, and returns one Diagnostic per
// plan-construction Failure found along the way. A nil result means the
// manifest builds a valid plan. Diagnose is reused by both the CLI's
// "plan" command and the "lsp" command's publish-diagnostics handler, so
// both surfaces report exactly the same problems in exactly the same
// terms.
func Diagnose(source loader.AmbientSource, manifest *Manifest) []Diagnostic {
	setups, err := manifest.Setups()
	if err != nil {
		return []Diagnostic{{Message: err.Error(), Severity: SeverityError}}
	}

	a := New(source, setups)
	if _, err := a.Tree(); err != nil {
		var ie *instrument.InstrumentationError
		if errors.As(err, &ie) {
			out := make([]Diagnostic, len(ie.Failures))
			for i, f := range ie.Failures {
				out[i] = Diagnostic{Class: f.Class, Operation: f.Operation, Message: f.Err.Error(), Severity: SeverityError}
			}
			return out
		}
		return []Diagnostic{{Message: err.Error(), Severity: SeverityError}}
	}
	return nil
}
