package lsp

import (
	"fmt"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/dhamidi/jdec/decompiler"
)

const diagnosticSource = "jdec"

// Diagnostics reports every method of f that did not reconstruct fully.
// Class files carry no text positions, so each diagnostic sits on the
// method's first source line when known and on line 0 otherwise.
func Diagnostics(f *File) []protocol.Diagnostic {
	diags := []protocol.Diagnostic{}
	if f == nil {
		return diags
	}
	if f.Err != nil {
		return append(diags, diagnostic(0, protocol.DiagnosticSeverityError, f.Err.Error()))
	}
	for _, m := range f.Result.Methods {
		switch m.Status {
		case decompiler.StatusIncomplete:
			diags = append(diags, diagnostic(firstLine(m), protocol.DiagnosticSeverityWarning,
				fmt.Sprintf("%s: control flow only partly structured", m.Key())))
		case decompiler.StatusFailed:
			diags = append(diags, diagnostic(firstLine(m), protocol.DiagnosticSeverityError,
				fmt.Sprintf("%s: %s", m.Key(), m.Failure)))
		}
	}
	return diags
}

func diagnostic(line int, severity protocol.DiagnosticSeverity, message string) protocol.Diagnostic {
	source := diagnosticSource
	pos := protocol.Position{Line: protocol.UInteger(line)}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: pos, End: pos},
		Severity: &severity,
		Source:   &source,
		Message:  message,
	}
}

// firstLine is the zero-based first source line of m, or 0.
func firstLine(m *decompiler.Method) int {
	if m.Line > 0 {
		return m.Line - 1
	}
	return 0
}
