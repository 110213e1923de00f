package compiler

import (
	"fmt"
	"strings"
)

// Phase names a compiler phase for diagnostics and logging.
type Phase string

const (
	PhaseDiscovery Phase = "discovery"
	PhaseAnalysis  Phase = "semantic-analysis"
	PhaseTargets   Phase = "target-resolution"
	PhaseBindings  Phase = "binding-construction"
	PhaseRender    Phase = "render"
	PhaseEmit      Phase = "order-emission"
)

// Severity grades a diagnostic. Errors halt the round; warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one finding produced by a phase. Subject locates the
// offending template element (a step name, aspect name or document path).
type Diagnostic struct {
	Phase    Phase
	Severity Severity
	Subject  string
	Message  string
}

func (d Diagnostic) String() string {
	if d.Subject == "" {
		return fmt.Sprintf("%s: %s: %s", d.Phase, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s: %s", d.Phase, d.Severity, d.Subject, d.Message)
}

// Diagnostics accumulates findings across phases. The zero value is ready
// to use.
type Diagnostics struct {
	items []Diagnostic
}

// Errorf records an error finding.
func (d *Diagnostics) Errorf(phase Phase, subject, format string, args ...interface{}) {
	d.items = append(d.items, Diagnostic{
		Phase:    phase,
		Severity: SeverityError,
		Subject:  subject,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Warnf records a warning finding.
func (d *Diagnostics) Warnf(phase Phase, subject, format string, args ...interface{}) {
	d.items = append(d.items, Diagnostic{
		Phase:    phase,
		Severity: SeverityWarning,
		Subject:  subject,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether any error-severity finding was recorded.
func (d *Diagnostics) HasErrors() bool {
	for _, it := range d.items {
		if it.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Items returns all findings in recording order.
func (d *Diagnostics) Items() []Diagnostic {
	return d.items
}

// Errors returns only the error-severity findings.
func (d *Diagnostics) Errors() []Diagnostic {
	var out []Diagnostic
	for _, it := range d.items {
		if it.Severity == SeverityError {
			out = append(out, it)
		}
	}
	return out
}

// Warnings returns only the warning-severity findings.
func (d *Diagnostics) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, it := range d.items {
		if it.Severity == SeverityWarning {
			out = append(out, it)
		}
	}
	return out
}

// CompileError wraps the diagnostics of a failed round.
type CompileError struct {
	Diagnostics *Diagnostics
}

func (e *CompileError) Error() string {
	errs := e.Diagnostics.Errors()
	if len(errs) == 0 {
		return "compilation failed"
	}
	lines := make([]string, 0, len(errs)+1)
	lines = append(lines, fmt.Sprintf("compilation failed with %d error(s):", len(errs)))
	for _, d := range errs {
		lines = append(lines, "  "+d.String())
	}
	return strings.Join(lines, "\n")
}
