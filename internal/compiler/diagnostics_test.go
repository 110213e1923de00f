package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnostics_Accumulation(t *testing.T) {
	var d Diagnostics
	assert.False(t, d.HasErrors())

	d.Warnf(PhaseAnalysis, "stepA", "hint ignored")
	assert.False(t, d.HasErrors())

	d.Errorf(PhaseDiscovery, "stepB", "missing field %s", "cardinality")
	assert.True(t, d.HasErrors())

	assert.Len(t, d.Items(), 2)
	assert.Len(t, d.Errors(), 1)
	assert.Len(t, d.Warnings(), 1)
	assert.Equal(t, "missing field cardinality", d.Errors()[0].Message)
}

func TestDiagnostic_String(t *testing.T) {
	with := Diagnostic{Phase: PhaseDiscovery, Severity: SeverityError, Subject: "fetch", Message: "boom"}
	assert.Equal(t, "discovery: error: fetch: boom", with.String())

	without := Diagnostic{Phase: PhaseEmit, Severity: SeverityWarning, Message: "shrug"}
	assert.Equal(t, "order-emission: warning: shrug", without.String())
}

func TestCompileError_ListsEveryError(t *testing.T) {
	var d Diagnostics
	d.Errorf(PhaseDiscovery, "a", "first")
	d.Warnf(PhaseAnalysis, "b", "noise")
	d.Errorf(PhaseAnalysis, "c", "second")

	err := &CompileError{Diagnostics: &d}
	msg := err.Error()
	assert.Contains(t, msg, "2 error(s)")
	assert.Contains(t, msg, "first")
	assert.Contains(t, msg, "second")
	assert.NotContains(t, msg, "noise")
}
