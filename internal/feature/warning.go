package feature

import (
	"fmt"

	"github.com/jward/trellis/internal/document"
)

// Severity ranks a warning.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity converts a name produced by String back to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	}
	return 0, fmt.Errorf("unknown severity %q (must be info, warning, or error)", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Warning codes emitted by the engine.
const (
	CodeUnresolvedReference    = "could-not-resolve-reference"
	CodeCantResolveSpecifier   = "cant-resolve-module-specifier"
	CodeOverridingPrivate      = "overriding-private"
	CodeMalformedDeclaration   = "malformed-declaration"
	CodeCouldNotLoad           = "could-not-load"
	CodeMultipleFeatures       = "multiple-features"
	CodeCyclicReference        = "cyclic-reference"
	CodeUnknownElementClass    = "unknown-element-class"
	CodeScriptScannerViolation = "script-scanner"
)

// Warning is a recoverable diagnostic attached to a feature or document.
type Warning struct {
	Code        string               `json:"code"`
	Message     string               `json:"message"`
	Severity    Severity             `json:"severity"`
	SourceRange document.SourceRange `json:"sourceRange"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s [%s] %s", w.SourceRange, w.Severity, w.Code, w.Message)
}

// NewWarning is a convenience constructor.
func NewWarning(code string, sev Severity, r document.SourceRange, format string, args ...any) Warning {
	return Warning{
		Code:        code,
		Message:     fmt.Sprintf(format, args...),
		Severity:    sev,
		SourceRange: r,
	}
}
