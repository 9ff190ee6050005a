package diagnostics

import "fmt"

type Severity int

// Values match the LSP DiagnosticSeverity numbering.
const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity accepts the names produced by String. Unknown names map to
// SeverityError.
func ParseSeverity(name string) Severity {
	switch name {
	case "warning", "warn":
		return SeverityWarning
	case "info", "information":
		return SeverityInformation
	case "hint":
		return SeverityHint
	default:
		return SeverityError
	}
}

// Position is zero-based; Character counts UTF-16 code units.
type Position struct {
	Line      uint32 `json:"line"      msgpack:"l"`
	Character uint32 `json:"character" msgpack:"c"`
}

type Range struct {
	Start Position `json:"start" msgpack:"s"`
	End   Position `json:"end"   msgpack:"e"`
}

// Marker is one diagnostic shown on a document.
type Marker struct {
	Range    Range    `json:"range"            msgpack:"r"`
	Severity Severity `json:"severity"         msgpack:"v"`
	Code     string   `json:"code,omitempty"   msgpack:"k,omitempty"`
	Source   string   `json:"source,omitempty" msgpack:"o,omitempty"`
	Message  string   `json:"message"          msgpack:"m"`
}
