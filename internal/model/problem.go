package model

import "fmt"

// Severity grades an extraction problem.
type Severity uint8

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Problem is a diagnostic attached to a line of a source unit.
type Problem struct {
	Severity Severity
	Line     int // 1-indexed
	Message  string
}

func (p Problem) String() string {
	return fmt.Sprintf("%d: %s: %s", p.Line, p.Severity, p.Message)
}

// Extraction is the outcome of extracting one source unit: a forest, or nil
// and the problems that prevented it. Warnings may accompany a forest.
type Extraction struct {
	Forest   *Forest
	Problems []Problem
}

// Failed reports whether no forest could be produced.
func (e Extraction) Failed() bool { return e.Forest == nil }

// Errors returns only the error-severity problems.
func (e Extraction) Errors() []Problem {
	var out []Problem
	for _, p := range e.Problems {
		if p.Severity == SeverityError {
			out = append(out, p)
		}
	}
	return out
}
