// Package validate turns untrusted decoded completions into learning values,
// applying a fixed set of deterministic repairs and failing on everything else.
package validate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaViolation matches every *SchemaViolationError.
	ErrSchemaViolation = errors.New("schema violation")
	// ErrGraphInvariant matches every *GraphInvariantViolationError.
	ErrGraphInvariant = errors.New("graph invariant violation")
)

// SchemaViolationError reports missing fields or wrong cardinality.
type SchemaViolationError struct {
	Subject  string   // "topics", "content", "assessment", "module names"
	Problems []string // one entry per failing field
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Problems, "; "))
}

func (e *SchemaViolationError) Is(target error) bool { return target == ErrSchemaViolation }

// Violation names the graph invariant a topic list broke.
type Violation int

const (
	DuplicateID Violation = iota
	SelfReference
	Cycle
)

func (v Violation) String() string {
	switch v {
	case DuplicateID:
		return "duplicate id"
	case SelfReference:
		return "self-referential prereq"
	case Cycle:
		return "prereq cycle"
	default:
		return "unknown"
	}
}

// GraphInvariantViolationError reports a topic list that cannot form a DAG.
type GraphInvariantViolationError struct {
	Violation Violation
	NodeID    string // a node implicated in the violation
}

func (e *GraphInvariantViolationError) Error() string {
	return fmt.Sprintf("invalid topic graph: %s involving %q", e.Violation, e.NodeID)
}

func (e *GraphInvariantViolationError) Is(target error) bool { return target == ErrGraphInvariant }

// Warning is a non-fatal finding attached to a successful result.
type Warning interface {
	Warning() string
}

// TruncationWarning flags content that looks cut off.
type TruncationWarning struct {
	Words   int
	Reasons []string
}

func (w TruncationWarning) Warning() string {
	return fmt.Sprintf("possible truncation (%d words): %s", w.Words, strings.Join(w.Reasons, ", "))
}

type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err(subject string) error {
	if len(p) == 0 {
		return nil
	}
	return &SchemaViolationError{Subject: subject, Problems: p}
}
