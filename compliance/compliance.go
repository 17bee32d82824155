// Package compliance defines the report types shared by conformance
// validators.
package compliance

import (
	"context"
	"fmt"
	"strings"

	"github.com/wudi/tagpdf/ir/semantic"
)

// Context is an alias for context.Context to allow for future expansion.
type Context = context.Context

// Violation represents a compliance violation.
type Violation struct {
	Code        string
	Description string
	Location    string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s (%s)", v.Code, v.Description, v.Location)
}

// Report details compliance status.
type Report struct {
	Compliant  bool
	Standard   string // e.g., "PDF/UA-1"
	Violations []Violation
}

// Codes returns the violation codes in report order.
func (r *Report) Codes() []string {
	codes := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		codes[i] = v.Code
	}
	return codes
}

// Summary joins the violations into one line.
func (r *Report) Summary() string {
	if r.Compliant {
		return r.Standard + ": compliant"
	}
	parts := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		parts[i] = v.String()
	}
	return r.Standard + ": " + strings.Join(parts, "; ")
}

// Validator checks document compliance against a standard.
type Validator interface {
	Validate(ctx Context, doc *semantic.Document) (*Report, error)
}
