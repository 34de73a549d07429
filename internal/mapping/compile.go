package mapping

import (
	"fmt"
	"strings"

	"github.com/antchfx/xpath"

	"catalogindex/internal/config"
	"catalogindex/internal/document"
)

// Compiled is a table whose queries have been compiled. It is not safe for
// concurrent use: an xpath.Expr keeps iteration state, so each extraction
// worker compiles its own copy.
type Compiled struct {
	entries []CompiledEntry
}

// CompiledEntry is an Entry together with its compiled expression.
type CompiledEntry struct {
	Entry
	Expr *xpath.Expr
}

// Entries returns the compiled entries in table order.
func (c *Compiled) Entries() []CompiledEntry { return c.entries }

// Len returns the number of entries.
func (c *Compiled) Len() int { return len(c.entries) }

// Compile compiles every query of t.
func Compile(t Table) (*Compiled, error) {
	c := &Compiled{entries: make([]CompiledEntry, 0, len(t))}
	for i, e := range t {
		expr, err := xpath.Compile(e.Query)
		if err != nil {
			return nil, fmt.Errorf("mapping[%d] %s: compile %q: %w", i, e.Field, e.Query, err)
		}
		c.entries = append(c.entries, CompiledEntry{Entry: e, Expr: expr})
	}
	return c, nil
}

// Validate lints a table. Errors make the table unusable; warnings flag
// entries whose declared shape looks inconsistent with the query.
func Validate(t Table) []config.Issue {
	var issues []config.Issue
	if len(t) == 0 {
		return append(issues, config.Issue{
			Severity: config.SeverityError,
			Path:     "mapping",
			Message:  "mapping table has no entries",
		})
	}

	seen := make(map[string]int, len(t))
	for i, e := range t {
		path := fmt.Sprintf("mapping[%d]", i)

		if strings.TrimSpace(e.Field) == "" {
			issues = append(issues, config.Issue{
				Severity: config.SeverityError,
				Path:     path + ".field",
				Message:  "field name must not be empty",
			})
		} else if j, dup := seen[e.Field]; dup {
			issues = append(issues, config.Issue{
				Severity: config.SeverityError,
				Path:     path + ".field",
				Message:  fmt.Sprintf("duplicate field %q (first declared at mapping[%d])", e.Field, j),
			})
		} else {
			seen[e.Field] = i
		}

		switch e.Shape {
		case document.Scalar, document.Sequence, document.Count:
		default:
			issues = append(issues, config.Issue{
				Severity: config.SeverityError,
				Path:     path + ".shape",
				Message:  fmt.Sprintf("unknown shape %s", e.Shape),
			})
		}

		q := strings.TrimSpace(e.Query)
		if q == "" {
			issues = append(issues, config.Issue{
				Severity: config.SeverityError,
				Path:     path + ".query",
				Message:  "query must not be empty",
			})
			continue
		}
		if _, err := xpath.Compile(q); err != nil {
			issues = append(issues, config.Issue{
				Severity: config.SeverityError,
				Path:     path + ".query",
				Message:  fmt.Sprintf("query %q does not compile: %v", q, err),
			})
			continue
		}
		if strings.HasPrefix(q, "count(") && e.Shape != document.Count {
			issues = append(issues, config.Issue{
				Severity: config.SeverityWarning,
				Path:     path + ".shape",
				Message:  fmt.Sprintf("query %q returns a number but shape is %s", q, e.Shape),
			})
		}
	}
	return issues
}
