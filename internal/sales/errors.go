package sales

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// RowErrorKind classifies a rejected row.
type RowErrorKind string

const (
	KindValidation RowErrorKind = "validation"
	KindScope      RowErrorKind = "scope"
)

// RowError is the reason one row of a batch was rejected.
type RowError struct {
	Index   int          `json:"index"`
	ID      *int64       `json:"id,omitempty"`
	Field   string       `json:"field,omitempty"`
	Message string       `json:"message"`
	Kind    RowErrorKind `json:"kind"`
}

// BatchError rejects a whole batch. It matches shared.ErrScopeViolation when
// any row left the caller's scope and shared.ErrValidation otherwise.
type BatchError struct {
	Rows []RowError
}

func (e *BatchError) add(re RowError) {
	e.Rows = append(e.Rows, re)
}

func (e *BatchError) empty() bool {
	return e == nil || len(e.Rows) == 0
}

func (e *BatchError) sort() {
	sort.SliceStable(e.Rows, func(i, j int) bool {
		if e.Rows[i].Index != e.Rows[j].Index {
			return e.Rows[i].Index < e.Rows[j].Index
		}
		return e.Rows[i].Field < e.Rows[j].Field
	})
}

// Error implements error.
func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		if r.Field != "" {
			parts = append(parts, fmt.Sprintf("row %d %s: %s", r.Index, r.Field, r.Message))
			continue
		}
		parts = append(parts, fmt.Sprintf("row %d: %s", r.Index, r.Message))
	}
	return fmt.Sprintf("batch rejected, nothing saved: %s", strings.Join(parts, "; "))
}

// Unwrap picks the sentinel the batch maps to.
func (e *BatchError) Unwrap() error {
	for _, r := range e.Rows {
		if r.Kind == KindScope {
			return shared.ErrScopeViolation
		}
	}
	return shared.ErrValidation
}

// Details exposes the rejected rows.
func (e *BatchError) Details() any {
	return map[string]any{"rows": e.Rows}
}

func (e *BatchError) reason() string {
	if e.Unwrap() == shared.ErrScopeViolation {
		return "scope"
	}
	return "validation"
}
