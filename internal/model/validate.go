package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Invalid returns a *ValidationError with a single field error.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// ValidateIssue checks an Issue for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the issue is valid.
// Branch existence is checked by the caller, which owns the branch list.
func ValidateIssue(i *Issue) error {
	var ve ValidationError

	title := strings.TrimSpace(i.Title)
	if title == "" {
		ve.Add("title", "is required")
	} else if len([]rune(title)) > 500 {
		ve.Add("title", "must be 500 characters or fewer")
	}

	if strings.TrimSpace(i.Description) == "" {
		ve.Add("description", "is required")
	}

	if strings.TrimSpace(i.BranchID) == "" {
		ve.Add("branch_id", "is required")
	}

	if !i.Status.IsValid() {
		ve.Add("status", fmt.Sprintf("invalid value %q", i.Status))
	}

	if !i.Priority.IsValid() {
		ve.Add("priority", fmt.Sprintf("invalid value %q", i.Priority))
	}

	// ResolvedAt consistency with Status.
	if i.Status == StatusResolved && i.ResolvedAt == nil {
		ve.Add("resolved_at", "is required when status is resolved")
	}
	if i.Status != StatusResolved && i.ResolvedAt != nil {
		ve.Add("resolved_at", "must be nil when status is not resolved")
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateLogText checks the body of an update log entry.
func ValidateLogText(text string) error {
	if strings.TrimSpace(text) == "" {
		return Invalid("text", "is required")
	}
	return nil
}
