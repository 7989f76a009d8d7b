// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package validation defines the ValidationError surfaced when content
// fails publish rules or an import document is malformed, plus helpers
// that turn ozzo-validation and JSON schema failures into it.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	ozzo "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrValidation is the sentinel every *Error unwraps to.
var ErrValidation = errors.New("validation failed")

// Issue is a single rule violation. Field is a dotted path or a JSON
// pointer; it is empty for document-level problems.
type Issue struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error reports rejected content. Nothing was written when it is returned.
type Error struct {
	Op     string
	Issues []Issue
}

// New builds an *Error for op from issues.
func New(op string, issues ...Issue) *Error {
	return &Error{Op: op, Issues: issues}
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return e.Op + ": " + ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Field == "" {
			parts = append(parts, is.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", is.Field, is.Message))
	}
	return e.Op + ": " + strings.Join(parts, "; ")
}

func (e *Error) Unwrap() error { return ErrValidation }

// Issues extracts the issues carried by err, or nil when err is not a
// validation failure.
func Issues(err error) []Issue {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Issues
	}
	return nil
}

// FromRules converts an ozzo-validation result into an *Error. Nested
// field errors are flattened into dotted paths and sorted. Internal rule
// errors are returned wrapped and unchanged.
func FromRules(op string, err error) error {
	if err == nil {
		return nil
	}
	var internal ozzo.InternalError
	if errors.As(err, &internal) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var fields ozzo.Errors
	if !errors.As(err, &fields) {
		return New(op, Issue{Message: err.Error()})
	}
	var issues []Issue
	flatten("", fields, &issues)
	sort.Slice(issues, func(i, j int) bool { return issues[i].Field < issues[j].Field })
	return New(op, issues...)
}

func flatten(prefix string, errs ozzo.Errors, out *[]Issue) {
	for field, err := range errs {
		path := field
		if prefix != "" {
			path = prefix + "." + field
		}
		var nested ozzo.Errors
		if errors.As(err, &nested) {
			flatten(path, nested, out)
			continue
		}
		*out = append(*out, Issue{Field: path, Message: err.Error()})
	}
}
