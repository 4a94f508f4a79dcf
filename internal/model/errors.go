package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/multierr"
)

// ErrorCode classifies a data error found while validating invoice input
type ErrorCode string

const (
	ErrCodeMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"
	ErrCodeInvalidNumber        ErrorCode = "INVALID_NUMBER"
	ErrCodeInvalidDate          ErrorCode = "INVALID_DATE"
	ErrCodeInvalidEnumValue     ErrorCode = "INVALID_ENUM_VALUE"
	ErrCodeConstraintViolation  ErrorCode = "CONSTRAINT_VIOLATION"
	ErrCodeInvalidType          ErrorCode = "INVALID_TYPE"
)

// maxValueLen bounds how much of a rejected raw value is echoed back.
const maxValueLen = 64

// ValidationError represents one data problem at a root-relative path
type ValidationError struct {
	Code   ErrorCode `json:"code"`
	Path   string    `json:"path"`
	Value  any       `json:"value,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at %s", e.Code, e.Path)
	if e.Value != nil {
		fmt.Fprintf(&b, " (value=%s)", truncate(fmt.Sprintf("%v", e.Value)))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// truncate cuts s to at most maxValueLen bytes on a rune boundary
func truncate(s string) string {
	if len(s) <= maxValueLen {
		return s
	}
	cut := maxValueLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// NewMissingRequiredField creates a missing field error
func NewMissingRequiredField(path string) *ValidationError {
	return &ValidationError{Code: ErrCodeMissingRequiredField, Path: path}
}

// NewInvalidNumber creates an invalid number error
func NewInvalidNumber(path string, raw any) *ValidationError {
	return &ValidationError{Code: ErrCodeInvalidNumber, Path: path, Value: raw}
}

// NewInvalidDate creates an invalid date error
func NewInvalidDate(path string, raw any) *ValidationError {
	return &ValidationError{Code: ErrCodeInvalidDate, Path: path, Value: raw}
}

// NewInvalidEnumValue creates an invalid code error. The code set itself is
// never included.
func NewInvalidEnumValue(path string, raw any, codeSet string) *ValidationError {
	return &ValidationError{
		Code:   ErrCodeInvalidEnumValue,
		Path:   path,
		Value:  raw,
		Detail: "not a member of code list " + codeSet,
	}
}

// NewConstraintViolation creates a constraint error
func NewConstraintViolation(path, detail string) *ValidationError {
	return &ValidationError{Code: ErrCodeConstraintViolation, Path: path, Detail: detail}
}

// NewInvalidText creates an error for a string XML cannot carry
func NewInvalidText(path string, raw any) *ValidationError {
	return &ValidationError{
		Code:   ErrCodeInvalidType,
		Path:   path,
		Value:  raw,
		Detail: "contains characters not allowed in XML",
	}
}

// NewInvalidType creates a type mismatch error
func NewInvalidType(path string, raw any, expected string) *ValidationError {
	return &ValidationError{
		Code:   ErrCodeInvalidType,
		Path:   path,
		Value:  raw,
		Detail: "expected " + expected,
	}
}

// ValidationErrors is the complete list of data problems found in one pass
type ValidationErrors []*ValidationError

func (l ValidationErrors) Error() string {
	switch len(l) {
	case 0:
		return "no validation errors"
	case 1:
		return l[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", l[0].Error(), len(l)-1)
	}
}

// Count returns how many errors carry the given code
func (l ValidationErrors) Count(code ErrorCode) int {
	n := 0
	for _, e := range l {
		if e.Code == code {
			n++
		}
	}
	return n
}

// Paths returns the paths of all errors in order
func (l ValidationErrors) Paths() []string {
	paths := make([]string, len(l))
	for i, e := range l {
		paths[i] = e.Path
	}
	return paths
}

// AsValidationErrors extracts the validation error list from err
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var list ValidationErrors
	if errors.As(err, &list) {
		return list, true
	}
	var single *ValidationError
	if errors.As(err, &single) {
		return ValidationErrors{single}, true
	}
	return nil, false
}

// MalformedSchemaError is raised when a profile definition cannot be compiled
type MalformedSchemaError struct {
	Profile string
	Cause   error
}

func (e *MalformedSchemaError) Error() string {
	problems := multierr.Errors(e.Cause)
	if len(problems) <= 1 {
		return fmt.Sprintf("malformed schema [%s]: %v", e.Profile, e.Cause)
	}
	return fmt.Sprintf("malformed schema [%s]: %d problems: %v", e.Profile, len(problems), e.Cause)
}

func (e *MalformedSchemaError) Unwrap() error {
	return e.Cause
}

// Problems returns each individual problem found while compiling
func (e *MalformedSchemaError) Problems() []error {
	return multierr.Errors(e.Cause)
}

// NewMalformedSchemaError creates a new schema error
func NewMalformedSchemaError(profile string, cause error) *MalformedSchemaError {
	return &MalformedSchemaError{Profile: profile, Cause: cause}
}

// PdfStructureError represents an unreadable or unwritable PDF
type PdfStructureError struct {
	Op      string
	Message string
	Cause   error
}

func (e *PdfStructureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pdf %s failed: %s (%v)", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("pdf %s failed: %s", e.Op, e.Message)
}

func (e *PdfStructureError) Unwrap() error {
	return e.Cause
}

// NewPdfStructureError creates a new PDF error
func NewPdfStructureError(op, message string, cause error) *PdfStructureError {
	return &PdfStructureError{Op: op, Message: message, Cause: cause}
}

// ProjectionError signals an engine or schema defect found while building or
// serializing XML. It never describes bad caller data.
type ProjectionError struct {
	Path    string
	Message string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("projection failed at %s: %s", e.Path, e.Message)
}

// NewProjectionError creates a new projection error
func NewProjectionError(path, message string) *ProjectionError {
	return &ProjectionError{Path: path, Message: message}
}

// Syntax identifies the XML vocabulary of an existing invoice document
type Syntax string

const (
	SyntaxCII      Syntax = "CII"
	SyntaxZUGFeRD1 Syntax = "ZUGFeRD1"
	SyntaxUnknown  Syntax = "UNKNOWN"
)

// ParseError represents a problem reading an existing invoice document
type ParseError struct {
	Syntax  Syntax
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Syntax, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Syntax, e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(syntax Syntax, field, message string, cause error) *ParseError {
	return &ParseError{
		Syntax:  syntax,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}
