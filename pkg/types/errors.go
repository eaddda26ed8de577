// Package types defines the error taxonomy shared by every parser in the module.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a parse failure.
type ErrorKind string

// Error kinds.
const (
	KindSyntax         ErrorKind = "SyntaxError"
	KindBinding        ErrorKind = "BindingError"
	KindRecursionLimit ErrorKind = "RecursionLimitExceeded"
	KindPathTooLong    ErrorKind = "PathTooLong"
	KindSegmentCount   ErrorKind = "SegmentCountExceeded"
)

// HTTP-class status codes attached to errors.
const (
	CodeBadRequest = 400
	CodeNotFound   = 404
)

// Sentinel causes. Test for them with errors.Is.
var (
	ErrUnterminatedLiteral  = errors.New("unterminated literal")
	ErrUnexpectedToken      = errors.New("unexpected token")
	ErrUnbalancedParens     = errors.New("unbalanced parentheses")
	ErrMixedArguments       = errors.New("named and positional arguments cannot be mixed")
	ErrDuplicateName        = errors.New("duplicate name")
	ErrRangeVariableInUse   = errors.New("range variable already declared")
	ErrUnknownSegment       = errors.New("segment cannot be resolved")
	ErrLeafSegment          = errors.New("segment must be the last segment of the path")
	ErrCountOnRoot          = errors.New("$count cannot be applied to the service root")
	ErrCountNotCollection   = errors.New("$count can only follow a collection")
	ErrAmbiguousOverload    = errors.New("multiple overloads match")
	ErrNoOverload           = errors.New("no overload matches")
	ErrActionFunctionMix    = errors.New("name resolves to both actions and functions")
	ErrKeyMismatch          = errors.New("key values do not match the key properties")
	ErrTypeConstraint       = errors.New("type is not allowed by the derived type constraint")
	ErrInvalidLiteral       = errors.New("invalid literal")
	ErrInvalidOption        = errors.New("invalid query option")
	ErrStarOption           = errors.New("option not allowed on '*'")
	ErrDuplicateStar        = errors.New("'*' may appear only once")
	ErrLimitExceeded        = errors.New("limit exceeded")
)

// PathContext describes where path resolution stopped.
type PathContext struct {
	Parsed    []string // identifiers of segments bound so far
	Segment   string   // raw text of the failing segment
	Remaining []string // raw segments not yet consumed
}

// ParseError is the single error type produced by the parsers.
type ParseError struct {
	Kind     ErrorKind
	Code     int
	Message  string
	Position int    // offset into Text, -1 when not applicable
	Text     string // source text of the clause, empty for limit errors
	Err      error
	Path     *PathContext
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Position >= 0 {
		fmt.Fprintf(&sb, " at position %d", e.Position)
	}
	if e.Text != "" {
		fmt.Fprintf(&sb, " in '%s'", e.Text)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Path != nil && e.Path.Segment != "" {
		fmt.Fprintf(&sb, " (segment '%s'", e.Path.Segment)
		if len(e.Path.Parsed) > 0 {
			fmt.Fprintf(&sb, " after '%s'", strings.Join(e.Path.Parsed, "/"))
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// Unwrap returns the sentinel cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// WithCause sets the sentinel cause.
func (e *ParseError) WithCause(err error) *ParseError {
	e.Err = err
	return e
}

// WithPath attaches path resolution context.
func (e *ParseError) WithPath(ctx *PathContext) *ParseError {
	e.Path = ctx
	return e
}

// WithNotFound marks the error as a 404-class failure.
func (e *ParseError) WithNotFound() *ParseError {
	e.Code = CodeNotFound
	return e
}

// NewSyntaxError creates a SyntaxError at pos in text.
func NewSyntaxError(msg string, pos int, text string) *ParseError {
	return &ParseError{Kind: KindSyntax, Code: CodeBadRequest, Message: msg, Position: pos, Text: text}
}

// NewBindingError creates a BindingError without position information.
func NewBindingError(msg string) *ParseError {
	return &ParseError{Kind: KindBinding, Code: CodeBadRequest, Message: msg, Position: -1}
}

// NewRecursionError reports that an expression nested deeper than limit.
func NewRecursionError(limit int) *ParseError {
	return &ParseError{
		Kind:     KindRecursionLimit,
		Code:     CodeBadRequest,
		Message:  fmt.Sprintf("recursion depth limit exceeded (max %d)", limit),
		Position: -1,
		Err:      ErrLimitExceeded,
	}
}

// NewPathTooLongError reports a select/expand path longer than limit.
func NewPathTooLongError(limit int) *ParseError {
	return &ParseError{
		Kind:     KindPathTooLong,
		Code:     CodeBadRequest,
		Message:  fmt.Sprintf("path exceeds maximum depth (max %d)", limit),
		Position: -1,
		Err:      ErrLimitExceeded,
	}
}

// NewSegmentCountError reports a resource path with more than limit segments.
func NewSegmentCountError(limit int) *ParseError {
	return &ParseError{
		Kind:     KindSegmentCount,
		Code:     CodeBadRequest,
		Message:  fmt.Sprintf("resource path has too many segments (max %d)", limit),
		Position: -1,
		Err:      ErrLimitExceeded,
	}
}

// IsKind reports whether err is a *ParseError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// StatusOf returns the HTTP-class code carried by err, or 500 for foreign errors.
func StatusOf(err error) int {
	var pe *ParseError
	if errors.As(err, &pe) && pe.Code != 0 {
		return pe.Code
	}
	return 500
}
