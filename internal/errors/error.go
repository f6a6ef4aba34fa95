package errors

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// Category represents the type of error.
type Category string

const (
	CategoryEngine Category = "engine"
	CategoryConfig Category = "config"
	CategoryCLI    Category = "cli"
)

// Location represents a position in a file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// DVError is a structured error with a code, an optional location and a
// suggestion.
type DVError struct {
	// Code is a unique error identifier (e.g., "DV001").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position where the error occurred.
	Location *Location

	// Context contains the lines around Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *DVError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *DVError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file location to the error.
func (e *DVError) WithLocation(file string, line, column int) *DVError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 3)
	return e
}

// yamlLine matches the line number in gopkg.in/yaml.v3 error messages.
var yamlLine = regexp.MustCompile(`line (\d+)`)

// WithLocationFromError extracts a line number from a YAML or JSON decode
// error and attaches it as the location in file.
func (e *DVError) WithLocationFromError(file string, err error) *DVError {
	if err == nil {
		return e
	}
	m := yamlLine.FindStringSubmatch(err.Error())
	if m == nil {
		return e
	}
	line, convErr := strconv.Atoi(m[1])
	if convErr != nil || line <= 0 {
		return e
	}
	return e.WithLocation(file, line, 0)
}

// WithSuggestion adds a fix suggestion to the error.
func (e *DVError) WithSuggestion(s string) *DVError {
	e.Suggestion = s
	return e
}

// WithDetail replaces the detailed explanation.
func (e *DVError) WithDetail(d string) *DVError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *DVError) Wrap(err error) *DVError {
	e.Wrapped = err
	return e
}

// readContextLines reads the lines around targetLine from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a DVError from a registered error code.
func New(code string) *DVError {
	template, ok := registry[code]
	if !ok {
		return &DVError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &DVError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new DVError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *DVError {
	return &DVError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a DVError.
func FromError(err error, code string) *DVError {
	if err == nil {
		return nil
	}
	if ve, ok := err.(*DVError); ok {
		return ve
	}
	return New(code).Wrap(err)
}
