package downloader

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory classifies failures so the HTTP layer and CLI can map them
// onto status codes without inspecting messages.
type ErrorCategory string

const (
	CategoryInvalidURL       ErrorCategory = "invalid_url"
	CategoryInvalidQuality   ErrorCategory = "invalid_quality"
	CategoryNetwork          ErrorCategory = "network"
	CategoryUnsupported      ErrorCategory = "unsupported"
	CategoryRestricted       ErrorCategory = "restricted"
	CategoryProcessingFailed ErrorCategory = "processing_failed"
	CategoryTimeout          ErrorCategory = "timeout"
	CategoryCanceled         ErrorCategory = "canceled"
	CategoryUnknown          ErrorCategory = "unknown"
)

type CategorizedError struct {
	Category ErrorCategory
	Err      error
}

func (e CategorizedError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e CategorizedError) Unwrap() error { return e.Err }

func wrapCategory(category ErrorCategory, err error) error {
	if err == nil {
		return nil
	}
	return CategorizedError{Category: category, Err: err}
}

// CategoryOf returns the category of the first categorized error in err's
// chain, falling back to context errors.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return CategoryProcessingFailed
	}
	var catErr CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	}
	return CategoryUnknown
}

// ExitCode maps an error onto a process exit status for the CLI.
func ExitCode(err error) int {
	switch CategoryOf(err) {
	case "":
		return 0
	case CategoryInvalidURL, CategoryInvalidQuality:
		return 2
	case CategoryProcessingFailed, CategoryUnsupported, CategoryRestricted:
		return 3
	case CategoryNetwork, CategoryTimeout:
		return 4
	case CategoryCanceled:
		return 130
	}
	return 1
}

// Attempt records why one strategy produced no result.
type Attempt struct {
	Strategy string
	Err      error
}

// ResolutionError is returned when every enabled strategy failed.
type ResolutionError struct {
	Attempts []Attempt
}

func (e *ResolutionError) Error() string {
	if len(e.Attempts) == 0 {
		return "all download methods failed"
	}
	msg := "all download methods failed:"
	for i, a := range e.Attempts {
		if i > 0 {
			msg += ";"
		}
		msg += fmt.Sprintf(" %s: %v", a.Strategy, a.Err)
	}
	return msg
}

func (e *ResolutionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}
