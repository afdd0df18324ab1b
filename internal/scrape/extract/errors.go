package extract

import "fmt"

type ErrorKind string

const (
	KindMissingField ErrorKind = "missing_field"
	KindParseFailure ErrorKind = "parse_failure"
)

type ExtractError struct {
	Kind  ErrorKind
	Field string // set for missing_field
	Err   error
}

func (e *ExtractError) Error() string {
	switch {
	case e.Kind == KindMissingField:
		return fmt.Sprintf("extract: missing field %q", e.Field)
	case e.Err != nil:
		return fmt.Sprintf("extract: %s: %v", e.Kind, e.Err)
	default:
		return "extract: " + string(e.Kind)
	}
}

func (e *ExtractError) Unwrap() error { return e.Err }

func missing(field string) *ExtractError {
	return &ExtractError{Kind: KindMissingField, Field: field}
}
