package risk

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is a stable category for programmatic error handling. Branch on Kind
// and Field, not on Error() text.
type Kind string

const (
	KindInvalidInput Kind = "InvalidInput"
)

// Error describes one record that could not be resolved. Index is the
// record's position in the input batch.
type Error struct {
	Kind    Kind
	Index   int
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: record %d", e.Kind, e.Index)
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// MarshalJSON flattens the cause into the message so reports stay readable.
func (e *Error) MarshalJSON() ([]byte, error) {
	msg := e.Message
	if e.Cause != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Cause.Error()
	}
	return json.Marshal(struct {
		Kind    Kind   `json:"kind"`
		Index   int    `json:"index"`
		Field   string `json:"field,omitempty"`
		Message string `json:"message,omitempty"`
	}{e.Kind, e.Index, e.Field, msg})
}

func invalidInput(index int, field, msg string, cause error) *Error {
	return &Error{Kind: KindInvalidInput, Index: index, Field: field, Message: msg, Cause: cause}
}

// BatchError collects the per-record failures of one pass. Valid records are
// still returned next to it.
type BatchError struct {
	Errs []*Error
}

func (e *BatchError) Error() string {
	if e == nil || len(e.Errs) == 0 {
		return "no invalid records"
	}
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	return fmt.Sprintf("%d invalid records; first: %v", len(e.Errs), e.Errs[0])
}

func (e *BatchError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, len(e.Errs))
	for i, err := range e.Errs {
		out[i] = err
	}
	return out
}

// Indices returns the input positions that failed, in ascending order.
func (e *BatchError) Indices() []int {
	if e == nil {
		return nil
	}
	out := make([]int, len(e.Errs))
	for i, err := range e.Errs {
		out[i] = err.Index
	}
	return out
}

// orNil keeps a typed nil *BatchError from turning into a non-nil error.
func (e *BatchError) orNil() error {
	if e == nil || len(e.Errs) == 0 {
		return nil
	}
	return e
}
