package rig

import "fmt"

// DecodeError marks a payload that could not be parsed as JSON. Events
// failing this way are dropped and logged; they never crash the pipeline.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode pad event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError marks a decoded payload whose resolved fields are outside
// the allowed domain (most commonly a pad number outside 1..8).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pad event: %s %s", e.Field, e.Reason)
}
