// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is a machine readable code identifying the step that failed.
type ErrorCode string

// StepError is returned by a step of the volume replacement.
type StepError struct {
	// Code identifies the failure.
	Code ErrorCode
	// Cause is the underlying error.
	Cause error
	// Operation is the step that was being executed.
	Operation string
	// Message is a human readable description.
	Message string
	// ObservedAt is the time the error was wrapped.
	ObservedAt time.Time
}

func (e *StepError) Error() string {
	return fmt.Sprintf("[Operation: %s, Code: %s] message: %s, cause: %s", e.Operation, e.Code, e.Message, e.causeMessage())
}

func (e *StepError) causeMessage() string {
	if e.Cause == nil {
		return "<nil>"
	}
	return e.Cause.Error()
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Cause
}

// WrapError wraps err into a *StepError.
func WrapError(err error, code ErrorCode, operation string, message string) error {
	if err == nil {
		return nil
	}
	return &StepError{
		Code:       code,
		Cause:      err,
		Operation:  operation,
		Message:    message,
		ObservedAt: time.Now().UTC(),
	}
}

// AsStepError returns the first *StepError in the chain of err, if any.
func AsStepError(err error) *StepError {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr
	}
	return nil
}

// HasCode reports whether the chain of err contains a *StepError with the given code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var stepErr *StepError
		if !errors.As(err, &stepErr) {
			return false
		}
		if stepErr.Code == code {
			return true
		}
		err = stepErr.Cause
	}
	return false
}
