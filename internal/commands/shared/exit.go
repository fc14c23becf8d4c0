// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/tombee/ironflow/pkg/errors"
)

// Exit codes. Every failure, validation included, exits 1.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// ExitError is an error carrying an exit code.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// Failure wraps an error as an exit-1 failure.
func Failure(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: msg, Cause: cause}
}

// Silent returns an exit-1 error that prints nothing; use when the command
// already reported the problem.
func Silent() *ExitError {
	return &ExitError{Code: ExitFailure}
}

// HandleExitError prints the error (and any validation suggestion in its
// chain) and exits with the appropriate code.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	code := ExitFailure
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}

	if msg := err.Error(); msg != "" {
		fmt.Fprintln(os.Stderr, "Error:", msg)
		printSuggestion(err)
	}
	os.Exit(code)
}

// printSuggestion surfaces a ValidationError's suggestion when one is in the
// chain.
func printSuggestion(err error) {
	var validation *pkgerrors.ValidationError
	if errors.As(err, &validation) && validation.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", validation.Suggestion)
	}
}
