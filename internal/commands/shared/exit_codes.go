// Copyright 2026 Devlease Authors
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

	"github.com/devlease/devlease/internal/coordinator"
	"github.com/devlease/devlease/internal/lock"
)

// Exit codes for devlease commands. Scripts branch on these, so they are
// part of the CLI contract.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitEnvironment  = 10 // config or state directory unusable
	ExitContention   = 11 // lock held by a live owner for the whole budget
	ExitDrainTimeout = 12 // registrations did not drain in time
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewEnvironmentError creates an error for unusable config or state
// directories.
func NewEnvironmentError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitEnvironment,
		Message: msg,
		Cause:   cause,
	}
}

// NewContentionError creates an error for lock acquisition timeouts.
func NewContentionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitContention,
		Message: msg,
		Cause:   cause,
	}
}

// NewDrainTimeoutError creates an error for drain waits that gave up.
func NewDrainTimeoutError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitDrainTimeout,
		Message: msg,
		Cause:   cause,
	}
}

// ExitCodeFor maps an error to its exit code, classifying the coordination
// sentinel errors even when a command forgot to wrap them.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, lock.ErrAcquireTimeout) {
		return ExitContention
	}
	if errors.Is(err, coordinator.ErrDrainTimeout) {
		return ExitDrainTimeout
	}
	return ExitFailure
}

// HandleExitError prints the error and exits with the appropriate code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(ExitCodeFor(err))
}
