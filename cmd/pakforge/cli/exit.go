// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError requests a non-zero exit without printing the error. A
// command returns it after writing its own report, as verify does when
// some items fail.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this method to tell
// a reported failure from an error still to be printed.
func (e *ExitError) ExitCode() int {
	return e.Code
}
