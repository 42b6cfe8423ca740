// Package exit carries process exit codes through the error chain so
// that os.Exit is called in exactly one place.
package exit

import "fmt"

// Error is an error holding a process exit code. Deeply nested code
// decides the code; main extracts it with errors.As.
type Error int

func (e Error) Error() string {
	return fmt.Sprintf("%d", e)
}

// Code returns the exit code.
func (e Error) Code() int {
	return int(e)
}
