package cli

import (
	"fmt"
	"os"

	tcerrors "github.com/randalmurphal/tc/internal/errors"
)

// PrintError prints an error to stderr with appropriate formatting.
// If the error is a TCError, it uses the user-friendly format.
// Otherwise, it prints a simple error message.
func PrintError(err error) {
	if tcErr := tcerrors.AsTCError(err); tcErr != nil {
		fmt.Fprintln(os.Stderr, tcErr.UserMessage())
		if verbose {
			// In verbose mode, also print the error code and cause
			fmt.Fprintf(os.Stderr, "\nCode: %s\n", tcErr.Code)
			if tcErr.Cause != nil {
				fmt.Fprintf(os.Stderr, "Cause: %v\n", tcErr.Cause)
			}
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
