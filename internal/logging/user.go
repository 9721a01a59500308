package logging

import (
	"fmt"
	"io"
	"os"
)

// Status lines for people at a terminal, kept apart from the structured log.
// Info and success go to the user's stdout, warnings and errors to stderr.
var (
	userOut io.Writer = os.Stdout
	userErr io.Writer = os.Stderr
)

// SetUserOutput redirects user-facing lines. A nil writer keeps the current one.
func SetUserOutput(stdout, stderr io.Writer) {
	if stdout != nil {
		userOut = stdout
	}
	if stderr != nil {
		userErr = stderr
	}
}

// UserInfo prints "ℹ <message>" to stdout.
func UserInfo(format string, args ...interface{}) { userLine(userOut, "ℹ", format, args...) }

// UserSuccess prints "✓ <message>" to stdout.
func UserSuccess(format string, args ...interface{}) { userLine(userOut, "✓", format, args...) }

// UserWarning prints "⚠ <message>" to stderr.
func UserWarning(format string, args ...interface{}) { userLine(userErr, "⚠", format, args...) }

// UserError prints "✗ <message>" to stderr.
func UserError(format string, args ...interface{}) { userLine(userErr, "✗", format, args...) }

func userLine(w io.Writer, marker, format string, args ...interface{}) {
	fmt.Fprintf(w, marker+" "+format+"\n", args...)
}
