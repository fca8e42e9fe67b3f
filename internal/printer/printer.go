// Package printer formats CLI output: coloured status lines on stdout and
// structured error reports on stderr.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Users can disable colour with NO_COLOR
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)

	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

// SetOutput redirects stdout and stderr output. Nil leaves a stream unchanged.
// Returns a function restoring the previous writers.
func SetOutput(stdout, stderr io.Writer) (restore func()) {
	prevOut, prevErr := out, errOut
	if stdout != nil {
		out = stdout
	}
	if stderr != nil {
		errOut = stderr
	}
	return func() {
		out, errOut = prevOut, prevErr
	}
}

// Success prints a green message with a checkmark prefix
func Success(format string, a ...any) {
	green.Fprint(out, prefixed("✓", fmt.Sprintf(format, a...)))
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(out, format, a...)
}

// Warning prints a yellow message with a warning prefix
func Warning(format string, a ...any) {
	yellow.Fprint(out, prefixed("⚠️ ", fmt.Sprintf(format, a...)))
}

// Step prints a step of a multi-step operation
func Step(format string, a ...any) {
	cyan.Fprint(out, prefixed("→", fmt.Sprintf(format, a...)))
}

// Println prints a plain line
func Println(a ...any) {
	fmt.Fprintln(out, a...)
}

// Printf prints a plain formatted message
func Printf(format string, a ...any) {
	fmt.Fprintf(out, format, a...)
}

func prefixed(prefix, msg string) string {
	if strings.HasPrefix(msg, strings.TrimSpace(prefix)) {
		return msg
	}
	return prefix + " " + msg
}

// Error prints a report with title, explanation, and suggestions to stderr
// and returns an error carrying only the title, for commands that set
// SilenceErrors.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details, printed sorted by key.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(errOut, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(errOut, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(errOut)
		for _, k := range keys {
			fmt.Fprintf(errOut, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(errOut, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(errOut, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(errOut, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}
