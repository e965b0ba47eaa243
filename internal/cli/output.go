package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	okColor  = color.New(color.FgGreen, color.Bold)
	errColor = color.New(color.FgRed, color.Bold)
	dimColor = color.New(color.Faint)
)

// Swapped by tests.
var (
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

func success(format string, args ...any) {
	okColor.Fprint(out, "✓ ")
	fmt.Fprintf(out, format+"\n", args...)
}

func failure(format string, args ...any) {
	errColor.Fprint(errOut, "✗ ")
	fmt.Fprintf(errOut, format+"\n", args...)
}

func hint(format string, args ...any) {
	dimColor.Fprintf(out, "  "+format+"\n", args...)
}
