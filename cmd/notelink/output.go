package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor || color == "" {
		return text
	}
	return color + text + colorReset
}

// Progress and status lines go to stderr so command output stays pipeable.
func printTagged(color, tag, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, tag+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printTagged(colorGreen, "ok:", format, args...) }

func printError(format string, args ...any) { printTagged(colorRed, "error:", format, args...) }

func printWarning(format string, args ...any) { printTagged(colorYellow, "warning:", format, args...) }

// printStatus renders one aligned "label: value" line of the status report.
func printStatus(label, format string, args ...any) {
	padded := fmt.Sprintf("%-14s", label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, padded), fmt.Sprintf(format, args...))
}
