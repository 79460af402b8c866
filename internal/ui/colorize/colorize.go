// Package colorize provides ANSI terminal coloring for the demo CLI's
// invocation trace output.
package colorize

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// IsDisabled returns true if colors are disabled via environment or
// the output isn't a terminal.
func IsDisabled() bool {
	if os.Getenv("LF_NO_COLOR") != "" || os.Getenv("NO_COLOR") != "" {
		return true
	}
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// Module formats a module name in yellow.
func Module(name string) string {
	if IsDisabled() {
		return name
	}
	return fmt.Sprintf("\033[38;2;255;200;0m%s\033[0m", name)
}

// Function formats a function name in light blue.
func Function(name string) string {
	if IsDisabled() {
		return name
	}
	return fmt.Sprintf("\033[38;2;86;156;214m%s\033[0m", name)
}

// Tag formats a hashtag (packet class) in light pink.
func Tag(tag string) string {
	if IsDisabled() {
		return tag
	}
	return fmt.Sprintf("\033[38;2;255;180;200m%s\033[0m", tag)
}

// Value formats an argument/return value in light gray.
func Value(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;180;180;180m%s\033[0m", s)
}

// Detail formats detail text in white.
func Detail(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;255;255;255m%s\033[0m", s)
}

// Border formats border characters in dark gray.
func Border(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;80;80;80m%s\033[0m", s)
}

// Error formats an error code or message in pink.
func Error(s string) string {
	if IsDisabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;255;128;192m%s\033[0m", s)
}

// CorrelationID formats a correlation ID in dim gray.
func CorrelationID(id string) string {
	if IsDisabled() {
		return id
	}
	return fmt.Sprintf("\033[38;2;120;120;120m%s\033[0m", id)
}
